package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/docjohn/docstore"
	"github.com/dropDatabas3/docjohn/identity"
)

// Builders de queries. Toda query califica primero por discriminador:
// colecciones compartidas nunca decodifican documentos de otro tipo.

func (s *Store) usersFilter(extra ...docstore.Cond) docstore.Filter {
	return append(docstore.And(docstore.Eq(docstore.FieldType, s.opts.UserType)), extra...)
}

func (s *Store) rolesFilter(extra ...docstore.Cond) docstore.Filter {
	return append(docstore.And(docstore.Eq(docstore.FieldType, s.opts.RoleType)), extra...)
}

func (s *Store) userByName(normalizedName string) docstore.Filter {
	return s.usersFilter(docstore.Eq(identity.FieldNormalizedUserName, normalizedName))
}

func (s *Store) userByEmail(normalizedEmail string) docstore.Filter {
	return s.usersFilter(docstore.Eq(identity.FieldNormalizedEmail, normalizedEmail))
}

func (s *Store) userByLogin(provider, providerKey string) docstore.Filter {
	return s.usersFilter(docstore.ElemMatch(identity.FieldLogins, identity.LoginElem(provider, providerKey)))
}

func (s *Store) usersInRole(normalizedRoleName string) docstore.Filter {
	return s.usersFilter(docstore.ElemMatch(identity.FieldRoles, identity.RoleElem(normalizedRoleName)))
}

func (s *Store) roleByName(normalizedName string) docstore.Filter {
	return s.rolesFilter(docstore.Eq(identity.FieldRoleNormalizedName, normalizedName))
}

// queryOne ejecuta un filtro que espera a lo sumo un resultado.
// Más de un match es violación de consistencia: se reporta ErrAmbiguous,
// nunca se elige el primero en silencio. Cero matches retorna (nil, nil).
func (s *Store) queryOne(ctx context.Context, collection string, filter docstore.Filter) (docstore.Document, error) {
	cur, err := s.client.Query(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var found docstore.Document
	for cur.Next(ctx) {
		if found != nil {
			return nil, fmt.Errorf("%w: collection %s", ErrAmbiguous, collection)
		}
		found = cur.Document()
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return found, nil
}

// queryAll materializa todos los matches de un filtro.
func (s *Store) queryAll(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	cur, err := s.client.Query(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var docs []docstore.Document
	for cur.Next(ctx) {
		docs = append(docs, cur.Document())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
