package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dropDatabas3/docjohn/docstore"
	"github.com/dropDatabas3/docjohn/identity"
)

// RoleStore operaciones sobre documentos rol. Mismas reglas de id, etag y
// discriminador que UserStore, sobre un contrato más chico.
type RoleStore struct {
	s   *Store
	log *zap.Logger
}

func (st *RoleStore) col() string { return st.s.opts.RoleCollection }

// Create asigna id y discriminador y escribe el documento. Chequeo
// cooperativo de unicidad de nombre normalizado entre documentos Role.
func (st *RoleStore) Create(ctx context.Context, r *identity.Role) (_ *identity.Role, err error) {
	done := track("roles", "create")
	defer func() { done(err) }()

	if r == nil {
		return nil, fmt.Errorf("%w: nil role", ErrInvalid)
	}
	if r.NormalizedName == "" {
		return nil, fmt.Errorf("%w: role without normalized name", ErrInvalid)
	}
	if r.DocumentType == "" {
		r.DocumentType = st.s.opts.RoleType
	} else if r.DocumentType != st.s.opts.RoleType {
		return nil, fmt.Errorf("%w: role discriminator %q, store uses %q", ErrInvalid, r.DocumentType, st.s.opts.RoleType)
	}
	if r.ID == "" {
		r.ID = newID()
	}

	existing, err := st.s.queryOne(ctx, st.col(), st.s.roleByName(r.NormalizedName))
	if err != nil {
		return nil, fmt.Errorf("roles: create: uniqueness check: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRoleName, r.NormalizedName)
	}

	created, err := st.s.client.Create(ctx, st.col(), identity.EncodeRole(r))
	if err != nil {
		return nil, fmt.Errorf("roles: create %s: %w", r.ID, err)
	}
	r.Etag = created.Etag()

	st.log.Info("role created", zap.String("id", r.ID), zap.String("name", r.NormalizedName))
	return r, nil
}

// Update reemplaza el documento si el etag sigue vigente.
func (st *RoleStore) Update(ctx context.Context, r *identity.Role) (_ *identity.Role, err error) {
	done := track("roles", "update")
	defer func() { done(err) }()

	if err := st.mutable(r); err != nil {
		return nil, err
	}
	if r.NormalizedName == "" {
		return nil, fmt.Errorf("%w: role without normalized name", ErrInvalid)
	}

	other, err := st.s.queryOne(ctx, st.col(), st.s.roleByName(r.NormalizedName))
	if err != nil {
		return nil, fmt.Errorf("roles: update: uniqueness check: %w", err)
	}
	if other != nil && other.ID() != r.ID {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRoleName, r.NormalizedName)
	}

	if err := st.save(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete elimina el rol bajo su etag. NO cascadea a los usuarios: las
// membresías denormalizadas quedan stale por contrato (no hay
// transacciones multi-documento). Ver Store.RemoveRoleFromUsers.
func (st *RoleStore) Delete(ctx context.Context, r *identity.Role) (err error) {
	done := track("roles", "delete")
	defer func() { done(err) }()

	if err := st.mutable(r); err != nil {
		return err
	}
	if err := st.s.client.Delete(ctx, st.col(), r.ID, r.Etag); err != nil {
		return st.mapWrite("delete", r.ID, err)
	}
	st.log.Info("role deleted", zap.String("id", r.ID), zap.String("name", r.NormalizedName))
	return nil
}

// FindByID lectura puntual con validación de discriminador.
func (st *RoleStore) FindByID(ctx context.Context, id string) (_ *identity.Role, err error) {
	done := track("roles", "find_by_id")
	defer func() { done(err) }()

	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalid)
	}
	doc, err := st.s.client.Get(ctx, st.col(), id)
	if docstore.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("roles: find %s: %w", id, err)
	}
	if doc.Type() != st.s.opts.RoleType {
		return nil, nil
	}
	return identity.DecodeRole(doc)
}

// FindByName busca por nombre normalizado. (nil, nil) si no existe.
func (st *RoleStore) FindByName(ctx context.Context, normalizedName string) (_ *identity.Role, err error) {
	done := track("roles", "find_by_name")
	defer func() { done(err) }()

	doc, err := st.s.queryOne(ctx, st.col(), st.s.roleByName(normalizedName))
	if err != nil {
		return nil, fmt.Errorf("roles: find by name: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	return identity.DecodeRole(doc)
}

// All materializa todos los documentos rol.
func (st *RoleStore) All(ctx context.Context) (_ []*identity.Role, err error) {
	done := track("roles", "all")
	defer func() { done(err) }()

	docs, err := st.s.queryAll(ctx, st.col(), st.s.rolesFilter())
	if err != nil {
		return nil, fmt.Errorf("roles: all: %w", err)
	}
	roles := make([]*identity.Role, 0, len(docs))
	for _, doc := range docs {
		r, err := identity.DecodeRole(doc)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// ─── Claims ───
// Misma política que en usuarios: duplicados permitidos, Remove saca todas
// las ocurrencias.

// AddClaims agrega claims y persiste.
func (st *RoleStore) AddClaims(ctx context.Context, r *identity.Role, claims ...identity.Claim) (err error) {
	done := track("roles", "add_claims")
	defer func() { done(err) }()

	if err := st.mutable(r); err != nil {
		return err
	}
	r.Claims = append(r.Claims, claims...)
	return st.save(ctx, r)
}

// RemoveClaims elimina toda ocurrencia que matchee (type, value) y persiste.
func (st *RoleStore) RemoveClaims(ctx context.Context, r *identity.Role, claims ...identity.Claim) (err error) {
	done := track("roles", "remove_claims")
	defer func() { done(err) }()

	if err := st.mutable(r); err != nil {
		return err
	}
	kept := r.Claims[:0]
	for _, have := range r.Claims {
		drop := false
		for _, c := range claims {
			if have == c {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, have)
		}
	}
	r.Claims = kept
	return st.save(ctx, r)
}

// GetClaims lista los claims del documento almacenado.
func (st *RoleStore) GetClaims(ctx context.Context, r *identity.Role) (_ []identity.Claim, err error) {
	done := track("roles", "get_claims")
	defer func() { done(err) }()

	if r == nil || r.ID == "" {
		return nil, fmt.Errorf("%w: nil role or missing id", ErrInvalid)
	}
	stored, err := st.FindByID(ctx, r.ID)
	if err != nil || stored == nil {
		return nil, err
	}
	return stored.Claims, nil
}

// ─── Internos ───

// mutable valida id, token y discriminador intacto, igual que en
// UserStore: el discriminador no muta después de Create.
func (st *RoleStore) mutable(r *identity.Role) error {
	if r == nil {
		return fmt.Errorf("%w: nil role", ErrInvalid)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: role without id", ErrInvalid)
	}
	if r.Etag == "" {
		return fmt.Errorf("%w: role without concurrency token (read it first)", ErrInvalid)
	}
	if r.DocumentType != st.s.opts.RoleType {
		return fmt.Errorf("%w: role discriminator %q, store uses %q", ErrInvalid, r.DocumentType, st.s.opts.RoleType)
	}
	return nil
}

func (st *RoleStore) save(ctx context.Context, r *identity.Role) error {
	replaced, err := st.s.client.Replace(ctx, st.col(), identity.EncodeRole(r), r.Etag)
	if err != nil {
		return st.mapWrite("save", r.ID, err)
	}
	r.Etag = replaced.Etag()
	return nil
}

func (st *RoleStore) mapWrite(op, id string, err error) error {
	if docstore.IsPreconditionFailed(err) || docstore.IsNotFound(err) {
		st.log.Warn("write conflict", zap.String("op", op), zap.String("id", id))
		return fmt.Errorf("%w: role %s", ErrConcurrency, id)
	}
	return fmt.Errorf("roles: %s %s: %w", op, id, err)
}
