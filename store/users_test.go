package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/docjohn/docstore"
	"github.com/dropDatabas3/docjohn/docstore/drivers/memory"
	"github.com/dropDatabas3/docjohn/identity"
	"github.com/dropDatabas3/docjohn/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(memory.New(), store.Options{UserCollection: "identity"})
	require.NoError(t, err)
	return s
}

func newUser(name string) *identity.User {
	return &identity.User{
		UserName:           name,
		NormalizedUserName: identity.Normalize(name),
		Email:              name + "@example.test",
		NormalizedEmail:    identity.Normalize(name + "@example.test"),
	}
}

func mustRole(t *testing.T, s *store.Store, name string) *identity.Role {
	t.Helper()
	r, err := s.Roles().Create(context.Background(), &identity.Role{
		Name:           name,
		NormalizedName: identity.Normalize(name),
	})
	require.NoError(t, err)
	return r
}

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	users := s.Users()

	u, err := users.Create(ctx, newUser("ada"))
	require.NoError(t, err)
	require.NotEmpty(t, u.ID, "Create must assign an id")
	require.NotEmpty(t, u.Etag, "Create must return the concurrency token")
	require.Equal(t, identity.TypeUser, u.DocumentType)

	byID, err := users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	require.Equal(t, "ada", byID.UserName)

	byName, err := users.FindByName(ctx, "ADA")
	require.NoError(t, err)
	require.NotNil(t, byName)
	require.Equal(t, u.ID, byName.ID)

	byEmail, err := users.FindByEmail(ctx, identity.Normalize("ada@example.test"))
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	require.Equal(t, u.ID, byEmail.ID)

	// ausencia: (nil, nil), nunca error
	missing, err := users.FindByName(ctx, "NOBODY")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestCreateDuplicateName(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	users := s.Users()

	_, err := users.Create(ctx, newUser("ada"))
	require.NoError(t, err)

	_, err = users.Create(ctx, newUser("ada"))
	require.ErrorIs(t, err, store.ErrDuplicateUserName)
	require.True(t, store.IsDuplicate(err))
}

func TestCreateRejectsForeignDiscriminator(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	u := newUser("ada")
	u.DocumentType = "Widget"
	_, err := s.Users().Create(ctx, u)
	require.ErrorIs(t, err, store.ErrInvalid)
}

func TestUpdateConcurrencyConflict(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	users := s.Users()

	created, err := users.Create(ctx, newUser("ada"))
	require.NoError(t, err)

	// dos lecturas independientes de la misma entidad
	a, err := users.FindByID(ctx, created.ID)
	require.NoError(t, err)
	b, err := users.FindByID(ctx, created.ID)
	require.NoError(t, err)

	a.PhoneNumber = "+111"
	_, err = users.Update(ctx, a)
	require.NoError(t, err)

	// b quedó con el token viejo: su escritura pierde, nada se pisa
	b.PhoneNumber = "+222"
	_, err = users.Update(ctx, b)
	require.True(t, store.IsConcurrencyFailure(err), "err = %v", err)

	stored, err := users.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "+111", stored.PhoneNumber)
}

func TestUpdateDuplicateName(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	users := s.Users()

	_, err := users.Create(ctx, newUser("ada"))
	require.NoError(t, err)
	bob, err := users.Create(ctx, newUser("bob"))
	require.NoError(t, err)

	bob.NormalizedUserName = "ADA"
	_, err = users.Update(ctx, bob)
	require.ErrorIs(t, err, store.ErrDuplicateUserName)

	// renombrarse a sí mismo no es colisión
	ada, err := users.FindByName(ctx, "ADA")
	require.NoError(t, err)
	ada.UserName = "Ada"
	_, err = users.Update(ctx, ada)
	require.NoError(t, err)
}

func TestDeleteStaleToken(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	users := s.Users()

	u, err := users.Create(ctx, newUser("ada"))
	require.NoError(t, err)

	stale := *u
	u.PhoneNumber = "+1"
	_, err = users.Update(ctx, u)
	require.NoError(t, err)

	err = users.Delete(ctx, &stale)
	require.True(t, store.IsConcurrencyFailure(err))

	require.NoError(t, users.Delete(ctx, u))
	gone, err := users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestMutationsRequireToken(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	users := s.Users()

	u, err := users.Create(ctx, newUser("ada"))
	require.NoError(t, err)

	detached := &identity.User{ID: u.ID, NormalizedUserName: "ADA"}
	_, err = users.Update(ctx, detached)
	require.ErrorIs(t, err, store.ErrInvalid)
	require.ErrorIs(t, users.Delete(ctx, detached), store.ErrInvalid)
	require.ErrorIs(t, users.SetPasswordHash(ctx, detached, "h"), store.ErrInvalid)
}

func TestUpdateRejectsMutatedDiscriminator(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	users := s.Users()

	created, err := users.Create(ctx, newUser("ada"))
	require.NoError(t, err)

	// el discriminador se asigna en Create y no muta: una entidad que lo
	// trae borrado no se persiste (el documento quedaría invisible para
	// toda búsqueda tipada)
	wiped, err := users.FindByID(ctx, created.ID)
	require.NoError(t, err)
	wiped.DocumentType = ""
	_, err = users.Update(ctx, wiped)
	require.ErrorIs(t, err, store.ErrInvalid)

	// tampoco reescrito a otro tipo
	crossed, err := users.FindByID(ctx, created.ID)
	require.NoError(t, err)
	crossed.DocumentType = identity.TypeRole
	_, err = users.Update(ctx, crossed)
	require.ErrorIs(t, err, store.ErrInvalid)
	require.ErrorIs(t, users.SetPasswordHash(ctx, crossed, "h"), store.ErrInvalid)
	require.ErrorIs(t, users.Delete(ctx, crossed), store.ErrInvalid)

	// nada se escribió: el usuario sigue visible por id y por nombre
	byID, err := users.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	byName, err := users.FindByName(ctx, "ADA")
	require.NoError(t, err)
	require.NotNil(t, byName)
}

func TestClaimsDuplicatesPermitted(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	users := s.Users()

	u, err := users.Create(ctx, newUser("ada"))
	require.NoError(t, err)

	scope := identity.Claim{Type: "scope", Value: "read"}
	require.NoError(t, users.AddClaims(ctx, u, scope))
	require.NoError(t, users.AddClaims(ctx, u, scope))

	claims, err := users.GetClaims(ctx, u)
	require.NoError(t, err)
	require.Len(t, claims, 2, "same claim added twice stores two occurrences")

	require.NoError(t, users.ReplaceClaim(ctx, u, scope, identity.Claim{Type: "scope", Value: "write"}))
	claims, err = users.GetClaims(ctx, u)
	require.NoError(t, err)
	require.Equal(t, "write", claims[0].Value)
	require.Equal(t, "write", claims[1].Value)

	require.NoError(t, users.RemoveClaims(ctx, u, identity.Claim{Type: "scope", Value: "write"}))
	claims, err = users.GetClaims(ctx, u)
	require.NoError(t, err)
	require.Empty(t, claims, "Remove drops every matching occurrence")
}

func TestLogins(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	users := s.Users()

	ada, err := users.Create(ctx, newUser("ada"))
	require.NoError(t, err)
	bob, err := users.Create(ctx, newUser("bob"))
	require.NoError(t, err)

	login := identity.Login{Provider: "google", ProviderKey: "g-1", DisplayName: "Google"}
	require.NoError(t, users.AddLogin(ctx, ada, login))

	owner, err := users.FindByLogin(ctx, "google", "g-1")
	require.NoError(t, err)
	require.NotNil(t, owner)
	require.Equal(t, ada.ID, owner.ID)

	// el par es único en todo el store
	err = users.AddLogin(ctx, bob, login)
	require.ErrorIs(t, err, store.ErrDuplicateLogin)

	// y también para el mismo dueño
	err = users.AddLogin(ctx, ada, login)
	require.ErrorIs(t, err, store.ErrDuplicateLogin)

	require.NoError(t, users.RemoveLogin(ctx, ada, "google", "g-1"))
	owner, err = users.FindByLogin(ctx, "google", "g-1")
	require.NoError(t, err)
	require.Nil(t, owner)

	// liberado el par, otro usuario puede tomarlo
	require.NoError(t, users.AddLogin(ctx, bob, login))
}

func TestRoleMembership(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	users := s.Users()

	admins := mustRole(t, s, "Admins")
	mustRole(t, s, "Auditors")

	u, err := users.Create(ctx, newUser("ada"))
	require.NoError(t, err)

	require.NoError(t, users.AddToRoles(ctx, u, "ADMINS", "AUDITORS"))
	// agregar de nuevo es no-op, no duplica
	require.NoError(t, users.AddToRoles(ctx, u, "ADMINS"))

	roles, err := users.GetRoles(ctx, u)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	require.Equal(t, admins.ID, roles[0].RoleID)

	in, err := users.IsInRole(ctx, u, "ADMINS")
	require.NoError(t, err)
	require.True(t, in)

	in, err = users.IsInRole(ctx, u, "GHOSTS")
	require.NoError(t, err)
	require.False(t, in)

	members, err := users.GetUsersInRole(ctx, "ADMINS")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, u.ID, members[0].ID)

	// rol inexistente: la membresía no se inventa
	err = users.AddToRoles(ctx, u, "GHOSTS")
	require.ErrorIs(t, err, store.ErrInvalid)

	require.NoError(t, users.RemoveFromRoles(ctx, u, "AUDITORS"))
	roles, err = users.GetRoles(ctx, u)
	require.NoError(t, err)
	require.Len(t, roles, 1)
}

func TestStaleMembershipAfterRoleDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	users := s.Users()

	admins := mustRole(t, s, "Admins")
	u, err := users.Create(ctx, newUser("ada"))
	require.NoError(t, err)
	require.NoError(t, users.AddToRoles(ctx, u, "ADMINS"))

	// borrar el rol no cascadea sobre los usuarios
	require.NoError(t, s.Roles().Delete(ctx, admins))

	roles, err := users.GetRoles(ctx, u)
	require.NoError(t, err)
	require.Len(t, roles, 1, "membership entry survives the role")

	// compensación explícita
	cleaned, err := s.RemoveRoleFromUsers(ctx, "ADMINS")
	require.NoError(t, err)
	require.Equal(t, 1, cleaned)

	roles, err = users.GetRoles(ctx, u)
	require.NoError(t, err)
	require.Empty(t, roles)

	// idempotente
	cleaned, err = s.RemoveRoleFromUsers(ctx, "ADMINS")
	require.NoError(t, err)
	require.Zero(t, cleaned)
}

func TestScalarSetters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	users := s.Users()

	u, err := users.Create(ctx, newUser("ada"))
	require.NoError(t, err)

	require.NoError(t, users.SetEmailConfirmed(ctx, u, true))
	require.True(t, u.EmailConfirmed)

	// cambiar el email baja la confirmación
	require.NoError(t, users.SetEmail(ctx, u, "new@example.test", "NEW@EXAMPLE.TEST"))
	stored, err := users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "new@example.test", stored.Email)
	require.False(t, stored.EmailConfirmed)

	end := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, users.SetLockoutEnd(ctx, u, &end))
	require.NoError(t, users.SetLockoutEnabled(ctx, u, true))

	n, err := users.IncrementAccessFailedCount(ctx, u)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = users.IncrementAccessFailedCount(ctx, u)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, users.ResetAccessFailedCount(ctx, u))
	stored, err = users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, stored.AccessFailedCount)
	require.NotNil(t, stored.LockoutEnd)
	require.True(t, stored.LockoutEnd.Equal(end))
}

func TestTokens(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	users := s.Users()

	u, err := users.Create(ctx, newUser("ada"))
	require.NoError(t, err)

	require.NoError(t, users.SetToken(ctx, u, identity.Token{Provider: "totp", Name: "secret", Value: "v1"}))
	// mismo (provider, name): upsert, no duplica
	require.NoError(t, users.SetToken(ctx, u, identity.Token{Provider: "totp", Name: "secret", Value: "v2"}))

	tok, err := users.GetToken(ctx, u, "totp", "secret")
	require.NoError(t, err)
	require.NotNil(t, tok)
	require.Equal(t, "v2", tok.Value)

	stored, err := users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, stored.Tokens, 1)

	require.NoError(t, users.RemoveToken(ctx, u, "totp", "secret"))
	tok, err = users.GetToken(ctx, u, "totp", "secret")
	require.NoError(t, err)
	require.Nil(t, tok)
}

func TestExtensionFieldsSurviveStore(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	users := s.Users()

	u := newUser("ada")
	u.Extra = map[string]any{"department": "physics"}
	u, err := users.Create(ctx, u)
	require.NoError(t, err)

	// mutaciones por otros caminos no pierden los campos extendidos
	require.NoError(t, users.SetPasswordHash(ctx, u, "hash"))

	stored, err := users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "physics", stored.Extra["department"])
	require.Equal(t, "hash", stored.PasswordHash)
}

func TestSharedCollectionTypeIsolation(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	role := mustRole(t, s, "Admins")

	// un id de rol pedido como usuario es "no encontrado"
	u, err := s.Users().FindByID(ctx, role.ID)
	require.NoError(t, err)
	require.Nil(t, u)

	all, err := s.Users().All(ctx)
	require.NoError(t, err)
	require.Empty(t, all, "role documents must not leak into user listings")
}

func TestAmbiguousMatches(t *testing.T) {
	ctx := context.Background()
	client := memory.New()
	s, err := store.New(client, store.Options{UserCollection: "identity"})
	require.NoError(t, err)

	// Dos documentos con el mismo nombre normalizado y el mismo login,
	// sembrados por debajo del store: es el estado que deja la ventana de
	// carrera del chequeo cooperativo.
	login := []any{map[string]any{"loginProvider": "google", "providerKey": "g-1"}}
	for _, id := range []string{"u-1", "u-2"} {
		_, err := client.Create(ctx, "identity", docstore.Document{
			docstore.FieldID:     id,
			docstore.FieldType:   identity.TypeUser,
			"userName":           "ada",
			"normalizedUserName": "ADA",
			"logins":             login,
		})
		require.NoError(t, err)
	}

	// más de un match se reporta, nunca se elige el primero en silencio
	_, err = s.Users().FindByName(ctx, "ADA")
	require.ErrorIs(t, err, store.ErrAmbiguous)

	_, err = s.Users().FindByLogin(ctx, "google", "g-1")
	require.ErrorIs(t, err, store.ErrAmbiguous)

	// y también bloquea el create que usaría ese chequeo
	_, err = s.Users().Create(ctx, newUser("ada"))
	require.ErrorIs(t, err, store.ErrAmbiguous)
}

func TestCancelledContext(t *testing.T) {
	s := newStore(t)
	users := s.Users()

	seeded, err := users.Create(context.Background(), newUser("ada"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = users.FindByName(ctx, "ADA")
	require.ErrorIs(t, err, context.Canceled)

	_, err = users.Create(ctx, newUser("bob"))
	require.ErrorIs(t, err, context.Canceled)

	_, err = users.All(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// nada se escribió con el contexto cancelado
	all, err := users.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, seeded.ID, all[0].ID)
}

func TestAllUsers(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	users := s.Users()

	_, err := users.Create(ctx, newUser("ada"))
	require.NoError(t, err)
	_, err = users.Create(ctx, newUser("bob"))
	require.NoError(t, err)

	all, err := users.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
