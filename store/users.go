package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/docjohn/docstore"
	"github.com/dropDatabas3/docjohn/identity"
)

// UserStore operaciones sobre documentos usuario. Cada mutación es un
// replace del documento completo guardado por el token de concurrencia:
// una secuencia read-modify-write intercalada con otro escritor no se
// pierde en silencio, falla con ErrConcurrency.
type UserStore struct {
	s   *Store
	log *zap.Logger
}

func (st *UserStore) col() string { return st.s.opts.UserCollection }

// ─── CRUD ───

// Create asigna id si falta, asigna el discriminador y escribe el
// documento nuevo. Chequeo cooperativo de unicidad de nombre: dos creates
// concurrentes con el mismo nombre pueden pasar ambos (ventana documentada,
// el motor no impone la restricción). Retorna la entidad con su etag.
func (st *UserStore) Create(ctx context.Context, u *identity.User) (_ *identity.User, err error) {
	done := track("users", "create")
	defer func() { done(err) }()

	if u == nil {
		return nil, fmt.Errorf("%w: nil user", ErrInvalid)
	}
	if u.NormalizedUserName == "" {
		return nil, fmt.Errorf("%w: user without normalized name", ErrInvalid)
	}
	if u.DocumentType == "" {
		u.DocumentType = st.s.opts.UserType
	} else if u.DocumentType != st.s.opts.UserType {
		return nil, fmt.Errorf("%w: user discriminator %q, store uses %q", ErrInvalid, u.DocumentType, st.s.opts.UserType)
	}
	if u.ID == "" {
		u.ID = newID()
	}

	// Chequeo cooperativo: check-then-write, no atómico.
	existing, err := st.s.queryOne(ctx, st.col(), st.s.userByName(u.NormalizedUserName))
	if err != nil {
		return nil, fmt.Errorf("users: create: uniqueness check: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateUserName, u.NormalizedUserName)
	}

	created, err := st.s.client.Create(ctx, st.col(), identity.EncodeUser(u))
	if err != nil {
		return nil, fmt.Errorf("users: create %s: %w", u.ID, err)
	}
	u.Etag = created.Etag()

	st.log.Info("user created", zap.String("id", u.ID), zap.String("name", u.NormalizedUserName))
	return u, nil
}

// Update reemplaza el documento completo si el etag de la entidad sigue
// vigente. ErrConcurrency en mismatch (nada se escribe); ErrDuplicateUserName
// si el nombre normalizado colisiona con otro documento.
func (st *UserStore) Update(ctx context.Context, u *identity.User) (_ *identity.User, err error) {
	done := track("users", "update")
	defer func() { done(err) }()

	if err := st.mutable(u); err != nil {
		return nil, err
	}
	if u.NormalizedUserName == "" {
		return nil, fmt.Errorf("%w: user without normalized name", ErrInvalid)
	}

	other, err := st.s.queryOne(ctx, st.col(), st.s.userByName(u.NormalizedUserName))
	if err != nil {
		return nil, fmt.Errorf("users: update: uniqueness check: %w", err)
	}
	if other != nil && other.ID() != u.ID {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateUserName, u.NormalizedUserName)
	}

	if err := st.save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Delete elimina el documento bajo el mismo token. No cascadea: logins y
// membresías viven dentro del documento, pero nada externo se limpia.
func (st *UserStore) Delete(ctx context.Context, u *identity.User) (err error) {
	done := track("users", "delete")
	defer func() { done(err) }()

	if err := st.mutable(u); err != nil {
		return err
	}
	if err := st.s.client.Delete(ctx, st.col(), u.ID, u.Etag); err != nil {
		return st.mapWrite("delete", u.ID, err)
	}
	st.log.Info("user deleted", zap.String("id", u.ID))
	return nil
}

// ─── Búsquedas ───
// Ausencia se representa como (nil, nil), nunca como error.

// FindByID lectura puntual. El documento se valida contra el
// discriminador antes de decodificar: en colecciones compartidas un id
// de otro tipo es "no encontrado", no un usuario malinterpretado.
func (st *UserStore) FindByID(ctx context.Context, id string) (_ *identity.User, err error) {
	done := track("users", "find_by_id")
	defer func() { done(err) }()

	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalid)
	}
	doc, err := st.s.client.Get(ctx, st.col(), id)
	if docstore.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("users: find %s: %w", id, err)
	}
	if doc.Type() != st.s.opts.UserType {
		return nil, nil
	}
	return identity.DecodeUser(doc)
}

// FindByName busca por nombre normalizado.
func (st *UserStore) FindByName(ctx context.Context, normalizedName string) (*identity.User, error) {
	return st.findOne(ctx, "find_by_name", st.s.userByName(normalizedName))
}

// FindByEmail busca por email normalizado.
func (st *UserStore) FindByEmail(ctx context.Context, normalizedEmail string) (*identity.User, error) {
	return st.findOne(ctx, "find_by_email", st.s.userByEmail(normalizedEmail))
}

// FindByLogin busca el usuario dueño del par (provider, providerKey).
// Más de un dueño es violación de consistencia y se reporta ErrAmbiguous.
func (st *UserStore) FindByLogin(ctx context.Context, provider, providerKey string) (*identity.User, error) {
	return st.findOne(ctx, "find_by_login", st.s.userByLogin(provider, providerKey))
}

// All materializa todos los documentos usuario de la colección.
func (st *UserStore) All(ctx context.Context) (_ []*identity.User, err error) {
	done := track("users", "all")
	defer func() { done(err) }()

	docs, err := st.s.queryAll(ctx, st.col(), st.s.usersFilter())
	if err != nil {
		return nil, fmt.Errorf("users: all: %w", err)
	}
	users := make([]*identity.User, 0, len(docs))
	for _, doc := range docs {
		u, err := identity.DecodeUser(doc)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// ─── Claims ───
// Read-modify-write sobre el documento del usuario bajo su etag.
// Política de duplicados: se permiten. Agregar dos veces el mismo
// (type, value) almacena dos ocurrencias; Remove saca todas.

// AddClaims agrega claims al final de la lista y persiste.
func (st *UserStore) AddClaims(ctx context.Context, u *identity.User, claims ...identity.Claim) (err error) {
	done := track("users", "add_claims")
	defer func() { done(err) }()

	if err := st.mutable(u); err != nil {
		return err
	}
	u.Claims = append(u.Claims, claims...)
	return st.save(ctx, u)
}

// RemoveClaims elimina toda ocurrencia que matchee (type, value) y persiste.
func (st *UserStore) RemoveClaims(ctx context.Context, u *identity.User, claims ...identity.Claim) (err error) {
	done := track("users", "remove_claims")
	defer func() { done(err) }()

	if err := st.mutable(u); err != nil {
		return err
	}
	kept := u.Claims[:0]
	for _, have := range u.Claims {
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
	u.Claims = kept
	return st.save(ctx, u)
}

// ReplaceClaim sustituye las ocurrencias de old por new y persiste.
func (st *UserStore) ReplaceClaim(ctx context.Context, u *identity.User, old, new identity.Claim) (err error) {
	done := track("users", "replace_claim")
	defer func() { done(err) }()

	if err := st.mutable(u); err != nil {
		return err
	}
	for i, have := range u.Claims {
		if have == old {
			u.Claims[i] = new
		}
	}
	return st.save(ctx, u)
}

// GetClaims lista los claims del documento almacenado (lectura fresca).
func (st *UserStore) GetClaims(ctx context.Context, u *identity.User) (_ []identity.Claim, err error) {
	done := track("users", "get_claims")
	defer func() { done(err) }()

	stored, err := st.fresh(ctx, u)
	if err != nil || stored == nil {
		return nil, err
	}
	return stored.Claims, nil
}

// ─── Logins ───

// AddLogin asocia un login externo. El par (provider, key) debe ser único
// en todo el store: se chequea con una query cooperativa antes de escribir
// (misma ventana de carrera que los nombres).
func (st *UserStore) AddLogin(ctx context.Context, u *identity.User, login identity.Login) (err error) {
	done := track("users", "add_login")
	defer func() { done(err) }()

	if err := st.mutable(u); err != nil {
		return err
	}
	if login.Provider == "" || login.ProviderKey == "" {
		return fmt.Errorf("%w: login without provider or key", ErrInvalid)
	}
	if u.HasLogin(login.Provider, login.ProviderKey) {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateLogin, login.Provider, login.ProviderKey)
	}

	owner, err := st.FindByLogin(ctx, login.Provider, login.ProviderKey)
	if err != nil {
		return fmt.Errorf("users: add login: uniqueness check: %w", err)
	}
	if owner != nil {
		return fmt.Errorf("%w: %s/%s already belongs to user %s", ErrDuplicateLogin, login.Provider, login.ProviderKey, owner.ID)
	}

	u.Logins = append(u.Logins, login)
	return st.save(ctx, u)
}

// RemoveLogin desasocia el par (provider, key) y persiste.
func (st *UserStore) RemoveLogin(ctx context.Context, u *identity.User, provider, providerKey string) (err error) {
	done := track("users", "remove_login")
	defer func() { done(err) }()

	if err := st.mutable(u); err != nil {
		return err
	}
	kept := u.Logins[:0]
	for _, l := range u.Logins {
		if l.Provider == provider && l.ProviderKey == providerKey {
			continue
		}
		kept = append(kept, l)
	}
	u.Logins = kept
	return st.save(ctx, u)
}

// GetLogins lista los logins del documento almacenado.
func (st *UserStore) GetLogins(ctx context.Context, u *identity.User) (_ []identity.Login, err error) {
	done := track("users", "get_logins")
	defer func() { done(err) }()

	stored, err := st.fresh(ctx, u)
	if err != nil || stored == nil {
		return nil, err
	}
	return stored.Logins, nil
}

// ─── Roles ───
// La membresía es denormalizada: una copia de id/nombre del rol dentro
// del documento usuario. Borrar el rol no la limpia (no hay transacciones
// multi-documento); ver Store.RemoveRoleFromUsers para la compensación.

// AddToRoles agrega membresías por nombre normalizado de rol. El rol debe
// existir; membresías ya presentes se saltean sin duplicar. Persiste una
// sola vez al final.
func (st *UserStore) AddToRoles(ctx context.Context, u *identity.User, normalizedRoleNames ...string) (err error) {
	done := track("users", "add_to_roles")
	defer func() { done(err) }()

	if err := st.mutable(u); err != nil {
		return err
	}
	roles := st.s.Roles()
	for _, name := range normalizedRoleNames {
		if u.IsInRole(name) {
			continue
		}
		role, err := roles.FindByName(ctx, name)
		if err != nil {
			return fmt.Errorf("users: add to role %s: %w", name, err)
		}
		if role == nil {
			return fmt.Errorf("%w: role %q not found", ErrInvalid, name)
		}
		u.Roles = append(u.Roles, identity.RoleRef{
			RoleID:         role.ID,
			Name:           role.Name,
			NormalizedName: role.NormalizedName,
		})
	}
	return st.save(ctx, u)
}

// RemoveFromRoles elimina membresías por nombre normalizado y persiste.
func (st *UserStore) RemoveFromRoles(ctx context.Context, u *identity.User, normalizedRoleNames ...string) (err error) {
	done := track("users", "remove_from_roles")
	defer func() { done(err) }()

	if err := st.mutable(u); err != nil {
		return err
	}
	drop := make(map[string]bool, len(normalizedRoleNames))
	for _, n := range normalizedRoleNames {
		drop[n] = true
	}
	kept := u.Roles[:0]
	for _, r := range u.Roles {
		if !drop[r.NormalizedName] {
			kept = append(kept, r)
		}
	}
	u.Roles = kept
	return st.save(ctx, u)
}

// GetRoles lista las membresías del documento almacenado, incluidas las
// stale de roles ya borrados.
func (st *UserStore) GetRoles(ctx context.Context, u *identity.User) (_ []identity.RoleRef, err error) {
	done := track("users", "get_roles")
	defer func() { done(err) }()

	stored, err := st.fresh(ctx, u)
	if err != nil || stored == nil {
		return nil, err
	}
	return stored.Roles, nil
}

// IsInRole chequea membresía por nombre normalizado contra el documento
// almacenado.
func (st *UserStore) IsInRole(ctx context.Context, u *identity.User, normalizedRoleName string) (_ bool, err error) {
	done := track("users", "is_in_role")
	defer func() { done(err) }()

	stored, err := st.fresh(ctx, u)
	if err != nil || stored == nil {
		return false, err
	}
	return stored.IsInRole(normalizedRoleName), nil
}

// GetUsersInRole retorna todos los usuarios con membresía en el rol.
func (st *UserStore) GetUsersInRole(ctx context.Context, normalizedRoleName string) (_ []*identity.User, err error) {
	done := track("users", "get_users_in_role")
	defer func() { done(err) }()

	docs, err := st.s.queryAll(ctx, st.col(), st.s.usersInRole(normalizedRoleName))
	if err != nil {
		return nil, fmt.Errorf("users: in role %s: %w", normalizedRoleName, err)
	}
	users := make([]*identity.User, 0, len(docs))
	for _, doc := range docs {
		u, err := identity.DecodeUser(doc)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// ─── Campos escalares ───
// Mutadores puntuales, misma disciplina de token que cualquier update.

// SetPasswordHash fija el hash (opaco para el store) y persiste.
func (st *UserStore) SetPasswordHash(ctx context.Context, u *identity.User, hash string) error {
	return st.setField(ctx, u, "set_password_hash", func() { u.PasswordHash = hash })
}

// SetSecurityStamp fija el stamp (rota en cada cambio de credencial,
// la rotación la decide el framework host) y persiste.
func (st *UserStore) SetSecurityStamp(ctx context.Context, u *identity.User, stamp string) error {
	return st.setField(ctx, u, "set_security_stamp", func() { u.SecurityStamp = stamp })
}

// SetEmail fija email y email normalizado, y baja la confirmación.
func (st *UserStore) SetEmail(ctx context.Context, u *identity.User, email, normalizedEmail string) error {
	return st.setField(ctx, u, "set_email", func() {
		u.Email = email
		u.NormalizedEmail = normalizedEmail
		u.EmailConfirmed = false
	})
}

// SetEmailConfirmed fija el flag de confirmación de email.
func (st *UserStore) SetEmailConfirmed(ctx context.Context, u *identity.User, confirmed bool) error {
	return st.setField(ctx, u, "set_email_confirmed", func() { u.EmailConfirmed = confirmed })
}

// SetPhoneNumber fija el teléfono y baja su confirmación.
func (st *UserStore) SetPhoneNumber(ctx context.Context, u *identity.User, phone string) error {
	return st.setField(ctx, u, "set_phone_number", func() {
		u.PhoneNumber = phone
		u.PhoneNumberConfirmed = false
	})
}

// SetPhoneNumberConfirmed fija el flag de confirmación de teléfono.
func (st *UserStore) SetPhoneNumberConfirmed(ctx context.Context, u *identity.User, confirmed bool) error {
	return st.setField(ctx, u, "set_phone_confirmed", func() { u.PhoneNumberConfirmed = confirmed })
}

// SetTwoFactorEnabled fija el flag de segundo factor.
func (st *UserStore) SetTwoFactorEnabled(ctx context.Context, u *identity.User, enabled bool) error {
	return st.setField(ctx, u, "set_two_factor", func() { u.TwoFactorEnabled = enabled })
}

// SetLockoutEnd fija (o limpia, con nil) el fin del lockout.
func (st *UserStore) SetLockoutEnd(ctx context.Context, u *identity.User, end *time.Time) error {
	return st.setField(ctx, u, "set_lockout_end", func() { u.LockoutEnd = end })
}

// SetLockoutEnabled fija si el usuario es lockeable.
func (st *UserStore) SetLockoutEnabled(ctx context.Context, u *identity.User, enabled bool) error {
	return st.setField(ctx, u, "set_lockout_enabled", func() { u.LockoutEnabled = enabled })
}

// IncrementAccessFailedCount suma un intento fallido y retorna el contador
// nuevo ya persistido.
func (st *UserStore) IncrementAccessFailedCount(ctx context.Context, u *identity.User) (_ int, err error) {
	done := track("users", "increment_access_failed")
	defer func() { done(err) }()

	if err := st.mutable(u); err != nil {
		return 0, err
	}
	u.AccessFailedCount++
	if err := st.save(ctx, u); err != nil {
		return 0, err
	}
	return u.AccessFailedCount, nil
}

// ResetAccessFailedCount vuelve el contador a cero.
func (st *UserStore) ResetAccessFailedCount(ctx context.Context, u *identity.User) error {
	return st.setField(ctx, u, "reset_access_failed", func() { u.AccessFailedCount = 0 })
}

// ─── Tokens ───

// SetToken inserta o reemplaza el token con identidad (provider, name).
func (st *UserStore) SetToken(ctx context.Context, u *identity.User, token identity.Token) (err error) {
	done := track("users", "set_token")
	defer func() { done(err) }()

	if err := st.mutable(u); err != nil {
		return err
	}
	for i, t := range u.Tokens {
		if t.Provider == token.Provider && t.Name == token.Name {
			u.Tokens[i] = token
			return st.save(ctx, u)
		}
	}
	u.Tokens = append(u.Tokens, token)
	return st.save(ctx, u)
}

// GetToken busca el token (provider, name) en el documento almacenado.
// (nil, nil) si no existe.
func (st *UserStore) GetToken(ctx context.Context, u *identity.User, provider, name string) (_ *identity.Token, err error) {
	done := track("users", "get_token")
	defer func() { done(err) }()

	stored, err := st.fresh(ctx, u)
	if err != nil || stored == nil {
		return nil, err
	}
	for _, t := range stored.Tokens {
		if t.Provider == provider && t.Name == name {
			return &t, nil
		}
	}
	return nil, nil
}

// RemoveToken elimina el token (provider, name) y persiste.
func (st *UserStore) RemoveToken(ctx context.Context, u *identity.User, provider, name string) (err error) {
	done := track("users", "remove_token")
	defer func() { done(err) }()

	if err := st.mutable(u); err != nil {
		return err
	}
	kept := u.Tokens[:0]
	for _, t := range u.Tokens {
		if t.Provider == provider && t.Name == name {
			continue
		}
		kept = append(kept, t)
	}
	u.Tokens = kept
	return st.save(ctx, u)
}

// ─── Internos ───

// mutable valida lo que toda mutación exige: entidad con id, con token
// de concurrencia obtenido de una lectura previa y con el discriminador
// intacto. El discriminador se asigna en Create y no muta nunca: una
// entidad que lo trae borrado o reescrito se rechaza acá, antes de que
// save la persista y el documento desaparezca de todas las búsquedas
// tipadas.
func (st *UserStore) mutable(u *identity.User) error {
	if u == nil {
		return fmt.Errorf("%w: nil user", ErrInvalid)
	}
	if u.ID == "" {
		return fmt.Errorf("%w: user without id", ErrInvalid)
	}
	if u.Etag == "" {
		return fmt.Errorf("%w: user without concurrency token (read it first)", ErrInvalid)
	}
	if u.DocumentType != st.s.opts.UserType {
		return fmt.Errorf("%w: user discriminator %q, store uses %q", ErrInvalid, u.DocumentType, st.s.opts.UserType)
	}
	return nil
}

// save reemplaza el documento completo bajo el etag de la entidad y lo
// actualiza con el etag nuevo.
func (st *UserStore) save(ctx context.Context, u *identity.User) error {
	replaced, err := st.s.client.Replace(ctx, st.col(), identity.EncodeUser(u), u.Etag)
	if err != nil {
		return st.mapWrite("save", u.ID, err)
	}
	u.Etag = replaced.Etag()
	return nil
}

// mapWrite traduce los errores de escritura del driver a la taxonomía del
// store. Un documento desaparecido bajo un token viejo también es conflicto:
// el caller tiene estado stale.
func (st *UserStore) mapWrite(op, id string, err error) error {
	if docstore.IsPreconditionFailed(err) || docstore.IsNotFound(err) {
		st.log.Warn("write conflict", zap.String("op", op), zap.String("id", id))
		return fmt.Errorf("%w: user %s", ErrConcurrency, id)
	}
	return fmt.Errorf("users: %s %s: %w", op, id, err)
}

func (st *UserStore) setField(ctx context.Context, u *identity.User, op string, mutate func()) (err error) {
	done := track("users", op)
	defer func() { done(err) }()

	if err := st.mutable(u); err != nil {
		return err
	}
	mutate()
	return st.save(ctx, u)
}

func (st *UserStore) findOne(ctx context.Context, op string, filter docstore.Filter) (_ *identity.User, err error) {
	done := track("users", op)
	defer func() { done(err) }()

	doc, err := st.s.queryOne(ctx, st.col(), filter)
	if err != nil {
		return nil, fmt.Errorf("users: %s: %w", op, err)
	}
	if doc == nil {
		return nil, nil
	}
	return identity.DecodeUser(doc)
}

// fresh relee el documento de la entidad. (nil, nil) si ya no existe.
func (st *UserStore) fresh(ctx context.Context, u *identity.User) (*identity.User, error) {
	if u == nil || u.ID == "" {
		return nil, fmt.Errorf("%w: nil user or missing id", ErrInvalid)
	}
	return st.FindByID(ctx, u.ID)
}
