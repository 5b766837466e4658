package identity

import (
	"fmt"
	"time"

	"github.com/dropDatabas3/docjohn/docstore"
)

// Nombres de campo del wire format. Un documento por entidad; claims,
// logins, roles y tokens son listas ordenadas de objetos chicos.
const (
	FieldUserName             = "userName"
	FieldNormalizedUserName   = "normalizedUserName"
	FieldEmail                = "email"
	FieldNormalizedEmail      = "normalizedEmail"
	FieldEmailConfirmed       = "emailConfirmed"
	FieldPasswordHash         = "passwordHash"
	FieldSecurityStamp        = "securityStamp"
	FieldPhoneNumber          = "phoneNumber"
	FieldPhoneNumberConfirmed = "phoneNumberConfirmed"
	FieldTwoFactorEnabled     = "twoFactorEnabled"
	FieldLockoutEnd           = "lockoutEnd"
	FieldLockoutEnabled       = "lockoutEnabled"
	FieldAccessFailedCount    = "accessFailedCount"
	FieldClaims               = "claims"
	FieldLogins               = "logins"
	FieldRoles                = "roles"
	FieldTokens               = "tokens"

	FieldRoleName           = "name"
	FieldRoleNormalizedName = "normalizedName"

	// Subcampos de los objetos anidados.
	claimType        = "type"
	claimValue       = "value"
	loginProvider    = "loginProvider"
	loginProviderKey = "providerKey"
	loginDisplay     = "providerDisplayName"
	tokenProvider    = "loginProvider"
	tokenName        = "name"
	tokenValue       = "value"
	roleRefID        = "roleId"
	roleRefName      = "name"
	roleRefNorm      = "normalizedName"
)

// knownUserFields campos del esquema base de User. Todo campo del
// documento fuera de este set (y de los reservados de docstore) pertenece
// a un tipo derivado y va a la bolsa de extensión.
var knownUserFields = map[string]bool{
	docstore.FieldID:        true,
	docstore.FieldType:      true,
	docstore.FieldEtag:      true,
	docstore.FieldPartition: true,

	FieldUserName:             true,
	FieldNormalizedUserName:   true,
	FieldEmail:                true,
	FieldNormalizedEmail:      true,
	FieldEmailConfirmed:       true,
	FieldPasswordHash:         true,
	FieldSecurityStamp:        true,
	FieldPhoneNumber:          true,
	FieldPhoneNumberConfirmed: true,
	FieldTwoFactorEnabled:     true,
	FieldLockoutEnd:           true,
	FieldLockoutEnabled:       true,
	FieldAccessFailedCount:    true,
	FieldClaims:               true,
	FieldLogins:               true,
	FieldRoles:                true,
	FieldTokens:               true,
}

var knownRoleFields = map[string]bool{
	docstore.FieldID:        true,
	docstore.FieldType:      true,
	docstore.FieldEtag:      true,
	docstore.FieldPartition: true,

	FieldRoleName:           true,
	FieldRoleNormalizedName: true,
	FieldClaims:             true,
}

// EncodeUser serializa el usuario a documento. El discriminador y la
// partición salen de la entidad (los fija el store al crear); la bolsa
// de extensión se reescribe textual.
func EncodeUser(u *User) docstore.Document {
	doc := docstore.Document{
		docstore.FieldID:        u.ID,
		docstore.FieldType:      u.DocumentType,
		docstore.FieldPartition: u.DocumentType,

		FieldUserName:             u.UserName,
		FieldNormalizedUserName:   u.NormalizedUserName,
		FieldEmail:                u.Email,
		FieldNormalizedEmail:      u.NormalizedEmail,
		FieldEmailConfirmed:       u.EmailConfirmed,
		FieldPasswordHash:         u.PasswordHash,
		FieldSecurityStamp:        u.SecurityStamp,
		FieldPhoneNumber:          u.PhoneNumber,
		FieldPhoneNumberConfirmed: u.PhoneNumberConfirmed,
		FieldTwoFactorEnabled:     u.TwoFactorEnabled,
		FieldLockoutEnabled:       u.LockoutEnabled,
		FieldAccessFailedCount:    u.AccessFailedCount,

		FieldClaims: encodeClaims(u.Claims),
		FieldLogins: encodeLogins(u.Logins),
		FieldRoles:  encodeRoleRefs(u.Roles),
		FieldTokens: encodeTokens(u.Tokens),
	}
	if u.LockoutEnd != nil {
		doc[FieldLockoutEnd] = u.LockoutEnd.UTC().Format(time.RFC3339Nano)
	} else {
		doc[FieldLockoutEnd] = nil
	}
	for k, v := range u.Extra {
		if knownUserFields[k] {
			continue // el esquema base gana; un derivado no lo pisa
		}
		doc[k] = v
	}
	return doc
}

// DecodeUser deserializa un documento a usuario. El caller ya filtró por
// discriminador; acá solo se valida que exista.
func DecodeUser(doc docstore.Document) (*User, error) {
	if doc == nil {
		return nil, fmt.Errorf("identity: decode user: nil document")
	}
	if doc.Type() == "" {
		return nil, fmt.Errorf("identity: decode user %q: missing %s", doc.ID(), docstore.FieldType)
	}

	u := &User{
		ID:                   doc.ID(),
		DocumentType:         doc.Type(),
		Etag:                 doc.Etag(),
		UserName:             getString(doc, FieldUserName),
		NormalizedUserName:   getString(doc, FieldNormalizedUserName),
		Email:                getString(doc, FieldEmail),
		NormalizedEmail:      getString(doc, FieldNormalizedEmail),
		EmailConfirmed:       getBool(doc, FieldEmailConfirmed),
		PasswordHash:         getString(doc, FieldPasswordHash),
		SecurityStamp:        getString(doc, FieldSecurityStamp),
		PhoneNumber:          getString(doc, FieldPhoneNumber),
		PhoneNumberConfirmed: getBool(doc, FieldPhoneNumberConfirmed),
		TwoFactorEnabled:     getBool(doc, FieldTwoFactorEnabled),
		LockoutEnabled:       getBool(doc, FieldLockoutEnabled),
		AccessFailedCount:    getInt(doc, FieldAccessFailedCount),
	}

	if s := getString(doc, FieldLockoutEnd); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("identity: decode user %q: %s: %w", u.ID, FieldLockoutEnd, err)
		}
		u.LockoutEnd = &t
	}

	var err error
	if u.Claims, err = decodeClaims(doc[FieldClaims]); err != nil {
		return nil, fmt.Errorf("identity: decode user %q: %w", u.ID, err)
	}
	if u.Logins, err = decodeLogins(doc[FieldLogins]); err != nil {
		return nil, fmt.Errorf("identity: decode user %q: %w", u.ID, err)
	}
	if u.Roles, err = decodeRoleRefs(doc[FieldRoles]); err != nil {
		return nil, fmt.Errorf("identity: decode user %q: %w", u.ID, err)
	}
	if u.Tokens, err = decodeTokens(doc[FieldTokens]); err != nil {
		return nil, fmt.Errorf("identity: decode user %q: %w", u.ID, err)
	}

	u.Extra = extensionBag(doc, knownUserFields)
	return u, nil
}

// EncodeRole serializa el rol a documento.
func EncodeRole(r *Role) docstore.Document {
	doc := docstore.Document{
		docstore.FieldID:        r.ID,
		docstore.FieldType:      r.DocumentType,
		docstore.FieldPartition: r.DocumentType,

		FieldRoleName:           r.Name,
		FieldRoleNormalizedName: r.NormalizedName,
		FieldClaims:             encodeClaims(r.Claims),
	}
	for k, v := range r.Extra {
		if knownRoleFields[k] {
			continue
		}
		doc[k] = v
	}
	return doc
}

// DecodeRole deserializa un documento a rol.
func DecodeRole(doc docstore.Document) (*Role, error) {
	if doc == nil {
		return nil, fmt.Errorf("identity: decode role: nil document")
	}
	if doc.Type() == "" {
		return nil, fmt.Errorf("identity: decode role %q: missing %s", doc.ID(), docstore.FieldType)
	}

	r := &Role{
		ID:             doc.ID(),
		DocumentType:   doc.Type(),
		Etag:           doc.Etag(),
		Name:           getString(doc, FieldRoleName),
		NormalizedName: getString(doc, FieldRoleNormalizedName),
	}

	var err error
	if r.Claims, err = decodeClaims(doc[FieldClaims]); err != nil {
		return nil, fmt.Errorf("identity: decode role %q: %w", r.ID, err)
	}

	r.Extra = extensionBag(doc, knownRoleFields)
	return r, nil
}

// extensionBag junta los campos fuera del esquema base. Se devuelven por
// valor (deep copy) para que mutar la entidad no toque el documento leído.
func extensionBag(doc docstore.Document, known map[string]bool) map[string]any {
	var bag map[string]any
	for k, v := range doc {
		if known[k] {
			continue
		}
		if bag == nil {
			bag = make(map[string]any)
		}
		bag[k] = docstore.CloneValue(v)
	}
	return bag
}

// ─── Listas anidadas ───

func encodeClaims(claims []Claim) []any {
	out := make([]any, 0, len(claims))
	for _, c := range claims {
		out = append(out, map[string]any{claimType: c.Type, claimValue: c.Value})
	}
	return out
}

func decodeClaims(v any) ([]Claim, error) {
	items, err := objectList(v, FieldClaims)
	if err != nil {
		return nil, err
	}
	var claims []Claim
	for _, obj := range items {
		claims = append(claims, Claim{
			Type:  stringOf(obj[claimType]),
			Value: stringOf(obj[claimValue]),
		})
	}
	return claims, nil
}

func encodeLogins(logins []Login) []any {
	out := make([]any, 0, len(logins))
	for _, l := range logins {
		out = append(out, map[string]any{
			loginProvider:    l.Provider,
			loginProviderKey: l.ProviderKey,
			loginDisplay:     l.DisplayName,
		})
	}
	return out
}

func decodeLogins(v any) ([]Login, error) {
	items, err := objectList(v, FieldLogins)
	if err != nil {
		return nil, err
	}
	var logins []Login
	for _, obj := range items {
		logins = append(logins, Login{
			Provider:    stringOf(obj[loginProvider]),
			ProviderKey: stringOf(obj[loginProviderKey]),
			DisplayName: stringOf(obj[loginDisplay]),
		})
	}
	return logins, nil
}

func encodeRoleRefs(roles []RoleRef) []any {
	out := make([]any, 0, len(roles))
	for _, r := range roles {
		out = append(out, map[string]any{
			roleRefID:   r.RoleID,
			roleRefName: r.Name,
			roleRefNorm: r.NormalizedName,
		})
	}
	return out
}

func decodeRoleRefs(v any) ([]RoleRef, error) {
	items, err := objectList(v, FieldRoles)
	if err != nil {
		return nil, err
	}
	var roles []RoleRef
	for _, obj := range items {
		roles = append(roles, RoleRef{
			RoleID:         stringOf(obj[roleRefID]),
			Name:           stringOf(obj[roleRefName]),
			NormalizedName: stringOf(obj[roleRefNorm]),
		})
	}
	return roles, nil
}

func encodeTokens(tokens []Token) []any {
	out := make([]any, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, map[string]any{
			tokenProvider: t.Provider,
			tokenName:     t.Name,
			tokenValue:    t.Value,
		})
	}
	return out
}

func decodeTokens(v any) ([]Token, error) {
	items, err := objectList(v, FieldTokens)
	if err != nil {
		return nil, err
	}
	var tokens []Token
	for _, obj := range items {
		tokens = append(tokens, Token{
			Provider: stringOf(obj[tokenProvider]),
			Name:     stringOf(obj[tokenName]),
			Value:    stringOf(obj[tokenValue]),
		})
	}
	return tokens, nil
}

// ─── Shapes para filtros ───
// El query builder de store filtra arrays anidados sin conocer los
// nombres de subcampo del wire format; estos helpers se los prestan.

// LoginElem shape de elemento para buscar un login por (provider, key).
func LoginElem(provider, providerKey string) map[string]any {
	return map[string]any{loginProvider: provider, loginProviderKey: providerKey}
}

// RoleElem shape de elemento para buscar membresías por nombre
// normalizado de rol.
func RoleElem(normalizedRoleName string) map[string]any {
	return map[string]any{roleRefNorm: normalizedRoleName}
}

// ─── Helpers de acceso ───

func objectList(v any, field string) ([]map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected list, got %T", field, v)
	}
	items := make([]map[string]any, 0, len(arr))
	for i, e := range arr {
		obj, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d]: expected object, got %T", field, i, e)
		}
		items = append(items, obj)
	}
	return items, nil
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func getString(doc docstore.Document, k string) string { return stringOf(doc[k]) }

func getBool(doc docstore.Document, k string) bool {
	b, _ := doc[k].(bool)
	return b
}

func getInt(doc docstore.Document, k string) int {
	switch n := doc[k].(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
