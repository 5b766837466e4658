// Package identity define las entidades del dominio de identidad
// (usuarios, roles, claims, logins, tokens) y su codec hacia/desde el
// formato documento. El codec es explícito: cada campo se mapea a mano,
// nada pasa por un serializador genérico.
package identity

import (
	"strings"
	"time"
)

// Discriminadores por defecto. Un deployment puede renombrarlos vía
// store.Options, pero cada tipo lógico usa exactamente un valor.
const (
	TypeUser = "User"
	TypeRole = "Role"
)

// Normalize canonicaliza un nombre para búsquedas y chequeos de unicidad.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Claim par (type, value). No tiene identidad propia: su identidad es el
// par más el documento que lo contiene. Se permiten duplicados.
type Claim struct {
	Type  string
	Value string
}

// Login credencial externa. La identidad es el par (Provider, ProviderKey)
// y debe ser única en todo el store, no solo por usuario.
type Login struct {
	Provider    string
	ProviderKey string
	DisplayName string
}

// Token token emitido por un provider para un usuario.
// Identidad: (usuario, Provider, Name).
type Token struct {
	Provider string
	Name     string
	Value    string
}

// RoleRef membresía denormalizada de un usuario en un rol. Es una copia
// del id/nombre del rol al momento del alta, no una referencia viva:
// borrar el rol no la limpia.
type RoleRef struct {
	RoleID         string
	Name           string
	NormalizedName string
}

// User entidad usuario. Etag es el token de concurrencia de la última
// lectura/escritura; DocumentType se asigna al crear y no se muta.
// Extra es la bolsa de extensión: campos de tipos derivados que el codec
// preserva textualmente en cada ciclo read-modify-write.
type User struct {
	ID                   string
	UserName             string
	NormalizedUserName   string
	Email                string
	NormalizedEmail      string
	EmailConfirmed       bool
	PasswordHash         string
	SecurityStamp        string
	PhoneNumber          string
	PhoneNumberConfirmed bool
	TwoFactorEnabled     bool
	LockoutEnd           *time.Time
	LockoutEnabled       bool
	AccessFailedCount    int

	Claims []Claim
	Logins []Login
	Roles  []RoleRef
	Tokens []Token

	DocumentType string
	Etag         string
	Extra        map[string]any
}

// HasLogin reporta si el usuario ya tiene el login (provider, key).
func (u *User) HasLogin(provider, providerKey string) bool {
	for _, l := range u.Logins {
		if l.Provider == provider && l.ProviderKey == providerKey {
			return true
		}
	}
	return false
}

// IsInRole reporta membresía por nombre normalizado de rol.
func (u *User) IsInRole(normalizedRoleName string) bool {
	for _, r := range u.Roles {
		if r.NormalizedName == normalizedRoleName {
			return true
		}
	}
	return false
}

// Role entidad rol. Mismas reglas de Etag/DocumentType/Extra que User.
type Role struct {
	ID             string
	Name           string
	NormalizedName string

	Claims []Claim

	DocumentType string
	Etag         string
	Extra        map[string]any
}
