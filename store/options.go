package store

import (
	"fmt"

	"github.com/dropDatabas3/docjohn/identity"
)

// Options configuración de los stores. La conexión (docstore.Client) ya
// viene abierta contra una base; acá solo se nombran las colecciones y
// los discriminadores.
type Options struct {
	// UserCollection colección de usuarios. Requerido.
	UserCollection string `yaml:"user_collection"`

	// RoleCollection colección de roles. Opcional: por defecto los roles
	// comparten la colección de usuarios (de ahí el discriminador).
	RoleCollection string `yaml:"role_collection"`

	// UserType discriminador de los documentos usuario. Default "User".
	// Los tipos derivados reusan este valor y llevan sus campos extra en
	// la bolsa de extensión; nunca se mezclan dos valores para un mismo
	// tipo lógico.
	UserType string `yaml:"user_type"`

	// RoleType discriminador de los documentos rol. Default "Role".
	RoleType string `yaml:"role_type"`
}

// withDefaults completa los opcionales y valida los requeridos.
func (o Options) withDefaults() (Options, error) {
	if o.UserCollection == "" {
		return o, fmt.Errorf("%w: options: user collection is required", ErrInvalid)
	}
	if o.RoleCollection == "" {
		o.RoleCollection = o.UserCollection
	}
	if o.UserType == "" {
		o.UserType = identity.TypeUser
	}
	if o.RoleType == "" {
		o.RoleType = identity.TypeRole
	}
	if o.UserType == o.RoleType {
		return o, fmt.Errorf("%w: options: user and role discriminators must differ", ErrInvalid)
	}
	return o, nil
}
