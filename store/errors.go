// Package store implementa los stores de usuarios y roles sobre una base
// de documentos (vía docstore.Client). Es la capa que consume el framework
// de identidad host: traduce la semántica relacional de identidad
// (unicidad de nombres, joins usuario↔rol y usuario↔login, updates
// multi-campo) a CRUD por clave + replace con precondición + queries por
// predicado, que es todo lo que el motor de documentos ofrece.
package store

import "errors"

// Errores del contrato. "No encontrado" en los Find* NO es un error:
// se representa como resultado ausente (nil, nil).
var (
	// ErrInvalid indica entidad nil o malformada del caller.
	ErrInvalid = errors.New("store: invalid entity")

	// ErrConcurrency indica fallo de concurrencia optimista: el token de
	// la entidad no coincide con el almacenado (o el documento ya no
	// existe). Nada fue escrito; el conflicto se reporta, no se resuelve.
	ErrConcurrency = errors.New("store: concurrency failure")

	// ErrDuplicateUserName indica que el chequeo cooperativo de unicidad
	// encontró otro usuario con el mismo nombre normalizado.
	ErrDuplicateUserName = errors.New("store: duplicate user name")

	// ErrDuplicateRoleName ídem para roles.
	ErrDuplicateRoleName = errors.New("store: duplicate role name")

	// ErrDuplicateLogin indica que el par (provider, providerKey) ya
	// pertenece a un usuario.
	ErrDuplicateLogin = errors.New("store: duplicate login")

	// ErrAmbiguous indica que una búsqueda que espera a lo sumo un
	// resultado encontró más de uno. Es una violación de consistencia
	// (ver la ventana de carrera del chequeo cooperativo); se reporta
	// en vez de elegir el primero en silencio.
	ErrAmbiguous = errors.New("store: multiple documents match")
)

// IsConcurrencyFailure helper para verificar fallo de concurrencia.
func IsConcurrencyFailure(err error) bool { return errors.Is(err, ErrConcurrency) }

// IsDuplicate helper para verificar cualquier violación de unicidad.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateUserName) ||
		errors.Is(err, ErrDuplicateRoleName) ||
		errors.Is(err, ErrDuplicateLogin)
}
