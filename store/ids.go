package store

import "github.com/google/uuid"

// newID genera un identificador global, independiente del esquema de
// particionamiento del motor. Se asigna en Create cuando la entidad
// llega sin id.
func newID() string { return uuid.NewString() }
