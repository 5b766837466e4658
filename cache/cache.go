// Package cache provee un cache de documentos read-through para el
// docstore: lecturas puntuales (Get) van al cache primero; toda escritura
// invalida la entrada local. Escrituras de OTRO proceso solo se purgan
// por TTL: el etag convierte cualquier lectura stale que llegue a una
// mutación en ErrPreconditionFailed, nunca en un overwrite silencioso.
package cache

import "time"

// Cache almacenamiento clave→bytes con TTL.
type Cache interface {
	Get(key string) (value []byte, ok bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}
