package docstore

import (
	"context"
	"errors"
)

// Errores comunes del contrato. Los drivers traducen los errores nativos
// del motor a estos sentinels; cualquier otro error (conectividad, auth,
// timeouts del motor) se propaga sin tocar.
var (
	// ErrNotFound indica que el documento no existe.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrExists indica que Create encontró un documento con el mismo id.
	ErrExists = errors.New("docstore: document already exists")

	// ErrPreconditionFailed indica fallo de concurrencia optimista:
	// el etag esperado no coincide con el almacenado. Nada fue escrito.
	ErrPreconditionFailed = errors.New("docstore: precondition failed")
)

// IsNotFound helper para verificar si el error es por documento inexistente.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsPreconditionFailed helper para verificar fallo de concurrencia.
func IsPreconditionFailed(err error) bool { return errors.Is(err, ErrPreconditionFailed) }

// Client es una conexión activa a una base de documentos.
//
// Semántica común a todos los drivers:
//   - Get/Create/Replace/Delete operan por id dentro de una colección.
//   - Replace y Delete exigen el etag leído previamente; si no coincide
//     retornan ErrPreconditionFailed sin modificar nada.
//   - Create y Replace retornan el documento escrito con su etag nuevo
//     (también presente en doc[FieldEtag]).
//   - Query retorna una secuencia lazy y finita de documentos que
//     satisfacen el filtro; el orden es el del motor, no se garantiza.
//
// El ciclo de vida de la conexión pertenece a la aplicación host: los
// stores nunca llaman Close.
type Client interface {
	// Name retorna el nombre del driver ("memory", "fs", "mongo", "pg").
	Name() string

	// Get lee un documento por id. ErrNotFound si no existe.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Create inserta un documento nuevo. ErrExists si el id ya está tomado.
	Create(ctx context.Context, collection string, doc Document) (Document, error)

	// Replace reemplaza el documento completo si el etag coincide.
	Replace(ctx context.Context, collection string, doc Document, etag string) (Document, error)

	// Delete elimina el documento si el etag coincide.
	Delete(ctx context.Context, collection, id, etag string) error

	// Query ejecuta un filtro sobre la colección.
	Query(ctx context.Context, collection string, filter Filter) (Cursor, error)

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error
}

// Cursor itera una secuencia paginada de documentos.
//
//	cur, err := client.Query(ctx, col, f)
//	for cur.Next(ctx) {
//	    doc := cur.Document()
//	    ...
//	}
//	err = cur.Err()
//	cur.Close()
type Cursor interface {
	// Next avanza al siguiente documento. false al agotar o en error.
	Next(ctx context.Context) bool

	// Document retorna el documento actual. Solo válido tras Next == true.
	Document() Document

	// Err retorna el error que detuvo la iteración, si hubo.
	Err() error

	// Close libera recursos del cursor.
	Close() error
}

// sliceCursor implementa Cursor sobre un slice ya materializado.
// Lo usan los drivers in-process (memory, fs).
type sliceCursor struct {
	docs []Document
	pos  int
	cur  Document
}

// NewSliceCursor crea un Cursor sobre documentos ya en memoria.
func NewSliceCursor(docs []Document) Cursor {
	return &sliceCursor{docs: docs}
}

func (c *sliceCursor) Next(ctx context.Context) bool {
	if ctx.Err() != nil || c.pos >= len(c.docs) {
		return false
	}
	c.cur = c.docs[c.pos]
	c.pos++
	return true
}

func (c *sliceCursor) Document() Document { return c.cur }
func (c *sliceCursor) Err() error         { return nil }
func (c *sliceCursor) Close() error       { return nil }
