// Package memory implementa el driver de documentos in-process.
// Respaldo para tests y desarrollo: colecciones sobre go-cache sin
// expiración, deep copy en cada borde para no compartir memoria con el
// caller. Semántica de etag idéntica a los drivers reales.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/docjohn/docstore"
)

func init() {
	docstore.Register(&driver{})
}

type driver struct{}

func (d *driver) Name() string { return "memory" }

func (d *driver) Open(ctx context.Context, cfg docstore.Config) (docstore.Client, error) {
	return &client{cols: map[string]*gocache.Cache{}}, nil
}

// New abre un cliente memory directo, sin pasar por el registry.
// Cómodo en tests.
func New() docstore.Client {
	return &client{cols: map[string]*gocache.Cache{}}
}

type client struct {
	// mu serializa los ciclos check-and-set de etag; go-cache protege
	// cada operación individual pero no el compare-and-swap completo.
	mu   sync.Mutex
	cols map[string]*gocache.Cache
}

func (c *client) Name() string { return "memory" }

func (c *client) col(name string) *gocache.Cache {
	if col, ok := c.cols[name]; ok {
		return col
	}
	col := gocache.New(gocache.NoExpiration, 0)
	c.cols[name] = col
	return col
}

func (c *client) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.col(collection).Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	return v.(docstore.Document).Clone(), nil
}

func (c *client) Create(ctx context.Context, collection string, doc docstore.Document) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := doc.ID()
	if id == "" {
		return nil, fmt.Errorf("memory: create in %s: document without id", collection)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	col := c.col(collection)
	if _, ok := col.Get(id); ok {
		return nil, fmt.Errorf("%w: %s/%s", docstore.ErrExists, collection, id)
	}
	stored := doc.Clone()
	stored[docstore.FieldEtag] = uuid.NewString()
	col.Set(id, stored, gocache.NoExpiration)
	return stored.Clone(), nil
}

func (c *client) Replace(ctx context.Context, collection string, doc docstore.Document, etag string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := doc.ID()

	c.mu.Lock()
	defer c.mu.Unlock()

	col := c.col(collection)
	v, ok := col.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	if v.(docstore.Document).Etag() != etag {
		return nil, fmt.Errorf("%w: %s/%s", docstore.ErrPreconditionFailed, collection, id)
	}
	stored := doc.Clone()
	stored[docstore.FieldEtag] = uuid.NewString()
	col.Set(id, stored, gocache.NoExpiration)
	return stored.Clone(), nil
}

func (c *client) Delete(ctx context.Context, collection, id, etag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	col := c.col(collection)
	v, ok := col.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	if v.(docstore.Document).Etag() != etag {
		return fmt.Errorf("%w: %s/%s", docstore.ErrPreconditionFailed, collection, id)
	}
	col.Delete(id)
	return nil
}

func (c *client) Query(ctx context.Context, collection string, filter docstore.Filter) (docstore.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// Snapshot: el cursor no observa escrituras posteriores.
	var docs []docstore.Document
	for _, item := range c.col(collection).Items() {
		doc := item.Object.(docstore.Document)
		if filter.Matches(doc) {
			docs = append(docs, doc.Clone())
		}
	}
	return docstore.NewSliceCursor(docs), nil
}

func (c *client) Ping(ctx context.Context) error { return ctx.Err() }
func (c *client) Close() error                   { return nil }
