package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dropDatabas3/docjohn/docstore"
)

// Client decora un docstore.Client con un cache read-through de lecturas
// puntuales. Queries y escrituras pasan directo; cada escritura local
// invalida la entrada del documento tocado.
type Client struct {
	inner docstore.Client
	cache Cache
	ttl   time.Duration
}

// Wrap decora client con el cache dado. ttl acota la vida de cada
// entrada (y con eso la ventana de staleness frente a escritores de
// otros procesos).
func Wrap(client docstore.Client, cache Cache, ttl time.Duration) *Client {
	return &Client{inner: client, cache: cache, ttl: ttl}
}

func (c *Client) Name() string { return c.inner.Name() }

// Unwrap expone el cliente decorado, para capacidades que el decorador
// no reenvía (migraciones, índices).
func (c *Client) Unwrap() docstore.Client { return c.inner }

func (c *Client) cacheKey(collection, id string) string {
	return "doc:" + collection + ":" + id
}

func (c *Client) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	key := c.cacheKey(collection, id)
	if raw, ok := c.cache.Get(key); ok {
		var doc docstore.Document
		if err := json.Unmarshal(raw, &doc); err == nil {
			return doc, nil
		}
		// Entrada corrupta: se purga y se sigue al store.
		c.cache.Delete(key)
	}

	doc, err := c.inner.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(doc); err == nil {
		c.cache.Set(key, raw, c.ttl)
	}
	return doc, nil
}

func (c *Client) Create(ctx context.Context, collection string, doc docstore.Document) (docstore.Document, error) {
	created, err := c.inner.Create(ctx, collection, doc)
	if err != nil {
		return nil, err
	}
	c.cache.Delete(c.cacheKey(collection, created.ID()))
	return created, nil
}

func (c *Client) Replace(ctx context.Context, collection string, doc docstore.Document, etag string) (docstore.Document, error) {
	replaced, err := c.inner.Replace(ctx, collection, doc, etag)
	if err != nil {
		return nil, err
	}
	c.cache.Delete(c.cacheKey(collection, replaced.ID()))
	return replaced, nil
}

func (c *Client) Delete(ctx context.Context, collection, id, etag string) error {
	if err := c.inner.Delete(ctx, collection, id, etag); err != nil {
		return err
	}
	c.cache.Delete(c.cacheKey(collection, id))
	return nil
}

// Query pasa directo: los resultados de predicados no se cachean.
func (c *Client) Query(ctx context.Context, collection string, filter docstore.Filter) (docstore.Cursor, error) {
	return c.inner.Query(ctx, collection, filter)
}

func (c *Client) Ping(ctx context.Context) error { return c.inner.Ping(ctx) }
func (c *Client) Close() error                   { return c.inner.Close() }
