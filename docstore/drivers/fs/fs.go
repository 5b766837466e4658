// Package fs implementa el driver de documentos sobre el filesystem:
// un archivo JSON por documento bajo root/<colección>/<id>.json, escrito
// con atomicwrite. Backend de desarrollo y demos; las queries son un scan
// del directorio de la colección con evaluación in-process del filtro.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dropDatabas3/docjohn/docstore"
	"github.com/dropDatabas3/docjohn/internal/util/atomicwrite"
)

func init() {
	docstore.Register(&driver{})
}

type driver struct{}

func (d *driver) Name() string { return "fs" }

func (d *driver) Open(ctx context.Context, cfg docstore.Config) (docstore.Client, error) {
	root := cfg.Root
	if root == "" {
		root = "data"
	}
	info, err := os.Stat(root)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("fs: root path: %w", err)
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, fmt.Errorf("fs: create root %s: %w", root, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("fs: root path is not a directory: %s", root)
	}
	return &client{root: root}, nil
}

type client struct {
	root string
	mu   sync.RWMutex
}

func (c *client) Name() string { return "fs" }

func (c *client) path(collection, id string) (string, error) {
	if !safeSegment(collection) || !safeSegment(id) {
		return "", fmt.Errorf("fs: invalid collection or id: %s/%s", collection, id)
	}
	return filepath.Join(c.root, collection, id+".json"), nil
}

// safeSegment rechaza segmentos que escapen del root.
func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." &&
		!strings.ContainsAny(s, "/\\") && !strings.HasPrefix(s, ".")
}

func (c *client) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := c.path(collection, id)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return readDoc(p, collection, id)
}

func readDoc(path, collection, id string) (docstore.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
		}
		return nil, fmt.Errorf("fs: read %s: %w", path, err)
	}
	var doc docstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("fs: decode %s: %w", path, err)
	}
	return doc, nil
}

func writeDoc(path string, doc docstore.Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("fs: encode %s: %w", path, err)
	}
	return atomicwrite.WriteFile(path, raw, 0644)
}

func (c *client) Create(ctx context.Context, collection string, doc docstore.Document) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := doc.ID()
	p, err := c.path(collection, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(p); err == nil {
		return nil, fmt.Errorf("%w: %s/%s", docstore.ErrExists, collection, id)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("fs: stat %s: %w", p, err)
	}

	stored := doc.Clone()
	stored[docstore.FieldEtag] = uuid.NewString()
	if err := writeDoc(p, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (c *client) Replace(ctx context.Context, collection string, doc docstore.Document, etag string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := doc.ID()
	p, err := c.path(collection, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := readDoc(p, collection, id)
	if err != nil {
		return nil, err
	}
	if current.Etag() != etag {
		return nil, fmt.Errorf("%w: %s/%s", docstore.ErrPreconditionFailed, collection, id)
	}

	stored := doc.Clone()
	stored[docstore.FieldEtag] = uuid.NewString()
	if err := writeDoc(p, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (c *client) Delete(ctx context.Context, collection, id, etag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := c.path(collection, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := readDoc(p, collection, id)
	if err != nil {
		return err
	}
	if current.Etag() != etag {
		return fmt.Errorf("%w: %s/%s", docstore.ErrPreconditionFailed, collection, id)
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("fs: remove %s: %w", p, err)
	}
	return nil
}

func (c *client) Query(ctx context.Context, collection string, filter docstore.Filter) (docstore.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !safeSegment(collection) {
		return nil, fmt.Errorf("fs: invalid collection: %s", collection)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Join(c.root, collection)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return docstore.NewSliceCursor(nil), nil
		}
		return nil, fmt.Errorf("fs: read dir %s: %w", dir, err)
	}

	var docs []docstore.Document
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		doc, err := readDoc(filepath.Join(dir, name), collection, strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		if filter.Matches(doc) {
			docs = append(docs, doc)
		}
	}
	return docstore.NewSliceCursor(docs), nil
}

func (c *client) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := os.Stat(c.root)
	return err
}

func (c *client) Close() error { return nil }
