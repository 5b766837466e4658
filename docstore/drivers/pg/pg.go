// Package pg implementa el driver de documentos sobre PostgreSQL: una
// tabla documents con una columna JSONB por documento y el etag como
// columna aparte. La precondición de Replace/Delete se resuelve en el
// WHERE del UPDATE/DELETE; los filtros se traducen a containment (@>)
// sobre el JSONB, sostenido por un índice GIN.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dropDatabas3/docjohn/docstore"
	migrations "github.com/dropDatabas3/docjohn/migrations/pg"
)

func init() {
	docstore.Register(&driver{})
}

// pgUniqueViolation código SQLSTATE de violación de unique constraint.
const pgUniqueViolation = "23505"

type driver struct{}

func (d *driver) Name() string { return "pg" }

func (d *driver) Open(ctx context.Context, cfg docstore.Config) (docstore.Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pg: DSN is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	return &client{pool: pool, dsn: cfg.DSN}, nil
}

type client struct {
	pool *pgxpool.Pool
	dsn  string
}

func (c *client) Name() string { return "pg" }

// Migrate aplica las migraciones embebidas (tabla documents + índice GIN).
// Se invoca explícitamente, nunca al abrir la conexión.
func (c *client) Migrate(ctx context.Context) error {
	db, err := sql.Open("pgx", c.dsn)
	if err != nil {
		return fmt.Errorf("pg: migrate: open: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("pg: migrate: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("pg: migrate: %w", err)
	}
	return nil
}

func (c *client) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	const q = `SELECT doc, etag FROM documents WHERE collection = $1 AND id = $2`

	var raw []byte
	var etag string
	err := c.pool.QueryRow(ctx, q, collection, id).Scan(&raw, &etag)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get %s/%s: %w", collection, id, err)
	}
	return decodeRow(raw, etag, collection, id)
}

func (c *client) Create(ctx context.Context, collection string, doc docstore.Document) (docstore.Document, error) {
	const q = `INSERT INTO documents (collection, id, partition, etag, doc) VALUES ($1, $2, $3, $4, $5)`

	id := doc.ID()
	etag := uuid.NewString()
	raw, err := encodeDoc(doc)
	if err != nil {
		return nil, err
	}

	_, err = c.pool.Exec(ctx, q, collection, id, partitionOf(doc), etag, raw)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return nil, fmt.Errorf("%w: %s/%s", docstore.ErrExists, collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: create %s/%s: %w", collection, id, err)
	}
	return withEtag(doc, etag), nil
}

func (c *client) Replace(ctx context.Context, collection string, doc docstore.Document, etag string) (docstore.Document, error) {
	const q = `UPDATE documents SET doc = $1, etag = $2, partition = $3
	           WHERE collection = $4 AND id = $5 AND etag = $6`

	id := doc.ID()
	next := uuid.NewString()
	raw, err := encodeDoc(doc)
	if err != nil {
		return nil, err
	}

	tag, err := c.pool.Exec(ctx, q, raw, next, partitionOf(doc), collection, id, etag)
	if err != nil {
		return nil, fmt.Errorf("pg: replace %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, c.missOrStale(ctx, collection, id)
	}
	return withEtag(doc, next), nil
}

func (c *client) Delete(ctx context.Context, collection, id, etag string) error {
	const q = `DELETE FROM documents WHERE collection = $1 AND id = $2 AND etag = $3`

	tag, err := c.pool.Exec(ctx, q, collection, id, etag)
	if err != nil {
		return fmt.Errorf("pg: delete %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return c.missOrStale(ctx, collection, id)
	}
	return nil
}

func (c *client) missOrStale(ctx context.Context, collection, id string) error {
	const q = `SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`

	var exists bool
	if err := c.pool.QueryRow(ctx, q, collection, id).Scan(&exists); err != nil {
		return fmt.Errorf("pg: verify %s/%s: %w", collection, id, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	return fmt.Errorf("%w: %s/%s", docstore.ErrPreconditionFailed, collection, id)
}

func (c *client) Query(ctx context.Context, collection string, filter docstore.Filter) (docstore.Cursor, error) {
	q := `SELECT doc, etag FROM documents WHERE collection = $1`
	args := []any{collection}

	// Toda condición se expresa como containment: para escalares top-level
	// {"campo": valor} y para arrays de objetos {"campo": [{...}]}, que es
	// exactamente la semántica elem-match de JSONB.
	for _, cond := range filter {
		frag, err := condJSON(cond)
		if err != nil {
			return nil, err
		}
		args = append(args, frag)
		q += fmt.Sprintf(" AND doc @> $%d::jsonb", len(args))
	}

	rows, err := c.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: query %s: %w", collection, err)
	}
	return &cursor{rows: rows, collection: collection}, nil
}

func (c *client) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }

func (c *client) Close() error {
	c.pool.Close()
	return nil
}

// ─── Conversión ───

func condJSON(cond docstore.Cond) ([]byte, error) {
	var shape map[string]any
	switch cond.Kind {
	case docstore.CondEq:
		shape = map[string]any{cond.Field: cond.Value}
	case docstore.CondElemMatch:
		shape = map[string]any{cond.Field: []any{cond.Elem}}
	default:
		return nil, fmt.Errorf("pg: unsupported condition kind %d", cond.Kind)
	}
	raw, err := json.Marshal(shape)
	if err != nil {
		return nil, fmt.Errorf("pg: encode condition: %w", err)
	}
	return raw, nil
}

// encodeDoc serializa el documento sin el etag: el etag vive en su columna.
func encodeDoc(doc docstore.Document) ([]byte, error) {
	clean := doc.Clone()
	delete(clean, docstore.FieldEtag)
	raw, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("pg: encode %s: %w", doc.ID(), err)
	}
	return raw, nil
}

func decodeRow(raw []byte, etag, collection, id string) (docstore.Document, error) {
	var doc docstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("pg: decode %s/%s: %w", collection, id, err)
	}
	doc[docstore.FieldEtag] = etag
	return doc, nil
}

func withEtag(doc docstore.Document, etag string) docstore.Document {
	out := doc.Clone()
	out[docstore.FieldEtag] = etag
	return out
}

func partitionOf(doc docstore.Document) string {
	s, _ := doc[docstore.FieldPartition].(string)
	return s
}

type cursor struct {
	rows       pgx.Rows
	collection string
	doc        docstore.Document
	err        error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil || ctx.Err() != nil || !c.rows.Next() {
		return false
	}
	var raw []byte
	var etag string
	if err := c.rows.Scan(&raw, &etag); err != nil {
		c.err = err
		return false
	}
	doc, err := decodeRow(raw, etag, c.collection, "")
	if err != nil {
		c.err = err
		return false
	}
	c.doc = doc
	return true
}

func (c *cursor) Document() docstore.Document { return c.doc }

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *cursor) Close() error {
	c.rows.Close()
	return nil
}
