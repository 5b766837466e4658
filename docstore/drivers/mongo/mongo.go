// Package mongo implementa el driver de documentos sobre MongoDB.
// _id espeja el campo id; el reemplazo y el borrado filtran por
// {_id, _etag} para que la precondición de concurrencia se resuelva en
// el servidor, sin read-modify-write del lado cliente.
package mongo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dropDatabas3/docjohn/docstore"
)

func init() {
	docstore.Register(&driver{})
}

type driver struct{}

func (d *driver) Name() string { return "mongo" }

func (d *driver) Open(ctx context.Context, cfg docstore.Config) (docstore.Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mongo: DSN (connection URI) is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongo: database name is required")
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	return &client{cli: cli, db: cli.Database(cfg.Database)}, nil
}

type client struct {
	cli *mongo.Client
	db  *mongo.Database
}

func (c *client) Name() string { return "mongo" }

func (c *client) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	raw, err := c.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Raw()
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: get %s/%s: %w", collection, id, err)
	}
	return toDocument(raw)
}

func (c *client) Create(ctx context.Context, collection string, doc docstore.Document) (docstore.Document, error) {
	stored := doc.Clone()
	stored[docstore.FieldEtag] = uuid.NewString()

	_, err := c.db.Collection(collection).InsertOne(ctx, toBSON(stored))
	if mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("%w: %s/%s", docstore.ErrExists, collection, doc.ID())
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: create %s/%s: %w", collection, doc.ID(), err)
	}
	return stored, nil
}

func (c *client) Replace(ctx context.Context, collection string, doc docstore.Document, etag string) (docstore.Document, error) {
	id := doc.ID()
	stored := doc.Clone()
	stored[docstore.FieldEtag] = uuid.NewString()

	res, err := c.db.Collection(collection).ReplaceOne(ctx,
		bson.M{"_id": id, docstore.FieldEtag: etag}, toBSON(stored))
	if err != nil {
		return nil, fmt.Errorf("mongo: replace %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return nil, c.missOrStale(ctx, collection, id)
	}
	return stored, nil
}

func (c *client) Delete(ctx context.Context, collection, id, etag string) error {
	res, err := c.db.Collection(collection).DeleteOne(ctx,
		bson.M{"_id": id, docstore.FieldEtag: etag})
	if err != nil {
		return fmt.Errorf("mongo: delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return c.missOrStale(ctx, collection, id)
	}
	return nil
}

// missOrStale distingue documento inexistente de etag vencido tras un
// write que no matcheó.
func (c *client) missOrStale(ctx context.Context, collection, id string) error {
	n, err := c.db.Collection(collection).CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongo: verify %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	return fmt.Errorf("%w: %s/%s", docstore.ErrPreconditionFailed, collection, id)
}

func (c *client) Query(ctx context.Context, collection string, filter docstore.Filter) (docstore.Cursor, error) {
	cur, err := c.db.Collection(collection).Find(ctx, toQuery(filter))
	if err != nil {
		return nil, fmt.Errorf("mongo: query %s: %w", collection, err)
	}
	return &cursor{cur: cur}, nil
}

func (c *client) Ping(ctx context.Context) error {
	return c.cli.Ping(ctx, nil)
}

func (c *client) Close() error {
	return c.cli.Disconnect(context.Background())
}

// EnsureIndexes crea los índices de consulta que los stores asumen:
// discriminador + nombre normalizado (usuarios, emails, roles). No son
// únicos: la unicidad sigue siendo el chequeo cooperativo del store, los
// índices solo sostienen la latencia de las queries. El aprovisionamiento
// sigue siendo del caller; esto es un helper opt-in.
func (c *client) EnsureIndexes(ctx context.Context, collection string) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: docstore.FieldType, Value: 1}, {Key: "normalizedUserName", Value: 1}}},
		{Keys: bson.D{{Key: docstore.FieldType, Value: 1}, {Key: "normalizedEmail", Value: 1}}},
		{Keys: bson.D{{Key: docstore.FieldType, Value: 1}, {Key: "normalizedName", Value: 1}}},
	}
	_, err := c.db.Collection(collection).Indexes().CreateMany(ctx, models)
	if err != nil {
		return fmt.Errorf("mongo: ensure indexes on %s: %w", collection, err)
	}
	return nil
}

// ─── Conversión ───

// toBSON prepara el documento para insertar: _id espejando id.
func toBSON(doc docstore.Document) bson.M {
	m := bson.M(doc.Clone())
	m["_id"] = doc.ID()
	return m
}

// toDocument convierte el BSON crudo a Document pasando por JSON relajado:
// los documentos solo llevan tipos JSON (el codec de identity lo
// garantiza), así el round-trip es sin pérdida y los tipos quedan
// uniformes (map[string]any, []any, float64).
func toDocument(raw bson.Raw) (docstore.Document, error) {
	data, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("mongo: marshal raw: %w", err)
	}
	var doc docstore.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("mongo: decode raw: %w", err)
	}
	delete(doc, "_id")
	return doc, nil
}

// toQuery traduce el filtro del contrato al lenguaje de Mongo.
func toQuery(filter docstore.Filter) bson.M {
	q := bson.M{}
	for _, cond := range filter {
		switch cond.Kind {
		case docstore.CondEq:
			q[cond.Field] = cond.Value
		case docstore.CondElemMatch:
			q[cond.Field] = bson.M{"$elemMatch": bson.M(cond.Elem)}
		}
	}
	return q
}

type cursor struct {
	cur *mongo.Cursor
	doc docstore.Document
	err error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.cur.Next(ctx) {
		return false
	}
	doc, err := toDocument(c.cur.Current)
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
	return c.cur.Err()
}

func (c *cursor) Close() error { return c.cur.Close(context.Background()) }
