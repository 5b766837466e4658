package cache

import (
	"context"
	"testing"
	"time"

	"github.com/dropDatabas3/docjohn/docstore"
	"github.com/dropDatabas3/docjohn/docstore/drivers/memory"
)

func TestMemoryCache(t *testing.T) {
	m := NewMemory(time.Minute)

	if _, ok := m.Get("k"); ok {
		t.Fatal("empty cache must miss")
	}
	m.Set("k", []byte("v"), time.Minute)
	got, ok := m.Get("k")
	if !ok || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	m.Delete("k")
	if _, ok := m.Get("k"); ok {
		t.Fatal("deleted key must miss")
	}
}

func TestWrapReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	m := NewMemory(time.Minute)
	c := Wrap(inner, m, time.Minute)

	created, err := c.Create(ctx, "users", docstore.Document{docstore.FieldID: "u-1", "n": float64(1)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// primera lectura puebla el cache
	got, err := c.Get(ctx, "users", "u-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := m.Get("doc:users:u-1"); !ok {
		t.Fatal("Get must populate the cache")
	}

	// con la entrada caliente, la lectura sale del cache aunque el store
	// subyacente ya no tenga el documento
	if err := inner.Delete(ctx, "users", "u-1", created.Etag()); err != nil {
		t.Fatalf("inner Delete: %v", err)
	}
	hot, err := c.Get(ctx, "users", "u-1")
	if err != nil {
		t.Fatalf("cached Get: %v", err)
	}
	if hot["n"] != got["n"] {
		t.Fatalf("cached Get = %v", hot)
	}
}

func TestWrapWriteInvalidates(t *testing.T) {
	ctx := context.Background()
	c := Wrap(memory.New(), NewMemory(time.Minute), time.Minute)

	created, err := c.Create(ctx, "users", docstore.Document{docstore.FieldID: "u-1", "n": float64(1)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := c.Get(ctx, "users", "u-1"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	upd := created.Clone()
	upd["n"] = float64(2)
	if _, err := c.Replace(ctx, "users", upd, created.Etag()); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	// la invalidación fuerza releer el valor nuevo
	got, err := c.Get(ctx, "users", "u-1")
	if err != nil {
		t.Fatalf("Get after Replace: %v", err)
	}
	if got["n"] != float64(2) {
		t.Fatalf("n = %v, want 2 (stale cache entry?)", got["n"])
	}
}

func TestUnwrap(t *testing.T) {
	inner := memory.New()
	c := Wrap(inner, NewMemory(time.Minute), time.Minute)

	// las capacidades opcionales del driver (Migrate, EnsureIndexes) no se
	// reenvían: el caller las alcanza desenvolviendo el decorador
	if c.Unwrap() != inner {
		t.Fatal("Unwrap must return the decorated client")
	}
}

func TestWrapCorruptEntry(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	m := NewMemory(time.Minute)
	c := Wrap(inner, m, time.Minute)

	if _, err := c.Create(ctx, "users", docstore.Document{docstore.FieldID: "u-1", "n": float64(1)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	m.Set("doc:users:u-1", []byte("{not json"), time.Minute)

	got, err := c.Get(ctx, "users", "u-1")
	if err != nil {
		t.Fatalf("Get with corrupt entry: %v", err)
	}
	if got["n"] != float64(1) {
		t.Fatalf("n = %v, want 1", got["n"])
	}
}
