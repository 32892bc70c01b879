package docstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"librarian/internal/docstore"
)

func openStores(t *testing.T) map[string]docstore.Store {
	t.Helper()
	dir := t.TempDir()
	sq, err := docstore.OpenSQLite(dir)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	bolt, err := docstore.OpenBolt(filepath.Join(dir, "test.boltdb"), 0o600)
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	t.Cleanup(func() { bolt.Close() })
	return map[string]docstore.Store{"sqlite": sq, "bolt": bolt}
}

func TestPutGetRoundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc := docstore.Doc{ID: "g1", Kind: "Graph", Parent: "p1", Body: []byte(`{"id":"g1"}`)}
			created, err := store.Put(ctx, doc, "")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if created.Rev == "" {
				t.Fatal("create assigned no revision")
			}
			got, err := store.Get(ctx, "g1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Rev != created.Rev || got.Kind != "Graph" || got.Parent != "p1" {
				t.Fatalf("got %+v", got)
			}

			created.Body = []byte(`{"id":"g1","name":"x"}`)
			updated, err := store.Put(ctx, created, created.Rev)
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if updated.Rev == created.Rev {
				t.Fatal("update kept the old revision")
			}
		})
	}
}

func TestRevisionConflicts(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc := docstore.Doc{ID: "d1", Kind: "Graph", Body: []byte(`{}`)}
			created, err := store.Put(ctx, doc, "")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			// stale revision
			if _, err := store.Put(ctx, created, "0-stale"); !errors.Is(err, docstore.ErrConflict) {
				t.Fatalf("stale update: got %v, want ErrConflict", err)
			}
			// create over an existing document
			if _, err := store.Put(ctx, doc, ""); !errors.Is(err, docstore.ErrConflict) {
				t.Fatalf("double create: got %v, want ErrConflict", err)
			}
			// ifMatch on a missing document
			if _, err := store.Put(ctx, docstore.Doc{ID: "nope", Kind: "Graph", Body: []byte(`{}`)}, "1-x"); !errors.Is(err, docstore.ErrConflict) {
				t.Fatalf("update missing: got %v, want ErrConflict", err)
			}
		})
	}
}

func TestDeleteTombstones(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created, err := store.Put(ctx, docstore.Doc{ID: "d1", Kind: "Graph", Parent: "p1", Body: []byte(`{"id":"d1"}`)}, "")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := store.Delete(ctx, "d1", "0-wrong"); !errors.Is(err, docstore.ErrConflict) {
				t.Fatalf("delete with stale rev: got %v, want ErrConflict", err)
			}
			deleted, err := store.Delete(ctx, "d1", created.Rev)
			if err != nil {
				t.Fatalf("delete: %v", err)
			}
			if !deleted.Deleted {
				t.Fatal("delete did not mark the tombstone")
			}

			// The tombstone stays readable by id.
			got, err := store.Get(ctx, "d1")
			if err != nil {
				t.Fatalf("get tombstone: %v", err)
			}
			if !got.Deleted {
				t.Fatal("stored document lost its tombstone marker")
			}

			// Queries exclude tombstones unless asked.
			docs, err := store.Query(ctx, docstore.Query{Kind: "Graph", Parent: "p1"})
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(docs) != 0 {
				t.Fatalf("query returned %d tombstoned docs", len(docs))
			}
			docs, err = store.Query(ctx, docstore.Query{Kind: "Graph", Parent: "p1", IncludeDeleted: true})
			if err != nil {
				t.Fatalf("query deleted: %v", err)
			}
			if len(docs) != 1 {
				t.Fatalf("query with IncludeDeleted returned %d docs, want 1", len(docs))
			}
		})
	}
}

func TestQueryBySecondaryIndex(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed := []docstore.Doc{
				{ID: "a1", Kind: "Action", Parent: "g1", Body: []byte(`{}`)},
				{ID: "a2", Kind: "Action", Parent: "g1", Body: []byte(`{}`)},
				{ID: "a3", Kind: "Action", Parent: "g2", Body: []byte(`{}`)},
				{ID: "r1", Kind: "Role", Parent: "g1", Body: []byte(`{}`)},
			}
			for _, d := range seed {
				if _, err := store.Put(ctx, d, ""); err != nil {
					t.Fatalf("seed %s: %v", d.ID, err)
				}
			}
			docs, err := store.Query(ctx, docstore.Query{Kind: "Action", Parent: "g1"})
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(docs) != 2 {
				t.Fatalf("got %d docs, want 2", len(docs))
			}
			docs, err = store.Query(ctx, docstore.Query{Parent: "g1"})
			if err != nil {
				t.Fatalf("query parent: %v", err)
			}
			if len(docs) != 3 {
				t.Fatalf("got %d docs, want 3", len(docs))
			}
		})
	}
}
