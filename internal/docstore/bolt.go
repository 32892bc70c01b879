package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.etcd.io/bbolt"
)

var docsBucket = []byte("documents")

// BoltStore is the bbolt-backed implementation of Store. One bucket
// holds every document envelope keyed by id; Query scans it.
type BoltStore struct {
	db *bbolt.DB
}

type boltEnvelope struct {
	Rev     string          `json:"rev"`
	Kind    string          `json:"kind"`
	Parent  string          `json:"parent,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
	Body    json.RawMessage `json:"body"`
}

// OpenBolt opens (creating if necessary) a bolt-backed store at path.
func OpenBolt(path string, mode os.FileMode) (*BoltStore, error) {
	if mode == 0 {
		mode = 0o600
	}
	db, err := bbolt.Open(path, mode, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(docsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func decodeEnvelope(id string, raw []byte) (Doc, error) {
	var env boltEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Doc{}, fmt.Errorf("decode document %s: %w", id, err)
	}
	return Doc{
		ID:      id,
		Rev:     env.Rev,
		Kind:    env.Kind,
		Parent:  env.Parent,
		Deleted: env.Deleted,
		Body:    []byte(env.Body),
	}, nil
}

func encodeEnvelope(d Doc) ([]byte, error) {
	return json.Marshal(boltEnvelope{
		Rev:     d.Rev,
		Kind:    d.Kind,
		Parent:  d.Parent,
		Deleted: d.Deleted,
		Body:    json.RawMessage(d.Body),
	})
}

func (s *BoltStore) Get(ctx context.Context, id string) (Doc, error) {
	var doc Doc
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(docsBucket).Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		var err error
		doc, err = decodeEnvelope(id, raw)
		return err
	})
	return doc, err
}

func (s *BoltStore) Put(ctx context.Context, doc Doc, ifMatch string) (Doc, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(docsBucket)
		var stored string
		exists := false
		if raw := b.Get([]byte(doc.ID)); raw != nil {
			cur, err := decodeEnvelope(doc.ID, raw)
			if err != nil {
				return err
			}
			stored = cur.Rev
			exists = true
		}
		if err := checkMatch(stored, ifMatch, exists); err != nil {
			return err
		}
		doc.Rev = nextRev(stored)
		raw, err := encodeEnvelope(doc)
		if err != nil {
			return err
		}
		return b.Put([]byte(doc.ID), raw)
	})
	if err != nil {
		return Doc{}, err
	}
	return doc, nil
}

func (s *BoltStore) Delete(ctx context.Context, id, ifMatch string) (Doc, error) {
	var doc Doc
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(docsBucket)
		raw := b.Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		cur, err := decodeEnvelope(id, raw)
		if err != nil {
			return err
		}
		if err := checkMatch(cur.Rev, ifMatch, true); err != nil {
			return err
		}
		cur.Deleted = true
		cur.Body = tombstone(cur.Body)
		cur.Rev = nextRev(cur.Rev)
		out, err := encodeEnvelope(cur)
		if err != nil {
			return err
		}
		doc = cur
		return b.Put([]byte(id), out)
	})
	if err != nil {
		return Doc{}, err
	}
	return doc, nil
}

func (s *BoltStore) Query(ctx context.Context, q Query) ([]Doc, error) {
	var res []Doc
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(docsBucket).ForEach(func(k, v []byte) error {
			d, err := decodeEnvelope(string(k), v)
			if err != nil {
				return err
			}
			if q.matches(d) {
				res = append(res, d)
			}
			return nil
		})
	})
	return res, err
}
