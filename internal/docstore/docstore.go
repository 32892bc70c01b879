package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrConflict signals that the supplied ifMatch revision does not
	// match the stored one.
	ErrConflict = errors.New("revision conflict")
)

// Doc is the storage envelope around one JSON document. Kind and
// Parent are the secondary-index fields Query filters on; Body is the
// full resource JSON.
type Doc struct {
	ID      string
	Rev     string
	Kind    string
	Parent  string
	Deleted bool
	Body    []byte
}

// Query selects documents by secondary index. Zero fields match all.
type Query struct {
	Kind           string
	Parent         string
	IncludeDeleted bool
}

func (q Query) matches(d Doc) bool {
	if q.Kind != "" && d.Kind != q.Kind {
		return false
	}
	if q.Parent != "" && d.Parent != q.Parent {
		return false
	}
	if d.Deleted && !q.IncludeDeleted {
		return false
	}
	return true
}

// Store is the optimistic-concurrency document store contract the
// engine consumes. Put and Delete are conditioned on the revision the
// caller observed at read time; a mismatch returns ErrConflict.
type Store interface {
	Get(ctx context.Context, id string) (Doc, error)
	Put(ctx context.Context, doc Doc, ifMatch string) (Doc, error)
	Delete(ctx context.Context, id, ifMatch string) (Doc, error)
	Query(ctx context.Context, q Query) ([]Doc, error)
	Close() error
}

// nextRev derives the successor revision token. Tokens are opaque to
// callers; the generation prefix only orders revisions internally.
func nextRev(current string) string {
	gen := 0
	if current != "" {
		if i := strings.IndexByte(current, '-'); i > 0 {
			gen, _ = strconv.Atoi(current[:i])
		}
	}
	return fmt.Sprintf("%d-%s", gen+1, uuid.NewString()[:8])
}

// checkMatch enforces the optimistic-concurrency rule shared by both
// backends: creating requires no ifMatch, updating requires the exact
// stored revision.
func checkMatch(stored, ifMatch string, exists bool) error {
	if !exists {
		if ifMatch != "" {
			return fmt.Errorf("%w: document does not exist", ErrConflict)
		}
		return nil
	}
	if ifMatch != stored {
		return fmt.Errorf("%w: have %s, got %s", ErrConflict, stored, ifMatch)
	}
	return nil
}

// tombstone rewrites a document body with the _deleted marker set.
func tombstone(body []byte) []byte {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		m = map[string]any{}
	}
	m["_deleted"] = true
	out, err := json.Marshal(m)
	if err != nil {
		return body
	}
	return out
}
