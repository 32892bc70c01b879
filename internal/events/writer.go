package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Record is one audit log entry: an action the engine processed or a
// cascaded transition it applied.
type Record struct {
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ResourceID string         `json:"resourceId,omitempty"`
	ActorID    string         `json:"actorId,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Writer appends one JSON line per record to an append-only log.
type Writer struct {
	mu  sync.Mutex
	out io.WriteCloser
	Now func() time.Time
}

// Open creates or appends to the audit log at path.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &Writer{out: f, Now: time.Now}, nil
}

// NewWriter wraps an arbitrary sink, for tests.
func NewWriter(out io.WriteCloser) *Writer {
	return &Writer{out: out, Now: time.Now}
}

func (w *Writer) Append(evtType, resourceID, actorID string, payload map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec := Record{
		TS:         w.Now().UTC().Format(time.RFC3339),
		Type:       evtType,
		ResourceID: resourceID,
		ActorID:    actorID,
		Payload:    payload,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = w.out.Write(append(data, '\n'))
	return err
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Close()
}
