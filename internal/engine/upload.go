package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"librarian/internal/domain"
	"librarian/internal/errs"
)

// BlobStore is where uploaded bytes go; the engine only keeps the
// resulting Encoding node.
type BlobStore interface {
	Put(ctx context.Context, name string, r io.Reader) (url string, size int64, err error)
}

// FileBlobStore stores blobs as files under a workspace directory.
type FileBlobStore struct {
	Dir string
}

func (s *FileBlobStore) Put(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", 0, err
	}
	path := filepath.Join(s.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, err
	}
	return "file://" + filepath.ToSlash(path), size, nil
}

// MemBlobStore keeps blobs in memory, for tests.
type MemBlobStore struct {
	mu    sync.Mutex
	Blobs map[string][]byte
	Fail  bool
}

func (s *MemBlobStore) Put(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	if s.Fail {
		return "", 0, fmt.Errorf("blob store unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Blobs == nil {
		s.Blobs = map[string][]byte{}
	}
	s.Blobs[name] = data
	return "mem://" + name, int64(len(data)), nil
}

// UploadRequest describes one file upload against a resource,
// optionally within a release context.
type UploadRequest struct {
	ResourceID string
	ReleaseID  string
	Name       string
	FileFormat string
	Body       io.Reader
}

// Upload stores the bytes and records the UploadAction carrying the
// produced Encoding node.
func (e *Engine) Upload(ctx context.Context, req UploadRequest, opts Options) (*domain.Action, error) {
	if e.Blobs == nil {
		return nil, errs.UpstreamFailure("no blob store configured")
	}
	if req.Body == nil {
		return nil, errs.InvalidTransition("upload body is required")
	}
	res, err := e.loadResource(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	r := &request{ctx: ctx, e: e, action: &domain.Action{ActionType: "UploadAction"}, opts: opts}
	if err := r.authorize(domain.WritePermission, req.ResourceID); err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = "blob"
	}
	key := e.NewID() + "-" + filepath.Base(name)
	url, size, err := e.Blobs.Put(ctx, key, req.Body)
	if err != nil {
		return nil, errs.UpstreamFailure("store upload: %v", err)
	}

	a := &domain.Action{
		ActionType: "UploadAction",
		Status:     domain.CompletedActionStatus,
		ObjectID:   req.ResourceID,
		Encoding: &domain.Encoding{
			ID:          e.NewID(),
			Name:        req.Name,
			FileFormat:  req.FileFormat,
			ContentURL:  url,
			ContentSize: size,
			ResourceID:  req.ResourceID,
			ReleaseID:   req.ReleaseID,
		},
	}
	if g, ok := res.(*domain.Graph); ok {
		a.GraphID = g.ID
	}
	r.fresh(a)
	a.ResultID = a.Encoding.ID
	out, err := r.finish(a, domain.PotentialActionStatus)
	if err != nil {
		return nil, err
	}
	e.audit("upload.stored", out.ID, opts.Agent, map[string]any{
		"resource": req.ResourceID,
		"size":     size,
	})
	return out, nil
}
