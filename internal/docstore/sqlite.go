package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"librarian/internal/migrate"
)

const defaultDBName = "librarian.db"

// SQLiteStore keeps documents in a single table with kind and parent
// index columns serving as the secondary views.
type SQLiteStore struct {
	DB  *sql.DB
	Now func() time.Time
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".librarian", defaultDBName)
}

// EnsureWorkspace creates the workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, ".librarian")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// OpenSQLite opens the workspace database and applies migrations.
func OpenSQLite(workspace string) (*SQLiteStore, error) {
	if _, err := EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", dbPath(workspace))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &SQLiteStore{DB: conn, Now: time.Now}, nil
}

func (s *SQLiteStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SQLiteStore) Close() error { return s.DB.Close() }

func scanDoc(scan func(dest ...any) error) (Doc, error) {
	var d Doc
	var parent sql.NullString
	var deleted int
	var body string
	if err := scan(&d.ID, &d.Rev, &d.Kind, &parent, &deleted, &body); err != nil {
		return d, err
	}
	if parent.Valid {
		d.Parent = parent.String
	}
	d.Deleted = deleted != 0
	d.Body = []byte(body)
	return d, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Doc, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id,rev,kind,parent_id,deleted,body FROM documents WHERE id=?`, id)
	d, err := scanDoc(row.Scan)
	if err == sql.ErrNoRows {
		return d, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, err
}

func (s *SQLiteStore) Put(ctx context.Context, doc Doc, ifMatch string) (Doc, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Doc{}, err
	}
	defer tx.Rollback()

	var stored string
	exists := true
	err = tx.QueryRowContext(ctx, `SELECT rev FROM documents WHERE id=?`, doc.ID).Scan(&stored)
	if err == sql.ErrNoRows {
		exists = false
	} else if err != nil {
		return Doc{}, err
	}
	if err := checkMatch(stored, ifMatch, exists); err != nil {
		return Doc{}, err
	}

	doc.Rev = nextRev(stored)
	now := s.now().UTC().Format(time.RFC3339)
	if exists {
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET rev=?, kind=?, parent_id=?, deleted=?, body=?, updated_at=? WHERE id=?`,
			doc.Rev, doc.Kind, nullable(doc.Parent), boolInt(doc.Deleted), string(doc.Body), now, doc.ID)
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO documents(id,rev,kind,parent_id,deleted,body,updated_at) VALUES (?,?,?,?,?,?,?)`,
			doc.ID, doc.Rev, doc.Kind, nullable(doc.Parent), boolInt(doc.Deleted), string(doc.Body), now)
	}
	if err != nil {
		return Doc{}, err
	}
	if err := tx.Commit(); err != nil {
		return Doc{}, err
	}
	return doc, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id, ifMatch string) (Doc, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return Doc{}, err
	}
	if err := checkMatch(d.Rev, ifMatch, true); err != nil {
		return Doc{}, err
	}
	d.Deleted = true
	d.Body = tombstone(d.Body)
	d.Rev = nextRev(d.Rev)
	now := s.now().UTC().Format(time.RFC3339)
	_, err = s.DB.ExecContext(ctx,
		`UPDATE documents SET rev=?, deleted=1, body=?, updated_at=? WHERE id=?`,
		d.Rev, string(d.Body), now, id)
	if err != nil {
		return Doc{}, err
	}
	return d, nil
}

func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Doc, error) {
	clauses := []string{"1=1"}
	var args []any
	if q.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, q.Kind)
	}
	if q.Parent != "" {
		clauses = append(clauses, "parent_id=?")
		args = append(args, q.Parent)
	}
	if !q.IncludeDeleted {
		clauses = append(clauses, "deleted=0")
	}
	query := `SELECT id,rev,kind,parent_id,deleted,body FROM documents WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY updated_at ASC, id ASC`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Doc
	for rows.Next() {
		d, err := scanDoc(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
