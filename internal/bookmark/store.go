// Package bookmark persists named viewer states (camera pose, layer
// visibility and timestep) in SQLite.
package bookmark

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mahyar-osn/vis-tools/internal/camera"
	"github.com/mahyar-osn/vis-tools/internal/metrics"
)

var (
	// ErrNotFound is returned when no bookmark has the requested ID.
	ErrNotFound = errors.New("bookmark not found")

	// ErrInvalid is returned when a bookmark fails validation.
	ErrInvalid = errors.New("invalid bookmark")
)

// Bookmark is a saved view.
type Bookmark struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Camera    camera.Snapshot `json:"camera"`
	Layers    map[string]bool `json:"layers"`
	Timestep  int             `json:"timestep"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is a SQLite-backed bookmark store.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS bookmarks (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	camera_json TEXT NOT NULL,
	layers_json TEXT NOT NULL,
	timestep    INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bookmarks_created_at ON bookmarks (created_at);
`

// Open opens (or creates) the bookmark database at path. Use ":memory:" for
// a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening bookmark db: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bookmark schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save validates b, assigns an ID and creation time when missing, and stores it.
// Saving an existing ID replaces that bookmark.
func (s *Store) Save(ctx context.Context, b *Bookmark) error {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if b.Timestep < 0 {
		return fmt.Errorf("%w: timestep %d is negative", ErrInvalid, b.Timestep)
	}
	if err := b.Camera.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if b.Layers == nil {
		b.Layers = map[string]bool{}
	}

	cam, err := json.Marshal(b.Camera)
	if err != nil {
		return fmt.Errorf("encoding camera: %w", err)
	}
	layers, err := json.Marshal(b.Layers)
	if err != nil {
		return fmt.Errorf("encoding layers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (id, name, camera_json, layers_json, timestep, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			camera_json = excluded.camera_json,
			layers_json = excluded.layers_json,
			timestep = excluded.timestep`,
		b.ID.String(), b.Name, string(cam), string(layers), b.Timestep, b.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving bookmark: %w", err)
	}
	metrics.IncBookmarkOps("save")
	return nil
}

// Get returns the bookmark with the given ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Bookmark, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, camera_json, layers_json, timestep, created_at
		FROM bookmarks WHERE id = ?`, id.String())

	b, err := scanBookmark(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	metrics.IncBookmarkOps("get")
	return b, nil
}

// List returns all bookmarks, oldest first.
func (s *Store) List(ctx context.Context) ([]*Bookmark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, camera_json, layers_json, timestep, created_at
		FROM bookmarks ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("listing bookmarks: %w", err)
	}
	defer rows.Close()

	var out []*Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing bookmarks: %w", err)
	}
	metrics.IncBookmarkOps("list")
	return out, nil
}

// Delete removes the bookmark with the given ID.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("deleting bookmark: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting bookmark: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	metrics.IncBookmarkOps("delete")
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBookmark(row scanner) (*Bookmark, error) {
	var (
		id, name, cam, layers string
		ts                    int
		created               int64
	)
	if err := row.Scan(&id, &name, &cam, &layers, &ts, &created); err != nil {
		return nil, err
	}

	b := &Bookmark{
		Name:      name,
		Timestep:  ts,
		CreatedAt: time.UnixMilli(created).UTC(),
	}
	var err error
	if b.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parsing bookmark id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(cam), &b.Camera); err != nil {
		return nil, fmt.Errorf("decoding camera for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(layers), &b.Layers); err != nil {
		return nil, fmt.Errorf("decoding layers for %s: %w", id, err)
	}
	return b, nil
}
