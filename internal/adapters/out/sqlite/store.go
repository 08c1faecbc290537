// Package sqlite implements the record store adapter on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/zerowrap"
	_ "modernc.org/sqlite"

	"github.com/bnema/berth/internal/boundaries/out"
	"github.com/bnema/berth/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS containers (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	image              TEXT NOT NULL,
	status             TEXT NOT NULL,
	ports              TEXT NOT NULL DEFAULT '[]',
	labels             TEXT NOT NULL DEFAULT '{}',
	unit_id            TEXT NOT NULL DEFAULT '',
	created_at         INTEGER NOT NULL,
	last_transition_at INTEGER NOT NULL,
	removed_at         INTEGER NOT NULL DEFAULT 0
);`

// Store implements out.RecordStore.
type Store struct {
	db   *sql.DB
	path string
}

var _ out.RecordStore = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "sqlite",
		"path":               path,
	})
	log := zerowrap.FromCtx(ctx)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, log.WrapErr(err, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, log.WrapErr(err, "failed to open database")
	}
	// One writer at a time; SQLite locks the whole file anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, log.WrapErr(err, "failed to apply schema")
	}

	log.Debug().Msg("record store opened")
	return &Store{db: db, path: path}, nil
}

// Save inserts or replaces the record.
func (s *Store) Save(ctx context.Context, c domain.Container) error {
	ports, err := json.Marshal(nonNilPorts(c.Ports))
	if err != nil {
		return fmt.Errorf("failed to encode ports: %w", err)
	}
	labels, err := json.Marshal(nonNilLabels(c.Labels))
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO containers (id, name, image, status, ports, labels, unit_id, created_at, last_transition_at, removed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			image = excluded.image,
			status = excluded.status,
			ports = excluded.ports,
			labels = excluded.labels,
			unit_id = excluded.unit_id,
			created_at = excluded.created_at,
			last_transition_at = excluded.last_transition_at,
			removed_at = excluded.removed_at`,
		c.ID, c.Name, c.Image, string(c.Status), string(ports), string(labels), c.UnitID,
		toUnix(c.CreatedAt), toUnix(c.LastTransitionAt), toUnix(c.RemovedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save container %s: %w", c.ID, err)
	}
	return nil
}

// Delete drops the record with id. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM containers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete container %s: %w", id, err)
	}
	return nil
}

// LoadAll returns every persisted record ordered by creation time.
func (s *Store) LoadAll(ctx context.Context) ([]domain.Container, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, image, status, ports, labels, unit_id, created_at, last_transition_at, removed_at
		FROM containers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query containers: %w", err)
	}
	defer rows.Close()

	var result []domain.Container
	for rows.Next() {
		var (
			c                         domain.Container
			status, ports, labels     string
			created, transition, gone int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Image, &status, &ports, &labels, &c.UnitID, &created, &transition, &gone); err != nil {
			return nil, fmt.Errorf("failed to scan container: %w", err)
		}
		c.Status = domain.ContainerStatus(status)
		if err := json.Unmarshal([]byte(ports), &c.Ports); err != nil {
			return nil, fmt.Errorf("failed to decode ports of %s: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(labels), &c.Labels); err != nil {
			return nil, fmt.Errorf("failed to decode labels of %s: %w", c.ID, err)
		}
		if len(c.Ports) == 0 {
			c.Ports = nil
		}
		if len(c.Labels) == 0 {
			c.Labels = nil
		}
		c.CreatedAt = fromUnix(created)
		c.LastTransitionAt = fromUnix(transition)
		c.RemovedAt = fromUnix(gone)
		result = append(result, c)
	}
	return result, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nonNilPorts(p []domain.PortMapping) []domain.PortMapping {
	if p == nil {
		return []domain.PortMapping{}
	}
	return p
}

func nonNilLabels(l map[string]string) map[string]string {
	if l == nil {
		return map[string]string{}
	}
	return l
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
