package out

import (
	"context"

	"github.com/bnema/berth/internal/domain"
)

// RecordStore persists container records keyed by id.
// It is an optional collaborator; the in-memory store stays authoritative.
type RecordStore interface {
	// Save inserts or replaces the record.
	Save(ctx context.Context, c domain.Container) error

	// Delete drops the record for a purged tombstone.
	Delete(ctx context.Context, id string) error

	// LoadAll returns every persisted record, tombstones included.
	LoadAll(ctx context.Context) ([]domain.Container, error)

	Close() error
}
