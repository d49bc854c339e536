// Package store persists finished company records.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/model"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = eris.New("store: record not found")

// RecordFilter specifies criteria for listing records.
type RecordFilter struct {
	Status model.ScrapeStatus `json:"status,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for company records.
type Store interface {
	// SaveRecord inserts or replaces the record by ID. Saving the same
	// record twice is a no-op overwrite, so retried jobs are safe.
	SaveRecord(ctx context.Context, rec *model.Record) error
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	GetRecordByWebsite(ctx context.Context, website string) (*model.Record, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open builds the store named by config.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	case "none":
		return Discard{}, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// Discard is a no-op store for runs that only want stdout output.
type Discard struct{}

func (Discard) SaveRecord(context.Context, *model.Record) error { return nil }
func (Discard) GetRecord(context.Context, string) (*model.Record, error) {
	return nil, ErrNotFound
}
func (Discard) GetRecordByWebsite(context.Context, string) (*model.Record, error) {
	return nil, ErrNotFound
}
func (Discard) ListRecords(context.Context, RecordFilter) ([]model.Record, error) {
	return nil, nil
}
func (Discard) Migrate(context.Context) error { return nil }
func (Discard) Close() error                  { return nil }
