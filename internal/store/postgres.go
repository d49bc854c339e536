package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bizintel/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs; pgxmock implements it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres connects to the given database URL.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	website    TEXT NOT NULL,
	status     TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
CREATE INDEX IF NOT EXISTS idx_records_website ON records(website);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveRecord(ctx context.Context, rec *model.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO records (id, name, website, status, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			website = EXCLUDED.website,
			status = EXCLUDED.status,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.Name, rec.Website, string(rec.ScrapeStatus),
		payload, rec.CreatedAt, rec.LastUpdated)
	return eris.Wrap(err, "postgres: save record")
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	return scanPayload(s.pool.QueryRow(ctx,
		`SELECT payload FROM records WHERE id = $1`, id))
}

func (s *PostgresStore) GetRecordByWebsite(ctx context.Context, website string) (*model.Record, error) {
	return scanPayload(s.pool.QueryRow(ctx,
		`SELECT payload FROM records WHERE website = $1 ORDER BY updated_at DESC LIMIT 1`, website))
}

func scanPayload(row pgx.Row) (*model.Record, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: get record")
	}
	var rec model.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal record")
	}
	return &rec, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error) {
	query := `SELECT payload FROM records`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY updated_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		var rec model.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list records")
}
