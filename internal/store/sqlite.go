package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/bizintel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	website    TEXT NOT NULL,
	status     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
CREATE INDEX IF NOT EXISTS idx_records_website ON records(website);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *model.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (id, name, website, status, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			website = excluded.website,
			status = excluded.status,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Name, rec.Website, string(rec.ScrapeStatus),
		string(payload), rec.CreatedAt, rec.LastUpdated)
	return eris.Wrap(err, "sqlite: save record")
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE id = ?`, id))
}

func (s *SQLiteStore) GetRecordByWebsite(ctx context.Context, website string) (*model.Record, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE website = ? ORDER BY updated_at DESC LIMIT 1`, website))
}

func (s *SQLiteStore) scanOne(row *sql.Row) (*model.Record, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: get record")
	}
	var rec model.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal record")
	}
	return &rec, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error) {
	query := `SELECT payload FROM records`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY updated_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		// SQLite requires a LIMIT clause before OFFSET.
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list records")
}
