// Package sqlite provides a SQLite-backed record store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/opencaselaw/harvester/internal/pipeline"
)

// Store persists the dataset in a single SQLite table.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and initializes the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		local_id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT,
		citation TEXT,
		year INTEGER,
		source_code TEXT,
		local_path TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_records_url ON records(url);
	CREATE INDEX IF NOT EXISTS idx_records_source ON records(source_code);
	`
	_, err := s.db.Exec(schema)
	return err
}

// LoadAll reads the whole dataset ordered by local id for stable output.
func (s *Store) LoadAll(ctx context.Context) ([]pipeline.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT local_id, url, title, citation, year, source_code, local_path
		FROM records
		ORDER BY local_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []pipeline.Record
	for rows.Next() {
		var rec pipeline.Record
		if err := rows.Scan(&rec.LocalID, &rec.URL, &rec.Title, &rec.Citation, &rec.Year, &rec.SourceCode, &rec.LocalPath); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// SaveAll replaces the whole dataset in one transaction so readers never see
// a partially swapped set.
func (s *Store) SaveAll(ctx context.Context, records []pipeline.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (local_id, url, title, citation, year, source_code, local_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.LocalID, rec.URL, rec.Title, rec.Citation, rec.Year, rec.SourceCode, rec.LocalPath); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.LocalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
