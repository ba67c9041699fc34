package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/covenant/pkg/events"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteJournal implements JournalStore using SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal creates the journal table if needed.
func NewSQLiteJournal(db *sql.DB) (*SQLiteJournal, error) {
	s := &SQLiteJournal{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteJournal opens dsn with the sqlite driver.
func OpenSQLiteJournal(dsn string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}
	// Single writer; in-memory databases are per connection.
	db.SetMaxOpenConns(1)
	return NewSQLiteJournal(db)
}

func (s *SQLiteJournal) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS event_journal (
		sequence INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		payload TEXT NOT NULL,
		prev_hash TEXT NOT NULL,
		hash TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Save appends e. Saving an entry that is already stored is a no-op; a
// different entry under the same sequence number is rejected.
func (s *SQLiteJournal) Save(ctx context.Context, e events.Entry) error {
	query := `INSERT INTO event_journal (sequence, name, payload, prev_hash, hash, timestamp) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (sequence) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query,
		int64(e.Sequence), e.Name, string(e.Payload), e.PrevHash, e.Hash, e.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 1 {
		return err
	}

	var stored string
	if err := s.db.QueryRowContext(ctx, `SELECT hash FROM event_journal WHERE sequence = ?`, int64(e.Sequence)).Scan(&stored); err != nil {
		return fmt.Errorf("failed to read journal entry %d: %w", e.Sequence, err)
	}
	return checkStored(e, stored)
}

// Load returns all entries ordered by sequence.
func (s *SQLiteJournal) Load(ctx context.Context) ([]events.Entry, error) {
	query := `SELECT sequence, name, payload, prev_hash, hash, timestamp FROM event_journal ORDER BY sequence ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Close releases the underlying database.
func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}
