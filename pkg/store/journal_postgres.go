package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/covenant/pkg/events"
	_ "github.com/lib/pq" // Postgres driver
)

// PostgresJournal is a durable SQL-based JournalStore.
type PostgresJournal struct {
	db *sql.DB
}

func NewPostgresJournal(db *sql.DB) *PostgresJournal {
	return &PostgresJournal{db: db}
}

// OpenPostgresJournal connects with the lib/pq driver and ensures the schema.
func OpenPostgresJournal(ctx context.Context, dsn string) (*PostgresJournal, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres journal: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres journal: %w", err)
	}
	j := NewPostgresJournal(db)
	if err := j.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

const pgJournalSchema = `
CREATE TABLE IF NOT EXISTS event_journal (
	sequence BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	payload TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	hash TEXT NOT NULL UNIQUE,
	timestamp TEXT NOT NULL
);
`

func (j *PostgresJournal) Init(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, pgJournalSchema)
	return err
}

func (j *PostgresJournal) Save(ctx context.Context, e events.Entry) error {
	query := `
		INSERT INTO event_journal (sequence, name, payload, prev_hash, hash, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sequence) DO NOTHING
	`
	res, err := j.db.ExecContext(ctx, query,
		int64(e.Sequence), e.Name, string(e.Payload), e.PrevHash, e.Hash, e.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 1 {
		return err
	}

	var stored string
	if err := j.db.QueryRowContext(ctx, `SELECT hash FROM event_journal WHERE sequence = $1`, int64(e.Sequence)).Scan(&stored); err != nil {
		return fmt.Errorf("failed to read journal entry %d: %w", e.Sequence, err)
	}
	return checkStored(e, stored)
}

func (j *PostgresJournal) Load(ctx context.Context) ([]events.Entry, error) {
	query := `SELECT sequence, name, payload, prev_hash, hash, timestamp FROM event_journal ORDER BY sequence ASC`
	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (j *PostgresJournal) Close() error {
	return j.db.Close()
}
