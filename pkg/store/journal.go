// Package store persists the event journal to SQL databases.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/covenant/pkg/events"
)

// JournalStore is a durable events.Persister that can replay what it stored.
type JournalStore interface {
	events.Persister
	Load(ctx context.Context) ([]events.Entry, error)
}

func scanEntries(rows *sql.Rows) ([]events.Entry, error) {
	defer func() { _ = rows.Close() }()

	result := make([]events.Entry, 0)
	for rows.Next() {
		var (
			e       events.Entry
			seq     int64
			payload string
			ts      string
		)
		if err := rows.Scan(&seq, &e.Name, &payload, &e.PrevHash, &e.Hash, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("entry %d: bad timestamp %q: %w", seq, ts, err)
		}
		e.Sequence = uint64(seq)
		e.Payload = json.RawMessage(payload)
		e.Timestamp = parsed
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Replay loads every stored entry and checks the hash chain end to end.
func Replay(ctx context.Context, s JournalStore) ([]events.Entry, error) {
	entries, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := events.VerifyChain(entries); err != nil {
		return entries, fmt.Errorf("journal integrity: %w", err)
	}
	return entries, nil
}

func checkStored(e events.Entry, storedHash string) error {
	if storedHash != e.Hash {
		return fmt.Errorf("sequence %d already holds a different entry (%s)", e.Sequence, storedHash)
	}
	return nil
}
