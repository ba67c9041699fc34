package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
)

// GenesisHash is the PrevHash of the first journal entry.
const GenesisHash = "genesis"

// Entry is an immutable, hash-chained journal record of one event.
type Entry struct {
	Sequence  uint64          `json:"sequence"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
	Timestamp time.Time       `json:"timestamp"`
}

// Persister durably stores journal entries in sequence order.
type Persister interface {
	Save(ctx context.Context, e Entry) error
}

// Journal is an append-only, hash-chained event log. It implements Sink.
//
// Entries reach the Persister strictly in sequence order. When a save fails
// the journal keeps the entry in memory and retries the whole backlog, oldest
// first, before it saves anything newer.
type Journal struct {
	mu        sync.RWMutex
	entries   []Entry
	headHash  string
	clock     func() time.Time
	persister Persister
	logger    *slog.Logger

	flushMu   sync.Mutex
	persisted int // entries[:persisted] are known to be stored
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{
		headHash: GenesisHash,
		clock:    time.Now,
		logger:   slog.Default().With("component", "journal"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (j *Journal) WithClock(clock func() time.Time) *Journal {
	j.clock = clock
	return j
}

// WithPersister mirrors every appended entry to p.
func (j *Journal) WithPersister(p Persister) *Journal {
	j.persister = p
	return j
}

// WithLogger replaces the journal logger.
func (j *Journal) WithLogger(l *slog.Logger) *Journal {
	j.logger = l
	return j
}

// Emit appends ev. Failures are logged, never propagated.
func (j *Journal) Emit(ctx context.Context, ev Event) {
	if _, err := j.Append(ctx, ev); err != nil {
		j.logger.ErrorContext(ctx, "journal append failed", "event", ev.EventName(), "error", err)
	}
}

// Append records ev and returns the new entry.
func (j *Journal) Append(ctx context.Context, ev Event) (Entry, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal %s: %w", ev.EventName(), err)
	}

	j.mu.Lock()
	seq := uint64(len(j.entries)) + 1
	hash, err := entryHash(seq, ev.EventName(), payload, j.headHash)
	if err != nil {
		j.mu.Unlock()
		return Entry{}, err
	}
	entry := Entry{
		Sequence:  seq,
		Name:      ev.EventName(),
		Payload:   payload,
		PrevHash:  j.headHash,
		Hash:      hash,
		Timestamp: j.clock().UTC(),
	}
	j.entries = append(j.entries, entry)
	j.headHash = hash
	j.mu.Unlock()

	if err := j.Flush(ctx); err != nil {
		return entry, err
	}
	return entry, nil
}

// Flush saves every entry the Persister has not acknowledged yet, in order.
// It stops at the first failure; the remaining entries stay pending.
func (j *Journal) Flush(ctx context.Context) error {
	j.flushMu.Lock()
	defer j.flushMu.Unlock()

	j.mu.RLock()
	persister := j.persister
	pending := append([]Entry(nil), j.entries[j.persisted:]...)
	j.mu.RUnlock()

	if persister == nil {
		return nil
	}
	for _, e := range pending {
		if err := persister.Save(ctx, e); err != nil {
			return fmt.Errorf("persist entry %d (%d pending): %w", e.Sequence, j.Pending(), err)
		}
		j.mu.Lock()
		j.persisted++
		j.mu.Unlock()
	}
	return nil
}

// Pending returns how many entries still wait for the Persister.
func (j *Journal) Pending() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.persister == nil {
		return 0
	}
	return len(j.entries) - j.persisted
}

// Resume continues the chain from previously persisted entries. It is only
// valid on an empty journal and the history must verify.
func (j *Journal) Resume(history []Entry) error {
	if err := VerifyChain(history); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.entries) > 0 {
		return fmt.Errorf("resume: journal already holds %d entries", len(j.entries))
	}
	j.entries = append([]Entry(nil), history...)
	j.persisted = len(history)
	if n := len(history); n > 0 {
		j.headHash = history[n-1].Hash
	}
	return nil
}

// Get retrieves an entry by sequence number (1-based).
func (j *Journal) Get(seq uint64) (Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if seq == 0 || seq > uint64(len(j.entries)) {
		return Entry{}, fmt.Errorf("entry %d not found", seq)
	}
	return j.entries[seq-1], nil
}

// Entries returns a copy of the full journal.
func (j *Journal) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Head returns the hash of the latest entry.
func (j *Journal) Head() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.headHash
}

// Len returns the number of entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Verify checks the integrity of the whole chain.
func (j *Journal) Verify() error {
	return VerifyChain(j.Entries())
}

// VerifyChain checks sequence numbering, hash links and content hashes.
func VerifyChain(entries []Entry) error {
	prev := GenesisHash
	for i, e := range entries {
		if e.Sequence != uint64(i)+1 {
			return fmt.Errorf("sequence gap at position %d: got %d", i+1, e.Sequence)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("chain broken at entry %d: expected prev %s, got %s", e.Sequence, prev, e.PrevHash)
		}
		computed, err := entryHash(e.Sequence, e.Name, e.Payload, e.PrevHash)
		if err != nil {
			return fmt.Errorf("entry %d: %w", e.Sequence, err)
		}
		if computed != e.Hash {
			return fmt.Errorf("hash mismatch at entry %d", e.Sequence)
		}
		prev = e.Hash
	}
	return nil
}

func entryHash(seq uint64, name string, payload json.RawMessage, prev string) (string, error) {
	hashInput := struct {
		Seq      uint64          `json:"seq"`
		Name     string          `json:"name"`
		Payload  json.RawMessage `json:"payload"`
		PrevHash string          `json:"prev"`
	}{seq, name, payload, prev}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("marshal hash input: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize hash input: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}
