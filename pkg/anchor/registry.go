// Package anchor anchors content identifiers of off-ledger documents.
//
// The registry stores and compares identifiers and content hashes only. It
// never parses document content; the bytes live in a content-addressed
// Store.
package anchor

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/events"
	"github.com/Mindburn-Labs/covenant/pkg/faults"
	"golang.org/x/crypto/sha3"
)

// Authorizer is the role guard for anchoring.
type Authorizer interface {
	Require(p authority.Principal, roles ...authority.Role) error
}

// Anchor is one anchored document.
type Anchor struct {
	Sequence    uint64              `json:"sequence"`
	CID         string              `json:"cid"`
	ContentHash string              `json:"content_hash"`
	By          authority.Principal `json:"by"`
	AnchoredAt  time.Time           `json:"anchored_at"`
}

// Registry is the append-only list of anchors.
type Registry struct {
	mu      sync.RWMutex
	auth    Authorizer
	store   Store
	anchors []Anchor
	byCID   map[string]int
	sink    events.Sink
	clock   func() time.Time
	logger  *slog.Logger
}

// NewRegistry creates a registry. store may be nil when documents are
// published elsewhere and only anchored here.
func NewRegistry(auth Authorizer, store Store, sink events.Sink) *Registry {
	if sink == nil {
		sink = events.Discard
	}
	return &Registry{
		auth:   auth,
		store:  store,
		byCID:  make(map[string]int),
		sink:   sink,
		clock:  time.Now,
		logger: slog.Default().With("component", "anchor"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// DocumentHash is the keccak-256 content hash recorded by Publish.
func DocumentHash(data []byte) string {
	d := sha3.NewLegacyKeccak256()
	d.Write(data)
	return "0x" + hex.EncodeToString(d.Sum(nil))
}

// Anchor records cid with its content hash. Owner or sole authority.
func (r *Registry) Anchor(ctx context.Context, caller authority.Principal, cid, contentHash string) (Anchor, error) {
	if err := r.auth.Require(caller, authority.RoleOwner, authority.RoleSoleAuthority); err != nil {
		return Anchor{}, err
	}
	cid, contentHash = strings.TrimSpace(cid), strings.TrimSpace(contentHash)
	if cid == "" || contentHash == "" {
		return Anchor{}, faults.New(faults.CodeInvalidCommitment, "content id and hash are required")
	}

	r.mu.Lock()
	if _, dup := r.byCID[cid]; dup {
		r.mu.Unlock()
		return Anchor{}, faults.New(faults.CodeAlreadyAnchored, "%s", cid)
	}
	a := Anchor{
		Sequence:    uint64(len(r.anchors)),
		CID:         cid,
		ContentHash: contentHash,
		By:          caller,
		AnchoredAt:  r.clock(),
	}
	r.byCID[cid] = len(r.anchors)
	r.anchors = append(r.anchors, a)
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "document anchored", "sequence", a.Sequence, "cid", cid)
	r.sink.Emit(ctx, events.DocumentAnchored{Sequence: a.Sequence, CID: cid, ContentHash: contentHash, By: string(caller)})
	return a, nil
}

// Replay restores a journaled anchor without guards or emission. at is the
// journal timestamp of the event.
func (r *Registry) Replay(ev events.Event, at time.Time) {
	a, ok := ev.(events.DocumentAnchored)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byCID[a.CID]; dup {
		return
	}
	r.byCID[a.CID] = len(r.anchors)
	r.anchors = append(r.anchors, Anchor{
		Sequence:    uint64(len(r.anchors)),
		CID:         a.CID,
		ContentHash: a.ContentHash,
		By:          authority.Principal(a.By),
		AnchoredAt:  at,
	})
}

// Publish stores data in the document store and anchors the returned id.
func (r *Registry) Publish(ctx context.Context, caller authority.Principal, data []byte) (Anchor, error) {
	if err := r.auth.Require(caller, authority.RoleOwner, authority.RoleSoleAuthority); err != nil {
		return Anchor{}, err
	}
	if r.store == nil {
		return Anchor{}, fmt.Errorf("anchor: no document store configured")
	}
	cid, err := r.store.Store(ctx, data)
	if err != nil {
		return Anchor{}, fmt.Errorf("publish document: %w", err)
	}
	return r.Anchor(ctx, caller, cid, DocumentHash(data))
}

// Lookup returns the anchor for cid.
func (r *Registry) Lookup(cid string) (Anchor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byCID[cid]
	if !ok {
		return Anchor{}, faults.New(faults.CodeNotFound, "%s is not anchored", cid)
	}
	return r.anchors[i], nil
}

// Verify reports whether cid is anchored with exactly contentHash.
func (r *Registry) Verify(cid, contentHash string) bool {
	a, err := r.Lookup(cid)
	return err == nil && strings.EqualFold(a.ContentHash, contentHash)
}

// Anchors returns every anchor in sequence order.
func (r *Registry) Anchors() []Anchor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Anchor, len(r.anchors))
	copy(out, r.anchors)
	return out
}

// Store returns the configured document store, or nil.
func (r *Registry) Store() Store {
	return r.store
}
