// Package veto implements the council veto state machine.
//
// The machine starts ACTIVE. A council member moves it to SUSPENDED or
// EMERGENCY by initiating a veto with a reason; a council member resolving
// that veto, or the owner forcing an emergency override, returns it to
// ACTIVE. Every initiation is kept in an append-only record history.
package veto

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/events"
	"github.com/Mindburn-Labs/covenant/pkg/faults"
)

// State is the process-wide operating state.
type State string

const (
	Active    State = "ACTIVE"
	Suspended State = "SUSPENDED"
	Emergency State = "EMERGENCY"
)

// ParseState maps a case-insensitive name to a State.
func ParseState(s string) (State, error) {
	st := State(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case Active, Suspended, Emergency:
		return st, nil
	}
	return "", faults.New(faults.CodeInvalidTarget, "unknown state %q", s)
}

// Record is one veto in the history. ID equals its index.
type Record struct {
	ID          uint64              `json:"id"`
	From        State               `json:"from"`
	To          State               `json:"to"`
	Reason      string              `json:"reason"`
	Initiator   authority.Principal `json:"initiator"`
	Resolved    bool                `json:"resolved"`
	Resolver    authority.Principal `json:"resolver,omitempty"`
	InitiatedAt time.Time           `json:"initiated_at"`
	ResolvedAt  time.Time           `json:"resolved_at,omitempty"`
}

// Authorizer is the role guard the machine consults.
type Authorizer interface {
	Require(p authority.Principal, roles ...authority.Role) error
}

// Machine holds the current state and the veto history.
type Machine struct {
	mu      sync.RWMutex
	state   State
	records []Record
	auth    Authorizer
	sink    events.Sink
	clock   func() time.Time
	logger  *slog.Logger
}

// NewMachine creates a machine in the ACTIVE state.
func NewMachine(auth Authorizer, sink events.Sink) *Machine {
	if sink == nil {
		sink = events.Discard
	}
	return &Machine{
		state:  Active,
		auth:   auth,
		sink:   sink,
		clock:  time.Now,
		logger: slog.Default().With("component", "veto"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (m *Machine) WithClock(clock func() time.Time) *Machine {
	m.clock = clock
	return m
}

// InitiateVeto moves the machine to target and opens a record. Council only.
func (m *Machine) InitiateVeto(ctx context.Context, caller authority.Principal, target State, reason string) (uint64, error) {
	if err := m.auth.Require(caller, authority.RoleCouncil); err != nil {
		return 0, err
	}
	if target != Suspended && target != Emergency {
		return 0, faults.New(faults.CodeInvalidTarget, "cannot veto into %q", target)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return 0, faults.ErrReasonRequired
	}

	m.mu.Lock()
	if m.state != Active {
		m.mu.Unlock()
		return 0, faults.New(faults.CodeVetoAlreadyOpen, "state is %s", m.state)
	}
	rec := Record{
		ID:          uint64(len(m.records)),
		From:        m.state,
		To:          target,
		Reason:      reason,
		Initiator:   caller,
		InitiatedAt: m.clock(),
	}
	m.records = append(m.records, rec)
	m.state = target
	m.mu.Unlock()

	m.logger.WarnContext(ctx, "veto initiated", "id", rec.ID, "by", caller, "state", target, "reason", reason)
	m.sink.Emit(ctx, events.StateChanged{From: string(rec.From), To: string(target)})
	m.sink.Emit(ctx, events.VetoInitiated{ID: rec.ID, By: string(caller), Reason: reason})
	return rec.ID, nil
}

// ResolveVeto closes the open record id and returns to ACTIVE. Council only.
func (m *Machine) ResolveVeto(ctx context.Context, caller authority.Principal, id uint64) error {
	if err := m.auth.Require(caller, authority.RoleCouncil); err != nil {
		return err
	}

	m.mu.Lock()
	if id >= uint64(len(m.records)) || m.records[id].Resolved {
		m.mu.Unlock()
		return faults.New(faults.CodeNotFoundOrInactive, "veto %d", id)
	}
	from := m.state
	m.records[id].Resolved = true
	m.records[id].Resolver = caller
	m.records[id].ResolvedAt = m.clock()
	m.state = Active
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "veto resolved", "id", id, "by", caller)
	m.sink.Emit(ctx, events.StateChanged{From: string(from), To: string(Active)})
	m.sink.Emit(ctx, events.VetoResolved{ID: id, By: string(caller)})
	return nil
}

// EmergencyOverride forces ACTIVE regardless of open records. Owner only.
// An open record is closed with the owner as resolver.
func (m *Machine) EmergencyOverride(ctx context.Context, caller authority.Principal, reason string) error {
	if err := m.auth.Require(caller, authority.RoleOwner); err != nil {
		return err
	}

	m.mu.Lock()
	from := m.state
	closed, hadOpen := uint64(0), false
	if n := len(m.records); n > 0 && !m.records[n-1].Resolved {
		closed, hadOpen = uint64(n-1), true
		m.records[n-1].Resolved = true
		m.records[n-1].Resolver = caller
		m.records[n-1].ResolvedAt = m.clock()
	}
	m.state = Active
	m.mu.Unlock()

	m.logger.WarnContext(ctx, "emergency override", "by", caller, "from", from, "reason", reason)
	m.sink.Emit(ctx, events.StateChanged{From: string(from), To: string(Active)})
	if hadOpen {
		m.sink.Emit(ctx, events.VetoResolved{ID: closed, By: string(caller)})
	}
	return nil
}

// Replay applies a journaled transition without guards or emission. at is
// the journal timestamp of the event. A veto is always opened from ACTIVE
// and its StateChanged precedes it, so the record target is the current state.
func (m *Machine) Replay(ev events.Event, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ev := ev.(type) {
	case events.StateChanged:
		m.state = State(ev.To)
	case events.VetoInitiated:
		m.records = append(m.records, Record{
			ID:          ev.ID,
			From:        Active,
			To:          m.state,
			Reason:      ev.Reason,
			Initiator:   authority.Principal(ev.By),
			InitiatedAt: at,
		})
	case events.VetoResolved:
		if ev.ID < uint64(len(m.records)) {
			m.records[ev.ID].Resolved = true
			m.records[ev.ID].Resolver = authority.Principal(ev.By)
			m.records[ev.ID].ResolvedAt = at
		}
	}
}

// OperationsAllowed reports whether the machine is ACTIVE.
func (m *Machine) OperationsAllowed() bool {
	return m.CurrentState() == Active
}

// IsActiveState is an alias of OperationsAllowed.
func (m *Machine) IsActiveState() bool {
	return m.OperationsAllowed()
}

func (m *Machine) CurrentState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Record returns a copy of the record at index i.
func (m *Machine) Record(i uint64) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i >= uint64(len(m.records)) {
		return Record{}, faults.New(faults.CodeIndexOutOfBounds, "veto record %d of %d", i, len(m.records))
	}
	return m.records[i], nil
}

func (m *Machine) RecordCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Records returns a copy of the full history.
func (m *Machine) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Open returns the unresolved record, if any.
func (m *Machine) Open() (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n := len(m.records); n > 0 && !m.records[n-1].Resolved {
		return m.records[n-1], true
	}
	return Record{}, false
}
