// Package events defines the observable event interface of the protocol and
// the sinks that receive it.
//
// Events are emitted after an operation's state change is committed. A sink
// never fails an operation; persistence problems are logged by the sink itself.
package events

import (
	"context"
	"sync"
)

// Event is a typed protocol event.
type Event interface {
	EventName() string
}

// Sink receives emitted events.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// TrancheCreated is emitted when a tranche is appended.
type TrancheCreated struct {
	Index      uint64 `json:"index"`
	Amount     int64  `json:"amount"`
	Commitment string `json:"commitment"`
}

// EthicalComplianceVerified is emitted on every compliance verification.
type EthicalComplianceVerified struct {
	Index     uint64 `json:"index"`
	Compliant bool   `json:"compliant"`
}

// TrancheVetoed is emitted when a tranche is vetoed.
type TrancheVetoed struct {
	Index uint64 `json:"index"`
	By    string `json:"by"`
}

// TrancheReleased is emitted when funds for a tranche are released.
type TrancheReleased struct {
	Index     uint64 `json:"index"`
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
}

// StateChanged is emitted on every veto state transition.
type StateChanged struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// VetoInitiated is emitted when a council member opens a veto.
type VetoInitiated struct {
	ID     uint64 `json:"id"`
	By     string `json:"by"`
	Reason string `json:"reason"`
}

// VetoResolved is emitted when a veto is closed.
type VetoResolved struct {
	ID uint64 `json:"id"`
	By string `json:"by"`
}

// ExternalNotified records the outcome of a best-effort external call.
type ExternalNotified struct {
	TripID     string `json:"trip_id"`
	LocalValue bool   `json:"local_value"`
	Success    bool   `json:"success"`
	Reason     []byte `json:"reason"`
	DeliveryID string `json:"delivery_id,omitempty"`
}

// ExternalTargetUpdated is emitted when the notification target changes.
type ExternalTargetUpdated struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// CouncilMemberAdded is emitted when a member joins the council.
type CouncilMemberAdded struct {
	Principal string `json:"principal"`
}

// CouncilMemberRemoved is emitted when a member leaves the council.
type CouncilMemberRemoved struct {
	Principal string `json:"principal"`
}

// QuorumUpdated is emitted when the required signature count changes.
type QuorumUpdated struct {
	Old uint `json:"old"`
	New uint `json:"new"`
}

// SeedbringerUpdated is emitted when the sole authority changes hands.
type SeedbringerUpdated struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// OwnershipTransferred is emitted when the owner changes.
type OwnershipTransferred struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// BondDeposited is emitted when an investment is opened.
type BondDeposited struct {
	ID               uint64 `json:"id"`
	Investor         string `json:"investor"`
	Amount           int64  `json:"amount"`
	DurationSeconds  int64  `json:"duration_seconds"`
	RedCodeCompliant bool   `json:"red_code_compliant"`
}

// BondRedeemed is emitted when an investment is closed.
type BondRedeemed struct {
	ID          uint64 `json:"id"`
	Investor    string `json:"investor"`
	Payout      int64  `json:"payout"`
	Fee         int64  `json:"fee"`
	Destination string `json:"destination"`
	Redirected  bool   `json:"redirected"`
}

// FulfillerAuthorized is emitted when the owner grants fulfillment rights.
type FulfillerAuthorized struct {
	Principal string `json:"principal"`
}

// FulfillerRevoked is emitted when the owner withdraws fulfillment rights.
type FulfillerRevoked struct {
	Principal string `json:"principal"`
}

// DocumentAnchored is emitted when a content identifier is anchored.
type DocumentAnchored struct {
	Sequence    uint64 `json:"sequence"`
	CID         string `json:"cid"`
	ContentHash string `json:"content_hash"`
	By          string `json:"by"`
}

func (TrancheCreated) EventName() string            { return "TrancheCreated" }
func (EthicalComplianceVerified) EventName() string { return "EthicalComplianceVerified" }
func (TrancheVetoed) EventName() string             { return "TrancheVetoed" }
func (TrancheReleased) EventName() string           { return "TrancheReleased" }
func (StateChanged) EventName() string              { return "StateChanged" }
func (VetoInitiated) EventName() string             { return "VetoInitiated" }
func (VetoResolved) EventName() string              { return "VetoResolved" }
func (ExternalNotified) EventName() string          { return "ExternalNotified" }
func (ExternalTargetUpdated) EventName() string     { return "ExternalTargetUpdated" }
func (CouncilMemberAdded) EventName() string        { return "CouncilMemberAdded" }
func (CouncilMemberRemoved) EventName() string      { return "CouncilMemberRemoved" }
func (QuorumUpdated) EventName() string             { return "QuorumUpdated" }
func (SeedbringerUpdated) EventName() string        { return "SeedbringerUpdated" }
func (OwnershipTransferred) EventName() string      { return "OwnershipTransferred" }
func (BondDeposited) EventName() string             { return "BondDeposited" }
func (BondRedeemed) EventName() string              { return "BondRedeemed" }
func (FulfillerAuthorized) EventName() string       { return "FulfillerAuthorized" }
func (FulfillerRevoked) EventName() string          { return "FulfillerRevoked" }
func (DocumentAnchored) EventName() string          { return "DocumentAnchored" }

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(context.Context, Event) {}

// Fanout forwards each event to every sink in order.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, ev Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns the event names in emission order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		names = append(names, ev.EventName())
	}
	return names
}

// Last returns the most recent event, or nil.
func (r *Recorder) Last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
