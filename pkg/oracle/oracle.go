// Package oracle records safe-passage confirmations and forwards them to an
// external escrow target.
//
// The local confirmation is authoritative. It is written before the target
// is called and stays written whatever the target does.
package oracle

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/authz"
	"github.com/Mindburn-Labs/covenant/pkg/events"
	"github.com/Mindburn-Labs/covenant/pkg/faults"
	"github.com/Mindburn-Labs/covenant/pkg/notifier"
	"github.com/google/uuid"
)

const (
	oracleObject      = "oracle:main"
	fulfillerRelation = "fulfiller"
	principalPrefix   = "principal:"
)

// Authorizer is the role guard for owner-gated operations.
type Authorizer interface {
	Require(p authority.Principal, roles ...authority.Role) error
}

// Fulfillment is the result of FulfillSafePassage.
type Fulfillment struct {
	TripID     string           `json:"trip_id"`
	Value      bool             `json:"value"`
	Outcome    notifier.Outcome `json:"outcome"`
	DeliveryID string           `json:"delivery_id"`
}

// Oracle owns the confirmation flags and the external target.
type Oracle struct {
	mu            sync.RWMutex
	auth          Authorizer
	fulfillers    *authz.Engine
	confirmations map[string]bool
	address       string
	target        notifier.Target
	resolver      notifier.Resolver
	notifier      *notifier.Notifier
	sink          events.Sink
	logger        *slog.Logger
}

// New builds an oracle with no external target configured.
func New(auth Authorizer, n *notifier.Notifier, resolver notifier.Resolver, sink events.Sink) *Oracle {
	if sink == nil {
		sink = events.Discard
	}
	if n == nil {
		n = notifier.New(notifier.Config{})
	}
	return &Oracle{
		auth:          auth,
		fulfillers:    authz.NewEngine(),
		confirmations: make(map[string]bool),
		resolver:      resolver,
		notifier:      n,
		sink:          sink,
		logger:        slog.Default().With("component", "oracle"),
	}
}

// FulfillSafePassage records value for tripID and then notifies the external
// target. The target's failure is reported in the Fulfillment and the
// ExternalNotified event, never as an error. Owner or authorized fulfiller.
func (o *Oracle) FulfillSafePassage(ctx context.Context, caller authority.Principal, tripID string, value bool) (Fulfillment, error) {
	if err := o.requireFulfiller(ctx, caller); err != nil {
		return Fulfillment{}, err
	}
	tripID = strings.TrimSpace(tripID)
	if tripID == "" {
		return Fulfillment{}, faults.ErrInvalidTripID
	}

	o.mu.Lock()
	o.confirmations[tripID] = value
	address, target := o.address, o.target
	o.mu.Unlock()

	out := o.notifier.Notify(ctx, address, target, tripID, value)
	f := Fulfillment{
		TripID:     tripID,
		Value:      value,
		Outcome:    out,
		DeliveryID: uuid.NewString(),
	}

	o.logger.InfoContext(ctx, "safe passage fulfilled", "trip_id", tripID, "value", value, "delivered", out.Succeeded, "delivery_id", f.DeliveryID)
	o.sink.Emit(ctx, events.ExternalNotified{
		TripID:     tripID,
		LocalValue: value,
		Success:    out.Succeeded,
		Reason:     out.Reason,
		DeliveryID: f.DeliveryID,
	})
	return f, nil
}

func (o *Oracle) requireFulfiller(ctx context.Context, caller authority.Principal) error {
	if o.auth.Require(caller, authority.RoleOwner) == nil || o.IsFulfiller(ctx, caller) {
		return nil
	}
	return faults.New(faults.CodeUnauthorized, "%q may not fulfill", caller)
}

// Confirmation returns the recorded value for tripID.
func (o *Oracle) Confirmation(tripID string) (value, ok bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	value, ok = o.confirmations[tripID]
	return value, ok
}

// UpdateExternalTarget points the oracle at address after the resolver
// confirms it has code. Owner only.
func (o *Oracle) UpdateExternalTarget(ctx context.Context, caller authority.Principal, address string) error {
	if err := o.auth.Require(caller, authority.RoleOwner); err != nil {
		return err
	}
	if o.resolver == nil {
		return faults.New(faults.CodeNotAContract, "no resolver configured")
	}
	target, err := o.resolver.Resolve(ctx, address)
	if err != nil {
		return err
	}

	o.mu.Lock()
	old := o.address
	o.address, o.target = address, target
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "external target updated", "old", old, "new", address)
	o.sink.Emit(ctx, events.ExternalTargetUpdated{Old: old, New: address})
	return nil
}

// Breaker returns the circuit breaker of the current external target.
func (o *Oracle) Breaker() *notifier.CircuitBreaker {
	return o.notifier.Breaker(o.ExternalTarget())
}

// ExternalTarget returns the configured target address, or "".
func (o *Oracle) ExternalTarget() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.address
}

// Authorize lets p fulfill safe passages. Owner only.
func (o *Oracle) Authorize(ctx context.Context, caller, p authority.Principal) error {
	if err := o.auth.Require(caller, authority.RoleOwner); err != nil {
		return err
	}
	if strings.TrimSpace(string(p)) == "" {
		return faults.New(faults.CodeInvalidPrincipal, "fulfiller is empty")
	}
	if !o.fulfillers.WriteTuple(ctx, fulfillerTuple(p)) {
		return faults.New(faults.CodeAlreadyMember, "%s is already a fulfiller", p)
	}
	o.sink.Emit(ctx, events.FulfillerAuthorized{Principal: string(p)})
	return nil
}

// Deauthorize withdraws p's fulfillment rights. Owner only.
func (o *Oracle) Deauthorize(ctx context.Context, caller, p authority.Principal) error {
	if err := o.auth.Require(caller, authority.RoleOwner); err != nil {
		return err
	}
	if !o.fulfillers.DeleteTuple(ctx, fulfillerTuple(p)) {
		return faults.New(faults.CodeNotMember, "%s is not a fulfiller", p)
	}
	o.sink.Emit(ctx, events.FulfillerRevoked{Principal: string(p)})
	return nil
}

// Replay applies a journaled oracle event without guards, external calls
// or emission. A replayed target that no longer resolves is kept by address
// with no callable target, so later notifications report it as missing.
func (o *Oracle) Replay(ctx context.Context, ev events.Event) {
	switch ev := ev.(type) {
	case events.ExternalNotified:
		o.mu.Lock()
		o.confirmations[ev.TripID] = ev.LocalValue
		o.mu.Unlock()
	case events.ExternalTargetUpdated:
		var target notifier.Target
		if o.resolver != nil {
			t, err := o.resolver.Resolve(ctx, ev.New)
			if err != nil {
				o.logger.WarnContext(ctx, "replayed external target does not resolve", "address", ev.New, "error", err)
			} else {
				target = t
			}
		}
		o.mu.Lock()
		o.address, o.target = ev.New, target
		o.mu.Unlock()
	case events.FulfillerAuthorized:
		o.fulfillers.WriteTuple(ctx, fulfillerTuple(authority.Principal(ev.Principal)))
	case events.FulfillerRevoked:
		o.fulfillers.DeleteTuple(ctx, fulfillerTuple(authority.Principal(ev.Principal)))
	}
}

func (o *Oracle) IsFulfiller(ctx context.Context, p authority.Principal) bool {
	return p != "" && o.fulfillers.Check(ctx, oracleObject, fulfillerRelation, principalPrefix+string(p))
}

func fulfillerTuple(p authority.Principal) authz.RelationTuple {
	return authz.RelationTuple{Object: oracleObject, Relation: fulfillerRelation, Subject: principalPrefix + string(p)}
}
