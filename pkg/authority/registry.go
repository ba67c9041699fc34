// Package authority tracks the privileged principals of a deployment: the
// owner, the sole authority ("seedbringer") and the veto council with its
// signature quorum.
package authority

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/Mindburn-Labs/covenant/pkg/authz"
	"github.com/Mindburn-Labs/covenant/pkg/events"
	"github.com/Mindburn-Labs/covenant/pkg/faults"
)

// Principal is an opaque, address-equivalent identity.
type Principal string

func (p Principal) String() string { return string(p) }

// Role names a privilege checked by Require.
type Role string

const (
	RoleOwner         Role = "owner"
	RoleSoleAuthority Role = "sole_authority"
	RoleCouncil       Role = "council"
)

const (
	councilObject   = "council:main"
	memberRelation  = "member"
	principalPrefix = "principal:"
)

// Config seeds a Registry.
type Config struct {
	Owner              Principal
	SoleAuthority      Principal
	Council            []Principal
	RequiredSignatures uint
	// CoupleOwner moves ownership together with the sole authority role.
	CoupleOwner bool
}

// Registry answers role checks and owns every role mutation.
type Registry struct {
	mu       sync.RWMutex
	owner    Principal
	sole     Principal
	required uint
	couple   bool
	council  *authz.Engine
	sink     events.Sink
	logger   *slog.Logger
}

// NewRegistry validates cfg and builds a registry emitting into sink.
func NewRegistry(cfg Config, sink events.Sink) (*Registry, error) {
	if isBlank(cfg.Owner) {
		return nil, faults.New(faults.CodeInvalidPrincipal, "owner is empty")
	}
	if isBlank(cfg.SoleAuthority) {
		return nil, faults.New(faults.CodeInvalidPrincipal, "sole authority is empty")
	}
	if sink == nil {
		sink = events.Discard
	}

	r := &Registry{
		owner:    cfg.Owner,
		sole:     cfg.SoleAuthority,
		required: cfg.RequiredSignatures,
		couple:   cfg.CoupleOwner,
		council:  authz.NewEngine(),
		sink:     sink,
		logger:   slog.Default().With("component", "authority"),
	}

	ctx := context.Background()
	for _, m := range cfg.Council {
		if isBlank(m) {
			return nil, faults.New(faults.CodeInvalidPrincipal, "council member is empty")
		}
		if !r.council.WriteTuple(ctx, memberTuple(m)) {
			return nil, faults.New(faults.CodeAlreadyMember, "%s listed twice", m)
		}
	}
	if r.required > uint(len(cfg.Council)) {
		return nil, faults.New(faults.CodeInvalidQuorum, "quorum %d exceeds %d members", r.required, len(cfg.Council))
	}
	return r, nil
}

// WithLogger overrides the registry logger.
func (r *Registry) WithLogger(l *slog.Logger) *Registry {
	r.logger = l
	return r
}

func (r *Registry) IsOwner(p Principal) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !isBlank(p) && p == r.owner
}

func (r *Registry) IsSoleAuthority(p Principal) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !isBlank(p) && p == r.sole
}

func (r *Registry) IsCouncilMember(p Principal) bool {
	if isBlank(p) {
		return false
	}
	return r.council.Check(context.Background(), councilObject, memberRelation, principalPrefix+string(p))
}

// Require passes when p holds at least one of roles. A single-role guard
// fails with that role's code; a multi-role guard fails with Unauthorized.
func (r *Registry) Require(p Principal, roles ...Role) error {
	for _, role := range roles {
		if r.has(p, role) {
			return nil
		}
	}
	if len(roles) == 1 {
		switch roles[0] {
		case RoleOwner:
			return faults.New(faults.CodeOnlyOwner, "%q is not the owner", p)
		case RoleSoleAuthority:
			return faults.New(faults.CodeOnlySoleAuthority, "%q is not the sole authority", p)
		case RoleCouncil:
			return faults.New(faults.CodeNotCouncilMember, "%q is not a council member", p)
		}
	}
	return faults.New(faults.CodeUnauthorized, "%q holds none of %s", p, joinRoles(roles))
}

func (r *Registry) has(p Principal, role Role) bool {
	switch role {
	case RoleOwner:
		return r.IsOwner(p)
	case RoleSoleAuthority:
		return r.IsSoleAuthority(p)
	case RoleCouncil:
		return r.IsCouncilMember(p)
	default:
		return false
	}
}

// AddCouncilMember admits p to the council. Owner only.
func (r *Registry) AddCouncilMember(ctx context.Context, caller, p Principal) error {
	if err := r.Require(caller, RoleOwner); err != nil {
		return err
	}
	if isBlank(p) {
		return faults.New(faults.CodeInvalidPrincipal, "member is empty")
	}

	r.mu.Lock()
	added := r.council.WriteTuple(ctx, memberTuple(p))
	r.mu.Unlock()
	if !added {
		return faults.New(faults.CodeAlreadyMember, "%s", p)
	}

	r.logger.InfoContext(ctx, "council member added", "principal", p)
	r.sink.Emit(ctx, events.CouncilMemberAdded{Principal: string(p)})
	return nil
}

// RemoveCouncilMember drops p from the council as long as the quorum can
// still be met afterwards. Owner only.
func (r *Registry) RemoveCouncilMember(ctx context.Context, caller, p Principal) error {
	if err := r.Require(caller, RoleOwner); err != nil {
		return err
	}

	r.mu.Lock()
	if !r.council.Check(ctx, councilObject, memberRelation, principalPrefix+string(p)) {
		r.mu.Unlock()
		return faults.New(faults.CodeNotMember, "%s", p)
	}
	remaining := uint(r.council.Count(ctx, councilObject, memberRelation)) - 1
	if remaining < r.required {
		r.mu.Unlock()
		return faults.New(faults.CodeQuorumBroken, "%d members would remain, %d signatures required", remaining, r.required)
	}
	r.council.DeleteTuple(ctx, memberTuple(p))
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "council member removed", "principal", p)
	r.sink.Emit(ctx, events.CouncilMemberRemoved{Principal: string(p)})
	return nil
}

// SetRequiredSignatures changes the council quorum. Owner only.
func (r *Registry) SetRequiredSignatures(ctx context.Context, caller Principal, n uint) error {
	if err := r.Require(caller, RoleOwner); err != nil {
		return err
	}

	r.mu.Lock()
	count := uint(r.council.Count(ctx, councilObject, memberRelation))
	if n == 0 || n > count {
		r.mu.Unlock()
		return faults.New(faults.CodeInvalidQuorum, "quorum %d with %d members", n, count)
	}
	old := r.required
	r.required = n
	r.mu.Unlock()

	r.sink.Emit(ctx, events.QuorumUpdated{Old: old, New: n})
	return nil
}

// TransferSoleAuthority hands the sole authority role to p. Only the current
// holder may call. With CoupleOwner the owner role moves as well.
func (r *Registry) TransferSoleAuthority(ctx context.Context, caller, p Principal) error {
	if err := r.Require(caller, RoleSoleAuthority); err != nil {
		return err
	}
	if isBlank(p) {
		return faults.New(faults.CodeInvalidPrincipal, "new sole authority is empty")
	}

	r.mu.Lock()
	oldSole, oldOwner := r.sole, r.owner
	r.sole = p
	if r.couple {
		r.owner = p
	}
	coupled := r.couple
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "sole authority transferred", "old", oldSole, "new", p)
	r.sink.Emit(ctx, events.SeedbringerUpdated{Old: string(oldSole), New: string(p)})
	if coupled {
		r.sink.Emit(ctx, events.OwnershipTransferred{Old: string(oldOwner), New: string(p)})
	}
	return nil
}

// TransferOwnership hands the owner role to p. Owner only.
func (r *Registry) TransferOwnership(ctx context.Context, caller, p Principal) error {
	if err := r.Require(caller, RoleOwner); err != nil {
		return err
	}
	if isBlank(p) {
		return faults.New(faults.CodeInvalidPrincipal, "new owner is empty")
	}

	r.mu.Lock()
	old := r.owner
	r.owner = p
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "ownership transferred", "old", old, "new", p)
	r.sink.Emit(ctx, events.OwnershipTransferred{Old: string(old), New: string(p)})
	return nil
}

// Replay applies a journaled role change without guards or emission.
// Events the registry does not own are ignored.
func (r *Registry) Replay(ctx context.Context, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch ev := ev.(type) {
	case events.CouncilMemberAdded:
		r.council.WriteTuple(ctx, memberTuple(Principal(ev.Principal)))
	case events.CouncilMemberRemoved:
		r.council.DeleteTuple(ctx, memberTuple(Principal(ev.Principal)))
	case events.QuorumUpdated:
		r.required = ev.New
	case events.SeedbringerUpdated:
		r.sole = Principal(ev.New)
	case events.OwnershipTransferred:
		r.owner = Principal(ev.New)
	}
}

// Members returns the council in sorted order.
func (r *Registry) Members() []Principal {
	subjects := r.council.Subjects(context.Background(), councilObject, memberRelation)
	out := make([]Principal, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, Principal(strings.TrimPrefix(s, principalPrefix)))
	}
	return out
}

func (r *Registry) RequiredSignatures() uint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.required
}

func (r *Registry) Owner() Principal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

func (r *Registry) SoleAuthority() Principal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sole
}

func memberTuple(p Principal) authz.RelationTuple {
	return authz.RelationTuple{
		Object:   councilObject,
		Relation: memberRelation,
		Subject:  principalPrefix + string(p),
	}
}

func isBlank(p Principal) bool {
	return strings.TrimSpace(string(p)) == ""
}

func joinRoles(roles []Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}
