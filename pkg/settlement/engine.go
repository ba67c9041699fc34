// Package settlement orchestrates tranche funding and bond redemption on top
// of the tranche ledger and the balance book.
//
// Every operation checks authority first, then the veto gate, then its
// inputs, and only then mutates. A failure leaves no partial state behind.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/events"
	"github.com/Mindburn-Labs/covenant/pkg/faults"
	"github.com/Mindburn-Labs/covenant/pkg/finance"
	"github.com/Mindburn-Labs/covenant/pkg/policy"
	"github.com/Mindburn-Labs/covenant/pkg/tranche"
)

// Authorizer is the role guard consulted at the top of each operation.
type Authorizer interface {
	Require(p authority.Principal, roles ...authority.Role) error
}

// OperationsGate reports whether mutating operations may run.
type OperationsGate interface {
	OperationsAllowed() bool
}

// InvariantGate decides whether the health invariants currently hold.
type InvariantGate interface {
	Passes(ctx context.Context) policy.Decision
}

// Accounts names the balance-book accounts the engine moves funds between.
type Accounts struct {
	Escrow     string `json:"escrow" yaml:"escrow"`
	Recipient  string `json:"recipient" yaml:"recipient"`
	BondEscrow string `json:"bond_escrow" yaml:"bond_escrow"`
	Foundation string `json:"foundation" yaml:"foundation"`
}

// Config holds the economic parameters of a deployment.
type Config struct {
	Currency       string
	Accounts       Accounts
	FeeBps         finance.BasisPoints
	MinimumDeposit int64
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Authority  Authorizer
	Operations OperationsGate
	Ledger     *tranche.Ledger
	Book       finance.Book
	Invariants InvariantGate
	Sink       events.Sink
}

// Engine is the settlement engine.
type Engine struct {
	mu          sync.Mutex
	cfg         Config
	auth        Authorizer
	ops         OperationsGate
	ledger      *tranche.Ledger
	book        finance.Book
	invariants  InvariantGate
	sink        events.Sink
	investments []Investment
	clock       func() time.Time
	logger      *slog.Logger
}

// NewEngine validates cfg and wires the collaborators.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.FeeBps.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinimumDeposit < 0 {
		return nil, fmt.Errorf("settlement: negative minimum deposit %d", cfg.MinimumDeposit)
	}
	a := cfg.Accounts
	for name, v := range map[string]string{
		"escrow": a.Escrow, "recipient": a.Recipient, "bond_escrow": a.BondEscrow, "foundation": a.Foundation,
	} {
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("settlement: %s account is empty", name)
		}
	}
	if deps.Authority == nil || deps.Operations == nil || deps.Book == nil || deps.Invariants == nil {
		return nil, fmt.Errorf("settlement: missing collaborator")
	}
	if deps.Ledger == nil {
		deps.Ledger = tranche.NewLedger()
	}
	if deps.Sink == nil {
		deps.Sink = events.Discard
	}
	cfg.Currency = finance.NewMoney(0, cfg.Currency).Currency

	return &Engine{
		cfg:        cfg,
		auth:       deps.Authority,
		ops:        deps.Operations,
		ledger:     deps.Ledger,
		book:       deps.Book,
		invariants: deps.Invariants,
		sink:       deps.Sink,
		clock:      time.Now,
		logger:     slog.Default().With("component", "settlement"),
	}, nil
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

func (e *Engine) requireActive() error {
	if !e.ops.OperationsAllowed() {
		return faults.ErrOperationsSuspended
	}
	return nil
}

func (e *Engine) money(amount int64) finance.Money {
	return finance.NewMoney(amount, e.cfg.Currency)
}

// CreateTranche appends a tranche. Owner only.
func (e *Engine) CreateTranche(ctx context.Context, caller authority.Principal, amount int64, commitment tranche.Hash) (tranche.Tranche, error) {
	if err := e.auth.Require(caller, authority.RoleOwner); err != nil {
		return tranche.Tranche{}, err
	}
	if err := e.requireActive(); err != nil {
		return tranche.Tranche{}, err
	}
	t, err := e.ledger.Append(amount, commitment)
	if err != nil {
		return tranche.Tranche{}, err
	}

	e.logger.InfoContext(ctx, "tranche created", "index", t.Index, "amount", amount)
	e.sink.Emit(ctx, events.TrancheCreated{Index: t.Index, Amount: t.Amount, Commitment: t.Commitment.String()})
	return t, nil
}

// CreateTranches appends a batch, all or nothing. Owner only.
func (e *Engine) CreateTranches(ctx context.Context, caller authority.Principal, amounts []int64, commitments []tranche.Hash) ([]tranche.Tranche, error) {
	if err := e.auth.Require(caller, authority.RoleOwner); err != nil {
		return nil, err
	}
	if err := e.requireActive(); err != nil {
		return nil, err
	}
	created, err := e.ledger.AppendAll(amounts, commitments)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "tranches created", "count", len(created))
	for _, t := range created {
		e.sink.Emit(ctx, events.TrancheCreated{Index: t.Index, Amount: t.Amount, Commitment: t.Commitment.String()})
	}
	return created, nil
}

// VerifyEthicalCompliance records the compliance verdict for tranche i.
// Sole authority or owner. Vetoed tranches can no longer be verified.
func (e *Engine) VerifyEthicalCompliance(ctx context.Context, caller authority.Principal, i uint64, compliant bool) (tranche.Tranche, error) {
	if err := e.auth.Require(caller, authority.RoleSoleAuthority, authority.RoleOwner); err != nil {
		return tranche.Tranche{}, err
	}
	t, err := e.ledger.Update(i, func(t *tranche.Tranche) error {
		if t.Vetoed {
			return faults.New(faults.CodeTrancheVetoed, "tranche %d", t.Index)
		}
		t.EthicallyCompliant = compliant
		return nil
	})
	if err != nil {
		return tranche.Tranche{}, err
	}

	e.sink.Emit(ctx, events.EthicalComplianceVerified{Index: i, Compliant: compliant})
	return t, nil
}

// VetoTranche permanently blocks tranche i. Sole authority only.
func (e *Engine) VetoTranche(ctx context.Context, caller authority.Principal, i uint64) (tranche.Tranche, error) {
	if err := e.auth.Require(caller, authority.RoleSoleAuthority); err != nil {
		return tranche.Tranche{}, err
	}
	t, err := e.ledger.Update(i, func(t *tranche.Tranche) error {
		if t.Vetoed {
			return faults.New(faults.CodeTrancheVetoed, "tranche %d already vetoed", t.Index)
		}
		t.Vetoed = true
		return nil
	})
	if err != nil {
		return tranche.Tranche{}, err
	}

	e.logger.WarnContext(ctx, "tranche vetoed", "index", i, "by", caller)
	e.sink.Emit(ctx, events.TrancheVetoed{Index: i, By: string(caller)})
	return t, nil
}

// ReleaseTranche pays tranche i from escrow to the recipient when it is
// compliant, not vetoed, unreleased and proof matches its commitment.
// Sole authority or owner. A failed transfer leaves the tranche unreleased.
func (e *Engine) ReleaseTranche(ctx context.Context, caller authority.Principal, i uint64, proof tranche.Hash) (tranche.Tranche, error) {
	if err := e.auth.Require(caller, authority.RoleSoleAuthority, authority.RoleOwner); err != nil {
		return tranche.Tranche{}, err
	}
	if err := e.requireActive(); err != nil {
		return tranche.Tranche{}, err
	}
	t, err := e.ledger.Update(i, func(t *tranche.Tranche) error {
		if err := t.CheckRelease(proof); err != nil {
			return err
		}
		if err := e.book.Transfer(ctx, e.cfg.Accounts.Escrow, e.cfg.Accounts.Recipient, e.money(t.Amount)); err != nil {
			return fmt.Errorf("release tranche %d: %w", t.Index, err)
		}
		t.Released = true
		return nil
	})
	if err != nil {
		return tranche.Tranche{}, err
	}

	e.logger.InfoContext(ctx, "tranche released", "index", i, "amount", t.Amount, "recipient", e.cfg.Accounts.Recipient)
	e.sink.Emit(ctx, events.TrancheReleased{Index: i, Amount: t.Amount, Recipient: e.cfg.Accounts.Recipient})
	return t, nil
}

func (e *Engine) Tranche(i uint64) (tranche.Tranche, error) {
	return e.ledger.Get(i)
}

func (e *Engine) TrancheCount() int {
	return e.ledger.Len()
}

func (e *Engine) Tranches() []tranche.Tranche {
	return e.ledger.All()
}

// Accounts returns the configured accounts.
func (e *Engine) Accounts() Accounts {
	return e.cfg.Accounts
}

// Currency returns the settlement currency.
func (e *Engine) Currency() string {
	return e.cfg.Currency
}
