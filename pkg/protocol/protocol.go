// Package protocol is the composition root. One Protocol holds every
// component, routes their events into a single journal and serializes all
// public operations.
package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mindburn-Labs/covenant/pkg/anchor"
	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/events"
	"github.com/Mindburn-Labs/covenant/pkg/finance"
	"github.com/Mindburn-Labs/covenant/pkg/notifier"
	"github.com/Mindburn-Labs/covenant/pkg/oracle"
	"github.com/Mindburn-Labs/covenant/pkg/policy"
	"github.com/Mindburn-Labs/covenant/pkg/settlement"
	"github.com/Mindburn-Labs/covenant/pkg/tranche"
	"github.com/Mindburn-Labs/covenant/pkg/veto"
)

// Config is the full deployment configuration.
type Config struct {
	Authority           authority.Config
	Settlement          settlement.Config
	InvariantExpression string
	Notifier            notifier.Config
	// ExternalTarget is resolved and installed on the oracle at startup when set.
	ExternalTarget string
}

// Deps are the infrastructure collaborators. Zero values select in-memory defaults.
type Deps struct {
	Book      finance.Book
	Health    policy.Source
	Resolver  notifier.Resolver
	Store     anchor.Store
	Persister events.Persister
	History   []events.Entry // persisted chain the journal resumes from
	Metrics   notifier.Metrics
	Sinks     []events.Sink
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Protocol is one running instance.
type Protocol struct {
	mu sync.Mutex

	authority *authority.Registry
	veto      *veto.Machine
	ledger    *tranche.Ledger
	gate      *policy.Gate
	engine    *settlement.Engine
	oracle    *oracle.Oracle
	anchors   *anchor.Registry
	journal   *events.Journal
	book      finance.Book
	logger    *slog.Logger
}

// New wires every component and replays deps.History into their state.
func New(ctx context.Context, cfg Config, deps Deps) (*Protocol, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	journal := events.NewJournal().WithClock(clock).WithLogger(logger.With("component", "journal"))
	if err := journal.Resume(deps.History); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	if deps.Persister != nil {
		journal.WithPersister(deps.Persister)
	}
	sink := events.Fanout(append([]events.Sink{journal}, deps.Sinks...))

	reg, err := authority.NewRegistry(cfg.Authority, sink)
	if err != nil {
		return nil, fmt.Errorf("authority: %w", err)
	}
	reg.WithLogger(logger.With("component", "authority"))

	machine := veto.NewMachine(reg, sink).WithClock(clock)

	health := deps.Health
	if health == nil {
		health = policy.NewStaticSource(policy.Health{Risk: 0, Compliance: 100})
	}
	gate, err := policy.NewGate(cfg.InvariantExpression, health)
	if err != nil {
		return nil, fmt.Errorf("invariants: %w", err)
	}

	book := deps.Book
	if book == nil {
		book = finance.NewMemoryBook(cfg.Settlement.Currency)
	}

	ledger := tranche.NewLedger()
	engine, err := settlement.NewEngine(cfg.Settlement, settlement.Deps{
		Authority:  reg,
		Operations: machine,
		Ledger:     ledger,
		Book:       book,
		Invariants: gate,
		Sink:       sink,
	})
	if err != nil {
		return nil, err
	}
	engine.WithClock(clock)

	n := notifier.New(cfg.Notifier)
	if deps.Metrics != nil {
		n.WithMetrics(deps.Metrics)
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = notifier.NewDirectory()
	}
	orc := oracle.New(reg, n, resolver, sink)

	anchors := anchor.NewRegistry(reg, deps.Store, sink).WithClock(clock)

	p := &Protocol{
		authority: reg,
		veto:      machine,
		ledger:    ledger,
		gate:      gate,
		engine:    engine,
		oracle:    orc,
		anchors:   anchors,
		journal:   journal,
		book:      book,
		logger:    logger.With("component", "protocol"),
	}

	if err := p.replay(ctx, deps.History); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	if cfg.ExternalTarget != "" && cfg.ExternalTarget != orc.ExternalTarget() {
		if err := orc.UpdateExternalTarget(ctx, reg.Owner(), cfg.ExternalTarget); err != nil {
			return nil, fmt.Errorf("external target %s: %w", cfg.ExternalTarget, err)
		}
	}

	p.logger.InfoContext(ctx, "protocol initialized",
		"owner", reg.Owner(),
		"sole_authority", reg.SoleAuthority(),
		"council", len(reg.Members()),
		"quorum", reg.RequiredSignatures(),
		"currency", engine.Currency(),
	)
	return p, nil
}

// Journal returns the event journal.
func (p *Protocol) Journal() *events.Journal { return p.journal }

// Book returns the balance book.
func (p *Protocol) Book() finance.Book { return p.book }

// Breaker exposes the circuit breaker of the current external target.
func (p *Protocol) Breaker() *notifier.CircuitBreaker { return p.oracle.Breaker() }

// Invariants evaluates the health invariants now.
func (p *Protocol) Invariants(ctx context.Context) policy.Decision {
	return p.gate.Passes(ctx)
}
