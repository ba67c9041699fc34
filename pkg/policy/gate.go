// Package policy decides whether system health invariants currently hold.
//
// The thresholds are not derived by the protocol. They are an injected CEL
// expression evaluated over a health snapshot supplied by a Source, for
// example "health.risk <= 10 && health.compliance >= 45".
package policy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
)

// DefaultExpression is used when a deployment does not configure one.
const DefaultExpression = "health.risk <= 10 && health.compliance >= 45"

// Health is a snapshot of the scores the invariants are checked against.
type Health struct {
	Risk       int64 `json:"risk"`
	Compliance int64 `json:"compliance"`
}

func (h Health) activation() map[string]any {
	return map[string]any{
		"health": map[string]any{
			"risk":       h.Risk,
			"compliance": h.Compliance,
		},
	}
}

// Source supplies the current health snapshot.
type Source interface {
	Health(ctx context.Context) (Health, error)
}

// Decision is the result of one evaluation.
type Decision struct {
	Passed bool   `json:"passed"`
	Health Health `json:"health"`
	Reason string `json:"reason,omitempty"`
}

// Gate evaluates a compiled invariant expression.
type Gate struct {
	expr   string
	prg    cel.Program
	source Source
	logger *slog.Logger
}

// NewGate compiles expr. An empty expr selects DefaultExpression.
func NewGate(expr string, source Source) (*Gate, error) {
	if expr == "" {
		expr = DefaultExpression
	}
	if source == nil {
		return nil, fmt.Errorf("policy: nil health source")
	}

	env, err := cel.NewEnv(
		cel.Variable("health", cel.MapType(cel.StringType, cel.IntType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("compile %q: result is %s, want bool", expr, ast.OutputType())
	}
	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}

	return &Gate{
		expr:   expr,
		prg:    prg,
		source: source,
		logger: slog.Default().With("component", "policy"),
	}, nil
}

func (g *Gate) Expression() string {
	return g.expr
}

// Evaluate fetches the snapshot and runs the expression.
func (g *Gate) Evaluate(ctx context.Context) (Decision, error) {
	h, err := g.source.Health(ctx)
	if err != nil {
		return Decision{Reason: "health source unavailable"}, fmt.Errorf("health source: %w", err)
	}
	out, _, err := g.prg.ContextEval(ctx, h.activation())
	if err != nil {
		return Decision{Health: h, Reason: "evaluation failed"}, fmt.Errorf("eval: %w", err)
	}
	passed, ok := out.Value().(bool)
	if !ok {
		return Decision{Health: h, Reason: "non-boolean result"}, fmt.Errorf("result not bool")
	}
	d := Decision{Passed: passed, Health: h}
	if !passed {
		d.Reason = "invariants violated"
	}
	return d, nil
}

// Passes is the fail-closed form of Evaluate: any error counts as a failure.
func (g *Gate) Passes(ctx context.Context) Decision {
	d, err := g.Evaluate(ctx)
	if err != nil {
		g.logger.WarnContext(ctx, "invariant evaluation failed closed", "error", err)
		d.Passed = false
	}
	return d
}
