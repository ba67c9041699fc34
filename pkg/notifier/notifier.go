// Package notifier delivers confirmations to an external target without ever
// letting the target's failure escape.
//
// Notify is the boundary: it always returns an Outcome. Errors, panics,
// timeouts, a missing target and an open circuit all become a failed
// Outcome carrying the raw reason bytes. There are no retries and no
// background queue; the call completes or fails within Notify.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Outcome is the recorded result of one delivery attempt.
type Outcome struct {
	TripID     string        `json:"trip_id"`
	LocalValue bool          `json:"local_value"`
	Succeeded  bool          `json:"succeeded"`
	Reason     []byte        `json:"reason,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Metrics receives one observation per delivery attempt.
type Metrics interface {
	RecordNotification(ctx context.Context, succeeded bool, d time.Duration)
}

// Config bounds a delivery attempt.
type Config struct {
	Timeout          time.Duration
	BreakerThreshold int
	BreakerReset     time.Duration
}

// DefaultConfig is used for zero fields.
var DefaultConfig = Config{
	Timeout:          5 * time.Second,
	BreakerThreshold: 5,
	BreakerReset:     30 * time.Second,
}

var (
	reasonNoTarget    = []byte("no external target configured")
	reasonCircuitOpen = []byte("circuit breaker open")
)

// Notifier wraps calls to a Target. Each target address gets its own
// circuit breaker, so a failing target never blocks its replacement.
type Notifier struct {
	timeout   time.Duration
	threshold int
	reset     time.Duration
	clock     func() time.Time
	metrics   Metrics
	logger    *slog.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func New(cfg Config) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = DefaultConfig.BreakerThreshold
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = DefaultConfig.BreakerReset
	}
	return &Notifier{
		timeout:   cfg.Timeout,
		threshold: cfg.BreakerThreshold,
		reset:     cfg.BreakerReset,
		clock:     time.Now,
		logger:    slog.Default().With("component", "notifier"),
		breakers:  make(map[string]*CircuitBreaker),
	}
}

// WithMetrics attaches a metrics recorder.
func (n *Notifier) WithMetrics(m Metrics) *Notifier {
	n.metrics = m
	return n
}

// WithClock sets the clock handed to breakers created after this call.
func (n *Notifier) WithClock(clock func() time.Time) *Notifier {
	n.clock = clock
	return n
}

// Breaker returns the circuit breaker guarding address, creating a closed
// one on first use. Addresses compare case-insensitively.
func (n *Notifier) Breaker(address string) *CircuitBreaker {
	key := strings.ToLower(strings.TrimSpace(address))
	n.mu.Lock()
	defer n.mu.Unlock()
	cb, ok := n.breakers[key]
	if !ok {
		cb = NewCircuitBreaker(key, n.threshold, n.reset).WithClock(n.clock)
		n.breakers[key] = cb
	}
	return cb
}

// Notify calls target.ReceiveConfirmation(tripID, value) through the breaker
// for address and reports what happened. It never fails.
func (n *Notifier) Notify(ctx context.Context, address string, target Target, tripID string, value bool) Outcome {
	start := time.Now()
	out := Outcome{TripID: tripID, LocalValue: value}

	switch {
	case target == nil:
		out.Reason = reasonNoTarget
	default:
		cb := n.Breaker(address)
		if !cb.Allow() {
			out.Reason = reasonCircuitOpen
			break
		}
		if err := n.call(ctx, target, tripID, value); err != nil {
			cb.Failure()
			out.Reason = reasonBytes(err)
		} else {
			cb.Success()
			out.Succeeded = true
		}
	}
	out.Duration = time.Since(start)

	if out.Succeeded {
		n.logger.DebugContext(ctx, "external notified", "trip_id", tripID, "duration", out.Duration)
	} else {
		n.logger.WarnContext(ctx, "external notification failed", "trip_id", tripID, "target", address, "reason", string(out.Reason))
	}
	if n.metrics != nil {
		n.metrics.RecordNotification(ctx, out.Succeeded, out.Duration)
	}
	return out
}

// call runs the target under the per-call timeout and converts a panic
// into an error. The result channel is buffered so a target that ignores
// cancellation can still finish and exit.
func (n *Notifier) call(ctx context.Context, target Target, tripID string, value bool) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("target panicked: %v", r)
			}
		}()
		done <- target.ReceiveConfirmation(ctx, tripID, value)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	}
}

func reasonBytes(err error) []byte {
	var rv Reverter
	if errors.As(err, &rv) {
		if data := rv.RevertData(); len(data) > 0 {
			return data
		}
	}
	return []byte(err.Error())
}
