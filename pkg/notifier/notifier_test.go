package notifier_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mindburn-Labs/covenant/pkg/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	ok, failed atomic.Int32
}

func (m *countingMetrics) RecordNotification(_ context.Context, succeeded bool, _ time.Duration) {
	if succeeded {
		m.ok.Add(1)
	} else {
		m.failed.Add(1)
	}
}

func TestNotify_Success(t *testing.T) {
	var gotTrip string
	var gotOutcome bool
	target := notifier.TargetFunc(func(_ context.Context, tripID string, outcome bool) error {
		gotTrip, gotOutcome = tripID, outcome
		return nil
	})
	metrics := &countingMetrics{}
	n := notifier.New(notifier.Config{}).WithMetrics(metrics)

	out := n.Notify(context.Background(), "0xescrow", target, "trip-1", true)
	assert.True(t, out.Succeeded)
	assert.Empty(t, out.Reason)
	assert.Equal(t, "trip-1", out.TripID)
	assert.True(t, out.LocalValue)
	assert.Equal(t, "trip-1", gotTrip)
	assert.True(t, gotOutcome)
	assert.Equal(t, int32(1), metrics.ok.Load())
}

func TestNotify_FailuresBecomeOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		target notifier.Target
		reason string
	}{
		{
			name: "revert data",
			target: notifier.TargetFunc(func(context.Context, string, bool) error {
				return &notifier.RevertError{Data: []byte{0x08, 0xc3, 0x79, 0xa0}}
			}),
			reason: "\x08\xc3\x79\xa0",
		},
		{
			name: "plain error",
			target: notifier.TargetFunc(func(context.Context, string, bool) error {
				return errors.New("escrow paused")
			}),
			reason: "escrow paused",
		},
		{
			name: "panic",
			target: notifier.TargetFunc(func(context.Context, string, bool) error {
				panic("invalid opcode")
			}),
			reason: "target panicked: invalid opcode",
		},
		{
			name:   "nil target",
			target: nil,
			reason: "no external target configured",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := notifier.New(notifier.Config{})
			out := n.Notify(context.Background(), "0xescrow", tt.target, "trip-9", false)
			assert.False(t, out.Succeeded)
			assert.Equal(t, tt.reason, string(out.Reason))
			assert.False(t, out.LocalValue)
		})
	}
}

func TestNotify_Timeout(t *testing.T) {
	target := notifier.TargetFunc(func(ctx context.Context, _ string, _ bool) error {
		<-ctx.Done()
		return ctx.Err()
	})
	n := notifier.New(notifier.Config{Timeout: 20 * time.Millisecond})

	start := time.Now()
	out := n.Notify(context.Background(), "0xescrow", target, "slow", true)
	assert.False(t, out.Succeeded)
	assert.Contains(t, string(out.Reason), "deadline exceeded")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNotify_BreakerShortCircuits(t *testing.T) {
	var calls atomic.Int32
	target := notifier.TargetFunc(func(context.Context, string, bool) error {
		calls.Add(1)
		return errors.New("down")
	})
	metrics := &countingMetrics{}
	n := notifier.New(notifier.Config{BreakerThreshold: 2, BreakerReset: time.Hour}).WithMetrics(metrics)

	for i := 0; i < 4; i++ {
		out := n.Notify(context.Background(), "0xdead", target, "t", true)
		assert.False(t, out.Succeeded)
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, notifier.BreakerOpen, n.Breaker("0xDEAD").State())
	assert.Equal(t, "circuit breaker open", string(n.Notify(context.Background(), "0xdead", target, "t", true).Reason))
	assert.Equal(t, int32(5), metrics.failed.Load())
}

func TestNotify_BreakerIsPerAddress(t *testing.T) {
	dead := notifier.TargetFunc(func(context.Context, string, bool) error { return errors.New("down") })
	var healthyCalls atomic.Int32
	healthy := notifier.TargetFunc(func(context.Context, string, bool) error {
		healthyCalls.Add(1)
		return nil
	})
	n := notifier.New(notifier.Config{BreakerThreshold: 2, BreakerReset: time.Hour})

	for i := 0; i < 3; i++ {
		n.Notify(context.Background(), "0xdead", dead, "t", true)
	}
	require.Equal(t, notifier.BreakerOpen, n.Breaker("0xdead").State())

	out := n.Notify(context.Background(), "0xgood", healthy, "t", true)
	assert.True(t, out.Succeeded, string(out.Reason))
	assert.Equal(t, int32(1), healthyCalls.Load())
	assert.Equal(t, notifier.BreakerClosed, n.Breaker("0xgood").State())
	assert.Equal(t, notifier.BreakerOpen, n.Breaker("0xdead").State())
}

func TestRevertError(t *testing.T) {
	err := &notifier.RevertError{Status: 409, Data: []byte("trip closed")}
	assert.Equal(t, "target reverted (status 409): trip closed", err.Error())

	var rv notifier.Reverter
	require.True(t, errors.As(error(err), &rv))
	assert.Equal(t, []byte("trip closed"), rv.RevertData())
}
