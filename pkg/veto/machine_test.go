package veto_test

import (
	"context"
	"testing"
	"time"

	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/events"
	"github.com/Mindburn-Labs/covenant/pkg/faults"
	"github.com/Mindburn-Labs/covenant/pkg/veto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner    authority.Principal = "0xowner"
	seed     authority.Principal = "0xseed"
	member   authority.Principal = "0xmember"
	member2  authority.Principal = "0xmember2"
	outsider authority.Principal = "0xoutsider"
)

func setup(t *testing.T) (*veto.Machine, *events.Recorder) {
	t.Helper()
	reg, err := authority.NewRegistry(authority.Config{
		Owner:              owner,
		SoleAuthority:      seed,
		Council:            []authority.Principal{member, member2},
		RequiredSignatures: 1,
	}, nil)
	require.NoError(t, err)

	rec := events.NewRecorder()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := veto.NewMachine(reg, rec).WithClock(func() time.Time { return fixed })
	return m, rec
}

func TestScenario_SuspendAndResolve(t *testing.T) {
	ctx := context.Background()
	m, rec := setup(t)

	assert.True(t, m.OperationsAllowed())

	id, err := m.InitiateVeto(ctx, member, veto.Suspended, "audit")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
	assert.Equal(t, veto.Suspended, m.CurrentState())
	assert.False(t, m.OperationsAllowed())
	assert.False(t, m.IsActiveState())
	assert.Equal(t, []string{"StateChanged", "VetoInitiated"}, rec.Names())

	require.NoError(t, m.ResolveVeto(ctx, member2, id))
	assert.Equal(t, veto.Active, m.CurrentState())
	assert.True(t, m.OperationsAllowed())

	r, err := m.Record(id)
	require.NoError(t, err)
	assert.True(t, r.Resolved)
	assert.Equal(t, member2, r.Resolver)
	assert.Equal(t, member, r.Initiator)
	assert.Equal(t, veto.Active, r.From)
	assert.Equal(t, veto.Suspended, r.To)
	assert.Equal(t, events.VetoResolved{ID: 0, By: string(member2)}, rec.Last())
}

func TestNonCouncilCannotVeto(t *testing.T) {
	ctx := context.Background()
	m, rec := setup(t)

	for _, p := range []authority.Principal{outsider, owner, seed} {
		_, err := m.InitiateVeto(ctx, p, veto.Emergency, "because")
		assert.ErrorIs(t, err, faults.ErrNotCouncilMember)
	}
	assert.Equal(t, veto.Active, m.CurrentState())
	assert.Zero(t, m.RecordCount())

	id, err := m.InitiateVeto(ctx, member, veto.Emergency, "breach")
	require.NoError(t, err)
	assert.ErrorIs(t, m.ResolveVeto(ctx, outsider, id), faults.ErrNotCouncilMember)
	assert.Equal(t, veto.Emergency, m.CurrentState())
	assert.Len(t, rec.Events(), 2)
}

func TestInitiateVeto_Validation(t *testing.T) {
	ctx := context.Background()
	m, _ := setup(t)

	_, err := m.InitiateVeto(ctx, member, veto.Active, "x")
	assert.ErrorIs(t, err, faults.ErrInvalidTarget)

	_, err = m.InitiateVeto(ctx, member, veto.State("PAUSED"), "x")
	assert.ErrorIs(t, err, faults.ErrInvalidTarget)

	_, err = m.InitiateVeto(ctx, member, veto.Suspended, "   ")
	assert.ErrorIs(t, err, faults.ErrReasonRequired)

	assert.Zero(t, m.RecordCount())
	assert.Equal(t, veto.Active, m.CurrentState())
}

func TestInitiateVeto_OnlyOneOpen(t *testing.T) {
	ctx := context.Background()
	m, _ := setup(t)

	_, err := m.InitiateVeto(ctx, member, veto.Suspended, "first")
	require.NoError(t, err)
	_, err = m.InitiateVeto(ctx, member2, veto.Emergency, "second")
	assert.ErrorIs(t, err, faults.ErrVetoAlreadyOpen)
	assert.Equal(t, 1, m.RecordCount())
	assert.Equal(t, veto.Suspended, m.CurrentState())
}

func TestResolveVeto_NotFoundOrInactive(t *testing.T) {
	ctx := context.Background()
	m, _ := setup(t)

	assert.ErrorIs(t, m.ResolveVeto(ctx, member, 0), faults.ErrNotFoundOrInactive)

	id, err := m.InitiateVeto(ctx, member, veto.Suspended, "audit")
	require.NoError(t, err)
	assert.ErrorIs(t, m.ResolveVeto(ctx, member, id+1), faults.ErrNotFoundOrInactive)
	require.NoError(t, m.ResolveVeto(ctx, member, id))
	assert.ErrorIs(t, m.ResolveVeto(ctx, member, id), faults.ErrNotFoundOrInactive, "replay fails deterministically")
}

func TestEmergencyOverride(t *testing.T) {
	ctx := context.Background()
	m, rec := setup(t)

	id, err := m.InitiateVeto(ctx, member, veto.Emergency, "exploit")
	require.NoError(t, err)

	assert.ErrorIs(t, m.EmergencyOverride(ctx, member, "no"), faults.ErrOnlyOwner)
	assert.Equal(t, veto.Emergency, m.CurrentState())

	rec.Reset()
	require.NoError(t, m.EmergencyOverride(ctx, owner, "patched"))
	assert.Equal(t, veto.Active, m.CurrentState())
	assert.Equal(t, events.StateChanged{From: "EMERGENCY", To: "ACTIVE"}, rec.Events()[0])

	r, err := m.Record(id)
	require.NoError(t, err)
	assert.True(t, r.Resolved)
	assert.Equal(t, owner, r.Resolver)
	_, open := m.Open()
	assert.False(t, open)

	// Override while already active still emits.
	rec.Reset()
	require.NoError(t, m.EmergencyOverride(ctx, owner, "drill"))
	assert.Equal(t, []string{"StateChanged"}, rec.Names())
}

func TestRecord_IndexOutOfBounds(t *testing.T) {
	m, _ := setup(t)
	_, err := m.Record(0)
	assert.ErrorIs(t, err, faults.ErrIndexOutOfBounds)
}

func TestParseState(t *testing.T) {
	s, err := veto.ParseState(" suspended ")
	require.NoError(t, err)
	assert.Equal(t, veto.Suspended, s)

	_, err = veto.ParseState("paused")
	assert.ErrorIs(t, err, faults.ErrInvalidTarget)
}
