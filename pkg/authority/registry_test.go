package authority_test

import (
	"context"
	"testing"

	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/events"
	"github.com/Mindburn-Labs/covenant/pkg/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner  authority.Principal = "0xowner"
	seed   authority.Principal = "0xseed"
	alice  authority.Principal = "0xalice"
	bob    authority.Principal = "0xbob"
	carol  authority.Principal = "0xcarol"
	mallet authority.Principal = "0xmallet"
)

func newRegistry(t *testing.T, required uint, council ...authority.Principal) (*authority.Registry, *events.Recorder) {
	t.Helper()
	rec := events.NewRecorder()
	r, err := authority.NewRegistry(authority.Config{
		Owner:              owner,
		SoleAuthority:      seed,
		Council:            council,
		RequiredSignatures: required,
	}, rec)
	require.NoError(t, err)
	return r, rec
}

func TestNewRegistry_Validation(t *testing.T) {
	_, err := authority.NewRegistry(authority.Config{SoleAuthority: seed}, nil)
	assert.ErrorIs(t, err, faults.ErrInvalidPrincipal)

	_, err = authority.NewRegistry(authority.Config{Owner: owner, SoleAuthority: seed, RequiredSignatures: 1}, nil)
	assert.ErrorIs(t, err, faults.ErrInvalidQuorum, "quorum without council")

	_, err = authority.NewRegistry(authority.Config{Owner: owner, SoleAuthority: seed, Council: []authority.Principal{alice, alice}}, nil)
	assert.ErrorIs(t, err, faults.ErrAlreadyMember)
}

func TestRoleQueries(t *testing.T) {
	r, _ := newRegistry(t, 1, alice)

	assert.True(t, r.IsOwner(owner))
	assert.False(t, r.IsOwner(seed))
	assert.True(t, r.IsSoleAuthority(seed))
	assert.True(t, r.IsCouncilMember(alice))
	assert.False(t, r.IsCouncilMember(owner))
	assert.False(t, r.IsOwner(""))
}

func TestRequire(t *testing.T) {
	r, _ := newRegistry(t, 1, alice)

	assert.NoError(t, r.Require(owner, authority.RoleOwner))
	assert.NoError(t, r.Require(seed, authority.RoleSoleAuthority, authority.RoleOwner))
	assert.NoError(t, r.Require(owner, authority.RoleSoleAuthority, authority.RoleOwner))

	assert.ErrorIs(t, r.Require(mallet, authority.RoleOwner), faults.ErrOnlyOwner)
	assert.ErrorIs(t, r.Require(owner, authority.RoleSoleAuthority), faults.ErrOnlySoleAuthority)
	assert.ErrorIs(t, r.Require(owner, authority.RoleCouncil), faults.ErrNotCouncilMember)
	assert.ErrorIs(t, r.Require(mallet, authority.RoleSoleAuthority, authority.RoleOwner), faults.ErrUnauthorized)
	assert.Equal(t, faults.KindAuthorization, faults.KindOf(r.Require(mallet, authority.RoleOwner)))
}

func TestAddCouncilMember(t *testing.T) {
	ctx := context.Background()
	r, rec := newRegistry(t, 1, alice)

	require.NoError(t, r.AddCouncilMember(ctx, owner, bob))
	assert.True(t, r.IsCouncilMember(bob))
	assert.Equal(t, events.CouncilMemberAdded{Principal: string(bob)}, rec.Last())

	assert.ErrorIs(t, r.AddCouncilMember(ctx, owner, bob), faults.ErrAlreadyMember)
	assert.ErrorIs(t, r.AddCouncilMember(ctx, alice, carol), faults.ErrOnlyOwner)
	assert.False(t, r.IsCouncilMember(carol))
	assert.Equal(t, []authority.Principal{alice, bob}, r.Members())
}

func TestRemoveCouncilMember_QuorumSafety(t *testing.T) {
	ctx := context.Background()
	r, rec := newRegistry(t, 2, alice, bob)
	before := len(rec.Events())

	err := r.RemoveCouncilMember(ctx, owner, alice)
	assert.ErrorIs(t, err, faults.ErrQuorumBroken)
	assert.Equal(t, []authority.Principal{alice, bob}, r.Members())
	assert.Equal(t, uint(2), r.RequiredSignatures())
	assert.Len(t, rec.Events(), before, "failed removal must not emit")

	require.NoError(t, r.AddCouncilMember(ctx, owner, carol))
	require.NoError(t, r.RemoveCouncilMember(ctx, owner, alice))
	assert.False(t, r.IsCouncilMember(alice))
	assert.Equal(t, events.CouncilMemberRemoved{Principal: string(alice)}, rec.Last())

	assert.ErrorIs(t, r.RemoveCouncilMember(ctx, owner, alice), faults.ErrNotMember)
	assert.ErrorIs(t, r.RemoveCouncilMember(ctx, bob, carol), faults.ErrOnlyOwner)
}

func TestSetRequiredSignatures(t *testing.T) {
	ctx := context.Background()
	r, rec := newRegistry(t, 1, alice, bob)

	assert.ErrorIs(t, r.SetRequiredSignatures(ctx, owner, 0), faults.ErrInvalidQuorum)
	assert.ErrorIs(t, r.SetRequiredSignatures(ctx, owner, 3), faults.ErrInvalidQuorum)
	assert.ErrorIs(t, r.SetRequiredSignatures(ctx, alice, 2), faults.ErrOnlyOwner)
	assert.Equal(t, uint(1), r.RequiredSignatures())

	require.NoError(t, r.SetRequiredSignatures(ctx, owner, 2))
	assert.Equal(t, uint(2), r.RequiredSignatures())
	assert.Equal(t, events.QuorumUpdated{Old: 1, New: 2}, rec.Last())
}

func TestTransferSoleAuthority(t *testing.T) {
	ctx := context.Background()
	r, rec := newRegistry(t, 0)

	assert.ErrorIs(t, r.TransferSoleAuthority(ctx, owner, alice), faults.ErrOnlySoleAuthority)
	assert.ErrorIs(t, r.TransferSoleAuthority(ctx, seed, ""), faults.ErrInvalidPrincipal)

	require.NoError(t, r.TransferSoleAuthority(ctx, seed, alice))
	assert.Equal(t, alice, r.SoleAuthority())
	assert.Equal(t, owner, r.Owner(), "owner stays put when roles are not coupled")
	assert.Equal(t, events.SeedbringerUpdated{Old: string(seed), New: string(alice)}, rec.Last())

	assert.ErrorIs(t, r.TransferSoleAuthority(ctx, seed, bob), faults.ErrOnlySoleAuthority, "old holder lost the role")
}

func TestTransferSoleAuthority_Coupled(t *testing.T) {
	ctx := context.Background()
	rec := events.NewRecorder()
	r, err := authority.NewRegistry(authority.Config{Owner: seed, SoleAuthority: seed, CoupleOwner: true}, rec)
	require.NoError(t, err)

	require.NoError(t, r.TransferSoleAuthority(ctx, seed, alice))
	assert.Equal(t, alice, r.SoleAuthority())
	assert.Equal(t, alice, r.Owner())
	assert.Equal(t, []string{"SeedbringerUpdated", "OwnershipTransferred"}, rec.Names())
}

func TestTransferOwnership(t *testing.T) {
	ctx := context.Background()
	r, rec := newRegistry(t, 0)

	assert.ErrorIs(t, r.TransferOwnership(ctx, seed, alice), faults.ErrOnlyOwner)
	require.NoError(t, r.TransferOwnership(ctx, owner, alice))
	assert.True(t, r.IsOwner(alice))
	assert.False(t, r.IsOwner(owner))
	assert.Equal(t, events.OwnershipTransferred{Old: string(owner), New: string(alice)}, rec.Last())
}
