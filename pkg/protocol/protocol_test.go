package protocol_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/config"
	"github.com/Mindburn-Labs/covenant/pkg/events"
	"github.com/Mindburn-Labs/covenant/pkg/faults"
	"github.com/Mindburn-Labs/covenant/pkg/finance"
	"github.com/Mindburn-Labs/covenant/pkg/notifier"
	"github.com/Mindburn-Labs/covenant/pkg/policy"
	"github.com/Mindburn-Labs/covenant/pkg/protocol"
	"github.com/Mindburn-Labs/covenant/pkg/settlement"
	"github.com/Mindburn-Labs/covenant/pkg/tranche"
	"github.com/Mindburn-Labs/covenant/pkg/veto"
)

const (
	owner = authority.Principal("owner")
	seed  = authority.Principal("seed")
	c1    = authority.Principal("c1")
)

func testConfig() protocol.Config {
	return protocol.Config{
		Authority: authority.Config{
			Owner:              owner,
			SoleAuthority:      seed,
			Council:            []authority.Principal{c1, "c2"},
			RequiredSignatures: 1,
		},
		Settlement: settlement.Config{
			Currency: "USD",
			Accounts: settlement.Accounts{
				Escrow:     "escrow",
				Recipient:  "recipient",
				BondEscrow: "bond-escrow",
				Foundation: "foundation",
			},
			FeeBps:         500,
			MinimumDeposit: 100,
		},
	}
}

func newProtocol(t *testing.T, deps protocol.Deps) *protocol.Protocol {
	t.Helper()
	p, err := protocol.New(context.Background(), testConfig(), deps)
	require.NoError(t, err)
	return p
}

func usd(v int64) finance.Money { return finance.NewMoney(v, "USD") }

func TestProtocol_TrancheLifecycle(t *testing.T) {
	ctx := context.Background()
	rec := events.NewRecorder()
	p := newProtocol(t, protocol.Deps{Sinks: []events.Sink{rec}})
	require.NoError(t, p.Book().Credit(ctx, "escrow", usd(1000)))

	commitment := tranche.Commit("bridge foundations poured")
	tr, err := p.CreateTranche(ctx, owner, 400, commitment)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tr.Index)

	_, err = p.VerifyEthicalCompliance(ctx, seed, 0, true)
	require.NoError(t, err)

	_, err = p.ReleaseTranche(ctx, seed, 0, tranche.Commit("something else"))
	assert.True(t, errors.Is(err, faults.ErrProofMismatch))

	tr, err = p.ReleaseTranche(ctx, seed, 0, commitment)
	require.NoError(t, err)
	assert.True(t, tr.Released)

	_, err = p.ReleaseTranche(ctx, seed, 0, commitment)
	assert.True(t, errors.Is(err, faults.ErrAlreadyReleased))

	bal, err := p.Book().Balance(ctx, "recipient")
	require.NoError(t, err)
	assert.Equal(t, int64(400), bal.AmountMinor)

	assert.Equal(t, []string{"TrancheCreated", "EthicalComplianceVerified", "TrancheReleased"}, rec.Names())
	assert.Equal(t, 3, p.Journal().Len())
	assert.NoError(t, p.Journal().Verify())
}

func TestProtocol_VetoSuspendsOperations(t *testing.T) {
	ctx := context.Background()
	p := newProtocol(t, protocol.Deps{})

	id, err := p.InitiateVeto(ctx, c1, veto.Suspended, "audit pending")
	require.NoError(t, err)
	assert.False(t, p.OperationsAllowed())

	_, err = p.CreateTranche(ctx, owner, 10, tranche.Commit("m"))
	assert.True(t, errors.Is(err, faults.ErrOperationsSuspended))
	assert.Equal(t, 0, p.TrancheCount())

	require.NoError(t, p.ResolveVeto(ctx, c1, id))
	assert.Equal(t, veto.Active, p.VetoState())

	_, err = p.CreateTranche(ctx, owner, 10, tranche.Commit("m"))
	assert.NoError(t, err)

	rec, err := p.VetoRecord(id)
	require.NoError(t, err)
	assert.True(t, rec.Resolved)
	assert.Equal(t, c1, rec.Resolver)
}

func TestProtocol_BondRedemption(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	p := newProtocol(t, protocol.Deps{Clock: clock})
	require.NoError(t, p.Book().Credit(ctx, "investor", usd(1000)))

	inv, err := p.Deposit(ctx, "investor", 1000, time.Hour)
	require.NoError(t, err)

	_, err = p.Redeem(ctx, "investor", inv.ID)
	assert.True(t, errors.Is(err, faults.ErrNotMatured))

	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()

	red, err := p.Redeem(ctx, "investor", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(950), red.Payout)
	assert.Equal(t, int64(50), red.Fee)

	got, err := p.Investment(inv.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestProtocol_RedemptionRedirectedWhenUnhealthy(t *testing.T) {
	ctx := context.Background()
	health := policy.NewStaticSource(policy.Health{Risk: 50, Compliance: 10})
	p := newProtocol(t, protocol.Deps{Health: health})
	require.NoError(t, p.Book().Credit(ctx, "investor", usd(1000)))

	inv, err := p.Deposit(ctx, "investor", 1000, 0)
	require.NoError(t, err)
	assert.False(t, p.Invariants(ctx).Passed)

	red, err := p.Redeem(ctx, "investor", inv.ID)
	require.NoError(t, err)
	assert.True(t, red.Redirected)

	bal, err := p.Book().Balance(ctx, "foundation")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.AmountMinor)
}

func TestProtocol_OracleSurvivesFailingTarget(t *testing.T) {
	ctx := context.Background()
	dir := notifier.NewDirectory()
	dir.Register("0xescrow", notifier.TargetFunc(func(context.Context, string, bool) error {
		panic("target exploded")
	}))

	cfg := testConfig()
	cfg.ExternalTarget = "0xescrow"
	p, err := protocol.New(ctx, cfg, protocol.Deps{Resolver: dir})
	require.NoError(t, err)
	assert.Equal(t, "0xescrow", p.ExternalTarget())

	f, err := p.FulfillSafePassage(ctx, owner, "trip-1", true)
	require.NoError(t, err)
	assert.False(t, f.Outcome.Succeeded)

	v, ok := p.Confirmation("trip-1")
	assert.True(t, ok)
	assert.True(t, v)
}

func TestProtocol_UnknownExternalTargetFailsStartup(t *testing.T) {
	cfg := testConfig()
	cfg.ExternalTarget = "0xnowhere"
	_, err := protocol.New(context.Background(), cfg, protocol.Deps{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrNotAContract))
}

func TestProtocol_ConcurrentReleaseHappensOnce(t *testing.T) {
	ctx := context.Background()
	p := newProtocol(t, protocol.Deps{})
	require.NoError(t, p.Book().Credit(ctx, "escrow", usd(100)))

	commitment := tranche.Commit("m")
	_, err := p.CreateTranche(ctx, owner, 100, commitment)
	require.NoError(t, err)
	_, err = p.VerifyEthicalCompliance(ctx, owner, 0, true)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.ReleaseTranche(ctx, seed, 0, commitment); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	bal, err := p.Book().Balance(ctx, "recipient")
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal.AmountMinor)
}

func TestProtocol_AnchorWithoutStore(t *testing.T) {
	ctx := context.Background()
	p := newProtocol(t, protocol.Deps{})

	_, err := p.PublishDocument(ctx, owner, []byte("charter"))
	assert.Error(t, err)

	a, err := p.AnchorDocument(ctx, seed, "sha256:abc", "0x01")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), a.Sequence)
	assert.True(t, p.VerifyAnchor("sha256:abc", "0x01"))
}

func TestConfigFromProfile(t *testing.T) {
	prof := config.DefaultProfile()
	prof.Council = []string{"owner", "x"}
	prof.Notifier.Target = "0xescrow"

	cfg := protocol.ConfigFromProfile(prof)
	assert.Equal(t, authority.Principal("owner"), cfg.Authority.Owner)
	assert.Equal(t, []authority.Principal{"owner", "x"}, cfg.Authority.Council)
	assert.Equal(t, finance.BasisPoints(500), cfg.Settlement.FeeBps)
	assert.Equal(t, "escrow", cfg.Settlement.Accounts.Escrow)
	assert.Equal(t, "0xescrow", cfg.ExternalTarget)

	p, err := protocol.New(context.Background(), protocol.ConfigFromProfile(config.DefaultProfile()), protocol.Deps{})
	require.NoError(t, err)
	assert.Equal(t, authority.Principal("owner"), p.Roles().Owner)
}

func TestProtocol_RestartReplaysJournal(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	book := finance.NewMemoryBook("USD")
	dir := notifier.NewDirectory()
	dir.Register("0xescrow", notifier.TargetFunc(func(context.Context, string, bool) error { return nil }))
	cfg := testConfig()
	cfg.ExternalTarget = "0xescrow"

	first, err := protocol.New(ctx, cfg, protocol.Deps{Book: book, Resolver: dir, Clock: clock})
	require.NoError(t, err)
	require.NoError(t, book.Credit(ctx, "escrow", usd(1000)))
	require.NoError(t, book.Credit(ctx, "investor", usd(500)))

	released := tranche.Commit("foundations poured")
	_, err = first.CreateTranche(ctx, owner, 400, released)
	require.NoError(t, err)
	_, err = first.VerifyEthicalCompliance(ctx, seed, 0, true)
	require.NoError(t, err)
	_, err = first.ReleaseTranche(ctx, seed, 0, released)
	require.NoError(t, err)
	_, err = first.CreateTranche(ctx, owner, 300, tranche.Commit("roof"))
	require.NoError(t, err)
	_, err = first.VetoTranche(ctx, seed, 1)
	require.NoError(t, err)

	require.NoError(t, first.AddCouncilMember(ctx, owner, "c3"))
	require.NoError(t, first.SetRequiredSignatures(ctx, owner, 2))
	require.NoError(t, first.AuthorizeFulfiller(ctx, owner, "bot"))
	_, err = first.FulfillSafePassage(ctx, "bot", "trip-1", true)
	require.NoError(t, err)
	inv, err := first.Deposit(ctx, "investor", 500, time.Hour)
	require.NoError(t, err)
	_, err = first.AnchorDocument(ctx, owner, "sha256:charter", "0x01")
	require.NoError(t, err)
	vetoID, err := first.InitiateVeto(ctx, c1, veto.Suspended, "audit pending")
	require.NoError(t, err)

	history := first.Journal().Entries()
	second, err := protocol.New(ctx, cfg, protocol.Deps{Book: book, Resolver: dir, Clock: clock, History: history})
	require.NoError(t, err)
	assert.Equal(t, len(history), second.Journal().Len(), "restart must not journal anything new")

	assert.Equal(t, veto.Suspended, second.VetoState())
	open, ok := second.OpenVeto()
	require.True(t, ok)
	assert.Equal(t, vetoID, open.ID)
	assert.Equal(t, c1, open.Initiator)

	roles := second.Roles()
	assert.Contains(t, roles.Council, authority.Principal("c3"))
	assert.Equal(t, uint(2), roles.RequiredSignatures)
	assert.Equal(t, "0xescrow", second.ExternalTarget())
	v, ok := second.Confirmation("trip-1")
	assert.True(t, ok)
	assert.True(t, v)
	assert.True(t, second.VerifyAnchor("sha256:charter", "0x01"))

	require.Equal(t, 2, second.TrancheCount())
	t1, err := second.Tranche(1)
	require.NoError(t, err)
	assert.True(t, t1.Vetoed)

	require.NoError(t, second.ResolveVeto(ctx, c1, vetoID))
	_, err = second.ReleaseTranche(ctx, seed, 0, released)
	assert.True(t, errors.Is(err, faults.ErrAlreadyReleased))
	tr, err := second.CreateTranche(ctx, owner, 10, tranche.Commit("fence"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), tr.Index)

	escrow, err := book.Balance(ctx, "escrow")
	require.NoError(t, err)
	assert.Equal(t, int64(600), escrow.AmountMinor)

	got, err := second.Investment(inv.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, int64(500), got.Amount)
	assert.True(t, got.DepositedAt.Equal(inv.DepositedAt))

	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()
	red, err := second.Redeem(ctx, "investor", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(475), red.Payout)
	_, err = second.Redeem(ctx, "investor", inv.ID)
	assert.True(t, errors.Is(err, faults.ErrNotActive))
	assert.NoError(t, second.Journal().Verify())
}

func TestProtocol_RestartRejectsInconsistentHistory(t *testing.T) {
	ctx := context.Background()
	j := events.NewJournal()
	_, err := j.Append(ctx, events.TrancheCreated{Index: 3, Amount: 10, Commitment: tranche.Commit("m").String()})
	require.NoError(t, err)

	_, err = protocol.New(ctx, testConfig(), protocol.Deps{History: j.Entries()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of order")
}
