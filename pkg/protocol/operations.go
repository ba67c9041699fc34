package protocol

import (
	"context"
	"time"

	"github.com/Mindburn-Labs/covenant/pkg/anchor"
	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/oracle"
	"github.com/Mindburn-Labs/covenant/pkg/settlement"
	"github.com/Mindburn-Labs/covenant/pkg/tranche"
	"github.com/Mindburn-Labs/covenant/pkg/veto"
)

// Every method below holds the sequencer lock for its whole duration.

// Authority

func (p *Protocol) AddCouncilMember(ctx context.Context, caller, member authority.Principal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authority.AddCouncilMember(ctx, caller, member)
}

func (p *Protocol) RemoveCouncilMember(ctx context.Context, caller, member authority.Principal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authority.RemoveCouncilMember(ctx, caller, member)
}

func (p *Protocol) SetRequiredSignatures(ctx context.Context, caller authority.Principal, n uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authority.SetRequiredSignatures(ctx, caller, n)
}

func (p *Protocol) TransferSoleAuthority(ctx context.Context, caller, next authority.Principal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authority.TransferSoleAuthority(ctx, caller, next)
}

func (p *Protocol) TransferOwnership(ctx context.Context, caller, next authority.Principal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authority.TransferOwnership(ctx, caller, next)
}

// Roles is a snapshot of the authority registry.
type Roles struct {
	Owner              authority.Principal   `json:"owner"`
	SoleAuthority      authority.Principal   `json:"sole_authority"`
	Council            []authority.Principal `json:"council"`
	RequiredSignatures uint                  `json:"required_signatures"`
}

func (p *Protocol) Roles() Roles {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Roles{
		Owner:              p.authority.Owner(),
		SoleAuthority:      p.authority.SoleAuthority(),
		Council:            p.authority.Members(),
		RequiredSignatures: p.authority.RequiredSignatures(),
	}
}

// VotingPower weights who's book balance by a contribution score.
func (p *Protocol) VotingPower(ctx context.Context, who authority.Principal, score int64) (Power, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	balance, err := p.book.Balance(ctx, string(who))
	if err != nil {
		return Power{}, err
	}
	power, err := authority.VotingPower(balance.AmountMinor, score)
	if err != nil {
		return Power{}, err
	}
	return Power{
		Principal: who,
		Balance:   balance.AmountMinor,
		Score:     score,
		Power:     power,
		Council:   p.authority.IsCouncilMember(who),
	}, nil
}

// Power is a principal's weighted voting power.
type Power struct {
	Principal authority.Principal `json:"principal"`
	Balance   int64               `json:"balance"`
	Score     int64               `json:"score"`
	Power     int64               `json:"power"`
	Council   bool                `json:"council"`
}

func (p *Protocol) IsCouncilMember(who authority.Principal) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authority.IsCouncilMember(who)
}

// Veto

func (p *Protocol) InitiateVeto(ctx context.Context, caller authority.Principal, target veto.State, reason string) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.veto.InitiateVeto(ctx, caller, target, reason)
}

func (p *Protocol) ResolveVeto(ctx context.Context, caller authority.Principal, id uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.veto.ResolveVeto(ctx, caller, id)
}

func (p *Protocol) EmergencyOverride(ctx context.Context, caller authority.Principal, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.veto.EmergencyOverride(ctx, caller, reason)
}

func (p *Protocol) VetoState() veto.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.veto.CurrentState()
}

func (p *Protocol) OperationsAllowed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.veto.OperationsAllowed()
}

func (p *Protocol) VetoRecord(i uint64) (veto.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.veto.Record(i)
}

func (p *Protocol) VetoRecords() []veto.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.veto.Records()
}

// OpenVeto returns the unresolved veto record, if any.
func (p *Protocol) OpenVeto() (veto.Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.veto.Open()
}

// Tranches

func (p *Protocol) CreateTranche(ctx context.Context, caller authority.Principal, amount int64, commitment tranche.Hash) (tranche.Tranche, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.CreateTranche(ctx, caller, amount, commitment)
}

func (p *Protocol) CreateTranches(ctx context.Context, caller authority.Principal, amounts []int64, commitments []tranche.Hash) ([]tranche.Tranche, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.CreateTranches(ctx, caller, amounts, commitments)
}

func (p *Protocol) VerifyEthicalCompliance(ctx context.Context, caller authority.Principal, i uint64, compliant bool) (tranche.Tranche, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.VerifyEthicalCompliance(ctx, caller, i, compliant)
}

func (p *Protocol) VetoTranche(ctx context.Context, caller authority.Principal, i uint64) (tranche.Tranche, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.VetoTranche(ctx, caller, i)
}

func (p *Protocol) ReleaseTranche(ctx context.Context, caller authority.Principal, i uint64, proof tranche.Hash) (tranche.Tranche, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.ReleaseTranche(ctx, caller, i, proof)
}

func (p *Protocol) Tranche(i uint64) (tranche.Tranche, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Tranche(i)
}

func (p *Protocol) TrancheCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.TrancheCount()
}

func (p *Protocol) Tranches() []tranche.Tranche {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Tranches()
}

// Bonds

func (p *Protocol) Deposit(ctx context.Context, investor authority.Principal, amount int64, duration time.Duration) (settlement.Investment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Deposit(ctx, investor, amount, duration)
}

func (p *Protocol) Redeem(ctx context.Context, caller authority.Principal, id uint64) (settlement.Redemption, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Redeem(ctx, caller, id)
}

func (p *Protocol) Investment(id uint64) (settlement.Investment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Investment(id)
}

// Oracle

func (p *Protocol) FulfillSafePassage(ctx context.Context, caller authority.Principal, tripID string, value bool) (oracle.Fulfillment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oracle.FulfillSafePassage(ctx, caller, tripID, value)
}

func (p *Protocol) Confirmation(tripID string) (value, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oracle.Confirmation(tripID)
}

func (p *Protocol) UpdateExternalTarget(ctx context.Context, caller authority.Principal, address string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oracle.UpdateExternalTarget(ctx, caller, address)
}

func (p *Protocol) ExternalTarget() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oracle.ExternalTarget()
}

func (p *Protocol) AuthorizeFulfiller(ctx context.Context, caller, fulfiller authority.Principal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oracle.Authorize(ctx, caller, fulfiller)
}

func (p *Protocol) DeauthorizeFulfiller(ctx context.Context, caller, fulfiller authority.Principal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oracle.Deauthorize(ctx, caller, fulfiller)
}

// Anchors

func (p *Protocol) AnchorDocument(ctx context.Context, caller authority.Principal, cid, contentHash string) (anchor.Anchor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.anchors.Anchor(ctx, caller, cid, contentHash)
}

func (p *Protocol) PublishDocument(ctx context.Context, caller authority.Principal, data []byte) (anchor.Anchor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.anchors.Publish(ctx, caller, data)
}

func (p *Protocol) LookupAnchor(cid string) (anchor.Anchor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.anchors.Lookup(cid)
}

func (p *Protocol) VerifyAnchor(cid, contentHash string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.anchors.Verify(cid, contentHash)
}
