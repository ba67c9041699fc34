package settlement

import (
	"context"
	"time"

	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/events"
	"github.com/Mindburn-Labs/covenant/pkg/faults"
	"github.com/Mindburn-Labs/covenant/pkg/finance"
	"github.com/Mindburn-Labs/covenant/pkg/policy"
)

// Investment is a time-locked bond position.
type Investment struct {
	ID               uint64              `json:"id"`
	Investor         authority.Principal `json:"investor"`
	Amount           int64               `json:"amount"`
	Duration         time.Duration       `json:"duration"`
	DepositedAt      time.Time           `json:"deposited_at"`
	Active           bool                `json:"active"`
	RedCodeCompliant bool                `json:"red_code_compliant"`
}

// MaturesAt is the earliest redemption time.
func (inv Investment) MaturesAt() time.Time {
	return inv.DepositedAt.Add(inv.Duration)
}

// Redemption describes how a redeemed position was paid out.
type Redemption struct {
	Investment  Investment      `json:"investment"`
	Payout      int64           `json:"payout"`
	Fee         int64           `json:"fee"`
	Destination string          `json:"destination"`
	Redirected  bool            `json:"redirected"`
	Decision    policy.Decision `json:"decision"`
}

// Deposit locks amount from the investor's account into bond escrow for
// duration.
func (e *Engine) Deposit(ctx context.Context, investor authority.Principal, amount int64, duration time.Duration) (Investment, error) {
	if investor == "" {
		return Investment{}, faults.New(faults.CodeInvalidPrincipal, "investor is empty")
	}
	if err := e.requireActive(); err != nil {
		return Investment{}, err
	}
	if amount <= 0 {
		return Investment{}, faults.New(faults.CodeNonPositiveAmount, "amount %d", amount)
	}
	if amount < e.cfg.MinimumDeposit {
		return Investment{}, faults.New(faults.CodeBelowMinimum, "amount %d below minimum %d", amount, e.cfg.MinimumDeposit)
	}
	if duration < 0 {
		return Investment{}, faults.New(faults.CodeNonPositiveAmount, "duration %s", duration)
	}

	decision := e.invariants.Passes(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.book.Transfer(ctx, string(investor), e.cfg.Accounts.BondEscrow, e.money(amount)); err != nil {
		return Investment{}, err
	}
	inv := Investment{
		ID:               uint64(len(e.investments)),
		Investor:         investor,
		Amount:           amount,
		Duration:         duration,
		DepositedAt:      e.clock(),
		Active:           true,
		RedCodeCompliant: decision.Passed,
	}
	e.investments = append(e.investments, inv)

	e.logger.InfoContext(ctx, "bond deposited", "id", inv.ID, "investor", investor, "amount", amount, "duration", duration)
	e.sink.Emit(ctx, events.BondDeposited{
		ID:               inv.ID,
		Investor:         string(investor),
		Amount:           amount,
		DurationSeconds:  int64(duration / time.Second),
		RedCodeCompliant: inv.RedCodeCompliant,
	})
	return inv, nil
}

// Redeem closes a matured position. The fee always goes to the foundation;
// the net payout goes to the investor while the health invariants hold and
// is redirected to the foundation otherwise. Only the investor may redeem.
func (e *Engine) Redeem(ctx context.Context, caller authority.Principal, id uint64) (Redemption, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id >= uint64(len(e.investments)) {
		return Redemption{}, faults.New(faults.CodeNotFound, "investment %d", id)
	}
	inv := e.investments[id]
	if caller == "" || caller != inv.Investor {
		return Redemption{}, faults.New(faults.CodeNotInvestor, "%q does not hold investment %d", caller, id)
	}
	if err := e.requireActive(); err != nil {
		return Redemption{}, err
	}
	if !inv.Active {
		return Redemption{}, faults.New(faults.CodeNotActive, "investment %d already redeemed", id)
	}
	if now := e.clock(); now.Before(inv.MaturesAt()) {
		return Redemption{}, faults.New(faults.CodeNotMatured, "investment %d matures at %s", id, inv.MaturesAt().Format(time.RFC3339))
	}

	payout, fee, err := finance.SplitFee(inv.Amount, e.cfg.FeeBps)
	if err != nil {
		return Redemption{}, err
	}
	decision := e.invariants.Passes(ctx)
	dest := string(inv.Investor)
	if !decision.Passed {
		dest = e.cfg.Accounts.Foundation
	}

	if err := e.payOut(ctx, dest, payout, fee); err != nil {
		return Redemption{}, err
	}

	inv.Active = false
	e.investments[id] = inv

	r := Redemption{
		Investment:  inv,
		Payout:      payout,
		Fee:         fee,
		Destination: dest,
		Redirected:  !decision.Passed,
		Decision:    decision,
	}
	if r.Redirected {
		e.logger.WarnContext(ctx, "bond payout redirected to foundation", "id", id, "reason", decision.Reason, "risk", decision.Health.Risk, "compliance", decision.Health.Compliance)
	} else {
		e.logger.InfoContext(ctx, "bond redeemed", "id", id, "payout", payout, "fee", fee)
	}
	e.sink.Emit(ctx, events.BondRedeemed{
		ID:          id,
		Investor:    string(inv.Investor),
		Payout:      payout,
		Fee:         fee,
		Destination: dest,
		Redirected:  r.Redirected,
	})
	return r, nil
}

// payOut moves the fee and the payout out of bond escrow in one batch, so a
// failed payout never leaves the fee behind.
func (e *Engine) payOut(ctx context.Context, dest string, payout, fee int64) error {
	escrow := e.cfg.Accounts.BondEscrow
	legs := make([]finance.Leg, 0, 2)
	if fee > 0 {
		legs = append(legs, finance.Leg{From: escrow, To: e.cfg.Accounts.Foundation, Amount: e.money(fee)})
	}
	if payout > 0 {
		legs = append(legs, finance.Leg{From: escrow, To: dest, Amount: e.money(payout)})
	}
	if len(legs) == 0 {
		return nil
	}
	return e.book.TransferBatch(ctx, legs)
}

// Investment returns a copy of position id.
func (e *Engine) Investment(id uint64) (Investment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id >= uint64(len(e.investments)) {
		return Investment{}, faults.New(faults.CodeNotFound, "investment %d", id)
	}
	return e.investments[id], nil
}

// Investments returns every position in id order.
func (e *Engine) Investments() []Investment {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Investment, len(e.investments))
	copy(out, e.investments)
	return out
}
