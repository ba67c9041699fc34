package settlement

import (
	"fmt"
	"time"

	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/events"
	"github.com/Mindburn-Labs/covenant/pkg/tranche"
)

// Replay applies a journaled tranche or bond event to the engine's records
// without guards, book transfers or emission. Balances are not touched: the
// book already holds the effect of every journaled transfer. at is the
// journal timestamp of the event.
func (e *Engine) Replay(ev events.Event, at time.Time) error {
	switch ev := ev.(type) {
	case events.TrancheCreated:
		commitment, err := tranche.ParseHash(ev.Commitment)
		if err != nil {
			return fmt.Errorf("tranche %d: %w", ev.Index, err)
		}
		if n := uint64(e.ledger.Len()); n != ev.Index {
			return fmt.Errorf("tranche %d created out of order, ledger holds %d", ev.Index, n)
		}
		_, err = e.ledger.Append(ev.Amount, commitment)
		return err
	case events.EthicalComplianceVerified:
		return e.replayTranche(ev.Index, func(t *tranche.Tranche) { t.EthicallyCompliant = ev.Compliant })
	case events.TrancheVetoed:
		return e.replayTranche(ev.Index, func(t *tranche.Tranche) { t.Vetoed = true })
	case events.TrancheReleased:
		return e.replayTranche(ev.Index, func(t *tranche.Tranche) { t.Released = true })
	case events.BondDeposited:
		e.mu.Lock()
		defer e.mu.Unlock()
		if n := uint64(len(e.investments)); n != ev.ID {
			return fmt.Errorf("investment %d deposited out of order, engine holds %d", ev.ID, n)
		}
		e.investments = append(e.investments, Investment{
			ID:               ev.ID,
			Investor:         authority.Principal(ev.Investor),
			Amount:           ev.Amount,
			Duration:         time.Duration(ev.DurationSeconds) * time.Second,
			DepositedAt:      at,
			Active:           true,
			RedCodeCompliant: ev.RedCodeCompliant,
		})
	case events.BondRedeemed:
		e.mu.Lock()
		defer e.mu.Unlock()
		if ev.ID >= uint64(len(e.investments)) {
			return fmt.Errorf("investment %d redeemed before deposit", ev.ID)
		}
		e.investments[ev.ID].Active = false
	}
	return nil
}

func (e *Engine) replayTranche(i uint64, apply func(*tranche.Tranche)) error {
	_, err := e.ledger.Update(i, func(t *tranche.Tranche) error {
		apply(t)
		return nil
	})
	return err
}
