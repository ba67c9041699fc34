package protocol

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/covenant/pkg/events"
)

// replay rebuilds component state from a resumed journal. Every component
// ignores the events it does not own, so each entry is offered to all of
// them in sequence order.
func (p *Protocol) replay(ctx context.Context, history []events.Entry) error {
	for _, e := range history {
		ev, err := events.Decode(e)
		if err != nil {
			return err
		}
		p.authority.Replay(ctx, ev)
		p.veto.Replay(ev, e.Timestamp)
		if err := p.engine.Replay(ev, e.Timestamp); err != nil {
			return fmt.Errorf("entry %d: %w", e.Sequence, err)
		}
		p.oracle.Replay(ctx, ev)
		p.anchors.Replay(ev, e.Timestamp)
	}
	if len(history) > 0 {
		p.logger.InfoContext(ctx, "state replayed from journal",
			"entries", len(history),
			"tranches", p.ledger.Len(),
			"state", p.veto.CurrentState(),
		)
	}
	return nil
}
