package protocol

import (
	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/config"
	"github.com/Mindburn-Labs/covenant/pkg/finance"
	"github.com/Mindburn-Labs/covenant/pkg/notifier"
	"github.com/Mindburn-Labs/covenant/pkg/settlement"
)

// ConfigFromProfile maps a deployment profile onto a protocol Config.
func ConfigFromProfile(p *config.Profile) Config {
	council := make([]authority.Principal, 0, len(p.Council))
	for _, m := range p.Council {
		council = append(council, authority.Principal(m))
	}
	return Config{
		Authority: authority.Config{
			Owner:              authority.Principal(p.Principals.Owner),
			SoleAuthority:      authority.Principal(p.Principals.SoleAuthority),
			Council:            council,
			RequiredSignatures: p.RequiredSignatures,
			CoupleOwner:        p.Principals.CoupleOwner,
		},
		Settlement: settlement.Config{
			Currency:       p.Currency,
			Accounts:       p.Accounts,
			FeeBps:         finance.BasisPoints(p.FeeBps),
			MinimumDeposit: p.MinimumDeposit,
		},
		InvariantExpression: p.Invariants.Expression,
		Notifier: notifier.Config{
			Timeout:          p.Notifier.Timeout,
			BreakerThreshold: p.Notifier.BreakerThreshold,
			BreakerReset:     p.Notifier.BreakerReset,
		},
		ExternalTarget: p.Notifier.Target,
	}
}
