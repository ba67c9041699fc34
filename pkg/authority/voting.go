package authority

import (
	"github.com/Mindburn-Labs/covenant/pkg/faults"
	"github.com/Mindburn-Labs/covenant/pkg/finance"
)

// MaxContributionScore bounds the score accepted by VotingPower.
const MaxContributionScore = 100

// VotingPower weights a balance by a contribution score in [0, 100]:
//
//	balance * (10000 + score*100) / 10000
//
// A score of 100 doubles the balance. Division floors.
func VotingPower(balance, score int64) (int64, error) {
	if balance < 0 {
		return 0, faults.New(faults.CodeNonPositiveAmount, "negative balance %d", balance)
	}
	if score < 0 || score > MaxContributionScore {
		return 0, faults.New(faults.CodeInvalidScore, "score %d outside [0, %d]", score, MaxContributionScore)
	}
	return finance.MulDiv(balance, finance.BasisPointsDenominator+score*100, finance.BasisPointsDenominator)
}
