// Package tranche holds the ordered arena of funding tranches.
//
// The ledger is the only owner of tranche records. Indices are assigned
// sequentially from zero and never change; readers always get copies.
package tranche

import (
	"sync"

	"github.com/Mindburn-Labs/covenant/pkg/faults"
)

// Tranche is one conditional payment.
type Tranche struct {
	Index              uint64 `json:"index"`
	Amount             int64  `json:"amount"`
	Commitment         Hash   `json:"commitment"`
	Released           bool   `json:"released"`
	EthicallyCompliant bool   `json:"ethically_compliant"`
	Vetoed             bool   `json:"vetoed"`
}

// CheckRelease returns the first reason t cannot be released with proof,
// or nil when it can.
func (t Tranche) CheckRelease(proof Hash) error {
	switch {
	case t.Vetoed:
		return faults.New(faults.CodeTrancheVetoed, "tranche %d", t.Index)
	case !t.EthicallyCompliant:
		return faults.New(faults.CodeComplianceNotVerified, "tranche %d", t.Index)
	case proof != t.Commitment:
		return faults.New(faults.CodeProofMismatch, "tranche %d", t.Index)
	case t.Released:
		return faults.New(faults.CodeAlreadyReleased, "tranche %d", t.Index)
	}
	return nil
}

// Ledger is a growable, bounds-checked tranche arena.
type Ledger struct {
	mu       sync.RWMutex
	tranches []Tranche
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Validate checks a prospective tranche without appending it.
func Validate(amount int64, commitment Hash) error {
	if amount <= 0 {
		return faults.New(faults.CodeNonPositiveAmount, "amount %d", amount)
	}
	if commitment.IsZero() {
		return faults.New(faults.CodeInvalidCommitment, "zero commitment")
	}
	return nil
}

// Append adds a tranche at the next index.
func (l *Ledger) Append(amount int64, commitment Hash) (Tranche, error) {
	if err := Validate(amount, commitment); err != nil {
		return Tranche{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t := Tranche{Index: uint64(len(l.tranches)), Amount: amount, Commitment: commitment}
	l.tranches = append(l.tranches, t)
	return t, nil
}

// AppendAll appends a batch. Every entry is validated before the first
// append, so either all tranches are added or none.
func (l *Ledger) AppendAll(amounts []int64, commitments []Hash) ([]Tranche, error) {
	if len(amounts) != len(commitments) {
		return nil, faults.New(faults.CodeArrayLengthMismatch, "%d amounts, %d commitments", len(amounts), len(commitments))
	}
	for i := range amounts {
		if err := Validate(amounts[i], commitments[i]); err != nil {
			return nil, err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Tranche, 0, len(amounts))
	for i := range amounts {
		t := Tranche{Index: uint64(len(l.tranches)), Amount: amounts[i], Commitment: commitments[i]}
		l.tranches = append(l.tranches, t)
		out = append(out, t)
	}
	return out, nil
}

func (l *Ledger) Get(i uint64) (Tranche, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i >= uint64(len(l.tranches)) {
		return Tranche{}, l.outOfBounds(i)
	}
	return l.tranches[i], nil
}

// Update applies fn to a copy of tranche i and stores the copy only when fn
// succeeds. Index, Amount and Commitment are immutable.
func (l *Ledger) Update(i uint64, fn func(*Tranche) error) (Tranche, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i >= uint64(len(l.tranches)) {
		return Tranche{}, l.outOfBounds(i)
	}
	orig := l.tranches[i]
	next := orig
	if err := fn(&next); err != nil {
		return orig, err
	}
	next.Index, next.Amount, next.Commitment = orig.Index, orig.Amount, orig.Commitment
	l.tranches[i] = next
	return next, nil
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tranches)
}

// All returns a copy of every tranche in index order.
func (l *Ledger) All() []Tranche {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Tranche, len(l.tranches))
	copy(out, l.tranches)
	return out
}

func (l *Ledger) outOfBounds(i uint64) error {
	return faults.New(faults.CodeIndexOutOfBounds, "tranche %d of %d", i, len(l.tranches))
}
