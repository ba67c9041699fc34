package finance

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Mindburn-Labs/covenant/pkg/faults"
)

// Book is the balance ledger collaborator: it holds account balances and
// moves funds between them atomically per call.
type Book interface {
	Balance(ctx context.Context, account string) (Money, error)
	Transfer(ctx context.Context, from, to string, amount Money) error
	// TransferBatch applies legs in order. Either every leg lands or none does.
	TransferBatch(ctx context.Context, legs []Leg) error
	Credit(ctx context.Context, account string, amount Money) error
}

// Leg is one movement inside a TransferBatch.
type Leg struct {
	From   string
	To     string
	Amount Money
}

// MemoryBook is a thread-safe single-currency Book.
type MemoryBook struct {
	mu       sync.RWMutex
	currency string
	balances map[string]int64
}

func NewMemoryBook(currency string) *MemoryBook {
	return &MemoryBook{
		currency: NewMoney(0, currency).Currency,
		balances: make(map[string]int64),
	}
}

func (b *MemoryBook) Currency() string {
	return b.currency
}

func (b *MemoryBook) Balance(ctx context.Context, account string) (Money, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return NewMoney(b.balances[account], b.currency), nil
}

// Credit mints amount into account.
func (b *MemoryBook) Credit(ctx context.Context, account string, amount Money) error {
	if err := b.checkAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := NewMoney(b.balances[account], b.currency).Add(amount)
	if err != nil {
		return err
	}
	b.balances[account] = next.AmountMinor
	return nil
}

// Transfer moves amount from one account to another. Either both balances
// change or neither does.
func (b *MemoryBook) Transfer(ctx context.Context, from, to string, amount Money) error {
	return b.TransferBatch(ctx, []Leg{{From: from, To: to, Amount: amount}})
}

// TransferBatch stages every leg against a scratch copy of the touched
// balances and commits them only when all legs fit.
func (b *MemoryBook) TransferBatch(ctx context.Context, legs []Leg) error {
	for _, l := range legs {
		if err := b.checkAmount(l.Amount); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	staged := make(map[string]int64)
	balance := func(account string) Money {
		if v, ok := staged[account]; ok {
			return NewMoney(v, b.currency)
		}
		return NewMoney(b.balances[account], b.currency)
	}
	for _, l := range legs {
		from := balance(l.From)
		if c, err := from.Cmp(l.Amount); err != nil {
			return err
		} else if c < 0 {
			return faults.New(faults.CodeInsufficientFunds, "account %s holds %d, needs %d", l.From, from.AmountMinor, l.Amount.AmountMinor)
		}
		if l.From == l.To {
			continue
		}
		credited, err := balance(l.To).Add(l.Amount)
		if err != nil {
			return err
		}
		debited, err := from.Sub(l.Amount)
		if err != nil {
			return err
		}
		staged[l.From] = debited.AmountMinor
		staged[l.To] = credited.AmountMinor
	}
	for account, v := range staged {
		b.balances[account] = v
	}
	return nil
}

// Accounts lists every account with a recorded balance.
func (b *MemoryBook) Accounts() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.balances))
	for a := range b.balances {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (b *MemoryBook) checkAmount(amount Money) error {
	if amount.Currency != b.currency {
		return fmt.Errorf("currency mismatch: %s vs %s", amount.Currency, b.currency)
	}
	if !amount.IsPositive() {
		return faults.New(faults.CodeNonPositiveAmount, "amount %d", amount.AmountMinor)
	}
	return nil
}
