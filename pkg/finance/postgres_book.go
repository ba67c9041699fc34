package finance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/Mindburn-Labs/covenant/pkg/faults"
)

// PostgresBook implements Book backed by PostgreSQL.
// Uses SELECT FOR UPDATE to lock the debited row for the duration of a transfer.
type PostgresBook struct {
	db       *sql.DB
	currency string
}

const bookSchema = `
CREATE TABLE IF NOT EXISTS finance_accounts (
	account TEXT PRIMARY KEY,
	currency TEXT NOT NULL,
	balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
);
`

// NewPostgresBook creates a new PostgreSQL-backed balance book.
func NewPostgresBook(db *sql.DB, currency string) *PostgresBook {
	return &PostgresBook{db: db, currency: NewMoney(0, currency).Currency}
}

// Init creates the accounts table if needed.
func (b *PostgresBook) Init(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, bookSchema)
	return err
}

func (b *PostgresBook) Balance(ctx context.Context, account string) (Money, error) {
	var balance int64
	err := b.db.QueryRowContext(ctx,
		`SELECT balance FROM finance_accounts WHERE account = $1`,
		account,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return NewMoney(0, b.currency), nil
	}
	if err != nil {
		return Money{}, fmt.Errorf("balance lookup failed: %w", err)
	}
	return NewMoney(balance, b.currency), nil
}

func (b *PostgresBook) Credit(ctx context.Context, account string, amount Money) error {
	if err := b.checkAmount(amount); err != nil {
		return err
	}
	_, err := b.db.ExecContext(ctx, creditQuery, account, b.currency, amount.AmountMinor)
	if err != nil {
		return fmt.Errorf("credit failed: %w", err)
	}
	return nil
}

const creditQuery = `
INSERT INTO finance_accounts (account, currency, balance)
VALUES ($1, $2, $3)
ON CONFLICT (account) DO UPDATE SET balance = finance_accounts.balance + EXCLUDED.balance`

// Transfer atomically debits from and credits to inside one transaction.
func (b *PostgresBook) Transfer(ctx context.Context, from, to string, amount Money) error {
	return b.TransferBatch(ctx, []Leg{{From: from, To: to, Amount: amount}})
}

// TransferBatch applies every leg inside one transaction. Debited accounts
// are locked up front in account order so concurrent batches cannot deadlock.
func (b *PostgresBook) TransferBatch(ctx context.Context, legs []Leg) error {
	for _, l := range legs {
		if err := b.checkAmount(l.Amount); err != nil {
			return err
		}
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FOR UPDATE: holds the debited rows until COMMIT, preventing double spend
	locked := make(map[string]int64)
	for _, account := range debitedAccounts(legs) {
		var balance int64
		err := tx.QueryRowContext(ctx,
			`SELECT balance FROM finance_accounts WHERE account = $1 FOR UPDATE`,
			account,
		).Scan(&balance)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("account lock failed: %w", err)
		}
		locked[account] = balance
	}

	for _, l := range legs {
		amount := l.Amount.AmountMinor
		if locked[l.From] < amount {
			return faults.New(faults.CodeInsufficientFunds, "account %s holds %d, needs %d", l.From, locked[l.From], amount)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE finance_accounts SET balance = balance - $1 WHERE account = $2`,
			amount, l.From,
		); err != nil {
			return fmt.Errorf("debit failed: %w", err)
		}
		if _, err := tx.ExecContext(ctx, creditQuery, l.To, b.currency, amount); err != nil {
			return fmt.Errorf("credit failed: %w", err)
		}
		locked[l.From] -= amount
		if _, ok := locked[l.To]; ok {
			locked[l.To] += amount
		}
	}

	return tx.Commit()
}

func debitedAccounts(legs []Leg) []string {
	seen := make(map[string]bool, len(legs))
	out := make([]string, 0, len(legs))
	for _, l := range legs {
		if !seen[l.From] {
			seen[l.From] = true
			out = append(out, l.From)
		}
	}
	sort.Strings(out)
	return out
}

func (b *PostgresBook) checkAmount(amount Money) error {
	if amount.Currency != b.currency {
		return fmt.Errorf("currency mismatch: %s vs %s", amount.Currency, b.currency)
	}
	if !amount.IsPositive() {
		return faults.New(faults.CodeNonPositiveAmount, "amount %d", amount.AmountMinor)
	}
	return nil
}
