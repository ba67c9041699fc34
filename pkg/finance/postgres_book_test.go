package finance

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Mindburn-Labs/covenant/pkg/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresBook_Transfer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	book := NewPostgresBook(db, "USD")
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM finance_accounts WHERE account = $1 FOR UPDATE")).
		WithArgs("escrow").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(500)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE finance_accounts SET balance = balance - $1 WHERE account = $2")).
		WithArgs(int64(100), "escrow").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO finance_accounts")).
		WithArgs("alice", "USD", int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = book.Transfer(ctx, "escrow", "alice", NewMoney(100, "USD"))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBook_TransferInsufficientFunds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	book := NewPostgresBook(db, "USD")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM finance_accounts")).
		WithArgs("escrow").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(50)))
	mock.ExpectRollback()

	err = book.Transfer(context.Background(), "escrow", "alice", NewMoney(100, "USD"))
	assert.ErrorIs(t, err, faults.ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBook_TransferBatchOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	book := NewPostgresBook(db, "USD")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM finance_accounts WHERE account = $1 FOR UPDATE")).
		WithArgs("bond_escrow").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(1000)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE finance_accounts")).WithArgs(int64(50), "bond_escrow").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO finance_accounts")).WithArgs("foundation", "USD", int64(50)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE finance_accounts")).WithArgs(int64(950), "bond_escrow").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO finance_accounts")).WithArgs("alice", "USD", int64(950)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = book.TransferBatch(context.Background(), []Leg{
		{From: "bond_escrow", To: "foundation", Amount: NewMoney(50, "USD")},
		{From: "bond_escrow", To: "alice", Amount: NewMoney(950, "USD")},
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBook_TransferBatchRollsBackOnLateShortfall(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	book := NewPostgresBook(db, "USD")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM finance_accounts WHERE account = $1 FOR UPDATE")).
		WithArgs("bond_escrow").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(100)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE finance_accounts")).WithArgs(int64(50), "bond_escrow").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO finance_accounts")).WithArgs("foundation", "USD", int64(50)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err = book.TransferBatch(context.Background(), []Leg{
		{From: "bond_escrow", To: "foundation", Amount: NewMoney(50, "USD")},
		{From: "bond_escrow", To: "alice", Amount: NewMoney(60, "USD")},
	})
	assert.ErrorIs(t, err, faults.ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBook_BalanceMissingAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	book := NewPostgresBook(db, "USD")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM finance_accounts WHERE account = $1")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))

	m, err := book.Balance(context.Background(), "ghost")
	require.NoError(t, err)
	assert.True(t, m.IsZero())
	assert.Equal(t, "USD", m.Currency)
}

func TestPostgresBook_Credit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	book := NewPostgresBook(db, "USD")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO finance_accounts")).
		WithArgs("treasury", "USD", int64(900)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, book.Credit(context.Background(), "treasury", NewMoney(900, "USD")))
	assert.NoError(t, mock.ExpectationsWereMet())
}
