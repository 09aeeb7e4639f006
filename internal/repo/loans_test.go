package repo

import (
	"context"
	"testing"
	"time"

	"github.com/libraria/lending/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetLoan(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	ledger := NewLoanLedger(database, log)

	ctx := context.Background()
	now := time.Now()

	loan, err := ledger.Create(ctx, 10, 1, now, now.Add(14*24*time.Hour))
	require.NoError(t, err)
	assert.NotZero(t, loan.ID)
	assert.False(t, loan.Returned)
	assert.Nil(t, loan.ReturnedAt)

	retrieved, err := ledger.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(10), retrieved.AccountID)
	assert.Equal(t, uint(1), retrieved.BookID)

	_, err = ledger.Get(ctx, 9999)
	assert.ErrorIs(t, err, ErrLoanNotFound)
}

func TestDeleteLoan(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	ledger := NewLoanLedger(database, log)

	ctx := context.Background()
	now := time.Now()

	loan, err := ledger.Create(ctx, 10, 1, now, now.Add(14*24*time.Hour))
	require.NoError(t, err)

	require.NoError(t, ledger.Delete(ctx, loan.ID))

	_, err = ledger.Get(ctx, loan.ID)
	assert.ErrorIs(t, err, ErrLoanNotFound)

	assert.ErrorIs(t, ledger.Delete(ctx, loan.ID), ErrLoanNotFound)
}

func TestListActiveForBook(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	ledger := NewLoanLedger(database, log)

	ctx := context.Background()
	now := time.Now()

	loan, err := ledger.Create(ctx, 10, 1, now, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = ledger.Create(ctx, 11, 2, now, now.Add(time.Hour))
	require.NoError(t, err)

	active, err := ledger.ListActiveForBook(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, loan.ID, active[0].ID)

	count, err := ledger.CountActiveForBook(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = ledger.MarkReturned(ctx, loan.ID, time.Now())
	require.NoError(t, err)

	count, err = ledger.CountActiveForBook(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestListForAccount(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	ledger := NewLoanLedger(database, log)

	ctx := context.Background()
	now := time.Now()

	first, err := ledger.Create(ctx, 10, 1, now, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = ledger.Create(ctx, 10, 2, now, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = ledger.Create(ctx, 11, 3, now, now.Add(time.Hour))
	require.NoError(t, err)

	all, err := ledger.ListForAccount(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = ledger.MarkReturned(ctx, first.ID, time.Now())
	require.NoError(t, err)

	active, err := ledger.ListActiveForAccount(ctx, 10)
	require.NoError(t, err)
	require.Len(t, active, 1)

	// Returned loans stay on the books: the ledger is an audit trail.
	all, err = ledger.ListForAccount(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMarkReturned(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	ledger := NewLoanLedger(database, log)

	ctx := context.Background()
	now := time.Now()

	loan, err := ledger.Create(ctx, 10, 1, now, now.Add(time.Hour))
	require.NoError(t, err)

	returnedAt := time.Now()
	returned, err := ledger.MarkReturned(ctx, loan.ID, returnedAt)
	require.NoError(t, err)
	assert.True(t, returned.Returned)
	require.NotNil(t, returned.ReturnedAt)

	// Second return is rejected, not silently accepted with a new timestamp.
	_, err = ledger.MarkReturned(ctx, loan.ID, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyReturned)

	again, err := ledger.Get(ctx, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, again.ReturnedAt)
	assert.WithinDuration(t, returnedAt, *again.ReturnedAt, time.Second)

	_, err = ledger.MarkReturned(ctx, 9999, time.Now())
	assert.ErrorIs(t, err, ErrLoanNotFound)
}
