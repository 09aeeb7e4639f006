package lending

import (
	"context"
	"testing"
	"time"

	"github.com/libraria/lending/internal/auth"
	"github.com/libraria/lending/internal/db"
	"github.com/libraria/lending/internal/repo"
	"github.com/libraria/lending/pkg/logger"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixture struct {
	books    *repo.InventoryStore
	accounts *repo.AccountDirectory
	loans    *repo.LoanLedger
	coord    *LendingCoordinator
	workflow *MembershipWorkflow
}

func setupFixture(t *testing.T) *fixture {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// A single connection keeps every query on the same in-memory database,
	// also when tests hit the coordinator from several goroutines.
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	database := &db.DB{DB: gormDB}
	require.NoError(t, db.RunMigrations(database))

	log := logger.NewLogger("test", "info")
	books := repo.NewInventoryStore(database, log)
	accounts := repo.NewAccountDirectory(database, log)
	loans := repo.NewLoanLedger(database, log)

	coord := NewLendingCoordinator(books, accounts, loans, 14*24*time.Hour, 2*time.Second, nil, nil, log)
	workflow := NewMembershipWorkflow(accounts, coord, nil, log)

	return &fixture{
		books:    books,
		accounts: accounts,
		loans:    loans,
		coord:    coord,
		workflow: workflow,
	}
}

func (f *fixture) user(t *testing.T, username string) *db.Account {
	t.Helper()
	account, err := f.accounts.Register(context.Background(), username, "pw", username, username+"@example.com", db.RoleUser)
	require.NoError(t, err)
	return account
}

func (f *fixture) pendingLibrarian(t *testing.T, username string) *db.Account {
	t.Helper()
	account, err := f.accounts.Register(context.Background(), username, "pw", username, username+"@example.com", db.RoleLibrarian)
	require.NoError(t, err)
	return account
}

func (f *fixture) book(t *testing.T, title string) *db.Book {
	t.Helper()
	book, err := f.books.Create(context.Background(), title, "Some Author", "")
	require.NoError(t, err)
	return book
}

func principalFor(account *db.Account) auth.Principal {
	return auth.Principal{
		AccountID: account.ID,
		Username:  account.Username,
		Role:      account.Role,
	}
}

// requireConsistent asserts the availability invariant: a book is available
// iff it has no active loan.
func (f *fixture) requireConsistent(t *testing.T, bookID uint) {
	t.Helper()
	ctx := context.Background()

	book, err := f.books.Get(ctx, bookID)
	require.NoError(t, err)
	count, err := f.loans.CountActiveForBook(ctx, bookID)
	require.NoError(t, err)

	require.LessOrEqual(t, count, int64(1), "single-active-loan invariant violated")
	require.Equal(t, count == 0, book.Available, "availability flag out of sync with ledger")
}
