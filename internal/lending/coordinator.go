package lending

import (
	"context"
	"errors"
	"time"

	"github.com/libraria/lending/internal/auth"
	"github.com/libraria/lending/internal/db"
	"github.com/libraria/lending/internal/events"
	"github.com/libraria/lending/internal/metrics"
	"github.com/libraria/lending/internal/repo"
	"go.uber.org/zap"
)

var (
	// ErrBookUnavailable is returned when borrowing a book that already has
	// an active loan. Permanent for the same request; someone else holds the copy.
	ErrBookUnavailable = errors.New("book unavailable")

	// ErrBookOnLoan is returned when deleting a book with an active loan
	ErrBookOnLoan = errors.New("book has an active loan")

	// ErrBorrowNotAllowed is returned when the borrowing account is in a
	// state that may not borrow, e.g. a pending librarian
	ErrBorrowNotAllowed = errors.New("account is not allowed to borrow")

	// ErrNotAllowed is returned when a principal tries to return a loan that
	// is neither theirs nor reclaimable at their role
	ErrNotAllowed = errors.New("operation not permitted for this account")
)

// LendingCoordinator is the only component that mutates more than one store
// in a single operation. It owns Book.available and every Loan transition,
// and guarantees the single-active-loan invariant by serializing borrow,
// return and delete per book: the stores sit on a shared database with no
// transaction abstraction, so the serialization lives here.
type LendingCoordinator struct {
	books        *repo.InventoryStore
	accounts     *repo.AccountDirectory
	loans        *repo.LoanLedger
	bookLocks    *keyedLocks
	accountLocks *keyedLocks
	loanPeriod   time.Duration
	publisher    *events.Publisher
	metrics      *metrics.Metrics
	log          *zap.Logger
}

// NewLendingCoordinator creates the coordinator. publisher and m may be nil.
func NewLendingCoordinator(
	books *repo.InventoryStore,
	accounts *repo.AccountDirectory,
	loans *repo.LoanLedger,
	loanPeriod time.Duration,
	lockWait time.Duration,
	publisher *events.Publisher,
	m *metrics.Metrics,
	log *zap.Logger,
) *LendingCoordinator {
	return &LendingCoordinator{
		books:        books,
		accounts:     accounts,
		loans:        loans,
		bookLocks:    newKeyedLocks(lockWait),
		accountLocks: newKeyedLocks(lockWait),
		loanPeriod:   loanPeriod,
		publisher:    publisher,
		metrics:      m,
		log:          log,
	}
}

// Borrow moves a book from Available to OnLoan for the given borrower. A
// principal may borrow for itself; librarians and admins may also lend to
// another account. The active-loan check is re-done under the per-book lock,
// so two simultaneous borrows for the same book resolve to exactly one new
// loan and one ErrBookUnavailable.
func (c *LendingCoordinator) Borrow(ctx context.Context, p auth.Principal, accountID, bookID uint) (*db.Loan, error) {
	loan, err := c.borrow(ctx, p, accountID, bookID)
	c.countBorrow(err)
	return loan, err
}

func (c *LendingCoordinator) borrow(ctx context.Context, p auth.Principal, accountID, bookID uint) (*db.Loan, error) {
	if accountID != p.AccountID && p.Role != db.RoleLibrarian && p.Role != db.RoleAdmin {
		return nil, ErrNotAllowed
	}

	// The borrower is re-read from the directory; the principal's role claim
	// is never enough on its own.
	account, err := c.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.IsApproved() {
		return nil, ErrBorrowNotAllowed
	}

	if _, err := c.books.Get(ctx, bookID); err != nil {
		return nil, err
	}

	if err := c.acquireBook(ctx, bookID); err != nil {
		return nil, err
	}
	defer c.bookLocks.Release(bookID)

	// Re-check under the lock: a racing borrow may have won between the
	// availability snapshot the caller saw and this point.
	active, err := c.loans.CountActiveForBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if active > 0 {
		return nil, ErrBookUnavailable
	}

	now := time.Now()
	loan, err := c.loans.Create(ctx, account.ID, bookID, now, now.Add(c.loanPeriod))
	if err != nil {
		return nil, err
	}

	if err := c.books.SetAvailable(ctx, bookID, false); err != nil {
		// The loan never became visible outside the lock. Discard it rather
		// than leaving a zero-length borrow in the audit trail.
		if undoErr := c.loans.Delete(ctx, loan.ID); undoErr != nil {
			c.log.Error("Failed to discard loan after availability write error",
				zap.Uint("loan_id", loan.ID), zap.Error(undoErr))
		}
		return nil, err
	}

	c.log.Info("Book borrowed",
		zap.Uint("book_id", bookID),
		zap.Uint("account_id", account.ID),
		zap.Uint("loan_id", loan.ID),
	)
	if c.metrics != nil {
		c.metrics.ActiveLoans.Inc()
	}
	c.publisher.Publish(ctx, events.EventTypeLoanBorrowed, map[string]interface{}{
		"loan_id":    loan.ID,
		"book_id":    bookID,
		"account_id": account.ID,
		"due_at":     loan.DueAt,
	})
	return loan, nil
}

// Return moves a book from OnLoan back to Available. A loan may be returned
// by its borrower or reclaimed by a librarian or admin. A second return of
// the same loan is rejected with ErrAlreadyReturned, never silently ignored.
func (c *LendingCoordinator) Return(ctx context.Context, p auth.Principal, loanID uint) (*db.Loan, error) {
	loan, err := c.returnLoan(ctx, p, loanID)
	c.countReturn(err)
	return loan, err
}

func (c *LendingCoordinator) returnLoan(ctx context.Context, p auth.Principal, loanID uint) (*db.Loan, error) {
	loan, err := c.loans.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}

	if loan.AccountID != p.AccountID && p.Role != db.RoleLibrarian && p.Role != db.RoleAdmin {
		return nil, ErrNotAllowed
	}

	if err := c.acquireBook(ctx, loan.BookID); err != nil {
		return nil, err
	}
	defer c.bookLocks.Release(loan.BookID)

	// Re-read under the lock so a return that raced us is seen before any
	// mutation happens.
	loan, err = c.loans.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Returned {
		return nil, repo.ErrAlreadyReturned
	}

	// The availability flag flips before the ledger write: a storage failure
	// then leaves the loan open and the return retryable, where the reverse
	// order closes the loan with no way left to repair the flag.
	if err := c.books.SetAvailable(ctx, loan.BookID, true); err != nil {
		return nil, err
	}

	returned, err := c.loans.MarkReturned(ctx, loanID, time.Now())
	if err != nil {
		if undoErr := c.books.SetAvailable(ctx, loan.BookID, false); undoErr != nil {
			c.log.Error("Failed to undo availability after return error",
				zap.Uint("loan_id", loanID), zap.Error(undoErr))
		}
		return nil, err
	}

	c.log.Info("Book returned",
		zap.Uint("book_id", loan.BookID),
		zap.Uint("loan_id", loanID),
	)
	if c.metrics != nil {
		c.metrics.ActiveLoans.Dec()
	}
	c.publisher.Publish(ctx, events.EventTypeLoanReturned, map[string]interface{}{
		"loan_id":     returned.ID,
		"book_id":     returned.BookID,
		"account_id":  returned.AccountID,
		"returned_at": returned.ReturnedAt,
	})
	return returned, nil
}

// DeleteBook removes a book from the catalog. Deletion is only permitted
// while the book is Available; the check runs under the per-book lock so a
// racing borrow either completes before the check or fails on the missing book.
func (c *LendingCoordinator) DeleteBook(ctx context.Context, bookID uint) error {
	if _, err := c.books.Get(ctx, bookID); err != nil {
		return err
	}

	if err := c.acquireBook(ctx, bookID); err != nil {
		return err
	}
	defer c.bookLocks.Release(bookID)

	active, err := c.loans.CountActiveForBook(ctx, bookID)
	if err != nil {
		return err
	}
	if active > 0 {
		return ErrBookOnLoan
	}

	if err := c.books.Delete(ctx, bookID); err != nil {
		return err
	}

	c.publisher.Publish(ctx, events.EventTypeBookDeleted, map[string]interface{}{
		"book_id": bookID,
	})
	return nil
}

// DeleteAccount removes an account and returns every book it still holds,
// restoring availability. Each loan return takes that book's lock, so a
// cascade never bypasses the per-book serialization. If a book lock is busy
// the cascade aborts with ErrBusy; already-returned loans stay returned and
// the deletion can be retried.
func (c *LendingCoordinator) DeleteAccount(ctx context.Context, accountID uint) error {
	if err := c.accountLocks.Acquire(ctx, accountID); err != nil {
		return err
	}
	defer c.accountLocks.Release(accountID)

	account, err := c.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}

	active, err := c.loans.ListActiveForAccount(ctx, accountID)
	if err != nil {
		return err
	}

	for _, loan := range active {
		if err := c.acquireBook(ctx, loan.BookID); err != nil {
			return err
		}

		// Same write order as returnLoan: flag first, ledger second, so a
		// failed cascade leaves the loan open and the deletion retryable.
		err := c.books.SetAvailable(ctx, loan.BookID, true)
		if err == nil {
			if _, mrErr := c.loans.MarkReturned(ctx, loan.ID, time.Now()); mrErr != nil {
				if undoErr := c.books.SetAvailable(ctx, loan.BookID, false); undoErr != nil {
					c.log.Error("Failed to undo availability after cascade error",
						zap.Uint("loan_id", loan.ID), zap.Error(undoErr))
				}
				err = mrErr
			}
		}
		c.bookLocks.Release(loan.BookID)
		if err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.ActiveLoans.Dec()
		}
	}

	if err := c.accounts.Delete(ctx, accountID); err != nil {
		return err
	}

	c.log.Info("Account deleted with loan cascade",
		zap.Uint("account_id", accountID),
		zap.Int("loans_returned", len(active)),
	)
	c.publisher.Publish(ctx, events.EventTypeAccountDeleted, map[string]interface{}{
		"account_id":     accountID,
		"username":       account.Username,
		"loans_returned": len(active),
	})
	return nil
}

func (c *LendingCoordinator) acquireBook(ctx context.Context, bookID uint) error {
	start := time.Now()
	err := c.bookLocks.Acquire(ctx, bookID)
	if c.metrics != nil {
		c.metrics.LockWait.Observe(time.Since(start).Seconds())
	}
	return err
}

func (c *LendingCoordinator) countBorrow(err error) {
	if c.metrics != nil {
		c.metrics.Borrows.WithLabelValues(outcomeLabel(err)).Inc()
	}
}

func (c *LendingCoordinator) countReturn(err error) {
	if c.metrics != nil {
		c.metrics.Returns.WithLabelValues(outcomeLabel(err)).Inc()
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrBookUnavailable),
		errors.Is(err, ErrBookOnLoan),
		errors.Is(err, repo.ErrAlreadyReturned):
		return metrics.OutcomeConflict
	case errors.Is(err, repo.ErrBookNotFound),
		errors.Is(err, repo.ErrAccountNotFound),
		errors.Is(err, repo.ErrLoanNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrBusy):
		return metrics.OutcomeBusy
	case errors.Is(err, ErrBorrowNotAllowed), errors.Is(err, ErrNotAllowed):
		return metrics.OutcomeNotAllowed
	default:
		return metrics.OutcomeError
	}
}
