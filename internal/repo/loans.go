package repo

import (
	"context"
	"errors"
	"time"

	"github.com/libraria/lending/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrLoanNotFound is returned when a loan is not found
	ErrLoanNotFound = errors.New("loan not found")

	// ErrAlreadyReturned is returned when marking a loan returned twice. A
	// second return attempt is a caller error and is surfaced, not ignored.
	ErrAlreadyReturned = errors.New("loan already returned")
)

// LoanLedger owns Loan records. It is a pure data layer: the
// single-active-loan invariant is enforced by the lending coordinator, which
// serializes access per book.
type LoanLedger struct {
	db  *db.DB
	log *zap.Logger
}

// NewLoanLedger creates a new loan ledger
func NewLoanLedger(database *db.DB, logger *zap.Logger) *LoanLedger {
	return &LoanLedger{
		db:  database,
		log: logger,
	}
}

// Create records a new borrow event
func (l *LoanLedger) Create(ctx context.Context, accountID, bookID uint, borrowedAt, dueAt time.Time) (*db.Loan, error) {
	loan := &db.Loan{
		AccountID:  accountID,
		BookID:     bookID,
		BorrowedAt: borrowedAt,
		DueAt:      dueAt,
		Returned:   false,
	}

	if err := l.db.WithContext(ctx).Create(loan).Error; err != nil {
		l.log.Error("Failed to create loan",
			zap.Uint("account_id", accountID),
			zap.Uint("book_id", bookID),
			zap.Error(err),
		)
		return nil, err
	}

	l.log.Info("Loan created",
		zap.Uint("loan_id", loan.ID),
		zap.Uint("account_id", accountID),
		zap.Uint("book_id", bookID),
	)
	return loan, nil
}

// Get retrieves a loan by id
func (l *LoanLedger) Get(ctx context.Context, id uint) (*db.Loan, error) {
	var loan db.Loan
	err := l.db.WithContext(ctx).First(&loan, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		l.log.Error("Failed to get loan", zap.Uint("loan_id", id), zap.Error(err))
		return nil, err
	}

	return &loan, nil
}

// ListAll returns every loan, open and closed
func (l *LoanLedger) ListAll(ctx context.Context) ([]*db.Loan, error) {
	var loans []*db.Loan
	if err := l.db.WithContext(ctx).Order("id").Find(&loans).Error; err != nil {
		l.log.Error("Failed to list loans", zap.Error(err))
		return nil, err
	}
	return loans, nil
}

// ListActive returns every loan that is still open
func (l *LoanLedger) ListActive(ctx context.Context) ([]*db.Loan, error) {
	var loans []*db.Loan
	err := l.db.WithContext(ctx).Where("returned = ?", false).Order("id").Find(&loans).Error
	if err != nil {
		l.log.Error("Failed to list active loans", zap.Error(err))
		return nil, err
	}
	return loans, nil
}

// ListActiveForBook returns the open loans for a book. Under the coordinator's
// invariant the result has length 0 or 1.
func (l *LoanLedger) ListActiveForBook(ctx context.Context, bookID uint) ([]*db.Loan, error) {
	var loans []*db.Loan
	err := l.db.WithContext(ctx).
		Where("book_id = ? AND returned = ?", bookID, false).
		Find(&loans).Error
	if err != nil {
		l.log.Error("Failed to list active loans for book", zap.Uint("book_id", bookID), zap.Error(err))
		return nil, err
	}
	return loans, nil
}

// CountActiveForBook returns the number of open loans for a book
func (l *LoanLedger) CountActiveForBook(ctx context.Context, bookID uint) (int64, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&db.Loan{}).
		Where("book_id = ? AND returned = ?", bookID, false).
		Count(&count).Error
	if err != nil {
		l.log.Error("Failed to count active loans", zap.Uint("book_id", bookID), zap.Error(err))
		return 0, err
	}
	return count, nil
}

// ListForAccount returns all loans for an account
func (l *LoanLedger) ListForAccount(ctx context.Context, accountID uint) ([]*db.Loan, error) {
	var loans []*db.Loan
	err := l.db.WithContext(ctx).Where("account_id = ?", accountID).Order("id").Find(&loans).Error
	if err != nil {
		l.log.Error("Failed to list loans for account", zap.Uint("account_id", accountID), zap.Error(err))
		return nil, err
	}
	return loans, nil
}

// ListActiveForAccount returns the open loans for an account
func (l *LoanLedger) ListActiveForAccount(ctx context.Context, accountID uint) ([]*db.Loan, error) {
	var loans []*db.Loan
	err := l.db.WithContext(ctx).
		Where("account_id = ? AND returned = ?", accountID, false).
		Order("id").
		Find(&loans).Error
	if err != nil {
		l.log.Error("Failed to list active loans for account", zap.Uint("account_id", accountID), zap.Error(err))
		return nil, err
	}
	return loans, nil
}

// Delete removes a loan record. The ledger is an append-only audit trail;
// the sole caller is the coordinator's borrow compensation, discarding a loan
// that never became visible because the availability write failed.
func (l *LoanLedger) Delete(ctx context.Context, id uint) error {
	result := l.db.WithContext(ctx).Delete(&db.Loan{}, id)
	if result.Error != nil {
		l.log.Error("Failed to delete loan", zap.Uint("loan_id", id), zap.Error(result.Error))
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrLoanNotFound
	}
	return nil
}

// MarkReturned closes a loan exactly once. The guarded update only matches an
// open loan, so a second attempt falls through to the lookup that
// distinguishes AlreadyReturned from NotFound.
func (l *LoanLedger) MarkReturned(ctx context.Context, id uint, returnedAt time.Time) (*db.Loan, error) {
	result := l.db.WithContext(ctx).Model(&db.Loan{}).
		Where("id = ? AND returned = ?", id, false).
		Updates(map[string]interface{}{
			"returned":    true,
			"returned_at": returnedAt,
		})
	if result.Error != nil {
		l.log.Error("Failed to mark loan returned", zap.Uint("loan_id", id), zap.Error(result.Error))
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		loan, err := l.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if loan.Returned {
			return nil, ErrAlreadyReturned
		}
		return nil, ErrLoanNotFound
	}

	l.log.Info("Loan returned", zap.Uint("loan_id", id))
	return l.Get(ctx, id)
}
