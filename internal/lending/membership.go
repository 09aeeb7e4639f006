package lending

import (
	"context"
	"errors"

	"github.com/libraria/lending/internal/db"
	"github.com/libraria/lending/internal/events"
	"github.com/libraria/lending/internal/repo"
	"go.uber.org/zap"
)

var (
	// ErrNotPendingLibrarian is returned when approving or declining an
	// account that is not a pending librarian application
	ErrNotPendingLibrarian = errors.New("account is not a pending librarian")

	// ErrAlreadyLibrarian is returned when promoting an account that is not a user
	ErrAlreadyLibrarian = errors.New("account is not a promotable user")

	// ErrNotLibrarian is returned when demoting an account that is not an
	// approved librarian
	ErrNotLibrarian = errors.New("account is not an approved librarian")
)

// MembershipWorkflow drives the (role, status) transitions:
//
//	(librarian, pending)  --approve--> (librarian, approved)
//	(librarian, pending)  --decline--> deleted
//	(user, approved)      --promote--> (librarian, approved)
//	(librarian, approved) --demote-->  (user, approved)
//
// Promotion deliberately skips the pending step, matching the behavior the
// registration-time approval gate does not cover: an admin vouches directly.
// The admin role is never reachable here; it is provisioned out-of-band.
// Transitions serialize per account on the coordinator's account locks.
type MembershipWorkflow struct {
	accounts  *repo.AccountDirectory
	locks     *keyedLocks
	publisher *events.Publisher
	log       *zap.Logger
}

// NewMembershipWorkflow creates the workflow. It shares the coordinator's
// per-account locks so a promote and a delete of the same account serialize.
func NewMembershipWorkflow(accounts *repo.AccountDirectory, coord *LendingCoordinator, publisher *events.Publisher, log *zap.Logger) *MembershipWorkflow {
	return &MembershipWorkflow{
		accounts:  accounts,
		locks:     coord.accountLocks,
		publisher: publisher,
		log:       log,
	}
}

// Approve turns a pending librarian application into an approved librarian.
func (w *MembershipWorkflow) Approve(ctx context.Context, accountID uint) (*db.Account, error) {
	return w.transition(ctx, accountID, func(account *db.Account) (string, error) {
		if account.Role != db.RoleLibrarian || account.Status != db.StatusPending {
			return "", ErrNotPendingLibrarian
		}
		if err := w.accounts.SetStatus(ctx, accountID, db.StatusApproved); err != nil {
			return "", err
		}
		return events.EventTypeAccountApproved, nil
	})
}

// Decline rejects a pending librarian application and deletes the account.
func (w *MembershipWorkflow) Decline(ctx context.Context, accountID uint) error {
	if err := w.locks.Acquire(ctx, accountID); err != nil {
		return err
	}
	defer w.locks.Release(accountID)

	account, err := w.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Role != db.RoleLibrarian || account.Status != db.StatusPending {
		return ErrNotPendingLibrarian
	}

	if err := w.accounts.Delete(ctx, accountID); err != nil {
		return err
	}

	w.log.Info("Librarian application declined", zap.Uint("account_id", accountID))
	w.publisher.Publish(ctx, events.EventTypeAccountDeclined, map[string]interface{}{
		"account_id": accountID,
		"username":   account.Username,
	})
	return nil
}

// Promote turns an approved user into an approved librarian directly.
func (w *MembershipWorkflow) Promote(ctx context.Context, accountID uint) (*db.Account, error) {
	return w.transition(ctx, accountID, func(account *db.Account) (string, error) {
		if account.Role != db.RoleUser {
			return "", ErrAlreadyLibrarian
		}
		if err := w.accounts.SetRole(ctx, accountID, db.RoleLibrarian); err != nil {
			return "", err
		}
		return events.EventTypeAccountPromoted, nil
	})
}

// Demote turns an approved librarian back into a user. Status stays
// approved, so a demoted-then-repromoted account never re-enters pending.
// Pending applications are not demotable; they are handled by approve and
// decline, and a demote here would strand the account as a pending user.
func (w *MembershipWorkflow) Demote(ctx context.Context, accountID uint) (*db.Account, error) {
	return w.transition(ctx, accountID, func(account *db.Account) (string, error) {
		if account.Role != db.RoleLibrarian || account.Status != db.StatusApproved {
			return "", ErrNotLibrarian
		}
		if err := w.accounts.SetRole(ctx, accountID, db.RoleUser); err != nil {
			return "", err
		}
		return events.EventTypeAccountDemoted, nil
	})
}

// transition runs one guarded single-account write under the account lock
// and re-reads the result.
func (w *MembershipWorkflow) transition(ctx context.Context, accountID uint, apply func(*db.Account) (string, error)) (*db.Account, error) {
	if err := w.locks.Acquire(ctx, accountID); err != nil {
		return nil, err
	}
	defer w.locks.Release(accountID)

	account, err := w.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	eventType, err := apply(account)
	if err != nil {
		return nil, err
	}

	updated, err := w.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	w.log.Info("Membership transition",
		zap.Uint("account_id", accountID),
		zap.String("role", updated.Role),
		zap.String("status", updated.Status),
	)
	w.publisher.Publish(ctx, eventType, map[string]interface{}{
		"account_id": updated.ID,
		"username":   updated.Username,
		"role":       updated.Role,
		"status":     updated.Status,
	})
	return updated, nil
}
