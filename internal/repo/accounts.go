package repo

import (
	"context"
	"errors"

	"github.com/libraria/lending/internal/db"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrAccountNotFound is returned when an account is not found
	ErrAccountNotFound = errors.New("account not found")

	// ErrUsernameTaken is returned when registering with a username that already exists
	ErrUsernameTaken = errors.New("username already exists")

	// ErrEmailTaken is returned when registering with an email that already exists
	ErrEmailTaken = errors.New("email already exists")

	// ErrInvalidCredentials is returned when authentication fails
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPendingApproval is returned when a pending librarian tries to
	// authenticate. It is a distinct, user-visible outcome, not a generic
	// auth failure.
	ErrPendingApproval = errors.New("librarian application pending approval")

	// ErrInvalidRole is returned when a registration or role change names an
	// unknown role, or tries to mint an admin
	ErrInvalidRole = errors.New("invalid role")
)

// AccountDirectory owns Account records and their lifecycle status.
type AccountDirectory struct {
	db  *db.DB
	log *zap.Logger
}

// NewAccountDirectory creates a new account directory
func NewAccountDirectory(database *db.DB, logger *zap.Logger) *AccountDirectory {
	return &AccountDirectory{
		db:  database,
		log: logger,
	}
}

// Register creates a new user or librarian account. Users are approved
// immediately; librarians start pending and cannot establish a session until
// an administrator approves them. Admin accounts are provisioned out-of-band
// and can never be registered here.
func (d *AccountDirectory) Register(ctx context.Context, username, password, fullName, email, role string) (*db.Account, error) {
	if role != db.RoleUser && role != db.RoleLibrarian {
		return nil, ErrInvalidRole
	}

	var existing db.Account
	err := d.db.WithContext(ctx).Where("username = ?", username).First(&existing).Error
	if err == nil {
		return nil, ErrUsernameTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		d.log.Error("Failed to check username", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	err = d.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		d.log.Error("Failed to check email", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	status := db.StatusApproved
	if role == db.RoleLibrarian {
		status = db.StatusPending
	}

	account := &db.Account{
		Username:     username,
		FullName:     fullName,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Status:       status,
	}

	if err := d.db.WithContext(ctx).Create(account).Error; err != nil {
		d.log.Error("Failed to create account", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	d.log.Info("Account registered",
		zap.Uint("account_id", account.ID),
		zap.String("username", account.Username),
		zap.String("role", account.Role),
		zap.String("status", account.Status),
	)
	return account, nil
}

// EnsureAdmin provisions the administrator account at startup. Admins are
// created out-of-band only: this is the single code path that mints the role,
// and it is a no-op when the username is already taken.
func (d *AccountDirectory) EnsureAdmin(ctx context.Context, username, password, email string) error {
	if password == "" {
		return nil
	}

	var existing db.Account
	err := d.db.WithContext(ctx).Where("username = ?", username).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := &db.Account{
		Username:     username,
		FullName:     "Administrator",
		Email:        email,
		PasswordHash: string(hash),
		Role:         db.RoleAdmin,
		Status:       db.StatusApproved,
	}
	if err := d.db.WithContext(ctx).Create(admin).Error; err != nil {
		return err
	}

	d.log.Info("Admin account provisioned", zap.String("username", username))
	return nil
}

// Authenticate verifies the credentials and the pending-librarian gate. A
// pending librarian gets ErrPendingApproval, never a usable account.
func (d *AccountDirectory) Authenticate(ctx context.Context, username, password string) (*db.Account, error) {
	var account db.Account
	err := d.db.WithContext(ctx).Where("username = ?", username).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		d.log.Error("Failed to look up account", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	if account.Role == db.RoleLibrarian && account.Status == db.StatusPending {
		return nil, ErrPendingApproval
	}

	return &account, nil
}

// Get retrieves an account by id
func (d *AccountDirectory) Get(ctx context.Context, id uint) (*db.Account, error) {
	var account db.Account
	err := d.db.WithContext(ctx).First(&account, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		d.log.Error("Failed to get account", zap.Uint("account_id", id), zap.Error(err))
		return nil, err
	}

	return &account, nil
}

// List returns all accounts
func (d *AccountDirectory) List(ctx context.Context) ([]*db.Account, error) {
	var accounts []*db.Account
	if err := d.db.WithContext(ctx).Order("id").Find(&accounts).Error; err != nil {
		d.log.Error("Failed to list accounts", zap.Error(err))
		return nil, err
	}
	return accounts, nil
}

// ListPending returns librarian applications awaiting approval
func (d *AccountDirectory) ListPending(ctx context.Context) ([]*db.Account, error) {
	var accounts []*db.Account
	err := d.db.WithContext(ctx).
		Where("role = ? AND status = ?", db.RoleLibrarian, db.StatusPending).
		Order("id").
		Find(&accounts).Error
	if err != nil {
		d.log.Error("Failed to list pending librarians", zap.Error(err))
		return nil, err
	}
	return accounts, nil
}

// Delete removes an account
func (d *AccountDirectory) Delete(ctx context.Context, id uint) error {
	result := d.db.WithContext(ctx).Delete(&db.Account{}, id)
	if result.Error != nil {
		d.log.Error("Failed to delete account", zap.Uint("account_id", id), zap.Error(result.Error))
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	d.log.Info("Account deleted", zap.Uint("account_id", id))
	return nil
}

// SetRole writes the account role. Only the membership workflow may call
// this; the admin role is never assignable.
func (d *AccountDirectory) SetRole(ctx context.Context, id uint, role string) error {
	if role != db.RoleUser && role != db.RoleLibrarian {
		return ErrInvalidRole
	}

	result := d.db.WithContext(ctx).Model(&db.Account{}).Where("id = ?", id).Update("role", role)
	if result.Error != nil {
		d.log.Error("Failed to set role", zap.Uint("account_id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetStatus writes the account status. Only the membership workflow may call this.
func (d *AccountDirectory) SetStatus(ctx context.Context, id uint, status string) error {
	result := d.db.WithContext(ctx).Model(&db.Account{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		d.log.Error("Failed to set status", zap.Uint("account_id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
