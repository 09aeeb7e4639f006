package db

import (
	"time"

	"gorm.io/gorm"
)

// Account roles.
const (
	RoleUser      = "user"
	RoleLibrarian = "librarian"
	RoleAdmin     = "admin"
)

// Account statuses. Status is only meaningful for librarians; users and
// admins are approved from the moment they exist.
const (
	StatusApproved = "approved"
	StatusPending  = "pending"
)

// Book represents a physical book in the catalog.
//
// Available is a cached flag owned by the lending coordinator: it is true
// iff no unreturned loan references the book. It must never be written
// through a plain catalog update.
type Book struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"type:varchar(255);not null;index:idx_books_title" json:"title"`
	Author    string    `gorm:"type:varchar(255);not null;index:idx_books_author" json:"author"`
	Genre     string    `gorm:"type:varchar(100)" json:"genre,omitempty"`
	Available bool      `gorm:"not null;default:true" json:"available"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for Book model
func (Book) TableName() string {
	return "books"
}

// Account represents a member, librarian or administrator.
type Account struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_accounts_username" json:"username"`
	FullName     string    `gorm:"type:varchar(100);not null" json:"full_name"`
	Email        string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_accounts_email" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	Role         string    `gorm:"type:varchar(20);not null;default:'user';index:idx_accounts_role_status" json:"role"`
	Status       string    `gorm:"type:varchar(20);not null;default:'approved';index:idx_accounts_role_status" json:"status"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for Account model
func (Account) TableName() string {
	return "accounts"
}

// IsApproved reports whether the account may establish a session and borrow.
func (a *Account) IsApproved() bool {
	return a.Status == StatusApproved
}

// Loan records one borrow interval of one book by one account. Loans are
// never deleted; returning a book flips Returned exactly once and stamps
// ReturnedAt, keeping the full audit trail.
type Loan struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	AccountID  uint       `gorm:"not null;index:idx_loans_account" json:"account_id"`
	BookID     uint       `gorm:"not null;index:idx_loans_book_returned,priority:1" json:"book_id"`
	BorrowedAt time.Time  `gorm:"not null" json:"borrowed_at"`
	DueAt      time.Time  `gorm:"not null" json:"due_at"`
	Returned   bool       `gorm:"not null;default:false;index:idx_loans_book_returned,priority:2" json:"returned"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for Loan model
func (Loan) TableName() string {
	return "loans"
}

// Active reports whether the loan is still open.
func (l *Loan) Active() bool {
	return !l.Returned
}

// BeforeCreate hook to set timestamps
func (b *Book) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = now
	}
	return nil
}

// BeforeUpdate hook to update timestamp
func (b *Book) BeforeUpdate(tx *gorm.DB) error {
	b.UpdatedAt = time.Now()
	return nil
}

// BeforeCreate hook to set timestamps
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	return nil
}

// BeforeUpdate hook to update timestamp
func (a *Account) BeforeUpdate(tx *gorm.DB) error {
	a.UpdatedAt = time.Now()
	return nil
}
