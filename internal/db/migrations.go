package db

import (
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&Book{}, &Account{}, &Loan{}); err != nil {
		return err
	}

	if err := createIndexes(db.DB); err != nil {
		return err
	}

	return nil
}

func createIndexes(db *gorm.DB) error {
	// The (book_id, returned) index backs the active-loan lookup that borrow,
	// return and delete-book all perform under the per-book lock.
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_loans_book_returned ON loans(book_id, returned)`,

		// Active loans per account, used by the cascade on account deletion
		`CREATE INDEX IF NOT EXISTS idx_loans_account_returned ON loans(account_id, returned)`,

		// Pending librarian listing on the admin dashboard
		`CREATE INDEX IF NOT EXISTS idx_accounts_role_status ON accounts(role, status)`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
