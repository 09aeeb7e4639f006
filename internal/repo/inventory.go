package repo

import (
	"context"
	"errors"

	"github.com/libraria/lending/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrBookNotFound is returned when a book is not found
	ErrBookNotFound = errors.New("book not found")
)

// BookUpdate carries the catalog fields an edit may change. Availability is
// deliberately absent: it is owned by the lending coordinator.
type BookUpdate struct {
	Title  *string
	Author *string
	Genre  *string
}

// InventoryStore owns Book records and their static catalog fields.
type InventoryStore struct {
	db  *db.DB
	log *zap.Logger
}

// NewInventoryStore creates a new inventory store
func NewInventoryStore(database *db.DB, logger *zap.Logger) *InventoryStore {
	return &InventoryStore{
		db:  database,
		log: logger,
	}
}

// Create adds a new book to the catalog. New books start available.
func (s *InventoryStore) Create(ctx context.Context, title, author, genre string) (*db.Book, error) {
	book := &db.Book{
		Title:     title,
		Author:    author,
		Genre:     genre,
		Available: true,
	}

	if err := s.db.WithContext(ctx).Create(book).Error; err != nil {
		s.log.Error("Failed to create book", zap.String("title", title), zap.Error(err))
		return nil, err
	}

	s.log.Info("Book created", zap.Uint("book_id", book.ID), zap.String("title", book.Title))
	return book, nil
}

// Get retrieves a book by id
func (s *InventoryStore) Get(ctx context.Context, id uint) (*db.Book, error) {
	var book db.Book
	err := s.db.WithContext(ctx).First(&book, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		s.log.Error("Failed to get book", zap.Uint("book_id", id), zap.Error(err))
		return nil, err
	}

	return &book, nil
}

// List returns all books in the catalog
func (s *InventoryStore) List(ctx context.Context) ([]*db.Book, error) {
	var books []*db.Book
	if err := s.db.WithContext(ctx).Order("id").Find(&books).Error; err != nil {
		s.log.Error("Failed to list books", zap.Error(err))
		return nil, err
	}
	return books, nil
}

// Update edits the catalog fields of a book. Only non-nil fields change.
func (s *InventoryStore) Update(ctx context.Context, id uint, fields BookUpdate) (*db.Book, error) {
	updates := make(map[string]interface{})
	if fields.Title != nil {
		updates["title"] = *fields.Title
	}
	if fields.Author != nil {
		updates["author"] = *fields.Author
	}
	if fields.Genre != nil {
		updates["genre"] = *fields.Genre
	}

	if len(updates) > 0 {
		result := s.db.WithContext(ctx).Model(&db.Book{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			s.log.Error("Failed to update book", zap.Uint("book_id", id), zap.Error(result.Error))
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, ErrBookNotFound
		}
		s.log.Info("Book updated", zap.Uint("book_id", id))
	}

	return s.Get(ctx, id)
}

// SetAvailable writes the cached availability flag. Only the lending
// coordinator may call this, and only while holding the book's lock.
func (s *InventoryStore) SetAvailable(ctx context.Context, id uint, available bool) error {
	result := s.db.WithContext(ctx).Model(&db.Book{}).Where("id = ?", id).Update("available", available)
	if result.Error != nil {
		s.log.Error("Failed to set book availability", zap.Uint("book_id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

// Delete removes a book from the catalog. The active-loan guard lives in the
// lending coordinator, which holds the per-book lock around the check and
// this call.
func (s *InventoryStore) Delete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&db.Book{}, id)
	if result.Error != nil {
		s.log.Error("Failed to delete book", zap.Uint("book_id", id), zap.Error(result.Error))
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}

	s.log.Info("Book deleted", zap.Uint("book_id", id))
	return nil
}
