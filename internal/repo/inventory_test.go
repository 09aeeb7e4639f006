package repo

import (
	"context"
	"testing"

	"github.com/libraria/lending/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBook(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	store := NewInventoryStore(database, log)

	ctx := context.Background()

	book, err := store.Create(ctx, "The Left Hand of Darkness", "Ursula K. Le Guin", "sci-fi")
	require.NoError(t, err)
	assert.NotZero(t, book.ID)
	assert.True(t, book.Available)

	retrieved, err := store.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "The Left Hand of Darkness", retrieved.Title)
	assert.Equal(t, "Ursula K. Le Guin", retrieved.Author)
	assert.Equal(t, "sci-fi", retrieved.Genre)
}

func TestGetBookNotFound(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	store := NewInventoryStore(database, log)

	_, err := store.Get(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestUpdateBook(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	store := NewInventoryStore(database, log)

	ctx := context.Background()

	book, err := store.Create(ctx, "Original Title", "Original Author", "fiction")
	require.NoError(t, err)

	title := "Updated Title"
	updated, err := store.Update(ctx, book.ID, BookUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Updated Title", updated.Title)
	assert.Equal(t, "Original Author", updated.Author) // Should not change
}

func TestUpdateBookNotFound(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	store := NewInventoryStore(database, log)

	title := "x"
	_, err := store.Update(context.Background(), 42, BookUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestUpdateBookCannotTouchAvailability(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	store := NewInventoryStore(database, log)

	ctx := context.Background()

	book, err := store.Create(ctx, "A Book", "Someone", "")
	require.NoError(t, err)
	require.NoError(t, store.SetAvailable(ctx, book.ID, false))

	// A catalog edit has no availability field at all; the flag survives.
	title := "A Book, Revised"
	updated, err := store.Update(ctx, book.ID, BookUpdate{Title: &title})
	require.NoError(t, err)
	assert.False(t, updated.Available)
}

func TestListBooks(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	store := NewInventoryStore(database, log)

	ctx := context.Background()

	_, err := store.Create(ctx, "Book 1", "Author A", "fiction")
	require.NoError(t, err)
	_, err = store.Create(ctx, "Book 2", "Author B", "fiction")
	require.NoError(t, err)

	books, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 2)
}

func TestDeleteBook(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	store := NewInventoryStore(database, log)

	ctx := context.Background()

	book, err := store.Create(ctx, "To Delete", "Someone", "")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, book.ID))

	_, err = store.Get(ctx, book.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)

	assert.ErrorIs(t, store.Delete(ctx, book.ID), ErrBookNotFound)
}
