package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/libraria/lending/internal/auth"
	"github.com/libraria/lending/internal/db"
	"github.com/libraria/lending/internal/lending"
	"github.com/libraria/lending/internal/repo"
	"github.com/libraria/lending/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupServer(t *testing.T) (*gin.Engine, *repo.AccountDirectory) {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	database := &db.DB{DB: gormDB}
	require.NoError(t, db.RunMigrations(database))

	log := logger.NewLogger("test", "info")
	books := repo.NewInventoryStore(database, log)
	accounts := repo.NewAccountDirectory(database, log)
	loans := repo.NewLoanLedger(database, log)

	coord := lending.NewLendingCoordinator(books, accounts, loans, 14*24*time.Hour, 2*time.Second, nil, nil, log)
	workflow := lending.NewMembershipWorkflow(accounts, coord, nil, log)
	sessions := auth.NewSessionManager(time.Hour)

	server := NewServer(books, accounts, loans, coord, workflow, sessions, nil, database, log)
	return server.Router(nil), accounts
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func login(t *testing.T, router *gin.Engine, username, password string) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	decode(t, rec, &resp)
	return resp.Token
}

func adminToken(t *testing.T, router *gin.Engine, accounts *repo.AccountDirectory) string {
	t.Helper()
	require.NoError(t, accounts.EnsureAdmin(context.Background(), "admin", "rootpw", "admin@example.com"))
	return login(t, router, "admin", "rootpw")
}

func TestBorrowReturnFlow(t *testing.T) {
	router, accounts := setupServer(t)
	admin := adminToken(t, router, accounts)

	// Admin catalogs a book
	rec := doJSON(t, router, http.MethodPost, "/api/books", admin, gin.H{
		"title":  "Dune",
		"author": "Frank Herbert",
		"genre":  "sci-fi",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var book db.Book
	decode(t, rec, &book)

	// A member registers and logs in
	rec = doJSON(t, router, http.MethodPost, "/api/auth/register", "", gin.H{
		"username":  "alice",
		"password":  "pw",
		"full_name": "Alice Doe",
		"email":     "alice@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	token := login(t, router, "alice", "pw")

	// Borrow
	rec = doJSON(t, router, http.MethodPost, "/api/loans/borrow", token, gin.H{"book_id": book.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var borrowResp struct {
		LoanID uint      `json:"loan_id"`
		DueAt  time.Time `json:"due_at"`
	}
	decode(t, rec, &borrowResp)
	assert.NotZero(t, borrowResp.LoanID)

	// The listing now shows the book as unavailable
	rec = doJSON(t, router, http.MethodGet, "/api/books", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var books []db.Book
	decode(t, rec, &books)
	require.Len(t, books, 1)
	assert.False(t, books[0].Available)

	// A second borrow conflicts
	rec = doJSON(t, router, http.MethodPost, "/api/loans/borrow", token, gin.H{"book_id": book.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Return
	rec = doJSON(t, router, http.MethodPost, "/api/loans/return", token, gin.H{"loan_id": borrowResp.LoanID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Double return is surfaced distinctly
	rec = doJSON(t, router, http.MethodPost, "/api/loans/return", token, gin.H{"loan_id": borrowResp.LoanID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	var errResp struct {
		Code string `json:"code"`
	}
	decode(t, rec, &errResp)
	assert.Equal(t, "already_returned", errResp.Code)

	// Available again
	rec = doJSON(t, router, http.MethodGet, "/api/books", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &books)
	assert.True(t, books[0].Available)
}

func TestPendingLibrarianLoginGate(t *testing.T) {
	router, _ := setupServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/register", "", gin.H{
		"username":  "erin",
		"password":  "pw",
		"full_name": "Erin Roe",
		"email":     "erin@example.com",
		"role":      "librarian",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "erin",
		"password": "pw",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var errResp struct {
		Code string `json:"code"`
	}
	decode(t, rec, &errResp)
	assert.Equal(t, "pending_approval", errResp.Code)
}

func TestMembershipEndpoints(t *testing.T) {
	router, accounts := setupServer(t)
	admin := adminToken(t, router, accounts)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/register", "", gin.H{
		"username":  "erin",
		"password":  "pw",
		"full_name": "Erin Roe",
		"email":     "erin@example.com",
		"role":      "librarian",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var applicant db.Account
	decode(t, rec, &applicant)

	// Pending list shows the application
	rec = doJSON(t, router, http.MethodGet, "/api/accounts/pending", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []db.Account
	decode(t, rec, &pending)
	require.Len(t, pending, 1)

	// Approve, then the applicant can log in
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/accounts/%d/approve", applicant.ID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login(t, router, "erin", "pw")

	// Promote/demote round trip on a user account
	rec = doJSON(t, router, http.MethodPost, "/api/auth/register", "", gin.H{
		"username":  "alice",
		"password":  "pw",
		"full_name": "Alice Doe",
		"email":     "alice@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var alice db.Account
	decode(t, rec, &alice)

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/accounts/%d/promote", alice.ID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var promoted db.Account
	decode(t, rec, &promoted)
	assert.Equal(t, db.RoleLibrarian, promoted.Role)
	assert.Equal(t, db.StatusApproved, promoted.Status)

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/accounts/%d/demote", alice.ID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var demoted db.Account
	decode(t, rec, &demoted)
	assert.Equal(t, db.RoleUser, demoted.Role)
	assert.Equal(t, db.StatusApproved, demoted.Status)
}

func TestRoleEnforcement(t *testing.T) {
	router, _ := setupServer(t)

	// Anonymous callers cannot borrow
	rec := doJSON(t, router, http.MethodPost, "/api/loans/borrow", "", gin.H{"book_id": 1})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A plain user cannot write the catalog or read the roster
	rec = doJSON(t, router, http.MethodPost, "/api/auth/register", "", gin.H{
		"username":  "alice",
		"password":  "pw",
		"full_name": "Alice Doe",
		"email":     "alice@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	token := login(t, router, "alice", "pw")

	rec = doJSON(t, router, http.MethodPost, "/api/books", token, gin.H{"title": "x", "author": "y"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/accounts", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/loans?filter=all", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteBookConflict(t *testing.T) {
	router, accounts := setupServer(t)
	admin := adminToken(t, router, accounts)

	rec := doJSON(t, router, http.MethodPost, "/api/books", admin, gin.H{"title": "Dune", "author": "Frank Herbert"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var book db.Book
	decode(t, rec, &book)

	rec = doJSON(t, router, http.MethodPost, "/api/loans/borrow", admin, gin.H{"book_id": book.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/books/%d", book.ID), admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
