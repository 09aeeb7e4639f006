package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/libraria/lending/internal/lending"
	"github.com/libraria/lending/internal/repo"
)

// Machine-readable reason codes, one per entry in the error taxonomy. The UI
// relies on these to tell "someone else just borrowed this" apart from "you
// already returned this", so the typed reason is surfaced verbatim.
const (
	codeNotFound        = "not_found"
	codeConflict        = "conflict"
	codeUnauthorized    = "unauthorized"
	codePendingApproval = "pending_approval"
	codeBusy            = "busy"
	codeAlreadyReturned = "already_returned"
	codeNotAllowed      = "not_allowed"
	codeBadRequest      = "bad_request"
	codeInternal        = "internal"
)

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
	// Retryable marks transient failures (lock contention) that are safe to
	// retry immediately.
	Retryable bool `json:"retryable,omitempty"`
}

func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	c.JSON(status, errorResponse{
		Code:      code,
		Error:     err.Error(),
		Retryable: code == codeBusy,
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, repo.ErrBookNotFound),
		errors.Is(err, repo.ErrAccountNotFound),
		errors.Is(err, repo.ErrLoanNotFound):
		return http.StatusNotFound, codeNotFound

	case errors.Is(err, repo.ErrAlreadyReturned):
		return http.StatusConflict, codeAlreadyReturned

	case errors.Is(err, repo.ErrUsernameTaken),
		errors.Is(err, repo.ErrEmailTaken),
		errors.Is(err, lending.ErrBookUnavailable),
		errors.Is(err, lending.ErrBookOnLoan),
		errors.Is(err, lending.ErrNotPendingLibrarian),
		errors.Is(err, lending.ErrAlreadyLibrarian),
		errors.Is(err, lending.ErrNotLibrarian):
		return http.StatusConflict, codeConflict

	case errors.Is(err, repo.ErrInvalidCredentials):
		return http.StatusUnauthorized, codeUnauthorized

	case errors.Is(err, repo.ErrPendingApproval):
		return http.StatusForbidden, codePendingApproval

	case errors.Is(err, lending.ErrBorrowNotAllowed),
		errors.Is(err, lending.ErrNotAllowed):
		return http.StatusForbidden, codeNotAllowed

	case errors.Is(err, lending.ErrBusy):
		return http.StatusLocked, codeBusy

	case errors.Is(err, repo.ErrInvalidRole):
		return http.StatusBadRequest, codeBadRequest

	default:
		return http.StatusInternalServerError, codeInternal
	}
}
