package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/libraria/lending/internal/db"
)

type borrowRequest struct {
	BookID uint `json:"book_id" binding:"required"`
	// AccountID is optional: librarians and admins may lend to another
	// account; everyone else borrows for themselves.
	AccountID uint `json:"account_id"`
}

func (s *Server) handleBorrow(c *gin.Context) {
	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: codeBadRequest, Error: err.Error()})
		return
	}

	p := principalFrom(c)
	borrower := req.AccountID
	if borrower == 0 {
		borrower = p.AccountID
	}

	loan, err := s.coord.Borrow(c.Request.Context(), p, borrower, req.BookID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"loan_id": loan.ID,
		"due_at":  loan.DueAt,
	})
}

type returnRequest struct {
	LoanID uint `json:"loan_id" binding:"required"`
}

func (s *Server) handleReturn(c *gin.Context) {
	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: codeBadRequest, Error: err.Error()})
		return
	}

	loan, err := s.coord.Return(c.Request.Context(), principalFrom(c), req.LoanID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"loan_id":     loan.ID,
		"returned_at": loan.ReturnedAt,
	})
}

// handleListLoans serves the dashboard polling reads:
// ?filter=all (librarian/admin), ?filter=active (librarian/admin),
// ?filter=mine (own history, any role).
func (s *Server) handleListLoans(c *gin.Context) {
	p := principalFrom(c)
	filter := c.DefaultQuery("filter", "mine")

	switch filter {
	case "mine":
		loans, err := s.loans.ListForAccount(c.Request.Context(), p.AccountID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, loans)

	case "all", "active":
		if p.Role != db.RoleLibrarian && p.Role != db.RoleAdmin {
			c.JSON(http.StatusForbidden, errorResponse{Code: codeNotAllowed, Error: "insufficient role"})
			return
		}
		var err error
		var loans interface{}
		if filter == "all" {
			loans, err = s.loans.ListAll(c.Request.Context())
		} else {
			loans, err = s.loans.ListActive(c.Request.Context())
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, loans)

	default:
		c.JSON(http.StatusBadRequest, errorResponse{Code: codeBadRequest, Error: "unknown filter"})
	}
}
