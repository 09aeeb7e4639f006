package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/libraria/lending/internal/db"
	"github.com/libraria/lending/internal/events"
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Role     string `json:"role"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: codeBadRequest, Error: err.Error()})
		return
	}
	if req.Role == "" {
		req.Role = db.RoleUser
	}

	account, err := s.accounts.Register(c.Request.Context(), req.Username, req.Password, req.FullName, req.Email, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	s.publisher.Publish(c.Request.Context(), events.EventTypeAccountRegistered, map[string]interface{}{
		"account_id": account.ID,
		"username":   account.Username,
		"role":       account.Role,
		"status":     account.Status,
	})

	c.JSON(http.StatusCreated, account)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: codeBadRequest, Error: err.Error()})
		return
	}

	account, err := s.accounts.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	token := s.sessions.Issue(account)
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"account": account,
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	s.sessions.Revoke(bearerToken(c.GetHeader("Authorization")))
	c.Status(http.StatusNoContent)
}
