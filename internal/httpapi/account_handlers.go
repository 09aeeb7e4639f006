package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleListAccounts(c *gin.Context) {
	accounts, err := s.accounts.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (s *Server) handleListPending(c *gin.Context) {
	accounts, err := s.accounts.ListPending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (s *Server) handleDeleteAccount(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := s.coord.DeleteAccount(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	// Any live sessions die with the account.
	s.sessions.RevokeAccount(id)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleApprove(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	account, err := s.workflow.Approve(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (s *Server) handleDecline(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := s.workflow.Decline(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	s.sessions.RevokeAccount(id)
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePromote(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	account, err := s.workflow.Promote(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	// Sessions carry the role; force a fresh login after a role change.
	s.sessions.RevokeAccount(id)
	c.JSON(http.StatusOK, account)
}

func (s *Server) handleDemote(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	account, err := s.workflow.Demote(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	s.sessions.RevokeAccount(id)
	c.JSON(http.StatusOK, account)
}
