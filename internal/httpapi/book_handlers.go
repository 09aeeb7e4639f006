package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/libraria/lending/internal/events"
	"github.com/libraria/lending/internal/repo"
)

func (s *Server) handleListBooks(c *gin.Context) {
	books, err := s.books.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

type createBookRequest struct {
	Title  string `json:"title" binding:"required"`
	Author string `json:"author" binding:"required"`
	Genre  string `json:"genre"`
}

func (s *Server) handleCreateBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: codeBadRequest, Error: err.Error()})
		return
	}

	book, err := s.books.Create(c.Request.Context(), req.Title, req.Author, req.Genre)
	if err != nil {
		respondError(c, err)
		return
	}

	s.publisher.Publish(c.Request.Context(), events.EventTypeBookCreated, map[string]interface{}{
		"book_id": book.ID,
		"title":   book.Title,
		"author":  book.Author,
	})

	c.JSON(http.StatusCreated, book)
}

type updateBookRequest struct {
	Title  *string `json:"title"`
	Author *string `json:"author"`
	Genre  *string `json:"genre"`
}

func (s *Server) handleUpdateBook(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req updateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: codeBadRequest, Error: err.Error()})
		return
	}

	book, err := s.books.Update(c.Request.Context(), id, repo.BookUpdate{
		Title:  req.Title,
		Author: req.Author,
		Genre:  req.Genre,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	s.publisher.Publish(c.Request.Context(), events.EventTypeBookUpdated, map[string]interface{}{
		"book_id": book.ID,
	})

	c.JSON(http.StatusOK, book)
}

func (s *Server) handleDeleteBook(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := s.coord.DeleteBook(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: codeBadRequest, Error: "invalid id"})
		return 0, false
	}
	return uint(id), true
}
