package api

import (
	"encoding/json/v2"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacksapp/stacks-server/internal/http/response"
	"github.com/stacksapp/stacks-server/internal/service"
)

// AddBookRequest is the request body for adding a catalog entry.
type AddBookRequest struct {
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	Published int      `json:"published"`
	Genres    []string `json:"genres"`
}

// EditAuthorRequest is the request body for setting an author's birth year.
type EditAuthorRequest struct {
	SetBornTo int `json:"set_born_to"`
}

// CountResponse carries a single count value.
type CountResponse struct {
	Count int `json:"count"`
}

// handleListBooks returns all books, optionally filtered by author name
// and/or genre via query parameters.
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	filter := service.BookFilter{
		AuthorName: r.URL.Query().Get("author"),
		Genre:      r.URL.Query().Get("genre"),
	}

	books, err := s.catalogService.AllBooks(r.Context(), filter)
	if err != nil {
		s.logger.Error("Failed to list books", "error", err)
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, books, s.logger)
}

// handleAddBook persists a new book. Requires authentication.
func (s *Server) handleAddBook(w http.ResponseWriter, r *http.Request) {
	var req AddBookRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body", s.logger)
		return
	}

	book, err := s.catalogService.AddBook(r.Context(), currentUser(r.Context()), service.AddBookRequest{
		Title:     req.Title,
		Author:    req.Author,
		Published: req.Published,
		Genres:    req.Genres,
	})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Created(w, book, s.logger)
}

// handleBookCount returns the total number of books.
func (s *Server) handleBookCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.catalogService.BookCount(r.Context())
	if err != nil {
		s.logger.Error("Failed to count books", "error", err)
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, CountResponse{Count: count}, s.logger)
}

// handleListAuthors returns all authors with derived book counts.
func (s *Server) handleListAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := s.catalogService.AllAuthors(r.Context())
	if err != nil {
		s.logger.Error("Failed to list authors", "error", err)
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, authors, s.logger)
}

// handleAuthorCount returns the total number of authors.
func (s *Server) handleAuthorCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.catalogService.AuthorCount(r.Context())
	if err != nil {
		s.logger.Error("Failed to count authors", "error", err)
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, CountResponse{Count: count}, s.logger)
}

// handleEditAuthor sets the birth year of the author named in the path.
// Requires authentication.
func (s *Server) handleEditAuthor(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		response.BadRequest(w, "author name is required", s.logger)
		return
	}

	var req EditAuthorRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body", s.logger)
		return
	}

	author, err := s.catalogService.EditAuthor(r.Context(), currentUser(r.Context()), service.EditAuthorRequest{
		Name:      name,
		SetBornTo: req.SetBornTo,
	})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, author, s.logger)
}

// handleListGenres returns the deduplicated genre list across all books.
func (s *Server) handleListGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := s.catalogService.AllGenres(r.Context())
	if err != nil {
		s.logger.Error("Failed to list genres", "error", err)
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, genres, s.logger)
}
