package api

import (
	"encoding/json/v2"
	"net/http"

	"github.com/stacksapp/stacks-server/internal/http/response"
	"github.com/stacksapp/stacks-server/internal/service"
)

// CreateUserRequest is the request body for user registration.
type CreateUserRequest struct {
	Username      string `json:"username"`
	FavoriteGenre string `json:"favorite_genre"`
}

// LoginRequest is the request body for user login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleCreateUser registers a new account.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body", s.logger)
		return
	}

	user, err := s.authService.CreateUser(r.Context(), service.CreateUserRequest{
		Username:      req.Username,
		FavoriteGenre: req.FavoriteGenre,
	})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Created(w, user, s.logger)
}

// handleLogin authenticates a user and returns an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body", s.logger)
		return
	}

	resp, err := s.authService.Login(r.Context(), service.LoginRequest{
		Username:   req.Username,
		Password:   req.Password,
		RemoteAddr: clientIP(r),
	})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, resp, s.logger)
}

// handleGetCurrentUser returns the authenticated account, or null data for
// anonymous callers.
func (s *Server) handleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	if user == nil {
		response.Success(w, nil, s.logger)
		return
	}
	response.Success(w, user.Public(), s.logger)
}
