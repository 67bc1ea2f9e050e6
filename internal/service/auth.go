// Package service implements the application logic between the HTTP
// handlers and the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stacksapp/stacks-server/internal/auth"
	"github.com/stacksapp/stacks-server/internal/domain"
	domainerrors "github.com/stacksapp/stacks-server/internal/errors"
	"github.com/stacksapp/stacks-server/internal/id"
	"github.com/stacksapp/stacks-server/internal/store"
	"github.com/stacksapp/stacks-server/internal/validation"
)

// fixedPassword is the single password every account authenticates with.
// Per-user passwords are not part of the current design; the hash is still
// computed and stored per user so the verification path never special-cases.
const fixedPassword = "password"

// AuthService handles user registration, login, and token verification.
type AuthService struct {
	store     *store.Store
	tokens    *auth.TokenService
	validator *validation.Validator
	logger    *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(store *store.Store, tokens *auth.TokenService, validator *validation.Validator, logger *slog.Logger) *AuthService {
	return &AuthService{
		store:     store,
		tokens:    tokens,
		validator: validator,
		logger:    logger,
	}
}

// CreateUserRequest contains new account data.
type CreateUserRequest struct {
	Username      string `json:"username" validate:"required,min=3,max=100"`
	FavoriteGenre string `json:"favorite_genre" validate:"required,max=100"`
}

// LoginRequest contains user credentials.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	// Extracted from the request by the handler for the audit log.
	RemoteAddr string `json:"-"`
}

// TokenResponse contains an issued access token and the authenticated user.
type TokenResponse struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresIn int          `json:"expires_in"`
}

// CreateUser registers a new account.
func (s *AuthService) CreateUser(ctx context.Context, req CreateUserRequest) (*domain.User, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	passwordHash, err := auth.HashPassword(fixedPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	userID, err := id.Generate("user")
	if err != nil {
		return nil, fmt.Errorf("generate user ID: %w", err)
	}

	user := &domain.User{
		Username:      req.Username,
		FavoriteGenre: req.FavoriteGenre,
		PasswordHash:  passwordHash,
	}
	user.ID = userID
	user.InitTimestamps()

	if err := s.store.Users.Create(ctx, user.ID, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, domainerrors.ValidationWithArgs("username already taken", req)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username))
	return user.Public(), nil
}

// Login authenticates a user and issues an access token.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.store.Users.GetByIndex(ctx, "username", req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Don't leak whether the username exists.
			return nil, domainerrors.InvalidCredentials("invalid username or password")
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	valid, err := auth.VerifyPassword(user.PasswordHash, req.Password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return nil, domainerrors.InvalidCredentials("invalid username or password")
	}

	token, err := s.tokens.IssueToken(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("remote_addr", req.RemoteAddr))

	return &TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(s.tokens.TokenDuration().Seconds()),
		User:      user.Public(),
	}, nil
}

// VerifyAccessToken validates a token and returns the associated user.
// Used by the authentication middleware. The claims must reference a user
// record that still exists; a token for a deleted user is invalid.
func (s *AuthService) VerifyAccessToken(ctx context.Context, tokenString string) (*domain.User, *auth.Claims, error) {
	claims, err := s.tokens.VerifyToken(tokenString)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.store.Users.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, domainerrors.InvalidToken("invalid token")
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}

	return user, claims, nil
}
