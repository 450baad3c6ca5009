package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

// Service is the main auth service with dependencies
type Service struct {
	users          Directory
	tokenGenerator TokenGenerator
	accessTTL      int64
	bcryptCost     int
	logger         *slog.Logger
}

func NewService(users Directory, tokens *JWTTokenGenerator, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		users:          users,
		tokenGenerator: tokens,
		accessTTL:      int64(tokens.AccessTokenTTL.Seconds()),
		bcryptCost:     bcryptCost,
		logger:         logger,
	}
}

// Authenticate validates credentials and returns tokens
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	u, err := s.users.GetByEmail(ctx, dto.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			// same answer as a wrong password
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(dto.Password))
			return AuthTokens{}, apperrors.ErrInvalidCredentials
		}
		return AuthTokens{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.Password)); err != nil {
		s.logger.Warn("login failed: password mismatch", "user_id", u.ID)
		return AuthTokens{}, apperrors.ErrInvalidCredentials
	}
	if !u.IsActive {
		return AuthTokens{}, apperrors.ErrUserInactive
	}

	s.logger.Info("user authenticated", "user_id", u.ID, "role", u.Role)
	return s.issue(u)
}

// RefreshTokens validates refresh token and returns new tokens
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := s.tokenGenerator.Validate(TokenRefresh, refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}
	u, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return AuthTokens{}, err
	}
	return s.issue(u)
}

// Authenticated resolves an access token to its active user.
func (s *Service) Authenticated(ctx context.Context, accessToken string) (*user.User, error) {
	claims, err := s.tokenGenerator.Validate(TokenAccess, accessToken)
	if err != nil {
		return nil, err
	}
	return s.activeUser(ctx, claims.UserID)
}

// UserIDFromToken serves the live notification socket handshake.
func (s *Service) UserIDFromToken(token string) (int64, error) {
	claims, err := s.tokenGenerator.Validate(TokenAccess, token)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// HashPassword creates a bcrypt hash of the password
func (s *Service) HashPassword(password string) (string, error) {
	return HashPassword(password, s.bcryptCost)
}

func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) activeUser(ctx context.Context, id int64) (*user.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, apperrors.ErrUserInactive
	}
	return u, nil
}

func (s *Service) issue(u *user.User) (AuthTokens, error) {
	access, err := s.tokenGenerator.Generate(TokenAccess, u)
	if err != nil {
		return AuthTokens{}, apperrors.NewInternalError("failed to issue token", err)
	}
	refresh, err := s.tokenGenerator.Generate(TokenRefresh, u)
	if err != nil {
		return AuthTokens{}, apperrors.NewInternalError("failed to issue token", err)
	}
	return AuthTokens{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.accessTTL}, nil
}

// bcrypt hash of an unguessable value; keeps unknown-email logins as slow as real ones
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOHiA5nOZ3/9LkCqkMtYgQ6uJHdxZ5B6S"
