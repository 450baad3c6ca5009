package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// TokenGenerator creates and validates signed tokens.
type TokenGenerator interface {
	Generate(typ TokenType, u *user.User) (string, error)
	Validate(typ TokenType, tokenString string) (*Claims, error)
}

// Directory is the slice of the user directory auth needs.
type Directory interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims represents JWT token claims
type Claims struct {
	UserID int64         `json:"user_id"`
	Role   approval.Role `json:"role"`
	Type   TokenType     `json:"typ"`
	jwt.RegisteredClaims
}

type JWTTokenGenerator struct {
	AccessTokenSecret  []byte
	RefreshTokenSecret []byte
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	now                func() time.Time
}

// NewJWTTokenGenerator creates a new JWT token generator
func NewJWTTokenGenerator(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTTokenGenerator {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &JWTTokenGenerator{
		AccessTokenSecret:  []byte(accessSecret),
		RefreshTokenSecret: []byte(refreshSecret),
		AccessTokenTTL:     accessTTL,
		RefreshTokenTTL:    refreshTTL,
		now:                time.Now,
	}
}

func (j *JWTTokenGenerator) secretAndTTL(typ TokenType) ([]byte, time.Duration, error) {
	switch typ {
	case TokenAccess:
		return j.AccessTokenSecret, j.AccessTokenTTL, nil
	case TokenRefresh:
		return j.RefreshTokenSecret, j.RefreshTokenTTL, nil
	}
	return nil, 0, fmt.Errorf("unknown token type %q", typ)
}

func (j *JWTTokenGenerator) Generate(typ TokenType, u *user.User) (string, error) {
	secret, ttl, err := j.secretAndTTL(typ)
	if err != nil {
		return "", err
	}
	now := j.now()
	claims := &Claims{
		UserID: u.ID,
		Role:   u.Role,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   strconv.FormatInt(u.ID, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Validate checks the signature with the secret of typ; a refresh token
// presented as an access token fails the signature check.
func (j *JWTTokenGenerator) Validate(typ TokenType, tokenString string) (*Claims, error) {
	secret, _, err := j.secretAndTTL(typ)
	if err != nil {
		return nil, err
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken.WithCause(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Type != typ || claims.UserID <= 0 {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}
