package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"agrimarket-backend/internal/models"
)

const tokenIssuer = "agrimarket"

// UserFinder resolves the subject of a session
type UserFinder interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// AuthService issues and resolves bearer sessions
type AuthService struct {
	jwtSecret     []byte
	jwtExpiration time.Duration
	users         UserFinder
	revocations   RevocationStore
	logger        *zap.Logger
	now           func() time.Time
}

// NewAuthService creates a new auth service. A nil revocation store keeps
// revoked sessions in memory.
func NewAuthService(jwtSecret string, jwtExpirationSeconds int, users UserFinder, revocations RevocationStore, logger *zap.Logger) *AuthService {
	if revocations == nil {
		revocations = NewMemoryRevocationStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		jwtSecret:     []byte(jwtSecret),
		jwtExpiration: time.Duration(jwtExpirationSeconds) * time.Second,
		users:         users,
		revocations:   revocations,
		logger:        logger,
		now:           time.Now,
	}
}

// SessionClaims represents JWT session claims. The subject is the username.
type SessionClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Session is an issued bearer token
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IssueSession signs a session token for username
func (s *AuthService) IssueSession(username string, role models.Role) (*Session, error) {
	now := s.now()
	expiresAt := now.Add(s.jwtExpiration)
	claims := &SessionClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   username,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Session{
		AccessToken: tokenString,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt.UTC(),
	}, nil
}

// parse verifies the signature and expiry of a token
func (s *AuthService) parse(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredSession
		}
		return nil, &Error{Kind: KindUnauthorized, Code: ErrInvalidSession.Code, Message: ErrInvalidSession.Message, Err: err}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// ResolveSession returns the user a session token names
func (s *AuthService) ResolveSession(ctx context.Context, tokenString string) (*models.User, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.ID != "" {
		revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, storeError("check session revocation", err)
		}
		if revoked {
			return nil, ErrInvalidSession
		}
	}

	user, err := s.users.GetUserByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	return user, nil
}

// RevokeSession invalidates a still-valid token until it expires
func (s *AuthService) RevokeSession(ctx context.Context, tokenString string) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		return err
	}
	if claims.ID == "" {
		return ErrInvalidSession
	}

	if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return storeError("revoke session", err)
	}

	s.logger.Info("session revoked", zap.String("username", claims.Subject), zap.String("jti", claims.ID))
	return nil
}

// Expiration returns the configured session lifetime
func (s *AuthService) Expiration() time.Duration {
	return s.jwtExpiration
}
