package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/wolfbot/internal/dependencies/clock"
	"github.com/mcoot/wolfbot/internal/model"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrForbidden          = errors.New("moderator access required")
	ErrNoSecret           = errors.New("token secret is not configured")
)

const issuer = "wolfbot"

// Claims are the token claims. Subject is the member id.
type Claims struct {
	jwt.RegisteredClaims
	Moderator bool `json:"moderator,omitempty"`
}

// Member returns the member the token was issued to
func (c *Claims) Member() model.MemberID {
	return model.MemberID(c.Subject)
}

// Session is an issued bearer token
type Session struct {
	Token     string
	Member    model.MemberID
	Moderator bool
	ExpiresAt time.Time
}

// Config holds configuration for the auth service
type Config struct {
	Secret   string
	TokenTTL time.Duration
	// ModeratorKeyHashes are bcrypt hashes of the accepted moderator keys
	ModeratorKeyHashes []string
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		TokenTTL: 24 * time.Hour,
	}
}

// Service issues and validates bearer tokens
type Service struct {
	clock  clock.Clock
	cfg    Config
	logger *slog.Logger
}

// New creates a new auth service
func New(clk clock.Clock, cfg Config, logger *slog.Logger) *Service {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = DefaultConfig().TokenTTL
	}
	return &Service{
		clock:  clk,
		cfg:    cfg,
		logger: logger,
	}
}

// Login exchanges a moderator key for a moderator token
func (s *Service) Login(ctx context.Context, member model.MemberID, key string) (*Session, error) {
	if member == "" || key == "" {
		return nil, ErrInvalidCredentials
	}
	for _, hash := range s.cfg.ModeratorKeyHashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil {
			s.logger.Info("moderator logged in", slog.String("member_id", string(member)))
			return s.Issue(member, true)
		}
	}
	s.logger.Warn("moderator login rejected", slog.String("member_id", string(member)))
	return nil, ErrInvalidCredentials
}

// Issue signs a token for member
func (s *Service) Issue(member model.MemberID, moderator bool) (*Session, error) {
	if s.cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	now := s.clock.Now()
	expires := now.Add(s.cfg.TokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   string(member),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Moderator: moderator,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Session{
		Token:     token,
		Member:    member,
		Moderator: moderator,
		ExpiresAt: expires,
	}, nil
}

// Validate parses a token and checks its signature and expiry
func (s *Service) Validate(token string) (*Claims, error) {
	if s.cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	// Expiry is checked against the injected clock below
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if !claims.VerifyExpiresAt(s.clock.Now(), true) || !claims.VerifyIssuer(issuer, true) || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashKey returns the bcrypt hash of a moderator key for the config file
func HashKey(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}
