package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/wolfbot/internal/dependencies/mocks"
	"github.com/mcoot/wolfbot/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	clock   *mocks.MockClock
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	s.Require().NoError(err)
	s.service = New(s.clock, Config{
		Secret:             "test-secret",
		TokenTTL:           time.Hour,
		ModeratorKeyHashes: []string{string(hash)},
	}, testutil.NopLogger())
	s.ctx = context.Background()
}

// Login tests

func (s *ServiceSuite) TestLoginWithModeratorKey() {
	session, err := s.service.Login(s.ctx, "mod-1", "hunter2")
	s.Require().NoError(err)

	s.NotEmpty(session.Token)
	s.True(session.Moderator)
	s.Equal(s.clock.Now().Add(time.Hour), session.ExpiresAt)

	claims, err := s.service.Validate(session.Token)
	s.Require().NoError(err)
	s.True(claims.Moderator)
	s.Equal("mod-1", string(claims.Member()))
}

func (s *ServiceSuite) TestLoginWrongKeyFails() {
	_, err := s.service.Login(s.ctx, "mod-1", "password")
	s.ErrorIs(err, ErrInvalidCredentials)
}

func (s *ServiceSuite) TestLoginWithoutConfiguredKeysFails() {
	service := New(s.clock, Config{Secret: "test-secret"}, testutil.NopLogger())
	_, err := service.Login(s.ctx, "mod-1", "hunter2")
	s.ErrorIs(err, ErrInvalidCredentials)
}

// Validate tests

func (s *ServiceSuite) TestPlayerTokenIsNotModerator() {
	session, err := s.service.Issue("alice", false)
	s.Require().NoError(err)

	claims, err := s.service.Validate(session.Token)
	s.Require().NoError(err)
	s.False(claims.Moderator)
	s.Equal("alice", string(claims.Member()))
}

func (s *ServiceSuite) TestExpiredTokenRejected() {
	session, err := s.service.Issue("alice", false)
	s.Require().NoError(err)

	s.clock.Advance(time.Hour + time.Second)
	_, err = s.service.Validate(session.Token)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *ServiceSuite) TestTokenFromOtherSecretRejected() {
	other := New(s.clock, Config{Secret: "other-secret"}, testutil.NopLogger())
	session, err := other.Issue("alice", true)
	s.Require().NoError(err)

	_, err = s.service.Validate(session.Token)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *ServiceSuite) TestGarbageTokenRejected() {
	_, err := s.service.Validate("not-a-token")
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *ServiceSuite) TestMissingSecret() {
	service := New(s.clock, Config{}, testutil.NopLogger())
	_, err := service.Issue("alice", false)
	s.ErrorIs(err, ErrNoSecret)
}

// HashKey tests

func (s *ServiceSuite) TestHashKeyVerifies() {
	hash, err := HashKey("letmein")
	s.Require().NoError(err)
	s.NotEqual("letmein", hash)
	s.NoError(bcrypt.CompareHashAndPassword([]byte(hash), []byte("letmein")))

	_, err = HashKey("")
	s.ErrorIs(err, ErrInvalidCredentials)
}
