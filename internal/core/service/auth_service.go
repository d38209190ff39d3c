package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/identitylabs/identity-system/internal/api/metrics"
	"github.com/identitylabs/identity-system/internal/core/domain"
	"github.com/identitylabs/identity-system/internal/core/ports"
)

// dummyDigest is a well-formed bcrypt digest whose payload is random bytes,
// not the output of hashing any password, so no input can match it. When a
// login names an unknown user we still verify against it, keeping the miss
// path on the same cost curve as a real comparison. The nil-user check below
// rejects the attempt regardless of the comparison's outcome.
const dummyDigest = "$2a$10$f1HM4sbSvk0MS9.gtoBrIunLfpoufMoKYLE/usNPfOL6sXDWZl3d8"

// AuthService implements registration, login, token refresh, and
// bearer-token resolution on top of the repository, hasher, and token codec.
type AuthService struct {
	repo     ports.UserRepository
	hasher   *PasswordHasher
	tokens   ports.TokenService
	throttle ports.LoginThrottle
	now      func() time.Time
	logger   zerolog.Logger
}

func NewAuthService(repo ports.UserRepository, hasher *PasswordHasher, tokens ports.TokenService, throttle ports.LoginThrottle, logger zerolog.Logger) *AuthService {
	if throttle == nil {
		throttle = noopThrottle{}
	}
	return &AuthService{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		throttle: throttle,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Register creates a new user after checking both uniqueness constraints.
// The pre-check reports username and email collisions together; the
// repository's unique indexes remain the last word under concurrency, so a
// race loser still comes back as a conflict rather than a duplicate record.
func (s *AuthService) Register(ctx context.Context, username, email, fullName, password string) (*domain.PublicUser, error) {
	existence, err := s.repo.Exists(ctx, username, email)
	if err != nil {
		return nil, domain.WrapRepository(err)
	}
	if existence.UsernameExists || existence.EmailExists {
		return nil, &domain.ConflictError{
			UsernameTaken: existence.UsernameExists,
			EmailTaken:    existence.EmailExists,
		}
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	created, err := s.repo.Create(ctx, &domain.User{
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: digest,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if _, ok := domain.IsConflict(err); ok {
			return nil, err
		}
		return nil, domain.WrapRepository(err)
	}

	metrics.RegistrationsTotal.Inc()
	s.logger.Info().Str("username", created.Username).Msg("user registered")
	return created.Public(), nil
}

// Login verifies credentials in a fixed order — lookup, password, disabled —
// and collapses all three failure branches into ErrInvalidCredentials so a
// caller cannot tell which one fired.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.TokenPair, error) {
	if blocked, err := s.throttle.Blocked(ctx, username); err != nil {
		// Fail open: a broken throttle backend must not lock out logins.
		s.logger.Warn().Err(err).Msg("login throttle unavailable")
	} else if blocked {
		metrics.LoginsTotal.WithLabelValues("throttled").Inc()
		return nil, domain.ErrTooManyAttempts
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.WrapRepository(err)
	}

	digest := dummyDigest
	if user != nil {
		digest = user.PasswordHash
	}

	start := time.Now()
	match := s.hasher.Verify(password, digest)
	metrics.PasswordVerifyDuration.Observe(time.Since(start).Seconds())

	if user == nil || !match || user.Disabled {
		if terr := s.throttle.RecordFailure(ctx, username); terr != nil {
			s.logger.Warn().Err(terr).Msg("login throttle record failed")
		}
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(user.Public(), s.now())
	if err != nil {
		return nil, err
	}

	if terr := s.throttle.Reset(ctx, username); terr != nil {
		s.logger.Warn().Err(terr).Msg("login throttle reset failed")
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()
	metrics.TokensIssuedTotal.WithLabelValues(string(domain.TokenTypeAccess)).Inc()
	metrics.TokensIssuedTotal.WithLabelValues(string(domain.TokenTypeRefresh)).Inc()
	s.logger.Info().Str("username", user.Username).Msg("login succeeded")
	return pair, nil
}

// Refresh exchanges a refresh token for a new access token. The user is
// re-resolved so an account disabled since issuance cannot keep minting
// access tokens. The refresh token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.tokens.Decode(refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.resolveSubject(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user.Disabled {
		return nil, domain.ErrInactiveAccount
	}

	access, err := s.tokens.IssueAccess(user.Username, s.now())
	if err != nil {
		return nil, err
	}

	metrics.TokensIssuedTotal.WithLabelValues(string(domain.TokenTypeAccess)).Inc()
	metrics.RefreshExchangesTotal.Inc()
	return &domain.TokenPair{AccessToken: access, TokenType: "bearer"}, nil
}

// CurrentUser resolves a presented access token to an active user. The
// token body is only trusted for its subject; identity is always re-resolved
// against the repository.
func (s *AuthService) CurrentUser(ctx context.Context, accessToken string) (*domain.PublicUser, error) {
	claims, err := s.tokens.Decode(accessToken, domain.TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	user, err := s.resolveSubject(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user.Disabled {
		return nil, domain.ErrInactiveAccount
	}
	return user.Public(), nil
}

func (s *AuthService) resolveSubject(ctx context.Context, subject string) (*domain.User, error) {
	user, err := s.repo.FindByUsername(ctx, subject)
	if errors.Is(err, domain.ErrUserNotFound) {
		// Token outlived the account. Same outcome as any bad token.
		return nil, domain.ErrTokenInvalid
	}
	if err != nil {
		return nil, domain.WrapRepository(err)
	}
	return user, nil
}

// noopThrottle is the default when no throttle backend is configured.
type noopThrottle struct{}

func (noopThrottle) Blocked(context.Context, string) (bool, error) { return false, nil }
func (noopThrottle) RecordFailure(context.Context, string) error   { return nil }
func (noopThrottle) Reset(context.Context, string) error           { return nil }
