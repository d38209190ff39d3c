package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/identitylabs/identity-system/internal/core/domain"
)

// Decode failure taxonomy. Internal diagnostics only: the exported Decode
// collapses all of these into domain.ErrTokenInvalid so no caller above this
// layer can build an oracle out of the distinction.
var (
	errTokenMalformed    = errors.New("token malformed")
	errTokenSignature    = errors.New("token signature invalid")
	errTokenExpired      = errors.New("token expired")
	errTokenAlgMismatch  = errors.New("token algorithm mismatch")
	errTokenWrongType    = errors.New("token type mismatch")
	errTokenMissingClaim = errors.New("token missing required claim")
)

// tokenClaims is the signed payload: {sub, exp, type}.
type tokenClaims struct {
	TokenUse string `json:"type"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies bearer tokens with a single HMAC key and a
// pinned signing algorithm, both supplied at construction.
type TokenService struct {
	signingKey []byte
	method     *jwt.SigningMethodHMAC
	accessTTL  time.Duration
	refreshTTL time.Duration
}

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// NewTokenService builds a TokenService. The refresh TTL is forced to exceed
// the access TTL; a refresh token that outlives nothing is useless.
func NewTokenService(signingKey string, method *jwt.SigningMethodHMAC, accessTTL, refreshTTL time.Duration) *TokenService {
	if method == nil {
		method = jwt.SigningMethodHS256
	}
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= accessTTL {
		refreshTTL = defaultRefreshTTL
		if refreshTTL <= accessTTL {
			refreshTTL = 2 * accessTTL
		}
	}
	return &TokenService{
		signingKey: []byte(signingKey),
		method:     method,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Issue signs an access/refresh pair for the user. The two tokens are
// independent artifacts: separate expiries, separate type claims, separate
// signatures.
func (s *TokenService) Issue(user *domain.PublicUser, now time.Time) (*domain.TokenPair, error) {
	access, err := s.sign(user.Username, domain.TokenTypeAccess, now, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(user.Username, domain.TokenTypeRefresh, now, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:  access,
		TokenType:    "bearer",
		RefreshToken: refresh,
	}, nil
}

// IssueAccess signs a lone access token, used by the refresh exchange.
func (s *TokenService) IssueAccess(username string, now time.Time) (string, error) {
	return s.sign(username, domain.TokenTypeAccess, now, s.accessTTL)
}

func (s *TokenService) sign(subject string, use domain.TokenType, now time.Time, ttl time.Duration) (string, error) {
	claims := &tokenClaims{
		TokenUse: string(use),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", use, err)
	}
	return signed, nil
}

// Decode verifies signature, expiry, and token type. Every failure mode maps
// to domain.ErrTokenInvalid; the finer-grained cause is recoverable with
// errors.Is for logging inside this package only.
func (s *TokenService) Decode(token string, want domain.TokenType) (*domain.TokenClaims, error) {
	claims, err := s.decode(token, want)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTokenInvalid, err)
	}
	return claims, nil
}

func (s *TokenService) decode(token string, want domain.TokenType) (*domain.TokenClaims, error) {
	parsed := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, parsed, func(t *jwt.Token) (interface{}, error) {
		// Pin the exact algorithm. Anything else — including "none" — is an
		// algorithm confusion attempt, not a key problem.
		if t.Method.Alg() != s.method.Alg() {
			return nil, errTokenAlgMismatch
		}
		return s.signingKey, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, errTokenAlgMismatch):
		return nil, errTokenAlgMismatch
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, errTokenSignature
	default:
		return nil, fmt.Errorf("%w: %v", errTokenMalformed, err)
	}

	if parsed.Subject == "" {
		return nil, errTokenMissingClaim
	}
	if parsed.ExpiresAt == nil {
		return nil, errTokenMissingClaim
	}

	// The type claim is what keeps a refresh token from being replayed as
	// an access token. Legacy tokens without the claim are access tokens.
	use := domain.TokenType(parsed.TokenUse)
	if use == "" {
		use = domain.TokenTypeAccess
	}
	if use != want {
		return nil, errTokenWrongType
	}

	return &domain.TokenClaims{
		Subject:   parsed.Subject,
		ExpiresAt: parsed.ExpiresAt.Time,
		Type:      use,
	}, nil
}
