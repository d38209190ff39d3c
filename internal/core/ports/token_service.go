package ports

import (
	"time"

	"github.com/identitylabs/identity-system/internal/core/domain"
)

// TokenService encodes and decodes signed bearer tokens. The signing key and
// algorithm are fixed at construction; implementations never read them from
// global state.
type TokenService interface {
	// Issue builds an access/refresh token pair for the user. Both tokens
	// are independently signed; the refresh TTL is strictly greater than
	// the access TTL.
	Issue(user *domain.PublicUser, now time.Time) (*domain.TokenPair, error)

	// IssueAccess builds a lone access token, used by the refresh exchange.
	IssueAccess(username string, now time.Time) (string, error)

	// Decode validates signature, expiry, and token type. Every failure
	// mode surfaces as domain.ErrTokenInvalid.
	Decode(token string, want domain.TokenType) (*domain.TokenClaims, error)
}
