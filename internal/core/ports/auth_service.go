package ports

import (
	"context"

	"github.com/identitylabs/identity-system/internal/core/domain"
)

// AuthService orchestrates credential verification, registration, token
// issuance, and bearer-token resolution.
type AuthService interface {
	// Register creates a new user. Username and email collisions are
	// reported together through *domain.ConflictError.
	Register(ctx context.Context, username, email, fullName, password string) (*domain.PublicUser, error)

	// Login verifies credentials and issues an access/refresh token pair.
	// Unknown username, wrong password, and disabled account all return
	// domain.ErrInvalidCredentials.
	Login(ctx context.Context, username, password string) (*domain.TokenPair, error)

	// Refresh exchanges a valid refresh token for a fresh access token. The
	// refresh token itself is not rotated.
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)

	// CurrentUser resolves a presented access token to an active user. The
	// subject is always re-resolved against the repository; a valid token
	// for a disabled user returns domain.ErrInactiveAccount.
	CurrentUser(ctx context.Context, accessToken string) (*domain.PublicUser, error)
}
