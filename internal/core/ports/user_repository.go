package ports

import (
	"context"

	"github.com/identitylabs/identity-system/internal/core/domain"
)

// Existence reports which uniqueness constraints a registration attempt
// collides with. Both fields are populated in a single repository call so the
// caller can report both conflicts at once.
type Existence struct {
	UsernameExists bool
	EmailExists    bool
}

// UserRepository defines the persistence contract for identity records. The
// core never issues raw queries; adapters translate this contract onto the
// store. Uniqueness of username and email is enforced by the store itself —
// the constraint, not application logic, is the source of truth under
// concurrent registration.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Exists(ctx context.Context, username, email string) (Existence, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
}
