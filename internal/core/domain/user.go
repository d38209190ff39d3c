package domain

import "time"

// User is the authoritative identity record as stored by the repository.
// PasswordHash never crosses the API boundary; handlers and services return
// PublicUser projections instead.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name,omitempty"`
	Disabled     bool      `json:"disabled"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PublicUser is the only user representation returned to callers.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Disabled bool   `json:"disabled"`
}

// Clone returns a shallow copy of the record.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

// Public projects the record into its caller-facing shape. Centralising the
// projection here guarantees the hash cannot leak through a handler that
// forgets to strip a field.
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
		Disabled: u.Disabled,
	}
}
