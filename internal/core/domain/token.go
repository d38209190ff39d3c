package domain

import "time"

// TokenType discriminates access tokens from refresh tokens inside the
// signed claims, so a refresh token can never be replayed as an access token.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenClaims is the decoded payload of a signed token.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
	Type      TokenType
}

// TokenPair is the wire payload returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
}
