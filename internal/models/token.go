package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the JWT claims issued at login and expected from an
// external identity provider.
type TokenClaims struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// Access Token Response
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	UserID      string    `json:"user_id"`
	Role        Role      `json:"role"`
	IssuedAt    time.Time `json:"issued_at"`
}

// LoginRequest accepts either a username or an email in Login.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}
