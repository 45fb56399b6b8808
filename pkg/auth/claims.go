package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Admin  bool
	JTI    string
}

// AccessTokenClaims represents the typed JWT the SSO service issues to clients.
type AccessTokenClaims struct {
	UserID uuid.UUID `json:"user_id"`
	Admin  bool      `json:"admin,omitempty"`
	jwt.RegisteredClaims
}
