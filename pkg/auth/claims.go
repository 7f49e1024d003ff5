package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a buyer JWT.
type AccessTokenPayload struct {
	UserID    uuid.UUID
	Email     string
	FirstName string
	LastName  string
	JTI       string
}

// AccessTokenClaims represents the typed JWT issued to recognized buyers.
// A valid token lets checkout skip the guest-or-login stage and prefill
// contact details.
type AccessTokenClaims struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	jwt.RegisteredClaims
}
