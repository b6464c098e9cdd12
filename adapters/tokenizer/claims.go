package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with access-specific ones.
type AccessClaims struct {
	jwt.RegisteredClaims
	IdentityID string `json:"uid"` // ID of the identity behind the session
	RefreshID  string `json:"rid"` // ID of the refresh token
}

// RefreshClaims combines standard claims with the identity reference.
type RefreshClaims struct {
	jwt.RegisteredClaims
	IdentityID string `json:"uid"`
}
