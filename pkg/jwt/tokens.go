package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of a session token the client cares about.
// The backend signs tokens with {id} plus the registered claims.
type Claims struct {
	UserID string `json:"id,omitempty"`
	jwtlib.RegisteredClaims
}

// User returns the user id, preferring the custom claim over "sub".
func (c Claims) User() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// Expiry returns the expiry time, or zero when the token does not expire.
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Inspect decodes token claims without verifying the signature.
// The client never holds the signing secret; it only reads expiry and subject.
func Inspect(token string) (Claims, error) {
	var claims Claims
	if token == "" {
		return claims, errors.New("empty token")
	}
	parser := jwtlib.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}
