// Package auth holds the access credential used to open chat sockets: the credential type,
// an in-memory store, JWT claim helpers, and an HTTP refresher for the backend's token endpoint.
package auth

import (
	"errors"
	"time"
)

// ErrNoCredential is returned when a store holds no token.
var ErrNoCredential = errors.New("no credential available")

// Credential is an access token plus the instant it stops being accepted.
// A zero ExpiresAt means the expiry is unknown and the token is treated as non-expiring.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// NewCredential builds a Credential, reading the expiry from the token's exp claim.
// Tokens that are not JWTs or carry no exp get a zero expiry.
func NewCredential(token string) Credential {
	exp, err := ExpiryFromToken(token)
	if err != nil {
		return Credential{Token: token}
	}

	return Credential{Token: token, ExpiresAt: exp}
}

// IsZero reports whether the credential carries no token.
func (c Credential) IsZero() bool {
	return c.Token == ""
}

// HasExpiry reports whether an expiry instant is known.
func (c Credential) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

// Expired reports whether the credential is past its expiry at now.
func (c Credential) Expired(now time.Time) bool {
	return c.HasExpiry() && !now.Before(c.ExpiresAt)
}
