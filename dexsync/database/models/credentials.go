package models

import "time"

// Credentials is the locally cached session record. Session validity is a
// pure local-clock comparison against RefreshTokenExpiry; issuing and
// refreshing tokens happens elsewhere.
type Credentials struct {
	Username           string    `json:"username"`
	AccessTokenExpiry  time.Time `json:"accessTokenExpiry"`
	RefreshTokenExpiry time.Time `json:"refreshTokenExpiry"`
}

// Valid reports whether the refresh token is still usable at the given
// moment. An absent or zero expiry means not logged in.
func (c *Credentials) Valid(now time.Time) bool {
	if c == nil || c.RefreshTokenExpiry.IsZero() {
		return false
	}
	return now.Before(c.RefreshTokenExpiry)
}
