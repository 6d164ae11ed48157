package models

import "time"

// OAuthTokenTriple is the structured secret stored for an OAuth vendor.
type OAuthTokenTriple struct {
	Access  string    `json:"access"`
	Refresh string    `json:"refresh"`
	Expires time.Time `json:"expires"`
}

// Expired reports whether the access token has elapsed as of now.
func (t OAuthTokenTriple) Expired(now time.Time) bool {
	return !t.Expires.IsZero() && !now.Before(t.Expires)
}

// Credential is the opaque secret a (user, vendor) pair resolves to. Either
// APIKey is set (static credential) or OAuth is set (refreshable triple),
// never both.
type Credential struct {
	ID     string
	UserID string
	Vendor Vendor

	APIKey string
	OAuth  *OAuthTokenTriple
}

// IsOAuth reports whether this credential carries a refreshable token triple.
func (c *Credential) IsOAuth() bool {
	return c != nil && c.OAuth != nil
}
