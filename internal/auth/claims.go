package auth

import (
	"strings"
	"time"
)

// Claim names set by the codec.
const (
	ClaimIdentity  = "email"
	ClaimType      = "token_type"
	ClaimExpiresAt = "exp"
	ClaimIssuedAt  = "iat"
	ClaimID        = "jti"
)

// Token types carried in ClaimType.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is a decoded claim set.
type Claims map[string]any

// Identity returns the identity claim.
func (c Claims) Identity() string {
	v, _ := c[ClaimIdentity].(string)
	return strings.TrimSpace(v)
}

// Type returns the token type claim.
func (c Claims) Type() string {
	v, _ := c[ClaimType].(string)
	return v
}

// ExpiresAt returns the expiry claim, or the zero time when absent.
func (c Claims) ExpiresAt() time.Time {
	switch v := c[ClaimExpiresAt].(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC()
	case int64:
		return time.Unix(v, 0).UTC()
	}
	return time.Time{}
}
