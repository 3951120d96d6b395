package auth

import "errors"

var (
	ErrExpiredToken     = errors.New("auth: token expired")
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	ErrMalformedToken   = errors.New("auth: malformed token")
	ErrWrongTokenType   = errors.New("auth: wrong token type")
	ErrMissingSecret    = errors.New("auth: signing secret is not configured")
	ErrMissingIdentity  = errors.New("auth: identity claim is required")
	ErrIdentityProvider = errors.New("auth: identity provider rejected token")
)

// FailureKind names a token failure for metrics and logs.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrExpiredToken):
		return "expired"
	case errors.Is(err, ErrWrongTokenType):
		return "wrong_type"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrIdentityProvider):
		return "idp"
	default:
		return "other"
	}
}
