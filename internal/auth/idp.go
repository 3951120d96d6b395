package auth

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"
)

// Verifier checks a third-party identity assertion and returns the
// verified identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (string, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// GoogleVerifier validates Google ID tokens issued for one OAuth client.
type GoogleVerifier struct {
	audience string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewGoogleVerifier returns a verifier for tokens whose audience is clientID.
func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{audience: strings.TrimSpace(clientID), validate: idtoken.Validate}
}

func (v *GoogleVerifier) Verify(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrIdentityProvider)
	}
	payload, err := v.validate(ctx, token, v.audience)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIdentityProvider, err)
	}
	email, _ := payload.Claims["email"].(string)
	if strings.TrimSpace(email) == "" {
		return "", fmt.Errorf("%w: token carries no email", ErrIdentityProvider)
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return "", fmt.Errorf("%w: email %s is not verified", ErrIdentityProvider, email)
	}
	return email, nil
}
