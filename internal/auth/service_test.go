package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/api/idtoken"
)

type profileStub map[string]map[string]any

func (p profileStub) ProfileClaims(_ context.Context, identity string) (map[string]any, error) {
	claims, ok := p[identity]
	if !ok {
		return nil, errors.New("unknown identity")
	}
	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out, nil
}

func TestSignInAndRefresh(t *testing.T) {
	now := t0
	codec := newTestCodec(t, &now)
	idp := VerifierFunc(func(_ context.Context, token string) (string, error) {
		if token != "google-ok" {
			return "", ErrIdentityProvider
		}
		return "ada@example.com", nil
	})
	profiles := profileStub{"ada@example.com": {"email": "ada@example.com", "campus_id": "north"}}
	svc, err := NewService(codec, idp, profiles)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	if _, err := svc.SignIn(ctx, "forged"); !errors.Is(err, ErrIdentityProvider) {
		t.Fatalf("expected idp failure, got %v", err)
	}
	pair, err := svc.SignIn(ctx, "google-ok")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	claims, err := svc.Login(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if claims.Identity() != "ada@example.com" || claims["campus_id"] != "north" {
		t.Fatalf("unexpected claims: %v", claims)
	}
	if _, err := svc.Login(ctx, pair.RefreshToken); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("refresh token must not log in, got %v", err)
	}

	now = t0.Add(time.Hour)
	if _, err := svc.Login(ctx, pair.AccessToken); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired, got %v", err)
	}
	next, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !next.AccessExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("refreshed access expiry=%v", next.AccessExpiresAt)
	}
	if _, err := svc.Refresh(ctx, next.AccessToken); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
}

func TestGoogleVerifier(t *testing.T) {
	v := NewGoogleVerifier("client-1")
	v.validate = func(_ context.Context, token, audience string) (*idtoken.Payload, error) {
		if audience != "client-1" {
			t.Fatalf("unexpected audience %q", audience)
		}
		switch token {
		case "ok":
			return &idtoken.Payload{Claims: map[string]any{"email": "ada@example.com", "email_verified": true}}, nil
		case "unverified":
			return &idtoken.Payload{Claims: map[string]any{"email": "ada@example.com", "email_verified": false}}, nil
		case "no-email":
			return &idtoken.Payload{Claims: map[string]any{}}, nil
		}
		return nil, errors.New("idtoken: invalid token")
	}
	ctx := context.Background()
	if email, err := v.Verify(ctx, "ok"); err != nil || email != "ada@example.com" {
		t.Fatalf("Verify=%q, %v", email, err)
	}
	for _, tok := range []string{"", "unverified", "no-email", "bad"} {
		if _, err := v.Verify(ctx, tok); !errors.Is(err, ErrIdentityProvider) {
			t.Fatalf("Verify(%q) err=%v, want idp error", tok, err)
		}
	}
}
