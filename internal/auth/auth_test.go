package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestCodec(t *testing.T, now *time.Time) *Codec {
	t.Helper()
	c, err := NewCodec("test-secret", WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestAccessRoundTrip(t *testing.T) {
	now := t0
	c := newTestCodec(t, &now)
	in := map[string]any{
		"email":     "ada@example.com",
		"campus_id": "north",
		"roles":     []any{"staff"},
	}
	token, exp, err := c.IssueAccess(in)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if !exp.Equal(t0.Add(15 * time.Minute)) {
		t.Fatalf("expiry=%v, want %v", exp, t0.Add(15*time.Minute))
	}
	claims, err := c.DecodeAccess(token)
	if err != nil {
		t.Fatalf("DecodeAccess: %v", err)
	}
	for k, v := range in {
		if k == "roles" {
			roles, ok := claims[k].([]any)
			if !ok || len(roles) != 1 || roles[0] != "staff" {
				t.Fatalf("roles lost: %v", claims[k])
			}
			continue
		}
		if claims[k] != v {
			t.Fatalf("claim %s=%v, want %v", k, claims[k], v)
		}
	}
	if !claims.ExpiresAt().Equal(exp) || claims.Type() != TypeAccess {
		t.Fatalf("unexpected codec claims: %v", claims)
	}
	if _, ok := in["exp"]; ok {
		t.Fatal("IssueAccess mutated caller claims")
	}
}

func TestIssueAccessRequiresIdentity(t *testing.T) {
	now := t0
	c := newTestCodec(t, &now)
	if _, _, err := c.IssueAccess(map[string]any{"roles": []string{}}); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected missing identity, got %v", err)
	}
}

func TestExpiry(t *testing.T) {
	now := t0
	c := newTestCodec(t, &now)
	access, _, err := c.IssueAccess(map[string]any{"email": "ada@example.com"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	refresh, refreshExp, err := c.IssueRefresh("ada@example.com")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if !refreshExp.Equal(t0.Add(48 * time.Hour)) {
		t.Fatalf("refresh expiry=%v", refreshExp)
	}

	now = t0.Add(16 * time.Minute)
	if _, err := c.DecodeAccess(access); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired access token, got %v", err)
	}
	if _, err := c.DecodeRefresh(refresh); err != nil {
		t.Fatalf("refresh should still be valid: %v", err)
	}
	now = t0.Add(49 * time.Hour)
	if _, err := c.DecodeRefresh(refresh); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired refresh token, got %v", err)
	}
}

func TestExpiredTamperedTokenReportsSignature(t *testing.T) {
	now := t0
	c := newTestCodec(t, &now)
	token, _, err := c.IssueAccess(map[string]any{"email": "ada@example.com"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	other, err := NewCodec("other-secret", WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	now = t0.Add(time.Hour)
	if _, err := other.Decode(token); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestEveryByteFlipFails(t *testing.T) {
	now := t0
	c := newTestCodec(t, &now)
	token, _, err := c.IssueAccess(map[string]any{"email": "ada@example.com", "campus_id": "north"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	for i := 0; i < len(token); i++ {
		b := []byte(token)
		b[i] ^= 0x01
		_, err := c.Decode(string(b))
		if err == nil {
			t.Fatalf("flip at %d decoded successfully", i)
		}
		if !errors.Is(err, ErrInvalidSignature) && !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("flip at %d: unexpected error kind %v", i, err)
		}
	}
}

func TestMalformed(t *testing.T) {
	now := t0
	c := newTestCodec(t, &now)
	for _, raw := range []string{"", "garbage", "a.b", "a.b.c", strings.Repeat(".", 5)} {
		if _, err := c.Decode(raw); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("Decode(%q) err=%v, want malformed", raw, err)
		}
	}
}

func TestTokenTypesAreSeparated(t *testing.T) {
	now := t0
	c := newTestCodec(t, &now)
	access, _, err := c.IssueAccess(map[string]any{"email": "ada@example.com"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	refresh, _, err := c.IssueRefresh("ada@example.com")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := c.DecodeRefresh(access); !errors.Is(err, ErrWrongTokenType) || !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
	_, err = c.DecodeAccess(refresh)
	if !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
	if FailureKind(err) != "wrong_type" {
		t.Fatalf("unexpected failure kind for %v", err)
	}
}

func TestNewCodecRequiresSecret(t *testing.T) {
	if _, err := NewCodec("  "); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected missing secret, got %v", err)
	}
}
