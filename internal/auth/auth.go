package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 48 * time.Hour
)

// Codec issues and verifies HS256 access and refresh tokens. It holds
// only derived keys and is safe for concurrent use.
type Codec struct {
	keys       map[string][]byte
	now        func() time.Time
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) error {
		if fn != nil {
			c.now = fn
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) error {
		if ttl > 0 {
			c.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) error {
		if ttl > 0 {
			c.refreshTTL = ttl
		}
		return nil
	}
}

// NewCodec derives per-type signing keys from secret.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	c := &Codec{
		keys:       make(map[string][]byte, 2),
		now:        time.Now,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, typ := range []string{TypeAccess, TypeRefresh} {
		key, err := deriveKey([]byte(secret), typ)
		if err != nil {
			return nil, err
		}
		c.keys[typ] = key
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// IssueAccess signs claims as an access token. The identity claim is
// required; expiry, issued-at, token id and type are set by the codec.
func (c *Codec) IssueAccess(claims map[string]any) (string, time.Time, error) {
	identity, _ := claims[ClaimIdentity].(string)
	if strings.TrimSpace(identity) == "" {
		return "", time.Time{}, ErrMissingIdentity
	}
	mc := make(jwt.MapClaims, len(claims)+4)
	for k, v := range claims {
		mc[k] = v
	}
	return c.sign(mc, TypeAccess, c.accessTTL)
}

// IssueRefresh signs a refresh token naming identity only.
func (c *Codec) IssueRefresh(identity string) (string, time.Time, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", time.Time{}, ErrMissingIdentity
	}
	return c.sign(jwt.MapClaims{ClaimIdentity: identity}, TypeRefresh, c.refreshTTL)
}

func (c *Codec) sign(mc jwt.MapClaims, typ string, ttl time.Duration) (string, time.Time, error) {
	now := c.now().UTC()
	expiresAt := now.Add(ttl).Truncate(time.Second)
	mc[ClaimIssuedAt] = now.Unix()
	mc[ClaimExpiresAt] = expiresAt.Unix()
	mc[ClaimID] = uuid.NewString()
	mc[ClaimType] = typ

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mc)
	signed, err := token.SignedString(c.keys[typ])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Decode verifies signature and expiry of a token of either type. The
// signature is checked first, so an expired token is only reported as
// expired when its MAC is valid.
func (c *Codec) Decode(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMalformedToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	parsed, err := parser.ParseWithClaims(token, jwt.MapClaims{}, c.keyFor)
	if err != nil {
		return nil, classify(err)
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformedToken
	}
	return Claims(mc), nil
}

// DecodeAccess decodes an access token.
func (c *Codec) DecodeAccess(token string) (Claims, error) {
	return c.decodeType(token, TypeAccess)
}

// DecodeRefresh decodes a refresh token.
func (c *Codec) DecodeRefresh(token string) (Claims, error) {
	return c.decodeType(token, TypeRefresh)
}

func (c *Codec) decodeType(token, typ string) (Claims, error) {
	claims, err := c.Decode(token)
	if err != nil {
		return nil, err
	}
	if got := claims.Type(); got != typ {
		return nil, fmt.Errorf("%w (%w): want %s, got %q", ErrWrongTokenType, ErrInvalidSignature, typ, got)
	}
	if claims.Identity() == "" {
		return nil, ErrMissingIdentity
	}
	return claims, nil
}

func (c *Codec) keyFor(t *jwt.Token) (any, error) {
	mc, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformedToken
	}
	typ, _ := mc[ClaimType].(string)
	key, ok := c.keys[typ]
	if !ok {
		return nil, fmt.Errorf("unknown token type %q", typ)
	}
	return key, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}
