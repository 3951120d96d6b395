package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"satauth.org/internal/obs"
)

// ProfileSource resolves the claims embedded in an access token for an
// identity, provisioning the account when needed.
type ProfileSource interface {
	ProfileClaims(ctx context.Context, identity string) (map[string]any, error)
}

// TokenPair is the result of every successful exchange.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Claims           map[string]any
}

// Service runs the sign-in, login and refresh exchanges.
type Service struct {
	codec    *Codec
	idp      Verifier
	profiles ProfileSource
	logger   *slog.Logger
}

// NewService wires the codec, identity provider and profile source.
func NewService(codec *Codec, idp Verifier, profiles ProfileSource) (*Service, error) {
	if codec == nil || profiles == nil {
		return nil, errors.New("auth: codec and profile source are required")
	}
	return &Service{codec: codec, idp: idp, profiles: profiles, logger: obs.Logger()}, nil
}

// Codec exposes the token codec used by the service.
func (s *Service) Codec() *Codec { return s.codec }

// SignIn exchanges an identity-provider token for a fresh token pair.
func (s *Service) SignIn(ctx context.Context, idpToken string) (TokenPair, error) {
	if s.idp == nil {
		return TokenPair{}, fmt.Errorf("%w: no identity provider configured", ErrIdentityProvider)
	}
	identity, err := s.idp.Verify(ctx, idpToken)
	if err != nil {
		obs.RecordTokenFailure(FailureKind(err))
		return TokenPair{}, err
	}
	return s.issue(ctx, identity)
}

// Login decodes an access token and returns its claims.
func (s *Service) Login(_ context.Context, accessToken string) (Claims, error) {
	claims, err := s.codec.DecodeAccess(accessToken)
	if err != nil {
		obs.RecordTokenFailure(FailureKind(err))
		return nil, err
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new pair built from the
// account's current profile.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.codec.DecodeRefresh(refreshToken)
	if err != nil {
		obs.RecordTokenFailure(FailureKind(err))
		return TokenPair{}, err
	}
	return s.issue(ctx, claims.Identity())
}

func (s *Service) issue(ctx context.Context, identity string) (TokenPair, error) {
	profile, err := s.profiles.ProfileClaims(ctx, identity)
	if err != nil {
		return TokenPair{}, fmt.Errorf("load profile: %w", err)
	}
	access, accessExp, err := s.codec.IssueAccess(profile)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.codec.IssueRefresh(profile[ClaimIdentity].(string))
	if err != nil {
		return TokenPair{}, err
	}
	obs.RecordTokenIssued(TypeAccess)
	obs.RecordTokenIssued(TypeRefresh)
	s.logger.Info("tokens issued", slog.String("identity", identity))
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		Claims:           profile,
	}, nil
}
