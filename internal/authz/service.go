package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"satauth.org/internal/audit"
	"satauth.org/internal/obs"
)

const defaultStoreTimeout = 5 * time.Second

// Service orchestrates grant resolution, evaluation and record updates
// against an injected Store.
type Service struct {
	store        Store
	model        Model
	eval         *Evaluator
	now          func() time.Time
	storeTimeout time.Duration
	logger       *slog.Logger
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithModel selects the authorization model.
func WithModel(m Model) ServiceOption {
	return func(s *Service) error {
		switch m {
		case ModelDirect, ModelRoles:
			s.model = m
			return nil
		}
		return fmt.Errorf("%w: unknown authorization model %q", ErrInvalidInput, m)
	}
}

// WithEvaluator overrides the default evaluator.
func WithEvaluator(e *Evaluator) ServiceOption {
	return func(s *Service) error {
		if e != nil {
			s.eval = e
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithStoreTimeout bounds every store round trip. Zero disables the bound.
func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) error {
		if d < 0 {
			return fmt.Errorf("%w: negative store timeout", ErrInvalidInput)
		}
		s.storeTimeout = d
		return nil
	}
}

// WithLogger sets the logger used for operational messages.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("authz: store is required")
	}
	svc := &Service{
		store:        store,
		model:        ModelDirect,
		eval:         NewEvaluator(),
		now:          time.Now,
		storeTimeout: defaultStoreTimeout,
		logger:       obs.Logger(),
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Model reports the active authorization model.
func (s *Service) Model() Model { return s.model }

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Service) requireModel(m Model) error {
	if s.model != m {
		return fmt.Errorf("%w: requires %s model", ErrWrongModel, m)
	}
	return nil
}

// ResolveGrant computes the requester's grant. In the direct model the
// grant comes from the requester's entry for appID; in the roles model
// from the merge of its roles. Unknown requesters get an empty grant.
func (s *Service) ResolveGrant(ctx context.Context, identity, appID string) (Grant, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.resolveGrant(ctx, identity, appID)
}

func (s *Service) resolveGrant(ctx context.Context, identity, appID string) (Grant, error) {
	account, err := s.store.FindAccount(ctx, identity)
	if errors.Is(err, ErrNotFound) {
		return Grant{}, nil
	}
	if err != nil {
		return Grant{}, fmt.Errorf("load requester: %w", err)
	}
	if s.model == ModelRoles {
		merged, err := MergeRoles(ctx, s.store, account.Roles)
		if err != nil {
			return Grant{}, err
		}
		return merged.Grant(), nil
	}
	return GrantFromEntry(account.Authorizations[appID]), nil
}

// Profile is the account snapshot embedded in access tokens.
type Profile struct {
	Identity       string
	CampusID       string
	Roles          []string
	Authorizations map[string]any
}

// Claims renders the profile as access-token claims.
func (p Profile) Claims() map[string]any {
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	return map[string]any{
		"email":          p.Identity,
		"campus_id":      p.CampusID,
		"roles":          roles,
		"authorizations": cloneData(p.Authorizations),
	}
}

// Profile loads the account for identity, creating it on first sight.
func (s *Service) Profile(ctx context.Context, identity string) (Profile, error) {
	identity, err := NormalizeIdentity(identity)
	if err != nil {
		return Profile{}, err
	}
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	account, err := s.ensureAccount(ctx, identity)
	if err != nil {
		return Profile{}, err
	}
	profile := Profile{
		Identity:       account.Identity,
		CampusID:       account.CampusID,
		Roles:          append([]string(nil), account.Roles...),
		Authorizations: map[string]any{},
	}
	if s.model == ModelRoles {
		merged, err := MergeRoles(ctx, s.store, account.Roles)
		if err != nil {
			return Profile{}, err
		}
		profile.Authorizations = merged.Snapshot()
		return profile, nil
	}
	for app, entry := range account.Authorizations {
		profile.Authorizations[app] = entry.Map()
	}
	return profile, nil
}

// ProfileClaims is Profile rendered as token claims.
func (s *Service) ProfileClaims(ctx context.Context, identity string) (map[string]any, error) {
	p, err := s.Profile(ctx, identity)
	if err != nil {
		return nil, err
	}
	return p.Claims(), nil
}

func (s *Service) ensureAccount(ctx context.Context, identity string) (*Account, error) {
	account, err := s.store.FindAccount(ctx, identity)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load account: %w", err)
	}
	account = NewAccount(identity)
	touch(account, s.now().UTC())
	err = s.store.CreateAccount(ctx, account)
	switch {
	case err == nil:
		s.logger.Info("account provisioned", slog.String("identity", identity))
		_ = audit.LogEvent(ctx, "authz.account.provisioned", map[string]any{"identity": identity})
		return account, nil
	case errors.Is(err, ErrConflict):
		return s.store.FindAccount(ctx, identity)
	default:
		return nil, fmt.Errorf("create account: %w", err)
	}
}

// loadTarget returns the stored target account, or a fresh unsaved one
// when it does not exist yet.
func (s *Service) loadTarget(ctx context.Context, identity string) (*Account, bool, error) {
	account, err := s.store.FindAccount(ctx, identity)
	if err == nil {
		return account, false, nil
	}
	if errors.Is(err, ErrNotFound) {
		return NewAccount(identity), true, nil
	}
	return nil, false, fmt.Errorf("load account: %w", err)
}

func (s *Service) persist(ctx context.Context, account *Account, isNew bool) error {
	touch(account, s.now().UTC())
	if isNew {
		return s.store.CreateAccount(ctx, account)
	}
	return s.store.SaveAccount(ctx, account)
}

// ListAccounts returns accounts whose entry for appID holds filterKey equal
// to value. The requester needs read access to filterKey.
func (s *Service) ListAccounts(ctx context.Context, requester, appID, filterKey string, value any) ([]*Account, error) {
	if err := s.requireModel(ModelDirect); err != nil {
		return nil, err
	}
	appID, err := ValidateAppID(appID)
	if err != nil {
		return nil, err
	}
	filterKey, err = ValidateKey(filterKey)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	grant, err := s.resolveGrant(ctx, requester, appID)
	if err != nil {
		return nil, err
	}
	err = s.eval.AuthorizeRead(grant, filterKey)
	s.record(ctx, OpRead, err, map[string]any{"app_id": appID, "key": filterKey})
	if err != nil {
		return nil, err
	}
	return s.store.FindByAuthorization(ctx, appID, filterKey, value)
}

// ListRoleAccounts returns accounts holding role. The requester needs read
// access to the role name.
func (s *Service) ListRoleAccounts(ctx context.Context, requester, role string) ([]*Account, error) {
	if err := s.requireModel(ModelRoles); err != nil {
		return nil, err
	}
	role, err := ValidateRoleName(role)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	grant, err := s.resolveGrant(ctx, requester, "")
	if err != nil {
		return nil, err
	}
	err = s.eval.AuthorizeRead(grant, role)
	s.record(ctx, OpRead, err, map[string]any{"role": role})
	if err != nil {
		return nil, err
	}
	return s.store.FindByRole(ctx, role)
}

// UpdateAuthorization replaces target's entry for appID with proposed. On
// denial the unchanged authorization map is returned with the error.
func (s *Service) UpdateAuthorization(ctx context.Context, requester, target, appID string, proposed Entry) (map[string]Entry, error) {
	if err := s.requireModel(ModelDirect); err != nil {
		return nil, err
	}
	target, err := NormalizeIdentity(target)
	if err != nil {
		return nil, err
	}
	if appID, err = ValidateAppID(appID); err != nil {
		return nil, err
	}
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	grant, err := s.resolveGrant(ctx, requester, appID)
	if err != nil {
		return nil, err
	}
	// A concurrent first write for the same target may win the create; the
	// second pass re-evaluates against what it stored.
	for attempt := 0; ; attempt++ {
		account, isNew, err := s.loadTarget(ctx, target)
		if err != nil {
			return nil, err
		}
		current := account.Authorizations[appID]
		err = s.eval.AuthorizeReplace(grant, current, proposed)
		s.record(ctx, OpReplace, err, map[string]any{
			"target":        target,
			"app_id":        appID,
			"changing_keys": ChangingKeys(current, proposed),
		})
		if err != nil {
			return cloneAuthorizations(account.Authorizations), err
		}
		updated := Replace(account, appID, proposed)
		err = s.persist(ctx, account, isNew)
		if isNew && errors.Is(err, ErrConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save account: %w", err)
		}
		return updated, nil
	}
}

// DeleteAuthorization removes target's entry for appID. Permission is
// checked before existence.
func (s *Service) DeleteAuthorization(ctx context.Context, requester, target, appID string) (map[string]Entry, error) {
	if err := s.requireModel(ModelDirect); err != nil {
		return nil, err
	}
	target, err := NormalizeIdentity(target)
	if err != nil {
		return nil, err
	}
	if appID, err = ValidateAppID(appID); err != nil {
		return nil, err
	}
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	grant, err := s.resolveGrant(ctx, requester, appID)
	if err != nil {
		return nil, err
	}
	account, isNew, err := s.loadTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	err = s.eval.AuthorizeDelete(grant, requester, target)
	s.record(ctx, OpDelete, err, map[string]any{"target": target, "app_id": appID})
	if err != nil {
		return cloneAuthorizations(account.Authorizations), err
	}
	if isNew {
		return map[string]Entry{}, fmt.Errorf("%w: account %s", ErrNotFound, target)
	}
	if err := Remove(account, appID); err != nil {
		return cloneAuthorizations(account.Authorizations), err
	}
	if err := s.persist(ctx, account, false); err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}
	return cloneAuthorizations(account.Authorizations), nil
}

// UpdateRoles adds and removes roles on target. The requester needs write
// access to every role named. On denial the unchanged role list is
// returned with the error.
func (s *Service) UpdateRoles(ctx context.Context, requester, target string, add, remove []string) ([]string, error) {
	if err := s.requireModel(ModelRoles); err != nil {
		return nil, err
	}
	target, err := NormalizeIdentity(target)
	if err != nil {
		return nil, err
	}
	if add, err = validateRoleNames(add); err != nil {
		return nil, err
	}
	if remove, err = validateRoleNames(remove); err != nil {
		return nil, err
	}
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	grant, err := s.resolveGrant(ctx, requester, "")
	if err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		account, isNew, err := s.loadTarget(ctx, target)
		if err != nil {
			return nil, err
		}
		err = s.eval.AuthorizeRoleChange(grant, add, remove)
		s.record(ctx, OpRoleChange, err, map[string]any{"target": target, "add": add, "remove": remove})
		if err != nil {
			return append([]string{}, account.Roles...), err
		}
		changed := false
		for _, name := range add {
			changed = AddRole(account, name) || changed
		}
		for _, name := range remove {
			changed = RemoveRole(account, name) || changed
		}
		if !changed && !isNew {
			return append([]string{}, account.Roles...), nil
		}
		err = s.persist(ctx, account, isNew)
		if isNew && errors.Is(err, ErrConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save account: %w", err)
		}
		return append([]string{}, account.Roles...), nil
	}
}

func validateRoleNames(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		name, err := ValidateRoleName(n)
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

// SeedRoles upserts role definitions, typically from configuration.
func (s *Service) SeedRoles(ctx context.Context, roles []*Role) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	for _, role := range roles {
		if role == nil {
			continue
		}
		name, err := ValidateRoleName(role.Name)
		if err != nil {
			return err
		}
		r := role.Clone()
		r.Name = name
		if err := s.store.PutRole(ctx, r); err != nil {
			return fmt.Errorf("seed role %q: %w", name, err)
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, op Operation, err error, fields map[string]any) {
	decision, reason := "allow", ""
	if err != nil {
		decision, reason = "deny", string(ReasonOf(err))
		fields["reason"] = reason
	}
	fields["decision"] = decision
	obs.RecordDecision(string(op), decision, reason)
	if logErr := audit.LogEvent(ctx, "authz."+string(op), fields); logErr != nil {
		s.logger.Warn("audit log failed", slog.String("error", logErr.Error()))
	}
}
