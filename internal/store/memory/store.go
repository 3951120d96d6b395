// Package memory is an in-process Store used for tests and single-node
// development deployments.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"sync"

	"satauth.org/internal/authz"
)

// Store implements authz.Store with in-process concurrency safety. Values
// are deep-copied on the way in and out.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*authz.Account
	roles    map[string]*authz.Role
}

var _ authz.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*authz.Account),
		roles:    make(map[string]*authz.Role),
	}
}

func (s *Store) FindAccount(ctx context.Context, identity string) (*authz.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[identity]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", authz.ErrNotFound, identity)
	}
	return acc.Clone(), nil
}

func (s *Store) CreateAccount(ctx context.Context, account *authz.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.Identity]; ok {
		return fmt.Errorf("%w: account %s", authz.ErrConflict, account.Identity)
	}
	s.accounts[account.Identity] = account.Clone()
	return nil
}

func (s *Store) SaveAccount(ctx context.Context, account *authz.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.Identity]; !ok {
		return fmt.Errorf("%w: account %s", authz.ErrNotFound, account.Identity)
	}
	s.accounts[account.Identity] = account.Clone()
	return nil
}

func (s *Store) FindByAuthorization(ctx context.Context, appID, key string, value any) ([]*authz.Account, error) {
	return s.filter(ctx, func(acc *authz.Account) bool {
		entry, ok := acc.Authorizations[appID]
		if !ok {
			return false
		}
		stored, ok := entry.Data[key]
		return ok && valuesEqual(stored, value)
	})
}

func (s *Store) FindByRole(ctx context.Context, role string) ([]*authz.Account, error) {
	return s.filter(ctx, func(acc *authz.Account) bool {
		return slices.Contains(acc.Roles, role)
	})
}

func (s *Store) filter(ctx context.Context, match func(*authz.Account) bool) ([]*authz.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*authz.Account, 0)
	for _, acc := range s.accounts {
		if match(acc) {
			out = append(out, acc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

func (s *Store) FindRole(ctx context.Context, name string) (*authz.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[name]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", authz.ErrNotFound, name)
	}
	return role.Clone(), nil
}

func (s *Store) PutRole(ctx context.Context, role *authz.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role.Name] = role.Clone()
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close(context.Context) error { return nil }

// valuesEqual compares decoded JSON-ish values, treating all numeric kinds
// as float64.
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
