package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"satauth.org/internal/authz"
)

const accountColumns = `identity, campus_id, roles, authorizations, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) FindAccount(ctx context.Context, identity string) (*authz.Account, error) {
	row := s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where identity = $1`, identity)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", authz.ErrNotFound, identity)
	}
	return acc, err
}

func (s *Store) CreateAccount(ctx context.Context, account *authz.Account) error {
	roles, auths, err := encodeAccount(account)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into accounts (identity, campus_id, roles, authorizations, created_at, updated_at)
		values ($1, $2, $3::jsonb, $4::jsonb, $5, $6)
	`, account.Identity, account.CampusID, roles, auths, account.CreatedAt, account.UpdatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return fmt.Errorf("%w: account %s", authz.ErrConflict, account.Identity)
	}
	return err
}

// SaveAccount replaces the mutable columns in a single statement, so
// concurrent writers resolve as last write wins.
func (s *Store) SaveAccount(ctx context.Context, account *authz.Account) error {
	roles, auths, err := encodeAccount(account)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set campus_id = $2, roles = $3::jsonb, authorizations = $4::jsonb, updated_at = $5
		where identity = $1
	`, account.Identity, account.CampusID, roles, auths, account.UpdatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: account %s", authz.ErrNotFound, account.Identity)
	}
	return nil
}

func (s *Store) FindByAuthorization(ctx context.Context, appID, key string, value any) ([]*authz.Account, error) {
	filter, err := json.Marshal(map[string]any{appID: map[string]any{key: value}})
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}
	return s.queryAccounts(ctx, `select `+accountColumns+` from accounts where authorizations @> $1::jsonb order by identity`, filter)
}

func (s *Store) FindByRole(ctx context.Context, role string) ([]*authz.Account, error) {
	filter, err := json.Marshal([]string{role})
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}
	return s.queryAccounts(ctx, `select `+accountColumns+` from accounts where roles @> $1::jsonb order by identity`, filter)
}

func (s *Store) queryAccounts(ctx context.Context, query string, args ...any) ([]*authz.Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*authz.Account, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func scanAccount(row rowScanner) (*authz.Account, error) {
	var (
		acc             authz.Account
		rawRoles, rawAu []byte
	)
	if err := row.Scan(&acc.Identity, &acc.CampusID, &rawRoles, &rawAu, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		return nil, err
	}
	if len(rawRoles) > 0 {
		if err := json.Unmarshal(rawRoles, &acc.Roles); err != nil {
			return nil, fmt.Errorf("decode roles: %w", err)
		}
	}
	auths, err := decodeAuthorizations(rawAu)
	if err != nil {
		return nil, err
	}
	acc.Authorizations = auths
	return &acc, nil
}

func encodeAccount(account *authz.Account) (roles, auths []byte, err error) {
	list := account.Roles
	if list == nil {
		list = []string{}
	}
	roles, err = json.Marshal(list)
	if err != nil {
		return nil, nil, fmt.Errorf("encode roles: %w", err)
	}
	raw := make(map[string]map[string]any, len(account.Authorizations))
	for app, entry := range account.Authorizations {
		raw[app] = entry.Map()
	}
	auths, err = json.Marshal(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("encode authorizations: %w", err)
	}
	return roles, auths, nil
}

func decodeAuthorizations(data []byte) (map[string]authz.Entry, error) {
	out := map[string]authz.Entry{}
	if len(data) == 0 {
		return out, nil
	}
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode authorizations: %w", err)
	}
	for app, entry := range raw {
		parsed, err := authz.ParseEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("decode authorization %q: %w", app, err)
		}
		out[app] = parsed
	}
	return out, nil
}
