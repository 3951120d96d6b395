package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"satauth.org/internal/authz"
)

func (s *Store) FindRole(ctx context.Context, name string) (*authz.Role, error) {
	var (
		role                authz.Role
		rawAuth, rawR, rawW []byte
	)
	err := s.db.QueryRowContext(ctx,
		`select name, authorizations, read_keys, write_keys from roles where name = $1`, name,
	).Scan(&role.Name, &rawAuth, &rawR, &rawW)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: role %s", authz.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	role.Authorizations = map[string]any{}
	for _, f := range []struct {
		raw  []byte
		dst  any
		name string
	}{
		{rawAuth, &role.Authorizations, "authorizations"},
		{rawR, &role.Read, "read_keys"},
		{rawW, &role.Write, "write_keys"},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode role %s %s: %w", name, f.name, err)
		}
	}
	return &role, nil
}

func (s *Store) PutRole(ctx context.Context, role *authz.Role) error {
	auths := role.Authorizations
	if auths == nil {
		auths = map[string]any{}
	}
	rawAuth, err := json.Marshal(auths)
	if err != nil {
		return fmt.Errorf("encode role authorizations: %w", err)
	}
	rawR, err := json.Marshal(nonNil(role.Read))
	if err != nil {
		return err
	}
	rawW, err := json.Marshal(nonNil(role.Write))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into roles (name, authorizations, read_keys, write_keys, updated_at)
		values ($1, $2::jsonb, $3::jsonb, $4::jsonb, now())
		on conflict (name) do update
		set authorizations = excluded.authorizations,
		    read_keys = excluded.read_keys,
		    write_keys = excluded.write_keys,
		    updated_at = now()
	`, role.Name, rawAuth, rawR, rawW)
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
