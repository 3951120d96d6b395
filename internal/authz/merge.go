package authz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// RoleLookup fetches role records by name. Implementations return
// ErrNotFound for unknown roles.
type RoleLookup interface {
	FindRole(ctx context.Context, name string) (*Role, error)
}

// Merged is the union of a set of roles.
type Merged struct {
	Authorizations map[string]any
	Read           map[string]struct{}
	Write          map[string]struct{}
	// Roles lists the role names that resolved, in merge order.
	Roles []string
}

// MergeRoles resolves names through lookup and unions them. Names are
// deduplicated and merged in lexical order, so when two roles define the
// same authorization key the lexically greatest role name wins. Unknown
// roles contribute nothing.
func MergeRoles(ctx context.Context, lookup RoleLookup, names []string) (Merged, error) {
	merged := Merged{
		Authorizations: map[string]any{},
		Read:           map[string]struct{}{},
		Write:          map[string]struct{}{},
	}
	for _, name := range normalizeRoleNames(names) {
		role, err := lookup.FindRole(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Merged{}, fmt.Errorf("load role %q: %w", name, err)
		}
		for k, v := range role.Authorizations {
			merged.Authorizations[k] = cloneValue(v)
		}
		for _, k := range role.Read {
			merged.Read[k] = struct{}{}
		}
		for _, k := range role.Write {
			merged.Write[k] = struct{}{}
		}
		merged.Roles = append(merged.Roles, role.Name)
	}
	return merged, nil
}

func normalizeRoleNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Grant converts the merged key sets into a Grant. A "_superuser" name in
// either set sets the superuser flag for that action.
func (m Merged) Grant() Grant {
	return Grant{read: flatSet(m.Read), write: flatSet(m.Write)}
}

func flatSet(keys map[string]struct{}) AccessSet {
	out := AccessSet{Keys: make(map[string]bool, len(keys))}
	for k := range keys {
		if k == ReservedSuperuser {
			out.Superuser = true
			continue
		}
		out.Keys[k] = true
	}
	return out
}

// Snapshot renders the merged roles in the form embedded in access-token
// profiles: the union of role authorizations plus flat, sorted "_read" and
// "_write" lists.
func (m Merged) Snapshot() map[string]any {
	out := cloneData(m.Authorizations)
	if out == nil {
		out = map[string]any{}
	}
	out[ReservedRead] = sortedKeys(m.Read)
	out[ReservedWrite] = sortedKeys(m.Write)
	return out
}
