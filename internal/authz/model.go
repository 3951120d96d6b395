package authz

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Reserved names inside an authorization entry. Applications may never use
// them as ordinary data keys.
const (
	ReservedRead      = "_read"
	ReservedWrite     = "_write"
	ReservedSuperuser = "_superuser"
)

// IsReserved reports whether name carries evaluator-defined meaning.
func IsReserved(name string) bool {
	switch name {
	case ReservedRead, ReservedWrite, ReservedSuperuser:
		return true
	}
	return false
}

// Action is the access mode being evaluated.
type Action int

const (
	Read Action = iota
	Write
)

func (a Action) String() string {
	if a == Write {
		return "write"
	}
	return "read"
}

// Model selects how a deployment represents authorization state. Exactly
// one model is active per deployment.
type Model string

const (
	// ModelDirect stores a per-application Entry on every account.
	ModelDirect Model = "direct"
	// ModelRoles attaches named roles to accounts and merges them.
	ModelRoles Model = "roles"
)

// ParseModel converts a configuration value into a Model.
func ParseModel(raw string) (Model, error) {
	switch Model(strings.TrimSpace(strings.ToLower(raw))) {
	case ModelDirect, "":
		return ModelDirect, nil
	case ModelRoles, "role":
		return ModelRoles, nil
	default:
		return "", fmt.Errorf("%w: unknown authorization model %q", ErrInvalidInput, raw)
	}
}

// Account is the stored record for one identity.
type Account struct {
	Identity       string
	CampusID       string
	Roles          []string
	Authorizations map[string]Entry
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewAccount returns an empty account for identity.
func NewAccount(identity string) *Account {
	return &Account{
		Identity:       identity,
		Authorizations: map[string]Entry{},
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Roles = append([]string(nil), a.Roles...)
	out.Authorizations = cloneAuthorizations(a.Authorizations)
	return &out
}

// Role is a named bundle of authorizations attachable to many accounts.
type Role struct {
	Name           string
	Authorizations map[string]any
	Read           []string
	Write          []string
}

// Clone returns a deep copy of the role.
func (r *Role) Clone() *Role {
	if r == nil {
		return nil
	}
	return &Role{
		Name:           r.Name,
		Authorizations: cloneData(r.Authorizations),
		Read:           append([]string(nil), r.Read...),
		Write:          append([]string(nil), r.Write...),
	}
}

func cloneAuthorizations(in map[string]Entry) map[string]Entry {
	out := make(map[string]Entry, len(in))
	for app, entry := range in {
		out[app] = entry.Clone()
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
