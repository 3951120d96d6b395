package authz

import (
	"fmt"
	"slices"
	"time"
)

// The functions below mutate an account in place. They perform no
// authorization and must only run after the Evaluator has allowed the
// change.

// Replace overwrites the entry for appID and returns a copy of the
// account's full authorization map.
func Replace(account *Account, appID string, entry Entry) map[string]Entry {
	if account.Authorizations == nil {
		account.Authorizations = map[string]Entry{}
	}
	account.Authorizations[appID] = entry.Clone()
	return cloneAuthorizations(account.Authorizations)
}

// Remove deletes the entry for appID.
func Remove(account *Account, appID string) error {
	if _, ok := account.Authorizations[appID]; !ok {
		return fmt.Errorf("%w: no authorization for %q on %s", ErrNotFound, appID, account.Identity)
	}
	delete(account.Authorizations, appID)
	return nil
}

// AddRole attaches name to the account. It reports whether the role set
// changed.
func AddRole(account *Account, name string) bool {
	if slices.Contains(account.Roles, name) {
		return false
	}
	account.Roles = append(account.Roles, name)
	slices.Sort(account.Roles)
	return true
}

// RemoveRole detaches name from the account. It reports whether the role
// set changed.
func RemoveRole(account *Account, name string) bool {
	i := slices.Index(account.Roles, name)
	if i < 0 {
		return false
	}
	account.Roles = slices.Delete(account.Roles, i, i+1)
	return true
}

func touch(account *Account, now time.Time) {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
}
