package authz

import (
	"errors"
	"fmt"
	"strings"
)

// Operation names the gated operation, used in denials and metrics.
type Operation string

const (
	OpRead       Operation = "read"
	OpReplace    Operation = "replace"
	OpRoleChange Operation = "role_change"
	OpDelete     Operation = "delete"
)

// DenyReason is a machine-readable denial code.
type DenyReason string

const (
	ReasonNoReadAccess          DenyReason = "no_read_access"
	ReasonKeysNotWritable       DenyReason = "keys_not_writable"
	ReasonDelegationNotWritable DenyReason = "delegation_not_writable"
	ReasonSuperuserRequired     DenyReason = "superuser_required"
	ReasonRolesNotWritable      DenyReason = "roles_not_writable"
)

// Denial is returned for every refused operation. It matches
// ErrPermissionDenied under errors.Is.
type Denial struct {
	Operation Operation
	Reason    DenyReason
	Keys      []string
}

func (d *Denial) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", ErrPermissionDenied, d.Operation, d.Reason)
	if len(d.Keys) > 0 {
		msg += " [" + strings.Join(d.Keys, ", ") + "]"
	}
	return msg
}

func (d *Denial) Is(target error) bool {
	return target == ErrPermissionDenied
}

// ReasonOf extracts the denial reason from err, or "" if err is not a denial.
func ReasonOf(err error) DenyReason {
	var d *Denial
	if errors.As(err, &d) {
		return d.Reason
	}
	return ""
}

func deny(op Operation, reason DenyReason, keys ...string) error {
	return &Denial{Operation: op, Reason: reason, Keys: keys}
}

// CanAccess reports whether grant covers key for action.
func CanAccess(grant Grant, action Action, key string) bool {
	set := grant.set(action)
	if set.Superuser {
		return true
	}
	return set.Keys[key]
}

// CanAccessAll reports whether grant covers every key for action. An empty
// key set is allowed.
func CanAccessAll(grant Grant, action Action, keys []string) bool {
	return len(missing(grant, action, keys)) == 0
}

func missing(grant Grant, action Action, keys []string) []string {
	var out []string
	for _, k := range keys {
		if !CanAccess(grant, action, k) {
			out = append(out, k)
		}
	}
	return out
}

// ChangingKeys returns the data keys touched by replacing current with
// proposed: every proposed key plus every current key the proposal drops.
// The delegation sets are not included.
func ChangingKeys(current, proposed Entry) []string {
	keys := make(map[string]struct{}, len(current.Data)+len(proposed.Data))
	for k := range proposed.Data {
		keys[k] = struct{}{}
	}
	for k := range current.Data {
		if _, ok := proposed.Data[k]; !ok {
			keys[k] = struct{}{}
		}
	}
	return sortedKeys(keys)
}

// Evaluator applies the write and delete policies.
type Evaluator struct {
	ownerDelete bool
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithOwnerDelete lets an account delete its own entries without holding
// write-superuser.
func WithOwnerDelete(enabled bool) EvaluatorOption {
	return func(e *Evaluator) { e.ownerDelete = enabled }
}

// NewEvaluator builds an Evaluator.
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AuthorizeRead gates listing accounts filtered on filterKey.
func (e *Evaluator) AuthorizeRead(grant Grant, filterKey string) error {
	if !CanAccess(grant, Read, filterKey) {
		return deny(OpRead, ReasonNoReadAccess, filterKey)
	}
	return nil
}

// AuthorizeReplace gates a full replacement of current by proposed.
// Without write-superuser the requester must be able to write every
// changing key and every key named in the proposed delegation sets, and
// may not touch superuser flags.
func (e *Evaluator) AuthorizeReplace(grant Grant, current, proposed Entry) error {
	if grant.HasSuperuser(Write) {
		return nil
	}
	if keys := missing(grant, Write, ChangingKeys(current, proposed)); len(keys) > 0 {
		return deny(OpReplace, ReasonKeysNotWritable, keys...)
	}
	if proposed.Read.Superuser != current.Read.Superuser || proposed.Write.Superuser != current.Write.Superuser {
		return deny(OpReplace, ReasonSuperuserRequired, ReservedSuperuser)
	}
	delegated := make(map[string]struct{})
	for _, k := range proposed.Read.Names() {
		delegated[k] = struct{}{}
	}
	for _, k := range proposed.Write.Names() {
		delegated[k] = struct{}{}
	}
	if keys := missing(grant, Write, sortedKeys(delegated)); len(keys) > 0 {
		return deny(OpReplace, ReasonDelegationNotWritable, keys...)
	}
	return nil
}

// AuthorizeRoleChange requires write access to every role added or removed.
// A partial match denies the whole change.
func (e *Evaluator) AuthorizeRoleChange(grant Grant, add, remove []string) error {
	names := make(map[string]struct{}, len(add)+len(remove))
	for _, n := range add {
		names[n] = struct{}{}
	}
	for _, n := range remove {
		names[n] = struct{}{}
	}
	if keys := missing(grant, Write, sortedKeys(names)); len(keys) > 0 {
		return deny(OpRoleChange, ReasonRolesNotWritable, keys...)
	}
	return nil
}

// AuthorizeDelete gates removing owner's whole entry for an application.
func (e *Evaluator) AuthorizeDelete(grant Grant, requester, owner string) error {
	if grant.HasSuperuser(Write) {
		return nil
	}
	if e.ownerDelete && requester != "" && requester == owner {
		return nil
	}
	return deny(OpDelete, ReasonSuperuserRequired)
}
