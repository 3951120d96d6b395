package authz

import (
	"errors"
	"reflect"
	"testing"
)

func entryOf(t *testing.T, raw map[string]any) Entry {
	t.Helper()
	e, err := ParseEntry(raw)
	if err != nil {
		t.Fatalf("ParseEntry(%v): %v", raw, err)
	}
	return e
}

func TestSuperuserDominance(t *testing.T) {
	g := GrantFromEntry(Entry{Write: AccessSet{Superuser: true}})
	for _, key := range []string{"access", "never-listed", "", "_read"} {
		if !CanAccess(g, Write, key) {
			t.Fatalf("write superuser denied key %q", key)
		}
		if CanAccess(g, Read, key) {
			t.Fatalf("write superuser leaked into read for %q", key)
		}
	}
}

func TestCanAccessAllIsConjunction(t *testing.T) {
	g := GrantFromEntry(entryOf(t, map[string]any{
		"_write": map[string]any{"a": true, "b": true, "c": false},
	}))
	if !CanAccessAll(g, Write, []string{"a", "b"}) {
		t.Fatal("expected a,b writable")
	}
	if CanAccessAll(g, Write, []string{"a", "b", "c"}) {
		t.Fatal("explicit false must not grant")
	}
	if CanAccessAll(g, Write, []string{"a", "z"}) {
		t.Fatal("one missing key must deny the batch")
	}
	if !CanAccessAll(g, Write, nil) {
		t.Fatal("empty key set should be allowed")
	}
}

func TestChangingKeys(t *testing.T) {
	current := entryOf(t, map[string]any{"a": 1, "b": 2, "_read": map[string]any{"x": true}})
	proposed := entryOf(t, map[string]any{"b": 3, "c": 4, "_write": map[string]any{"y": true}})
	got := ChangingKeys(current, proposed)
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ChangingKeys=%v, want %v", got, want)
	}
}

func TestAuthorizeReplace(t *testing.T) {
	eval := NewEvaluator()
	cases := []struct {
		name     string
		grant    map[string]any
		current  map[string]any
		proposed map[string]any
		reason   DenyReason
	}{
		{
			name:     "empty grant denied",
			grant:    map[string]any{},
			current:  map[string]any{},
			proposed: map[string]any{"access": true},
			reason:   ReasonKeysNotWritable,
		},
		{
			name:     "superuser allowed",
			grant:    map[string]any{"_write": map[string]any{"_superuser": true}},
			current:  map[string]any{"other": 1},
			proposed: map[string]any{"access": true, "_read": map[string]any{"_superuser": true}},
		},
		{
			name:     "exact key allowed",
			grant:    map[string]any{"_write": map[string]any{"access": true}},
			current:  map[string]any{"access": true},
			proposed: map[string]any{"access": false},
		},
		{
			name:     "removing unwritable key denied",
			grant:    map[string]any{"_write": map[string]any{"access": true}},
			current:  map[string]any{"access": true, "grade": 3},
			proposed: map[string]any{"access": false},
			reason:   ReasonKeysNotWritable,
		},
		{
			name:     "delegating unwritable key denied",
			grant:    map[string]any{"_write": map[string]any{"access": true}},
			current:  map[string]any{},
			proposed: map[string]any{"access": true, "_read": map[string]any{"grade": true}},
			reason:   ReasonDelegationNotWritable,
		},
		{
			name:     "delegating false still needs write",
			grant:    map[string]any{"_write": map[string]any{"access": true}},
			current:  map[string]any{},
			proposed: map[string]any{"_write": map[string]any{"grade": false}},
			reason:   ReasonDelegationNotWritable,
		},
		{
			name:     "delegating writable key allowed",
			grant:    map[string]any{"_write": map[string]any{"access": true}},
			current:  map[string]any{},
			proposed: map[string]any{"access": true, "_read": map[string]any{"access": true}},
		},
		{
			name:     "granting superuser denied",
			grant:    map[string]any{"_write": map[string]any{"access": true}},
			current:  map[string]any{},
			proposed: map[string]any{"_write": map[string]any{"_superuser": true}},
			reason:   ReasonSuperuserRequired,
		},
		{
			name:     "revoking superuser denied",
			grant:    map[string]any{"_write": map[string]any{"access": true}},
			current:  map[string]any{"_read": map[string]any{"_superuser": true}},
			proposed: map[string]any{},
			reason:   ReasonSuperuserRequired,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			grant := GrantFromEntry(entryOf(t, tc.grant))
			err := eval.AuthorizeReplace(grant, entryOf(t, tc.current), entryOf(t, tc.proposed))
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("expected allow, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrPermissionDenied) {
				t.Fatalf("expected permission denied, got %v", err)
			}
			if got := ReasonOf(err); got != tc.reason {
				t.Fatalf("reason=%q, want %q", got, tc.reason)
			}
		})
	}
}

func TestAuthorizeRead(t *testing.T) {
	eval := NewEvaluator()
	g := GrantFromEntry(entryOf(t, map[string]any{"_read": map[string]any{"access": true}}))
	if err := eval.AuthorizeRead(g, "access"); err != nil {
		t.Fatalf("expected allow: %v", err)
	}
	err := eval.AuthorizeRead(g, "grade")
	if ReasonOf(err) != ReasonNoReadAccess {
		t.Fatalf("expected no_read_access, got %v", err)
	}
	var d *Denial
	if !errors.As(err, &d) || !reflect.DeepEqual(d.Keys, []string{"grade"}) || d.Operation != OpRead {
		t.Fatalf("unexpected denial: %#v", err)
	}
}

func TestAuthorizeRoleChange(t *testing.T) {
	eval := NewEvaluator()
	g := Merged{Write: map[string]struct{}{"staff": {}}}.Grant()
	if err := eval.AuthorizeRoleChange(g, []string{"staff"}, nil); err != nil {
		t.Fatalf("expected allow: %v", err)
	}
	err := eval.AuthorizeRoleChange(g, []string{"staff"}, []string{"admin"})
	if ReasonOf(err) != ReasonRolesNotWritable {
		t.Fatalf("partial authorization must deny, got %v", err)
	}
	su := Merged{Write: map[string]struct{}{ReservedSuperuser: {}}}.Grant()
	if err := eval.AuthorizeRoleChange(su, []string{"admin"}, []string{"root"}); err != nil {
		t.Fatalf("superuser should change any role: %v", err)
	}
}

func TestAuthorizeDelete(t *testing.T) {
	empty := Grant{}
	if err := NewEvaluator().AuthorizeDelete(empty, "a@x.io", "a@x.io"); ReasonOf(err) != ReasonSuperuserRequired {
		t.Fatalf("owner delete should be off by default, got %v", err)
	}
	owner := NewEvaluator(WithOwnerDelete(true))
	if err := owner.AuthorizeDelete(empty, "a@x.io", "a@x.io"); err != nil {
		t.Fatalf("owner should delete own entry: %v", err)
	}
	if err := owner.AuthorizeDelete(empty, "a@x.io", "b@x.io"); err == nil {
		t.Fatal("non-owner without superuser must be denied")
	}
	su := GrantFromEntry(Entry{Write: AccessSet{Superuser: true}})
	if err := NewEvaluator().AuthorizeDelete(su, "a@x.io", "b@x.io"); err != nil {
		t.Fatalf("superuser delete denied: %v", err)
	}
}
