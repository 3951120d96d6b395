package authz

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

type roleMap map[string]*Role

func (m roleMap) FindRole(_ context.Context, name string) (*Role, error) {
	r, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, name)
	}
	return r.Clone(), nil
}

type failingLookup struct{ err error }

func (f failingLookup) FindRole(context.Context, string) (*Role, error) { return nil, f.err }

func TestMergeRolesUnion(t *testing.T) {
	roles := roleMap{
		"r1": {Name: "r1", Read: []string{"x"}},
		"r2": {Name: "r2", Read: []string{"y"}, Write: []string{"y"}},
	}
	merged, err := MergeRoles(context.Background(), roles, []string{"r1", "r2", "r1", "ghost"})
	if err != nil {
		t.Fatalf("MergeRoles: %v", err)
	}
	g := merged.Grant()
	if got := g.Keys(Read); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Fatalf("read keys=%v", got)
	}
	if got := g.Keys(Write); !reflect.DeepEqual(got, []string{"y"}) {
		t.Fatalf("write keys=%v", got)
	}
	if !reflect.DeepEqual(merged.Roles, []string{"r1", "r2"}) {
		t.Fatalf("resolved roles=%v", merged.Roles)
	}
}

func TestMergeRolesCollisionIsLexical(t *testing.T) {
	roles := roleMap{
		"alpha": {Name: "alpha", Authorizations: map[string]any{"level": "low"}},
		"beta":  {Name: "beta", Authorizations: map[string]any{"level": "high"}},
	}
	for _, order := range [][]string{{"alpha", "beta"}, {"beta", "alpha"}} {
		merged, err := MergeRoles(context.Background(), roles, order)
		if err != nil {
			t.Fatalf("MergeRoles: %v", err)
		}
		if merged.Authorizations["level"] != "high" {
			t.Fatalf("order %v: level=%v, want high", order, merged.Authorizations["level"])
		}
	}
}

func TestMergeRolesSuperuserAndSnapshot(t *testing.T) {
	roles := roleMap{"admin": {Name: "admin", Authorizations: map[string]any{"tier": 1}, Write: []string{"_superuser", "staff"}}}
	merged, err := MergeRoles(context.Background(), roles, []string{"admin"})
	if err != nil {
		t.Fatalf("MergeRoles: %v", err)
	}
	g := merged.Grant()
	if !g.HasSuperuser(Write) || g.HasSuperuser(Read) {
		t.Fatalf("unexpected superuser flags: %+v", g)
	}
	snap := merged.Snapshot()
	if !reflect.DeepEqual(snap[ReservedWrite], []string{"_superuser", "staff"}) {
		t.Fatalf("snapshot write=%v", snap[ReservedWrite])
	}
	if !reflect.DeepEqual(snap[ReservedRead], []string{}) || snap["tier"] != 1 {
		t.Fatalf("unexpected snapshot: %v", snap)
	}
}

func TestMergeRolesPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := MergeRoles(context.Background(), failingLookup{err: boom}, []string{"r1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestMergeNoRolesIsEmpty(t *testing.T) {
	merged, err := MergeRoles(context.Background(), roleMap{}, nil)
	if err != nil {
		t.Fatalf("MergeRoles: %v", err)
	}
	if !merged.Grant().IsEmpty() {
		t.Fatal("expected empty grant")
	}
}
