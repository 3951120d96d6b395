package authz

// Grant is the evaluator-facing view of what a requester may do. It is
// derived per request from an Entry or from merged roles and has no
// exported mutators.
type Grant struct {
	read  AccessSet
	write AccessSet
}

// GrantFromEntry derives a grant from a direct-model entry. Only keys
// flagged true are granted.
func GrantFromEntry(e Entry) Grant {
	return Grant{read: granted(e.Read), write: granted(e.Write)}
}

func granted(s AccessSet) AccessSet {
	out := AccessSet{Superuser: s.Superuser, Keys: make(map[string]bool, len(s.Keys))}
	for k, v := range s.Keys {
		if v {
			out.Keys[k] = true
		}
	}
	return out
}

func (g Grant) set(action Action) AccessSet {
	if action == Write {
		return g.write
	}
	return g.read
}

// HasSuperuser reports whether the grant bypasses per-key checks for action.
func (g Grant) HasSuperuser(action Action) bool {
	return g.set(action).Superuser
}

// Keys returns the explicitly granted keys for action, sorted.
func (g Grant) Keys(action Action) []string {
	return sortedKeys(g.set(action).Keys)
}

// Allows is CanAccess as a method.
func (g Grant) Allows(action Action, key string) bool {
	return CanAccess(g, action, key)
}

// IsEmpty reports whether the grant allows nothing.
func (g Grant) IsEmpty() bool {
	return !g.read.Superuser && !g.write.Superuser && len(g.read.Keys) == 0 && len(g.write.Keys) == 0
}
