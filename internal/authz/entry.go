package authz

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AccessSet is the typed form of an entry's "_read" or "_write" sub-map.
// Keys keeps explicit false values: a key listed as false is still
// present for delegation checks, it just grants nothing.
type AccessSet struct {
	Superuser bool
	Keys      map[string]bool
}

// Granted returns the keys whose flag is true, sorted.
func (s AccessSet) Granted() []string {
	out := make([]string, 0, len(s.Keys))
	for _, k := range sortedKeys(s.Keys) {
		if s.Keys[k] {
			out = append(out, k)
		}
	}
	return out
}

// Names returns every key mentioned by the set, regardless of its flag.
func (s AccessSet) Names() []string {
	return sortedKeys(s.Keys)
}

// IsZero reports whether the set mentions nothing at all.
func (s AccessSet) IsZero() bool {
	return !s.Superuser && len(s.Keys) == 0
}

func (s AccessSet) clone() AccessSet {
	out := AccessSet{Superuser: s.Superuser}
	if s.Keys != nil {
		out.Keys = make(map[string]bool, len(s.Keys))
		for k, v := range s.Keys {
			out.Keys[k] = v
		}
	}
	return out
}

func (s AccessSet) raw() map[string]any {
	out := make(map[string]any, len(s.Keys)+1)
	for k, v := range s.Keys {
		out[k] = v
	}
	if s.Superuser {
		out[ReservedSuperuser] = true
	}
	return out
}

// Entry is one application's authorization record on an account: the
// application's own data plus the delegated read/write key sets.
type Entry struct {
	Data  map[string]any
	Read  AccessSet
	Write AccessSet
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	return Entry{
		Data:  cloneData(e.Data),
		Read:  e.Read.clone(),
		Write: e.Write.clone(),
	}
}

// Map renders the entry in its raw form, with "_read" and "_write" as
// per-key boolean maps. Empty access sets are omitted.
func (e Entry) Map() map[string]any {
	out := cloneData(e.Data)
	if out == nil {
		out = map[string]any{}
	}
	if !e.Read.IsZero() {
		out[ReservedRead] = e.Read.raw()
	}
	if !e.Write.IsZero() {
		out[ReservedWrite] = e.Write.raw()
	}
	return out
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Map())
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: authorization must be an object", ErrInvalidInput)
	}
	parsed, err := ParseEntry(raw)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// ParseEntry converts an application-supplied object into an Entry. It is
// the boundary where reserved names are enforced: "_read" and "_write" must
// be access sets and "_superuser" may only appear inside them.
func ParseEntry(raw map[string]any) (Entry, error) {
	entry := Entry{Data: make(map[string]any, len(raw))}
	for key, value := range raw {
		switch key {
		case ReservedRead:
			set, err := ParseAccessSet(key, value)
			if err != nil {
				return Entry{}, err
			}
			entry.Read = set
		case ReservedWrite:
			set, err := ParseAccessSet(key, value)
			if err != nil {
				return Entry{}, err
			}
			entry.Write = set
		case ReservedSuperuser:
			return Entry{}, fmt.Errorf("%w: %q is only valid inside %q or %q", ErrInvalidInput, key, ReservedRead, ReservedWrite)
		default:
			if strings.TrimSpace(key) == "" {
				return Entry{}, fmt.Errorf("%w: empty authorization key", ErrInvalidInput)
			}
			entry.Data[key] = cloneValue(value)
		}
	}
	return entry, nil
}

// ParseAccessSet accepts either a map of key to boolean (direct model) or a
// flat list of key names (role model).
func ParseAccessSet(field string, value any) (AccessSet, error) {
	set := AccessSet{Keys: map[string]bool{}}
	add := func(key string, granted bool) error {
		key = strings.TrimSpace(key)
		switch {
		case key == "":
			return fmt.Errorf("%w: empty key in %q", ErrInvalidInput, field)
		case key == ReservedSuperuser:
			set.Superuser = granted
		case IsReserved(key):
			return fmt.Errorf("%w: %q cannot be nested in %q", ErrInvalidInput, key, field)
		default:
			set.Keys[key] = granted
		}
		return nil
	}

	switch v := value.(type) {
	case nil:
	case map[string]any:
		for key, flag := range v {
			granted, ok := flag.(bool)
			if !ok {
				return AccessSet{}, fmt.Errorf("%w: %s.%s must be a boolean", ErrInvalidInput, field, key)
			}
			if err := add(key, granted); err != nil {
				return AccessSet{}, err
			}
		}
	case map[string]bool:
		for key, granted := range v {
			if err := add(key, granted); err != nil {
				return AccessSet{}, err
			}
		}
	case []any:
		for _, item := range v {
			key, ok := item.(string)
			if !ok {
				return AccessSet{}, fmt.Errorf("%w: %s must list key names", ErrInvalidInput, field)
			}
			if err := add(key, true); err != nil {
				return AccessSet{}, err
			}
		}
	case []string:
		for _, key := range v {
			if err := add(key, true); err != nil {
				return AccessSet{}, err
			}
		}
	default:
		return AccessSet{}, fmt.Errorf("%w: %s must be an object or a list", ErrInvalidInput, field)
	}
	return set, nil
}

func cloneData(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneData(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
