package mongo

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"satauth.org/internal/authz"
)

type accountDoc struct {
	Email          string    `bson:"email"`
	CampusID       string    `bson:"campus_id,omitempty"`
	Roles          []string  `bson:"roles,omitempty"`
	Authorizations bson.M    `bson:"authorizations,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func newAccountDoc(a *authz.Account) accountDoc {
	doc := accountDoc{
		Email:     a.Identity,
		CampusID:  a.CampusID,
		Roles:     a.Roles,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if len(a.Authorizations) > 0 {
		doc.Authorizations = bson.M{}
		for app, entry := range a.Authorizations {
			doc.Authorizations[app] = entry.Map()
		}
	}
	return doc
}

func (d accountDoc) account() (*authz.Account, error) {
	acc := &authz.Account{
		Identity:       d.Email,
		CampusID:       d.CampusID,
		Roles:          d.Roles,
		Authorizations: map[string]authz.Entry{},
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	for app, raw := range d.Authorizations {
		m, ok := normalize(raw).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("account %s: authorization %q is not a document", d.Email, app)
		}
		entry, err := authz.ParseEntry(m)
		if err != nil {
			return nil, fmt.Errorf("account %s: authorization %q: %w", d.Email, app, err)
		}
		acc.Authorizations[app] = entry
	}
	return acc, nil
}

// roleDoc keeps the role's key lists inside its authorizations document as
// flat "_read" and "_write" arrays.
type roleDoc struct {
	Name           string `bson:"name"`
	Authorizations bson.M `bson:"authorizations"`
}

func newRoleDoc(r *authz.Role) roleDoc {
	auths := bson.M{}
	for k, v := range r.Authorizations {
		auths[k] = v
	}
	auths[authz.ReservedRead] = nonNil(r.Read)
	auths[authz.ReservedWrite] = nonNil(r.Write)
	return roleDoc{Name: r.Name, Authorizations: auths}
}

func (d roleDoc) role() (*authz.Role, error) {
	role := &authz.Role{Name: d.Name, Authorizations: map[string]any{}}
	for k, v := range d.Authorizations {
		switch k {
		case authz.ReservedRead, authz.ReservedWrite:
			keys, err := stringList(normalize(v))
			if err != nil {
				return nil, fmt.Errorf("role %s %s: %w", d.Name, k, err)
			}
			if k == authz.ReservedRead {
				role.Read = keys
			} else {
				role.Write = keys
			}
		default:
			role.Authorizations[k] = normalize(v)
		}
	}
	return role, nil
}

func authorizationFilter(appID, key string, value any) bson.M {
	return bson.M{"authorizations." + appID + "." + key: value}
}

// normalize converts driver container types into plain maps and slices.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case int32:
		return int64(t)
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}

func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return t, nil
	}
	return nil, fmt.Errorf("expected list, got %T", v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
