package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"satauth.org/internal/authz"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{"JWT_SECRET": "s"}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.AccessTTL != 15*time.Minute || cfg.RefreshTTL != 48*time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.AuthzModel() != authz.ModelDirect {
		t.Fatalf("unexpected model %q", cfg.AuthzModel())
	}
}

func TestFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.yaml")
	body := `
jwt_secret: from-file
model: roles
store: postgres
postgres_dsn: postgres://file
access_ttl: 5m
cors_origins: ["https://a.example"]
roles:
  - name: registrar
    authorizations: {campus: north}
    read: [student]
    write: [student, tutor]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path, envMap(map[string]string{
		"AUTH_PG_DSN":       "postgres://env",
		"AUTH_CORS_ORIGINS": "https://b.example, https://c.example",
		"AUTH_OWNER_DELETE": "true",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Secret != "from-file" || cfg.PostgresDSN != "postgres://env" || cfg.AccessTTL != 5*time.Minute {
		t.Fatalf("unexpected merge: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://c.example" || !cfg.OwnerDelete {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	roles := cfg.RoleRecords()
	if len(roles) != 1 || roles[0].Name != "registrar" || roles[0].Authorizations["campus"] != "north" {
		t.Fatalf("unexpected roles: %+v", roles)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Model = "acl"
	cfg.Store = "postgres"
	cfg.Roles = []RoleSeed{{Name: "a"}, {Name: "a"}, {Name: "_read"}}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"JWT_SECRET", "acl", "AUTH_PG_DSN", "defined twice", "reserved"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}

func TestBadDuration(t *testing.T) {
	if _, err := Load("", envMap(map[string]string{"AUTH_ACCESS_TTL": "soon"})); err == nil {
		t.Fatal("expected duration parse error")
	}
}
