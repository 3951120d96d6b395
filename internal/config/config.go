// Package config loads service configuration from an optional YAML file and
// the environment. Environment values override the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"satauth.org/internal/authz"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Config is the full service configuration.
type Config struct {
	// Secret is the symmetric token signing secret (JWT_SECRET).
	Secret string `yaml:"jwt_secret"`
	// GoogleClientID is the audience expected in Google ID tokens.
	GoogleClientID string `yaml:"google_client_id"`

	Model        string        `yaml:"model"`
	Store        string        `yaml:"store"`
	PostgresDSN  string        `yaml:"postgres_dsn"`
	MongoURL     string        `yaml:"mongodb_url"`
	MongoDB      string        `yaml:"mongodb_database"`
	HTTPAddr     string        `yaml:"http_addr"`
	GRPCAddr     string        `yaml:"grpc_addr"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	AccessTTL    time.Duration `yaml:"access_ttl"`
	RefreshTTL   time.Duration `yaml:"refresh_ttl"`
	StoreTimeout time.Duration `yaml:"store_timeout"`
	// OwnerDelete lets an account delete its own authorization entries.
	OwnerDelete bool `yaml:"owner_delete"`

	// Roles are upserted at startup.
	Roles []RoleSeed `yaml:"roles"`
}

// RoleSeed is one role definition in the config file.
type RoleSeed struct {
	Name           string         `yaml:"name"`
	Authorizations map[string]any `yaml:"authorizations"`
	Read           []string       `yaml:"read"`
	Write          []string       `yaml:"write"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Model:        string(authz.ModelDirect),
		Store:        StoreMemory,
		MongoDB:      "Accounts",
		HTTPAddr:     ":8080",
		GRPCAddr:     ":9090",
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   48 * time.Hour,
		StoreTimeout: 5 * time.Second,
	}
}

// Load reads path (if non-empty) and then applies environment overrides
// looked up through getenv. A nil getenv uses os.Getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("JWT_SECRET", &c.Secret)
	str("GOOGLE_CLIENT_ID", &c.GoogleClientID)
	str("MONGODB_URL", &c.MongoURL)
	str("AUTH_MODEL", &c.Model)
	str("AUTH_STORE", &c.Store)
	str("AUTH_PG_DSN", &c.PostgresDSN)
	str("AUTH_MONGO_DB", &c.MongoDB)
	str("AUTH_HTTP_ADDR", &c.HTTPAddr)
	str("AUTH_GRPC_ADDR", &c.GRPCAddr)
	if v := strings.TrimSpace(getenv("AUTH_CORS_ORIGINS")); v != "" {
		c.CORSOrigins = splitList(v)
	}
	if v := strings.TrimSpace(getenv("AUTH_OWNER_DELETE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTH_OWNER_DELETE: %w", err)
		}
		c.OwnerDelete = b
	}
	return errors.Join(
		dur("AUTH_ACCESS_TTL", &c.AccessTTL),
		dur("AUTH_REFRESH_TTL", &c.RefreshTTL),
		dur("AUTH_STORE_TIMEOUT", &c.StoreTimeout),
	)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Secret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if _, err := authz.ParseModel(c.Model); err != nil {
		errs = append(errs, err)
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("AUTH_PG_DSN is required for the postgres store"))
		}
	case StoreMongo:
		if c.MongoURL == "" {
			errs = append(errs, errors.New("MONGODB_URL is required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.StoreTimeout < 0 {
		errs = append(errs, errors.New("store timeout must not be negative"))
	}
	seen := make(map[string]struct{}, len(c.Roles))
	for _, r := range c.Roles {
		name, err := authz.ValidateRoleName(r.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("role %q defined twice", name))
		}
		seen[name] = struct{}{}
	}
	return errors.Join(errs...)
}

// AuthzModel returns the parsed authorization model.
func (c Config) AuthzModel() authz.Model {
	m, _ := authz.ParseModel(c.Model)
	return m
}

// RoleRecords converts the seeds into role records.
func (c Config) RoleRecords() []*authz.Role {
	out := make([]*authz.Role, 0, len(c.Roles))
	for _, r := range c.Roles {
		out = append(out, &authz.Role{
			Name:           r.Name,
			Authorizations: r.Authorizations,
			Read:           r.Read,
			Write:          r.Write,
		})
	}
	return out
}
