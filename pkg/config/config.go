package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/tenantsql/pkg/apperrors"
	"github.com/ekaya-inc/tenantsql/pkg/tenant"
)

// Config holds all configuration for tenantsql.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server settings for the serve command
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`

	Tenant   TenantConfig   `yaml:"tenant"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Version  string         `yaml:"-"` // Set at load time, not from config
}

// TenantConfig controls which tables are scoped and by which column.
type TenantConfig struct {
	// ScanMode is AUTO (discover tables by column) or ASSIGN (use TargetTables).
	ScanMode string `yaml:"scan_mode" env:"TENANT_SCAN_MODE" env-default:"AUTO"`
	// TargetTables is used verbatim in ASSIGN mode and seeds AUTO discovery.
	TargetTables []string `yaml:"target_tables" env:"TENANT_TARGET_TABLES" env-separator:","`
	// TargetColumns must be non-empty. The first entry is the injected column.
	TargetColumns []string `yaml:"target_columns" env:"TENANT_TARGET_COLUMNS" env-separator:","`
	// FilterSuffix is stripped once from statement ids before exclusion lookup.
	FilterSuffix string `yaml:"filter_suffix" env:"TENANT_FILTER_SUFFIX" env-default:"_COUNT"`
	// ExclusionsFile is an optional YAML document of statement exclusions.
	ExclusionsFile string `yaml:"exclusions_file" env:"TENANT_EXCLUSIONS_FILE" env-default:""`
}

// DatabaseConfig holds the connection used for schema discovery and TenantDB.
type DatabaseConfig struct {
	Type           string `yaml:"type" env:"PGTYPE" env-default:"postgres"` // postgres or mssql
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"tenantsql"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"tenantsql"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// AuthConfig holds JWT verification settings for the claims identity provider.
type AuthConfig struct {
	// EnableVerification controls whether JWT signatures are verified.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// Audience, when set, must appear in every token's aud claim.
	Audience string `yaml:"audience" env:"AUTH_AUDIENCE" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// LogConfig selects the logger flavor.
type LogConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT" env-default:"false"`
	// AuditScoped emits a security audit event for every scoped statement.
	AuditScoped bool   `yaml:"audit_scoped" env:"LOG_AUDIT_SCOPED" env-default:"false"`
}

// Load reads configuration from path with environment variable overrides.
// An empty path reads the environment only. The version parameter is
// injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if path == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.parseComplexFields()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadDefault reads config.yaml when it exists in the working directory and
// falls back to the environment otherwise.
func LoadDefault(version string) (*Config, error) {
	const defaultPath = "config.yaml"
	if _, err := os.Stat(defaultPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Load("", version)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", defaultPath, err)
	}
	return Load(defaultPath, version)
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	c.Tenant.TargetTables = trimAll(c.Tenant.TargetTables)
	c.Tenant.TargetColumns = trimAll(c.Tenant.TargetColumns)
	c.Tenant.ScanMode = strings.ToUpper(strings.TrimSpace(c.Tenant.ScanMode))
}

// Validate fails fast on configuration that must abort startup.
func (c *Config) Validate() error {
	if len(c.Tenant.TargetColumns) == 0 {
		return apperrors.ErrNoTargetColumns
	}
	if _, err := tenant.ParseScanMode(c.Tenant.ScanMode); err != nil {
		return err
	}
	switch c.Database.Type {
	case "postgres", "mssql":
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	return nil
}

// ListenAddr is the host:port the serve command listens on.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.BindAddr, c.Port)
}

// NewRule builds the tenant rule described by the configuration.
func (c *Config) NewRule() (*tenant.Rule, error) {
	mode, err := tenant.ParseScanMode(c.Tenant.ScanMode)
	if err != nil {
		return nil, err
	}
	return tenant.NewRule(mode, c.Tenant.TargetTables, c.Tenant.TargetColumns, c.Tenant.FilterSuffix)
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ConnectionString returns a connection URL for the configured driver.
func (c *DatabaseConfig) ConnectionString() string {
	if c.Type == "mssql" {
		u := &url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(c.User, c.Password),
			Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
			RawQuery: url.Values{"database": {c.Database}}.Encode(),
		}
		return u.String()
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
