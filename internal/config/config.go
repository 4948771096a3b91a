// Package config handles YAML configuration loading with environment
// variable expansion (spec §6, AMBIENT STACK / Configuration).
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level gateway configuration, mapping 1:1 onto the
// environment enumerated in spec §6.
type Config struct {
	AppName             string        `yaml:"app_name"`
	AppRequestsTimeout  time.Duration `yaml:"app_requests_timeout"`
	DebugLevel          string        `yaml:"debug_level"`

	Server        ServerConfig        `yaml:"server"`
	ModelsFile    string              `yaml:"models_file"`
	Auth          AuthConfig          `yaml:"auth"`
	IdentityStore IdentityStoreConfig `yaml:"identity_store"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig selects and configures the auth handler variant
// (`auth_method`, spec §4.B).
type AuthConfig struct {
	Method              string    `yaml:"method"`                 // "none", "apikey", "jwt"
	APIKeyHeaderName    string    `yaml:"apikey_header_name"`
	JWT                 JWTConfig `yaml:"jwt"`
}

// JWTConfig carries the `auth_method_jwt_*` settings.
type JWTConfig struct {
	Header          string `yaml:"header"`
	IDClaim         string `yaml:"id_claim"`
	VerifySignature bool   `yaml:"verify_signature"`
	JWKSURI         string `yaml:"jwks_uri"`
	Issuer          string `yaml:"issuer"`
	Audience        string `yaml:"audience"`
}

// IdentityStoreConfig selects and configures the identity store variant
// (`identity_store`, `identity_store_json_filename`, spec §4.A).
type IdentityStoreConfig struct {
	Variant      string `yaml:"variant"` // "none", "json"
	JSONFilename string `yaml:"json_filename"`
}

// LoggingConfig selects and configures the Logging sink variant
// (`logging_client`, `logging_client_*_*`, spec §4.C).
type LoggingConfig struct {
	Client string           `yaml:"client"` // "none", "sqlite"
	SQLite SQLiteSinkConfig `yaml:"sqlite"`
}

// SQLiteSinkConfig carries the `logging_client_sqlite_*` settings.
type SQLiteSinkConfig struct {
	DSN string `yaml:"dsn"`
}

// ObservabilityConfig selects and configures the Observability sink
// variant (`observability_client`, `observability_client_langfuse_host`,
// spec §4.D).
type ObservabilityConfig struct {
	Client   string `yaml:"client"` // "none", "langfuse"
	Langfuse LangfuseSinkConfig `yaml:"langfuse"`
}

// LangfuseSinkConfig carries the `observability_client_langfuse_*` settings.
type LangfuseSinkConfig struct {
	Host string `yaml:"host"`
}

var bracedEnvPattern = regexp.MustCompile(`\$\{([^}]+)\}`)
var bareEnvPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnv replaces ${VAR} and bare $VAR patterns with environment
// variable values, matching os.path.expandvars semantics
// (original_source/llamaxing/llm/dispatcher.py). The braced pattern is
// applied first; the bare pattern only matches "$" followed by a name
// character, so a "${...}" left unexpanded by the first pass (unset
// variable) is left alone by the second.
func expandEnv(data []byte) []byte {
	data = bracedEnvPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
	return bareEnvPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[1:])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expanding environment
// variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{
		AppName:            "llamaxing",
		AppRequestsTimeout: 300 * time.Second,
		DebugLevel:         "info",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    300 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		ModelsFile: "models.json",
		Auth: AuthConfig{
			Method: "none",
		},
		IdentityStore: IdentityStoreConfig{
			Variant: "none",
		},
		Logging: LoggingConfig{
			Client: "none",
		},
		Observability: ObservabilityConfig{
			Client: "none",
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ExpandString applies the same ${VAR}/$VAR expansion Load performs on the
// config file to a single string, for model-registry instance fields
// (spec §3) expanded after the registry JSON is otherwise parsed.
func ExpandString(s string) string {
	return string(expandEnv([]byte(s)))
}
