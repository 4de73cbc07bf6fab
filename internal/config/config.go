// Package config loads the configuration of an EmbraceSQL root directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultDatabase is created when a root configures no database at all, so
// a fresh root always has somewhere to put tables.
const DefaultDatabase = "default"

// Configuration is everything the engine needs to come up.
type Configuration struct {
	// EmbraceSQLRoot is always the root the configuration was loaded from.
	EmbraceSQLRoot string `mapstructure:"-" json:"embraceSQLRoot"`
	// Databases maps a name to a connection URL: sqlite:, mysql:, postgres:.
	Databases     map[string]string   `mapstructure:"databases" json:"databases"`
	Server        ServerConfig        `mapstructure:"server" json:"server"`
	Auth          AuthConfig          `mapstructure:"auth" json:"auth"`
	Authorization AuthorizationConfig `mapstructure:"authorization" json:"authorization"`
	SQLModules    []SQLModuleConfig   `mapstructure:"sql_modules" json:"sqlModules"`
	Log           LogConfig           `mapstructure:"log" json:"log"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port int `mapstructure:"port" json:"port"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" json:"-"`
	IgnoreExp bool   `mapstructure:"ignore_exp" json:"ignoreExp"`
}

// AuthorizationConfig holds declarative authorization rules.
type AuthorizationConfig struct {
	Rules []AuthorizationRule `mapstructure:"rules" json:"rules"`
}

// AuthorizationRule grants or denies modules under Path when When holds.
// When is an expression over token, authenticated, headers and module.
type AuthorizationRule struct {
	Path    string `mapstructure:"path" json:"path"`
	When    string `mapstructure:"when" json:"when"`
	Grant   string `mapstructure:"grant" json:"grant"`
	Message string `mapstructure:"message" json:"message"`
}

// SQLModuleConfig serves one parameterized statement as a module of
// Database at Path. SQL takes `:name` parameters.
type SQLModuleConfig struct {
	Database string `mapstructure:"database" json:"database"`
	Path     string `mapstructure:"path" json:"path"`
	SQL      string `mapstructure:"sql" json:"sql"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Debug bool `mapstructure:"debug" json:"debug"`
}

// Load reads <root>/.env, then <root>/embracesql.yaml (or .yml), with
// EMBRACESQL_ environment variables taking precedence over the file.
func Load(root string) (*Configuration, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	if err := godotenv.Load(filepath.Join(absRoot, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EMBRACESQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := findConfigFile(absRoot); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.EmbraceSQLRoot = absRoot
	if len(cfg.Databases) == 0 {
		cfg.Databases = map[string]string{DefaultDatabase: "sqlite:" + DefaultDatabase + ".db"}
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8765)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.ignore_exp", false)
	v.SetDefault("log.debug", false)
}

func findConfigFile(root string) string {
	for _, name := range []string{"embracesql.yaml", "embracesql.yml"} {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
