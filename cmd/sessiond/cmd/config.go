package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "SESSIOND"
	configName = "sessiond"
)

// Config is the daemon configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Core    CoreConfig    `mapstructure:"core" yaml:"core"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`
}

// RedisConfig points at the session store. An empty Addr starts an
// in-process miniredis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db" validate:"gte=0"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// CoreConfig selects a remote core. When URL is empty sessions are kept in
// Redis by the embedded core.
type CoreConfig struct {
	URL     string        `mapstructure:"url" yaml:"url" validate:"omitempty,url"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
}

type SessionConfig struct {
	APIDomain            string        `mapstructure:"api_domain" yaml:"api_domain" validate:"required,url"`
	WebsiteDomain        string        `mapstructure:"website_domain" yaml:"website_domain" validate:"required,url"`
	APIBasePath          string        `mapstructure:"api_base_path" yaml:"api_base_path" validate:"required,startswith=/"`
	CookieDomain         string        `mapstructure:"cookie_domain" yaml:"cookie_domain"`
	OlderCookieDomain    string        `mapstructure:"older_cookie_domain" yaml:"older_cookie_domain"`
	TransferMethod       string        `mapstructure:"transfer_method" yaml:"transfer_method" validate:"oneof=any header cookie"`
	AntiCSRF             string        `mapstructure:"anti_csrf" yaml:"anti_csrf" validate:"omitempty,oneof=VIA_TOKEN VIA_CUSTOM_HEADER NONE"`
	CheckDatabase        bool          `mapstructure:"check_database" yaml:"check_database"`
	SigningKey           string        `mapstructure:"signing_key" yaml:"signing_key" validate:"omitempty,min=32"`
	AccessTokenValidity  time.Duration `mapstructure:"access_token_validity" yaml:"access_token_validity" validate:"gte=0"`
	RefreshTokenValidity time.Duration `mapstructure:"refresh_token_validity" yaml:"refresh_token_validity" validate:"gte=0"`
	MaxRefreshAttempts   int           `mapstructure:"max_refresh_attempts" yaml:"max_refresh_attempts" validate:"gte=0"`
	RefreshWindow        time.Duration `mapstructure:"refresh_window" yaml:"refresh_window" validate:"gte=0"`
	Audit                bool          `mapstructure:"audit" yaml:"audit"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error fatal"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// newViper returns a viper instance reading configFile, or sessiond.yaml
// from the standard locations, with SESSIOND_ environment overrides.
func newViper(configFile string) *viper.Viper {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		v.SetConfigFile(found)
	} else {
		// ReadInConfig reports ConfigFileNotFoundError, which loadConfig ignores.
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvKeys(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3001")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("redis.prefix", "st")

	v.SetDefault("core.timeout", 10*time.Second)

	v.SetDefault("session.api_domain", "http://localhost:3001")
	v.SetDefault("session.website_domain", "http://localhost:3000")
	v.SetDefault("session.api_base_path", "/auth")
	v.SetDefault("session.transfer_method", "any")
	v.SetDefault("session.access_token_validity", time.Hour)
	v.SetDefault("session.refresh_token_validity", 100*24*time.Hour)
	v.SetDefault("session.refresh_window", time.Minute)

	v.SetDefault("log.level", "info")
}

// bindEnvKeys makes keys without a default reachable from the environment.
func bindEnvKeys(v *viper.Viper) {
	_ = v.BindEnv("redis.addr")
	_ = v.BindEnv("redis.password")
	_ = v.BindEnv("redis.db")
	_ = v.BindEnv("core.url")
	_ = v.BindEnv("core.api_key")
	_ = v.BindEnv("session.cookie_domain")
	_ = v.BindEnv("session.older_cookie_domain")
	_ = v.BindEnv("session.anti_csrf")
	_ = v.BindEnv("session.check_database")
	_ = v.BindEnv("session.signing_key")
	_ = v.BindEnv("session.max_refresh_attempts")
	_ = v.BindEnv("session.audit")
	_ = v.BindEnv("log.development")
}

func findConfigFile() string {
	return findConfigFileInPaths([]string{".", "/etc/sessiond"})
}

// findConfigFileInPaths requires an explicit yaml extension so the sessiond
// binary itself is never picked up.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, configName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// loadConfig reads and validates the configuration held by v.
func loadConfig(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks field rules and the token lifetimes.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	s := c.Session
	if s.AccessTokenValidity > 0 && s.RefreshTokenValidity > 0 && s.RefreshTokenValidity <= s.AccessTokenValidity {
		return errors.New("session.refresh_token_validity must exceed session.access_token_validity")
	}
	if c.Core.URL != "" && s.MaxRefreshAttempts > 0 {
		return errors.New("session.max_refresh_attempts applies to the embedded core only")
	}
	return nil
}
