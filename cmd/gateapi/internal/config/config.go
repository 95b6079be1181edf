package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GATE_SERVER_ADDR.
const EnvPrefix = "GATE"

// Config holds the gateway configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Cookie     CookieConfig     `mapstructure:"cookie"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Revocation RevocationConfig `mapstructure:"revocation"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// IdentityConfig locates the identity authority that issues and verifies tokens.
type IdentityConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	VerifyTimeout  time.Duration `mapstructure:"verify_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// UpstreamConfig is the admin SPA that allowed requests are proxied to.
type UpstreamConfig struct {
	URL string `mapstructure:"url"`
}

type CookieConfig struct {
	Secure bool `mapstructure:"secure"`
}

type DatabaseConfig struct {
	URL         string `mapstructure:"url"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// RevocationConfig controls the logged-out token denylist.
type RevocationConfig struct {
	GracePeriod   time.Duration `mapstructure:"grace_period"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// RateLimitConfig limits credential endpoints per client address.
type RateLimitConfig struct {
	LoginPerMinute int `mapstructure:"login_per_minute"`
	LoginBurst     int `mapstructure:"login_burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// LoadOptions selects optional config sources.
type LoadOptions struct {
	// ConfigFile is a YAML/JSON/TOML file; empty means defaults and env only.
	ConfigFile string
	// EnvFile is a dotenv file loaded into the process environment if present.
	EnvFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("identity.base_url", "http://localhost:5000/api")
	v.SetDefault("identity.verify_timeout", 5*time.Second)
	v.SetDefault("identity.request_timeout", 30*time.Second)

	v.SetDefault("upstream.url", "http://localhost:3001")
	v.SetDefault("cookie.secure", false)

	v.SetDefault("database.url", "file:gate.db?cache=shared&_pragma=busy_timeout(5000)")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("revocation.grace_period", time.Hour)
	v.SetDefault("revocation.sweep_interval", 15*time.Minute)

	v.SetDefault("ratelimit.login_per_minute", 10)
	v.SetDefault("ratelimit.login_burst", 5)

	v.SetDefault("cors.allowed_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// Load reads defaults, the optional dotenv and config files, then GATE_*
// environment overrides, and validates the result.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if err := requireAbsoluteURL("identity.base_url", c.Identity.BaseURL); err != nil {
		return err
	}
	if err := requireAbsoluteURL("upstream.url", c.Upstream.URL); err != nil {
		return err
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Identity.VerifyTimeout <= 0 {
		return fmt.Errorf("identity.verify_timeout must be positive")
	}
	if c.RateLimit.LoginPerMinute <= 0 || c.RateLimit.LoginBurst <= 0 {
		return fmt.Errorf("ratelimit.login_per_minute and ratelimit.login_burst must be positive")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

func requireAbsoluteURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return nil
}
