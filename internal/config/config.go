package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// ErrorFormat selects the body written for rejected requests
type ErrorFormat string

const (
	ErrorFormatHTML ErrorFormat = "html"
	ErrorFormatJSON ErrorFormat = "json"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig
	Links   LinksConfig
	Handoff HandoffConfig
	TLS     TLSConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port     string `env:"PORT" envDefault:"4698" json:"port"`
	Env      string `env:"ENV" envDefault:"development" json:"env"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" json:"log_level"`
}

// LinksConfig holds the deep-link handler settings
type LinksConfig struct {
	AppScheme       string      `env:"APP_SCHEME" envDefault:"jomi" json:"app_scheme"`
	WebBaseURL      string      `env:"WEB_BASE_URL" envDefault:"https://jomi.com" json:"web_base_url"`
	ErrorFormat     ErrorFormat `env:"ERROR_FORMAT" envDefault:"html" json:"error_format"`
	LegacyAliasKeys []string    `env:"LEGACY_PUB_ID_KEYS" envDefault:"publd" envSeparator:"," json:"legacy_alias_keys"`
	ScannableCode   bool        `env:"SCANNABLE_CODE" envDefault:"true" json:"scannable_code"`
}

// HandoffConfig holds the client app-open timers
type HandoffConfig struct {
	DirectNavDelay time.Duration `env:"HANDOFF_DIRECT_NAV_DELAY" envDefault:"100ms" json:"direct_nav_delay"`
	FallbackDelay  time.Duration `env:"HANDOFF_FALLBACK_DELAY" envDefault:"1500ms" json:"fallback_delay"`
	SafetyDelay    time.Duration `env:"HANDOFF_SAFETY_DELAY" envDefault:"3s" json:"safety_delay"`
	RevealDelay    time.Duration `env:"HANDOFF_REVEAL_DELAY" envDefault:"2s" json:"reveal_delay"`
}

// TLSConfig enables automatic HTTPS when Domain is set
type TLSConfig struct {
	Domain     string `env:"TLS_DOMAIN" json:"domain"`
	Email      string `env:"TLS_EMAIL" json:"email"`
	HTTPPort   string `env:"TLS_HTTP_PORT" envDefault:"80" json:"http_port"`
	CertDBPath string `env:"CERT_DB_PATH" envDefault:"./certs.db" json:"cert_db_path"`
}

// CLIFlags holds command line overrides
type CLIFlags struct {
	Port    string
	Env     string
	EnvFile string
	Version bool
	Help    bool
}

// ParseFlags parses command line flags from os.Args
func ParseFlags() *CLIFlags {
	flags, err := ParseFlagsFrom(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	return flags
}

// ParseFlagsFrom parses flags into fs from args
func ParseFlagsFrom(fs *flag.FlagSet, args []string) (*CLIFlags, error) {
	flags := &CLIFlags{}
	fs.StringVar(&flags.Port, "port", "", "Server port (overrides PORT)")
	fs.StringVar(&flags.Env, "env", "", "Environment: development or production (overrides ENV)")
	fs.StringVar(&flags.EnvFile, "env-file", ".env", "Optional dotenv file to load")
	fs.BoolVar(&flags.Version, "version", false, "Show version and exit")
	fs.BoolVar(&flags.Help, "help", false, "Show help and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

// Load reads configuration from the dotenv file, the environment and flags,
// and validates it
func Load(flags *CLIFlags) (*Config, error) {
	if flags == nil {
		flags = &CLIFlags{EnvFile: ".env"}
	}

	if flags.EnvFile != "" {
		// A missing dotenv file is normal outside local development
		if err := godotenv.Load(flags.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", flags.EnvFile, err)
		}
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	if flags.Port != "" {
		cfg.Server.Port = flags.Port
	}
	if flags.Env != "" {
		cfg.Server.Env = flags.Env
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// FromEnv builds a Config from environment variables and defaults only
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Links.LegacyAliasKeys = cleanKeys(cfg.Links.LegacyAliasKeys)
	return cfg, nil
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	cfg, err := FromEnv()
	if err != nil {
		// only reachable when the environment holds malformed values
		return &Config{
			Server:  ServerConfig{Port: "4698", Env: EnvDevelopment, LogLevel: "info"},
			Links:   LinksConfig{AppScheme: "jomi", WebBaseURL: "https://jomi.com", ErrorFormat: ErrorFormatHTML, LegacyAliasKeys: []string{"publd"}, ScannableCode: true},
			Handoff: HandoffConfig{DirectNavDelay: 100 * time.Millisecond, FallbackDelay: 1500 * time.Millisecond, SafetyDelay: 3 * time.Second, RevealDelay: 2 * time.Second},
			TLS:     TLSConfig{HTTPPort: "80", CertDBPath: "./certs.db"},
		}
	}
	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validatePort(c.Server.Port); err != nil {
		return err
	}

	if c.Server.Env != EnvDevelopment && c.Server.Env != EnvProduction {
		return fmt.Errorf("invalid environment %q: must be development or production", c.Server.Env)
	}

	switch c.Links.ErrorFormat {
	case ErrorFormatHTML, ErrorFormatJSON:
	default:
		return fmt.Errorf("invalid error format %q: must be html or json", c.Links.ErrorFormat)
	}

	if strings.TrimSpace(c.Links.AppScheme) == "" {
		return errors.New("app scheme cannot be empty")
	}

	u, err := url.Parse(c.Links.WebBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid web base URL %q: must be an absolute http(s) URL", c.Links.WebBaseURL)
	}

	h := c.Handoff
	if h.DirectNavDelay <= 0 || h.FallbackDelay <= 0 || h.SafetyDelay <= 0 || h.RevealDelay <= 0 {
		return errors.New("handoff delays must be positive")
	}
	if h.FallbackDelay >= h.SafetyDelay {
		return fmt.Errorf("handoff fallback delay %s must be shorter than safety delay %s", h.FallbackDelay, h.SafetyDelay)
	}

	if c.TLS.Domain != "" {
		if c.TLS.Email == "" {
			return errors.New("TLS email is required when a TLS domain is set")
		}
		if err := validatePort(c.TLS.HTTPPort); err != nil {
			return fmt.Errorf("TLS HTTP port: %w", err)
		}
		if c.TLS.CertDBPath == "" {
			return errors.New("cert database path cannot be empty")
		}
	}

	return nil
}

// TLSEnabled reports whether automatic HTTPS is configured
func (c *Config) TLSEnabled() bool {
	return c.TLS.Domain != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == EnvDevelopment
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == EnvProduction
}

func validatePort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid port %q: must be between 1 and 65535", port)
	}
	return nil
}

// cleanKeys trims alias keys and drops blanks and duplicates
func cleanKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
