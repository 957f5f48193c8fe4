// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the Discord session
// settings, the verification policy, the database, the admin HTTP server,
// rate limiting and observability.
//
// Variables are bound with github.com/caarlos0/env struct tags. The
// verification policy can additionally be overridden from a YAML file named by
// POLICY_FILE; keys present in the file win over the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DiscordConfig defines the bot session.
type DiscordConfig struct {
	Token   string `env:"DISCORD_TOKEN"`
	AppID   string `env:"DISCORD_APP_ID"`   // defaults to the session user id
	GuildID string `env:"DISCORD_GUILD_ID"` // register commands per guild when set

	EventTimeout     time.Duration `env:"EVENT_TIMEOUT"     envDefault:"10s"`
	InteractionRPS   float64       `env:"INTERACTION_RPS"   envDefault:"2"`
	InteractionBurst int           `env:"INTERACTION_BURST" envDefault:"5"`
}

// PolicyConfig is the verification policy (the bot's config.json).
type PolicyConfig struct {
	NickTemplate              string   `env:"NICK_TEMPLATE"                 envDefault:"{ALLIANCE} | {IGN}" yaml:"nick_template"`
	BypassRoleNames           []string `env:"BYPASS_ROLE_NAMES"             envDefault:"Bot,Admin"          yaml:"bypass_role_names"   envSeparator:","`
	VerifiedRoleName          string   `env:"VERIFIED_ROLE_NAME"            envDefault:"Verified"           yaml:"verified_role_name"`
	LogChannelName            string   `env:"LOG_CHANNEL_NAME"              envDefault:"verification-log"   yaml:"log_channel_name"`
	EnforceOnManualNickChange bool     `env:"ENFORCE_ON_MANUAL_NICK_CHANGE" envDefault:"false"              yaml:"enforce_on_manual_nick_change"`
	IGNMinLen                 int      `env:"IGN_MIN_LEN"                   envDefault:"2"                  yaml:"ign_min_len"`
	IGNMaxLen                 int      `env:"IGN_MAX_LEN"                   envDefault:"20"                 yaml:"ign_max_len"`
}

// DBConfig selects the durable store.
type DBConfig struct {
	Driver  string `env:"DB_DRIVER"    envDefault:"sqlite"` // sqlite|postgres
	Path    string `env:"DB_PATH"      envDefault:"alliancebot.db"`
	URL     string `env:"DATABASE_URL"`
	Tracing bool   `env:"DB_TRACING"   envDefault:"false"`
}

// HTTPConfig defines the admin HTTP server.
type HTTPConfig struct {
	Addr              string        `env:"HTTP_ADDR"           envDefault:":8080"` // empty disables the server
	ReadTimeout       time.Duration `env:"READ_TIMEOUT"        envDefault:"15s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT"       envDefault:"20s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT"        envDefault:"60s"`
	MaxHeaderBytes    int           `env:"MAX_HEADER_BYTES"    envDefault:"1048576"`
	GinMode           string        `env:"GIN_MODE"            envDefault:"release"` // debug|release|test
	APIBasePath       string        `env:"API_BASE_PATH"       envDefault:"/api/v1"`

	// AdminToken mounts the admin API when set.
	AdminToken string `env:"ADMIN_API_TOKEN"`

	RateRPS   float64 `env:"RATE_RPS"   envDefault:"5"`
	RateBurst int     `env:"RATE_BURST" envDefault:"10"`

	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	EnableHSTS         bool          `env:"ENABLE_HSTS"          envDefault:"false"`
	HSTSMaxAge         time.Duration `env:"HSTS_MAX_AGE"         envDefault:"4320h"`
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED"                envDefault:"false"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName string  `env:"OTEL_SERVICE_NAME"           envDefault:"alliancebot"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG"     envDefault:"1"`
}

// Config holds all configuration values for the application.
type Config struct {
	Discord DiscordConfig
	Policy  PolicyConfig
	DB      DBConfig
	HTTP    HTTPConfig
	OTEL    OTELConfig

	LogLevel   string `env:"LOG_LEVEL"   envDefault:"info"` // debug|info|warn|error|fatal|panic
	LogPretty  bool   `env:"LOG_PRETTY"  envDefault:"false"`
	PolicyFile string `env:"POLICY_FILE"`
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies the policy
// file, normalizes values and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PolicyFile != "" {
		if err := applyPolicyFile(&cfg.Policy, cfg.PolicyFile); err != nil {
			return cfg, err
		}
	}
	cfg.normalize()
	return cfg, cfg.Validate()
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	c.HTTP.GinMode = strings.ToLower(c.HTTP.GinMode)
	switch c.HTTP.GinMode {
	case "debug", "release", "test":
	default:
		c.HTTP.GinMode = "release"
	}
	c.HTTP.APIBasePath = normalizeBasePath(c.HTTP.APIBasePath)
	c.HTTP.CORSAllowedOrigins = trimAll(c.HTTP.CORSAllowedOrigins)
	c.Policy.BypassRoleNames = trimAll(c.Policy.BypassRoleNames)
}

// Validate checks invariants that do not depend on the command being run.
func (c Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	switch c.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(c.DB.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(c.DB.URL) == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return errors.New("DB_DRIVER must be sqlite or postgres")
	}
	if c.Discord.EventTimeout <= 0 {
		return errors.New("EVENT_TIMEOUT must be positive")
	}
	if c.Discord.InteractionRPS < 0 || c.HTTP.RateRPS < 0 {
		return errors.New("INTERACTION_RPS and RATE_RPS must be >= 0")
	}
	if c.Discord.InteractionBurst < 1 || c.HTTP.RateBurst < 1 {
		return errors.New("INTERACTION_BURST and RATE_BURST must be >= 1")
	}
	h := c.HTTP
	if h.ReadTimeout <= 0 || h.ReadHeaderTimeout <= 0 || h.WriteTimeout <= 0 || h.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if h.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if h.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	p := c.Policy
	if !strings.Contains(p.NickTemplate, "{IGN}") {
		return errors.New("NICK_TEMPLATE must contain {IGN}")
	}
	if p.IGNMinLen < 1 || p.IGNMaxLen < p.IGNMinLen {
		return errors.New("IGN bounds must satisfy 1 <= IGN_MIN_LEN <= IGN_MAX_LEN")
	}
	return nil
}

// RequireDiscord reports an error when the bot cannot log in.
func (c Config) RequireDiscord() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return errors.New("DISCORD_TOKEN is required")
	}
	return nil
}

// policyOverlay mirrors PolicyConfig with optional fields so that only the
// keys present in the file override the environment.
type policyOverlay struct {
	NickTemplate              *string  `yaml:"nick_template"`
	BypassRoleNames           []string `yaml:"bypass_role_names"`
	VerifiedRoleName          *string  `yaml:"verified_role_name"`
	LogChannelName            *string  `yaml:"log_channel_name"`
	EnforceOnManualNickChange *bool    `yaml:"enforce_on_manual_nick_change"`
	IGNMinLen                 *int     `yaml:"ign_min_len"`
	IGNMaxLen                 *int     `yaml:"ign_max_len"`
}

func applyPolicyFile(p *PolicyConfig, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open POLICY_FILE: %w", err)
	}
	defer f.Close()

	var o policyOverlay
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil {
		return fmt.Errorf("parse POLICY_FILE %s: %w", path, err)
	}

	if o.NickTemplate != nil {
		p.NickTemplate = *o.NickTemplate
	}
	if o.BypassRoleNames != nil {
		p.BypassRoleNames = o.BypassRoleNames
	}
	if o.VerifiedRoleName != nil {
		p.VerifiedRoleName = *o.VerifiedRoleName
	}
	if o.LogChannelName != nil {
		p.LogChannelName = *o.LogChannelName
	}
	if o.EnforceOnManualNickChange != nil {
		p.EnforceOnManualNickChange = *o.EnforceOnManualNickChange
	}
	if o.IGNMinLen != nil {
		p.IGNMinLen = *o.IGNMinLen
	}
	if o.IGNMaxLen != nil {
		p.IGNMaxLen = *o.IGNMaxLen
	}
	return nil
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
