package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load defaults ---

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Discord.EventTimeout != 10*time.Second || cfg.Discord.InteractionRPS != 2 || cfg.Discord.InteractionBurst != 5 {
		t.Fatalf("discord defaults unexpected: %+v", cfg.Discord)
	}
	p := cfg.Policy
	if p.NickTemplate != "{ALLIANCE} | {IGN}" || p.VerifiedRoleName != "Verified" ||
		p.LogChannelName != "verification-log" || p.EnforceOnManualNickChange ||
		p.IGNMinLen != 2 || p.IGNMaxLen != 20 {
		t.Fatalf("policy defaults unexpected: %+v", p)
	}
	if !reflect.DeepEqual(p.BypassRoleNames, []string{"Bot", "Admin"}) {
		t.Fatalf("bypass defaults = %#v", p.BypassRoleNames)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.Path != "alliancebot.db" {
		t.Fatalf("db defaults unexpected: %+v", cfg.DB)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.HTTP.APIBasePath != "/api/v1" || cfg.HTTP.GinMode != "release" {
		t.Fatalf("http defaults unexpected: %+v", cfg.HTTP)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.ServiceName != "alliancebot" || cfg.OTEL.SampleRatio != 1 {
		t.Fatalf("otel defaults unexpected: %+v", cfg.OTEL)
	}
	if cfg.LogLevel != "info" || cfg.LogPretty {
		t.Fatalf("log defaults unexpected: %q %v", cfg.LogLevel, cfg.LogPretty)
	}
}

// --- Load overrides + normalization ---

func TestLoad_OverridesAndNormalization(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("DISCORD_GUILD_ID", "123")
	t.Setenv("EVENT_TIMEOUT", "3s")
	t.Setenv("INTERACTION_RPS", "0.5")
	t.Setenv("INTERACTION_BURST", "2")

	t.Setenv("NICK_TEMPLATE", "[{ALLIANCE}] {IGN}")
	t.Setenv("BYPASS_ROLE_NAMES", " Bot , ,Moderator ")
	t.Setenv("ENFORCE_ON_MANUAL_NICK_CHANGE", "true")

	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("GIN_MODE", "weird")
	t.Setenv("API_BASE_PATH", "admin/")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("LOG_PRETTY", "1")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")

	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Discord.Token != "tok" || cfg.Discord.GuildID != "123" ||
		cfg.Discord.EventTimeout != 3*time.Second ||
		cfg.Discord.InteractionRPS != 0.5 || cfg.Discord.InteractionBurst != 2 {
		t.Fatalf("discord fields unexpected: %+v", cfg.Discord)
	}
	if cfg.Policy.NickTemplate != "[{ALLIANCE}] {IGN}" || !cfg.Policy.EnforceOnManualNickChange {
		t.Fatalf("policy fields unexpected: %+v", cfg.Policy)
	}
	if !reflect.DeepEqual(cfg.Policy.BypassRoleNames, []string{"Bot", "Moderator"}) {
		t.Fatalf("bypass names not trimmed: %#v", cfg.Policy.BypassRoleNames)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second || cfg.HTTP.GinMode != "release" || cfg.HTTP.APIBasePath != "/admin" {
		t.Fatalf("http fields unexpected: %+v", cfg.HTTP)
	}
	if !reflect.DeepEqual(cfg.HTTP.CORSAllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("CORS origins parse mismatch: %#v", cfg.HTTP.CORSAllowedOrigins)
	}
	if !cfg.HTTP.EnableHSTS || cfg.HTTP.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security fields unexpected: %+v", cfg.HTTP)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty {
		t.Fatalf("log fields unexpected: %q %v", cfg.LogLevel, cfg.LogPretty)
	}
	if cfg.DB.Driver != "postgres" {
		t.Fatalf("driver not normalized: %q", cfg.DB.Driver)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.25 {
		t.Fatalf("otel fields unexpected: %+v", cfg.OTEL)
	}
	if err := cfg.RequireDiscord(); err != nil {
		t.Fatalf("RequireDiscord: %v", err)
	}
}

func TestLoad_ParseErrors(t *testing.T) {
	cases := map[string]string{
		"EVENT_TIMEOUT":   "soon",
		"RATE_RPS":        "x",
		"IGN_MIN_LEN":     "two",
		"LOG_PRETTY":      "yes",
		"INTERACTION_RPS": "fast",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse env") {
				t.Fatalf("%s=%q: expected parse error, got %v", k, v, err)
			}
		})
	}
}

// --- Validate ---

func TestValidate_Errors(t *testing.T) {
	base, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
		{"driver", func(c *Config) { c.DB.Driver = "mysql" }, "DB_DRIVER"},
		{"sqlite path", func(c *Config) { c.DB.Path = " " }, "DB_PATH"},
		{"postgres url", func(c *Config) { c.DB.Driver = "postgres"; c.DB.URL = "" }, "DATABASE_URL"},
		{"event timeout", func(c *Config) { c.Discord.EventTimeout = 0 }, "EVENT_TIMEOUT"},
		{"negative rps", func(c *Config) { c.HTTP.RateRPS = -1 }, "RATE_RPS"},
		{"zero burst", func(c *Config) { c.Discord.InteractionBurst = 0 }, "BURST"},
		{"timeouts", func(c *Config) { c.HTTP.WriteTimeout = 0 }, "timeouts"},
		{"header bytes", func(c *Config) { c.HTTP.MaxHeaderBytes = 0 }, "MAX_HEADER_BYTES"},
		{"hsts", func(c *Config) { c.HTTP.HSTSMaxAge = -time.Second }, "HSTS_MAX_AGE"},
		{"sampler", func(c *Config) { c.OTEL.SampleRatio = 1.5 }, "OTEL_TRACES_SAMPLER_ARG"},
		{"template", func(c *Config) { c.Policy.NickTemplate = "{ALLIANCE}" }, "{IGN}"},
		{"ign min", func(c *Config) { c.Policy.IGNMinLen = 0 }, "IGN"},
		{"ign bounds", func(c *Config) { c.Policy.IGNMinLen = 5; c.Policy.IGNMaxLen = 4 }, "IGN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestRequireDiscord_MissingToken(t *testing.T) {
	var c Config
	if err := c.RequireDiscord(); err == nil {
		t.Fatal("expected error without DISCORD_TOKEN")
	}
}

// --- Policy file ---

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return p
}

func TestLoad_PolicyFileOverridesEnv(t *testing.T) {
	t.Setenv("VERIFIED_ROLE_NAME", "FromEnv")
	t.Setenv("LOG_CHANNEL_NAME", "env-log")
	t.Setenv("POLICY_FILE", writePolicy(t, `
nick_template: "{IGN} ({ALLIANCE})"
bypass_role_names: [Bot, Staff]
verified_role_name: Member
enforce_on_manual_nick_change: true
ign_max_len: 16
`))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	p := cfg.Policy
	if p.NickTemplate != "{IGN} ({ALLIANCE})" || p.VerifiedRoleName != "Member" ||
		!p.EnforceOnManualNickChange || p.IGNMaxLen != 16 {
		t.Fatalf("file values not applied: %+v", p)
	}
	if !reflect.DeepEqual(p.BypassRoleNames, []string{"Bot", "Staff"}) {
		t.Fatalf("bypass = %#v", p.BypassRoleNames)
	}
	// Keys absent from the file keep their environment values.
	if p.LogChannelName != "env-log" || p.IGNMinLen != 2 {
		t.Fatalf("absent keys overwritten: %+v", p)
	}
}

func TestLoad_PolicyFileErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		t.Setenv("POLICY_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "open POLICY_FILE") {
			t.Fatalf("expected open error, got %v", err)
		}
	})
	t.Run("unknown key", func(t *testing.T) {
		t.Setenv("POLICY_FILE", writePolicy(t, "nick_templat: x\n"))
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse POLICY_FILE") {
			t.Fatalf("expected parse error, got %v", err)
		}
	})
	t.Run("invalid result", func(t *testing.T) {
		t.Setenv("POLICY_FILE", writePolicy(t, "nick_template: \"{ALLIANCE}\"\n"))
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "{IGN}") {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

// --- helpers ---

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":          "/",
		"   ":       "/",
		"/":         "/",
		"api":       "/api",
		"/api/":     "/api",
		"api/v1///": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q)=%q want %q", in, got, want)
		}
	}
}

func TestTrimAll(t *testing.T) {
	if got := trimAll(nil); got != nil {
		t.Fatalf("nil in should give nil, got %#v", got)
	}
	if got := trimAll([]string{" ", ""}); len(got) != 0 {
		t.Fatalf("blank entries should be dropped, got %#v", got)
	}
}
