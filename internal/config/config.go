package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for wppbot.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general"`
	Browser  BrowserConfig  `json:"browser" yaml:"browser"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Receipts ReceiptsConfig `json:"receipts" yaml:"receipts"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	API      APIConfig      `json:"api" yaml:"api"`
}

type GeneralConfig struct {
	Session  string `env:"WPPBOT_SESSION"   json:"session" yaml:"session"`
	LogLevel string `env:"WPPBOT_LOG_LEVEL" json:"logLevel" yaml:"logLevel"`
	LogFile  string `env:"WPPBOT_LOG_FILE"  json:"logFile,omitempty" yaml:"logFile,omitempty"`
}

// BrowserConfig configures the Chrome instance hosting WhatsApp Web.
type BrowserConfig struct {
	ProfileDir             string   `env:"WPPBOT_BROWSER_PROFILE_DIR" json:"profileDir" yaml:"profileDir"`
	Headless               bool     `env:"WPPBOT_BROWSER_HEADLESS"    json:"headless" yaml:"headless"`
	ExecPath               string   `env:"WPPBOT_BROWSER_EXEC_PATH"   json:"execPath,omitempty" yaml:"execPath,omitempty"`
	URL                    string   `env:"WPPBOT_BROWSER_URL"         json:"url" yaml:"url"`
	Scripts                []string `env:"WPPBOT_BROWSER_SCRIPTS"     json:"scripts" yaml:"scripts" envSeparator:","` // wa-js bundle plus extra page scripts, path or URL
	ReadyTimeoutSeconds    int      `json:"readyTimeoutSeconds" yaml:"readyTimeoutSeconds"`
	EvaluateTimeoutSeconds int      `json:"evaluateTimeoutSeconds" yaml:"evaluateTimeoutSeconds"` // 0 = wait forever
}

// JournalConfig configures the SQLite dispatch journal.
type JournalConfig struct {
	Enabled       bool   `env:"WPPBOT_JOURNAL_ENABLED" json:"enabled" yaml:"enabled"`
	DBPath        string `env:"WPPBOT_JOURNAL_DB"      json:"dbPath" yaml:"dbPath"`
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays"`
}

// ReceiptsConfig configures delivery receipts published to RabbitMQ.
type ReceiptsConfig struct {
	Enabled    bool   `env:"WPPBOT_RECEIPTS_ENABLED" json:"enabled" yaml:"enabled"`
	URL        string `env:"WPPBOT_AMQP_URL"         json:"url,omitempty" yaml:"url,omitempty"`
	Exchange   string `json:"exchange" yaml:"exchange"`
	RoutingKey string `json:"routingKey" yaml:"routingKey"`

	Webhook WebhookConfig `json:"webhook" yaml:"webhook"`
}

// WebhookConfig posts receipts to an HTTP endpoint, alongside or instead of
// RabbitMQ.
type WebhookConfig struct {
	URL    string `env:"WPPBOT_RECEIPTS_WEBHOOK_URL"    json:"url,omitempty" yaml:"url,omitempty"`
	Secret string `env:"WPPBOT_RECEIPTS_WEBHOOK_SECRET" json:"secret,omitempty" yaml:"secret,omitempty"` // HMAC-SHA256 signing key
}

// MetricsConfig configures the Prometheus text endpoint on the API server.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// APIConfig configures the HTTP send API started by `wppbot serve`.
type APIConfig struct {
	Host   string `env:"WPPBOT_API_HOST" json:"host" yaml:"host"`
	Port   int    `env:"WPPBOT_API_PORT" json:"port" yaml:"port"`
	APIKey string `env:"WPPBOT_API_KEY"  json:"apiKey,omitempty" yaml:"apiKey,omitempty"`

	RateLimit RateLimitConfig `json:"rateLimit" yaml:"rateLimit"`
}

// RateLimitConfig paces the API send routes. PerMinute 0 disables pacing.
type RateLimitConfig struct {
	Burst          int     `json:"burst" yaml:"burst"`
	PerMinute      float64 `env:"WPPBOT_API_SENDS_PER_MINUTE" json:"perMinute" yaml:"perMinute"`
	MaxWaitSeconds int     `json:"maxWaitSeconds" yaml:"maxWaitSeconds"`
}

func (b BrowserConfig) ReadyTimeout() time.Duration {
	return time.Duration(b.ReadyTimeoutSeconds) * time.Second
}

func (b BrowserConfig) EvaluateTimeout() time.Duration {
	return time.Duration(b.EvaluateTimeoutSeconds) * time.Second
}

// DefaultConfigDir returns the default config directory (~/.wppbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wppbot"
	}
	return filepath.Join(home, ".wppbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML config file (chosen by extension), expands
// ${VAR} references, applies WPPBOT_* environment overrides and validates.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Browser.ProfileDir = ExpandPath(cfg.Browser.ProfileDir)
	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)
	for i, s := range cfg.Browser.Scripts {
		cfg.Browser.Scripts[i] = ExpandPath(s)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset VAR
// without default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		name := groups[1]
		def, hasDefault := "", len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			def = groups[2]
		}

		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// Save writes cfg as JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if strings.TrimSpace(cfg.General.Session) == "" {
		errs = append(errs, "general.session must not be empty")
	} else if strings.ContainsAny(cfg.General.Session, `/\`) {
		errs = append(errs, "general.session must not contain path separators")
	}
	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Browser.ReadyTimeoutSeconds < 1 {
		errs = append(errs, "browser.readyTimeoutSeconds must be >= 1")
	}
	if cfg.Browser.EvaluateTimeoutSeconds < 0 {
		errs = append(errs, "browser.evaluateTimeoutSeconds must be >= 0")
	}

	if cfg.Journal.Enabled && cfg.Journal.DBPath == "" {
		errs = append(errs, "journal.dbPath is required when the journal is enabled")
	}
	if cfg.Journal.RetentionDays < 0 {
		errs = append(errs, "journal.retentionDays must be >= 0")
	}

	if cfg.Receipts.Enabled {
		if cfg.Receipts.URL == "" && cfg.Receipts.Webhook.URL == "" {
			errs = append(errs, "receipts.url or receipts.webhook.url is required when receipts are enabled")
		}
		if cfg.Receipts.URL != "" && cfg.Receipts.Exchange == "" {
			errs = append(errs, "receipts.exchange is required with receipts.url")
		}
	}

	if cfg.API.Port < 0 || cfg.API.Port > 65535 {
		errs = append(errs, "api.port must be between 0 and 65535")
	}
	if cfg.API.RateLimit.PerMinute < 0 || cfg.API.RateLimit.Burst < 0 || cfg.API.RateLimit.MaxWaitSeconds < 0 {
		errs = append(errs, "api.rateLimit values must be >= 0")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
