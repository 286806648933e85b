package config

import "path/filepath"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Session:  "default",
			LogLevel: "info",
		},
		Browser: BrowserConfig{
			Headless:               true,
			URL:                    "https://web.whatsapp.com",
			Scripts:                []string{"https://github.com/wppconnect-team/wa-js/releases/latest/download/wppconnect-wa.js"},
			ReadyTimeoutSeconds:    120,
			EvaluateTimeoutSeconds: 0,
		},
		Journal: JournalConfig{
			Enabled:       true,
			DBPath:        "~/.wppbot/journal.db",
			RetentionDays: 90,
		},
		Receipts: ReceiptsConfig{
			Enabled:    false,
			Exchange:   "wppbot.receipts",
			RoutingKey: "chat.receipt",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 21465,
			RateLimit: RateLimitConfig{
				Burst:          10,
				PerMinute:      30,
				MaxWaitSeconds: 30,
			},
		},
	}
}

// ProfileDir returns the Chrome profile of the configured session, under
// ~/.wppbot/chrome-profiles unless browser.profileDir is set.
func (c *Config) ProfileDir() string {
	if c.Browser.ProfileDir != "" {
		return c.Browser.ProfileDir
	}
	return filepath.Join(DefaultConfigDir(), "chrome-profiles", c.General.Session)
}
