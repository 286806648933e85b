package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"wppbot/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your wppbot installation",
		Long: `Verifies that the configuration, Chrome, the paired session profile,
the dispatch journal and the receipts broker are set up. Reports pass/fail
for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("wppbot doctor v%s\n", version)
			fmt.Printf("----------------------------------------\n\n")

			var passed, failed, warned int

			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'wppbot init' to create a default configuration.\n")
				return fmt.Errorf("config file missing")
			}
			printPass("Config file", cfgPath)
			passed++

			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				return fmt.Errorf("config invalid")
			}
			printPass("Config validation", "valid")
			passed++
			if sessionName != "" {
				cfg.General.Session = sessionName
			}

			if chrome, err := findChrome(cfg.Browser.ExecPath); err != nil {
				printFail("Chrome", err.Error())
				failed++
			} else {
				printPass("Chrome", chrome)
				passed++
			}

			profile := cfg.ProfileDir()
			if entries, err := os.ReadDir(profile); err != nil || len(entries) == 0 {
				printWarn("Session profile", fmt.Sprintf("%s is empty, run 'wppbot login'", profile))
				warned++
			} else {
				printPass("Session profile", profile)
				passed++
			}

			for _, src := range cfg.Browser.Scripts {
				if isURL(src) {
					continue
				}
				if _, err := os.Stat(src); err != nil {
					printFail("Page script", fmt.Sprintf("not found: %s", src))
					failed++
				} else {
					printPass("Page script", src)
					passed++
				}
			}

			if cfg.Journal.Enabled {
				if err := checkDatabase(cfg.Journal.DBPath); err != nil {
					printFail("Journal", err.Error())
					failed++
				} else {
					printPass("Journal", cfg.Journal.DBPath)
					passed++
				}
			}

			if cfg.Receipts.Enabled && cfg.Receipts.URL != "" {
				if err := checkBroker(cfg.Receipts.URL); err != nil {
					printFail("Receipts broker", err.Error())
					failed++
				} else {
					printPass("Receipts broker", config.Sanitize(cfg).Receipts.URL)
					passed++
				}
			}
			if cfg.Receipts.Enabled && cfg.Receipts.Webhook.URL != "" {
				if cfg.Receipts.Webhook.Secret == "" {
					printWarn("Receipts webhook", cfg.Receipts.Webhook.URL+" (unsigned)")
					warned++
				} else {
					printPass("Receipts webhook", cfg.Receipts.Webhook.URL)
					passed++
				}
			}

			if err := checkPort(cfg.API.Host, cfg.API.Port); err != nil {
				printWarn("API port", fmt.Sprintf("%d may be in use: %v", cfg.API.Port, err))
				warned++
			} else {
				printPass("API port", fmt.Sprintf("%s:%d available", cfg.API.Host, cfg.API.Port))
				passed++
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			fmt.Printf("\n----------------------------------------\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

// findChrome resolves the Chrome binary chromedp would start.
func findChrome(execPath string) (string, error) {
	if execPath != "" {
		if _, err := os.Stat(execPath); err != nil {
			return "", fmt.Errorf("browser.execPath: %w", err)
		}
		return execPath, nil
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	mac := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
	if _, err := os.Stat(mac); err == nil {
		return mac, nil
	}
	return "", fmt.Errorf("no Chrome or Chromium found; set browser.execPath")
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")
	return nil
}

func checkBroker(url string) error {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		return err
	}
	return conn.Close()
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func isURL(s string) bool {
	return len(s) > 8 && (s[:7] == "http://" || s[:8] == "https://")
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
