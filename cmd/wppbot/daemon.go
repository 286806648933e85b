package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run 'wppbot serve' as a user service (launchd/systemd)",
	}
	cmd.AddCommand(installDaemonCmd())
	cmd.AddCommand(uninstallDaemonCmd())
	return cmd
}

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the API server of this session as a user service",
		Long:  "Generates a launchd agent or systemd user unit that runs 'wppbot serve' for the selected session on login. Pair the session with 'wppbot login' first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}

			u := serviceUnit{
				Exec:    execPath,
				Config:  resolveConfigPath(),
				Session: cfg.General.Session,
			}
			switch runtime.GOOS {
			case "darwin":
				return installLaunchd(u)
			case "linux":
				return installSystemd(u)
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the user service of this session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			switch runtime.GOOS {
			case "darwin":
				return uninstallLaunchd(cfg.General.Session)
			case "linux":
				return uninstallSystemd(cfg.General.Session)
			default:
				return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
			}
		},
	}
}

// serviceUnit is what a generated service runs. One service per session.
type serviceUnit struct {
	Exec    string
	Config  string
	Session string
}

func launchdLabel(session string) string { return "com.wppbot." + session }

func systemdName(session string) string { return "wppbot-" + session + ".service" }

func (u serviceUnit) render(tmpl string) string {
	home, _ := os.UserHomeDir()
	logDir := filepath.Join(home, ".wppbot", "logs")
	return strings.NewReplacer(
		"{{EXEC}}", u.Exec,
		"{{CONFIG}}", u.Config,
		"{{SESSION}}", u.Session,
		"{{LABEL}}", launchdLabel(u.Session),
		"{{LOG}}", filepath.Join(logDir, "wppbot-"+u.Session+".log"),
		"{{ERR_LOG}}", filepath.Join(logDir, "wppbot-"+u.Session+"-error.log"),
	).Replace(tmpl)
}

func installLaunchd(u serviceUnit) error {
	home, _ := os.UserHomeDir()
	plistDir := filepath.Join(home, "Library", "LaunchAgents")
	plistPath := filepath.Join(plistDir, launchdLabel(u.Session)+".plist")

	os.MkdirAll(filepath.Join(home, ".wppbot", "logs"), 0o755)

	if err := os.MkdirAll(plistDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(plistPath, []byte(u.render(launchdTemplate)), 0o644); err != nil {
		return err
	}

	fmt.Printf("Daemon installed: %s\n", plistPath)
	fmt.Printf("To start: launchctl load %s\n", plistPath)
	fmt.Printf("To stop:  launchctl unload %s\n", plistPath)
	return nil
}

func uninstallLaunchd(session string) error {
	home, _ := os.UserHomeDir()
	plistPath := filepath.Join(home, "Library", "LaunchAgents", launchdLabel(session)+".plist")
	if err := os.Remove(plistPath); err != nil {
		return fmt.Errorf("remove plist: %w", err)
	}
	fmt.Printf("Daemon uninstalled: %s\n", plistPath)
	return nil
}

func installSystemd(u serviceUnit) error {
	home, _ := os.UserHomeDir()
	unitDir := filepath.Join(home, ".config", "systemd", "user")
	name := systemdName(u.Session)
	unitPath := filepath.Join(unitDir, name)

	if err := os.MkdirAll(unitDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(unitPath, []byte(u.render(systemdTemplate)), 0o644); err != nil {
		return err
	}

	fmt.Printf("Daemon installed: %s\n", unitPath)
	fmt.Printf("To start:  systemctl --user start %s\n", name)
	fmt.Printf("To enable: systemctl --user enable %s\n", name)
	fmt.Printf("To stop:   systemctl --user stop %s\n", name)
	return nil
}

func uninstallSystemd(session string) error {
	home, _ := os.UserHomeDir()
	unitPath := filepath.Join(home, ".config", "systemd", "user", systemdName(session))
	if err := os.Remove(unitPath); err != nil {
		return fmt.Errorf("remove unit: %w", err)
	}
	fmt.Printf("Daemon uninstalled: %s\n", unitPath)
	return nil
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
        <string>--session</string>
        <string>{{SESSION}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=wppbot WhatsApp send API ({{SESSION}})
After=network-online.target

[Service]
Type=simple
ExecStart={{EXEC}} serve --config {{CONFIG}} --session {{SESSION}}
Restart=on-failure
RestartSec=10

[Install]
WantedBy=default.target`
