package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wppbot/internal/metrics"
	"wppbot/internal/server"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the session open and serve the HTTP send API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.API.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.API.Port = port
			}
			if cfg.API.APIKey == "" && cfg.API.Host != "127.0.0.1" && cfg.API.Host != "localhost" {
				logger.Warn("API is reachable beyond localhost without an API key", "host", cfg.API.Host)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			srvCfg := server.Config{
				Host:   cfg.API.Host,
				Port:   cfg.API.Port,
				APIKey: cfg.API.APIKey,
				Sender: s.sender,
				Logger: logger,
			}
			if rl := cfg.API.RateLimit; rl.PerMinute > 0 {
				srvCfg.Limiter = server.NewRateLimiter(rl.Burst, rl.PerMinute)
				srvCfg.MaxWait = time.Duration(rl.MaxWaitSeconds) * time.Second
			}
			health := server.HealthChecker(s.page)
			if s.collector != nil {
				health = readyGauge{HealthChecker: s.page, g: s.collector.Gauge("page_ready", "1 when the chat page API answered the last health probe", nil)}
				srvCfg.Metrics = s.collector.Handler()
				srvCfg.MetricsPath = cfg.Metrics.Endpoint
			}
			srvCfg.Health = health
			if s.journal != nil {
				srvCfg.History = s.journal
				go pruneLoop(ctx, s.journal, time.Duration(cfg.Journal.RetentionDays)*24*time.Hour)
			}

			return server.New(srvCfg).Start(ctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default: api.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default: api.port)")
	return cmd
}

// readyGauge mirrors health probe results into a gauge.
type readyGauge struct {
	server.HealthChecker
	g *metrics.Gauge
}

func (r readyGauge) Healthy(ctx context.Context) error {
	err := r.HealthChecker.Healthy(ctx)
	if err != nil {
		r.g.Set(0)
	} else {
		r.g.Set(1)
	}
	return err
}
