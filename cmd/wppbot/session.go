package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wppbot/internal/browser"
	"wppbot/internal/config"
	"wppbot/internal/journal"
	"wppbot/internal/metrics"
	"wppbot/internal/receipt"
	"wppbot/internal/wpp"

	"github.com/spf13/cobra"
)

// session is a live chat page plus everything recording its sends.
type session struct {
	cfg       *config.Config
	page      *browser.Page
	sender    *wpp.Sender
	journal   *journal.Store
	receipts  []*receipt.Recorder
	collector *metrics.Collector
}

// openSession starts Chrome on the session profile, waits for the page API
// and wires the enabled recorders into a Sender.
func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	s := &session{cfg: cfg}
	var recorders []wpp.Recorder

	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Journal.DBPath, logger)
		if err != nil {
			return nil, err
		}
		s.journal = store
		recorders = append(recorders, store)
	}

	if cfg.Receipts.Enabled {
		pubs, err := receiptPublishers(cfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("receipts: %w", err)
		}
		for _, pub := range pubs {
			rec := receipt.NewRecorder(pub, receipt.RecorderConfig{
				RoutingKey: cfg.Receipts.RoutingKey,
				Logger:     logger,
			})
			s.receipts = append(s.receipts, rec)
			recorders = append(recorders, rec)
		}
	}

	if cfg.Metrics.Enabled {
		s.collector = metrics.NewCollector("wppbot")
		recorders = append(recorders, metrics.NewRecorder(s.collector))
	}

	bridge := browser.NewBridge(browser.BridgeConfig{
		ProfileDir: cfg.ProfileDir(),
		Headless:   cfg.Browser.Headless,
		ExecPath:   cfg.Browser.ExecPath,
		Logger:     logger,
	})
	page, err := bridge.OpenPage(ctx, browser.PageConfig{
		URL:             cfg.Browser.URL,
		Scripts:         cfg.Browser.Scripts,
		ReadyTimeout:    cfg.Browser.ReadyTimeout(),
		EvaluateTimeout: cfg.Browser.EvaluateTimeout(),
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w (is the session paired? run 'wppbot login')", err)
	}
	s.page = page

	s.sender = wpp.NewSender(wpp.SenderConfig{
		Executor:  page,
		Session:   wpp.Session{Name: cfg.General.Session, Logger: logger},
		Recorders: recorders,
	})
	return s, nil
}

// Close stops the browser and flushes the recorders.
func (s *session) Close() {
	if s.page != nil {
		s.page.Close()
	}
	for _, rec := range s.receipts {
		if err := rec.Close(); err != nil {
			logger.Warn("close receipts", "err", err)
		}
	}
	if s.journal != nil {
		s.journal.Close()
	}
}

// receiptPublishers returns one publisher per configured receipt target.
func receiptPublishers(cfg *config.Config) ([]receipt.Publisher, error) {
	var pubs []receipt.Publisher
	if cfg.Receipts.URL != "" {
		pub, err := receipt.Dial(cfg.Receipts.URL, cfg.Receipts.Exchange, logger)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	if cfg.Receipts.Webhook.URL != "" {
		pub, err := receipt.NewWebhook(receipt.WebhookConfig{
			URL:    cfg.Receipts.Webhook.URL,
			Secret: cfg.Receipts.Webhook.Secret,
			Logger: logger,
		})
		if err != nil {
			for _, p := range pubs {
				p.Close()
			}
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, nil
}

// senderRunE opens a session for one command, runs fn and prints its result
// as JSON.
func senderRunE(fn func(ctx context.Context, sender *wpp.Sender, args []string) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := fn(ctx, s.sender, args)
		if err != nil {
			return err
		}
		return printJSON(result)
	}
}
