package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"wppbot/internal/journal"
	"wppbot/internal/wpp"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var (
		chat    string
		outcome string
		since   time.Duration
		limit   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sends from the dispatch journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return fmt.Errorf("journal is disabled (journal.enabled=false)")
			}

			store, err := journal.Open(cfg.Journal.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			f := journal.Filter{
				Session: cfg.General.Session,
				ChatID:  chat,
				Outcome: wpp.Outcome(outcome),
				Limit:   limit,
			}
			if since > 0 {
				f.Since = time.Now().Add(-since)
			}
			recs, err := store.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(recs)
			}
			printRecords(recs)
			return nil
		},
	}
	cmd.Flags().StringVar(&chat, "chat", "", "only this chat")
	cmd.Flags().StringVar(&outcome, "outcome", "", "only this outcome (sent, remote_failed, dispatch_failed, not_attempted)")
	cmd.Flags().DurationVar(&since, "since", 0, "only sends newer than this (e.g. 24h)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	cmd.AddCommand(pruneCmd())
	return cmd
}

func pruneCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			if olderThan <= 0 {
				olderThan = time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour
			}
			if olderThan <= 0 {
				return fmt.Errorf("nothing to prune: journal.retentionDays is 0 and --older-than not set")
			}

			store, err := journal.Open(cfg.Journal.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d entries older than %s\n", n, olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age cutoff (default: journal.retentionDays)")
	return cmd
}

func printRecords(recs []wpp.Record) {
	if len(recs) == 0 {
		fmt.Println("No sends recorded.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tOP\tCHAT\tOUTCOME\tACK\tDURATION\tMESSAGE/ERROR")
	for _, r := range recs {
		detail := r.MessageID
		if r.Error != "" {
			detail = r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Started.Local().Format(time.DateTime), r.Op, r.ChatID, r.Outcome, r.Ack,
			r.Duration.Round(time.Millisecond), detail)
	}
	tw.Flush()
}

// pruneLoop applies the retention window once now and then daily until ctx
// ends.
func pruneLoop(ctx context.Context, store *journal.Store, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if _, err := store.Prune(ctx, time.Now().Add(-retention)); err != nil {
			logger.Warn("journal prune failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
