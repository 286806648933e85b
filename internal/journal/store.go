// Package journal keeps a SQLite history of every send a Sender finished.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"wppbot/internal/wpp"
)

// ErrNotFound is returned by Get for an unknown dispatch id.
var ErrNotFound = errors.New("dispatch not found")

// Store is a wpp.Recorder backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ wpp.Recorder = (*Store)(nil)

func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create journal directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open journal: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}

	return &Store{db: db, logger: logger.With("component", "journal")}, nil
}

// Record stores rec. Failures are logged, never returned to the sender.
func (s *Store) Record(ctx context.Context, rec wpp.Record) {
	if err := s.Insert(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error("journal write failed", "dispatch_id", rec.DispatchID, "op", rec.Op, "err", err)
	}
}

func (s *Store) Insert(ctx context.Context, rec wpp.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatches (dispatch_id, session, op, chat_id, message_id, ack, outcome, error, phases, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DispatchID, rec.Session, rec.Op, rec.ChatID, rec.MessageID, int(rec.Ack),
		string(rec.Outcome), rec.Error, rec.Phases, rec.Started.UnixMilli(), rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert dispatch %s: %w", rec.DispatchID, err)
	}
	return nil
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Session string
	ChatID  string
	Outcome wpp.Outcome
	Since   time.Time
	Limit   int
}

const defaultListLimit = 50

// List returns matching dispatches, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]wpp.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Session != "" {
		where = append(where, "session = ?")
		args = append(args, f.Session)
	}
	if f.ChatID != "" {
		where = append(where, "chat_id = ?")
		args = append(args, wpp.NormalizeChatID(f.ChatID))
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(f.Outcome))
	}
	if !f.Since.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := "SELECT " + columns + " FROM dispatches"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	defer rows.Close()

	var out []wpp.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, dispatchID string) (*wpp.Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM dispatches WHERE dispatch_id = ?", dispatchID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Prune deletes dispatches started before cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM dispatches WHERE started_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("journal pruned", "removed", n, "before", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const columns = "dispatch_id, session, op, chat_id, message_id, ack, outcome, error, phases, started_at, duration_ms"

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (wpp.Record, error) {
	var (
		rec        wpp.Record
		ack        int
		outcome    string
		startedMs  int64
		durationMs int64
	)
	if err := sc.Scan(&rec.DispatchID, &rec.Session, &rec.Op, &rec.ChatID, &rec.MessageID,
		&ack, &outcome, &rec.Error, &rec.Phases, &startedMs, &durationMs); err != nil {
		return rec, err
	}
	rec.Ack = wpp.Ack(ack)
	rec.Outcome = wpp.Outcome(outcome)
	rec.Started = time.UnixMilli(startedMs)
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	return rec, nil
}
