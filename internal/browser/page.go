package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"wppbot/internal/wpp"
)

const (
	// DefaultWAJS is the page API the scripts in package wpp call into.
	DefaultWAJS = "https://github.com/wppconnect-team/wa-js/releases/latest/download/wppconnect-wa.js"

	readyExpr    = `typeof WPP !== 'undefined' && WPP.isReady === true`
	pollInterval = 500 * time.Millisecond
)

var ErrPageNotReady = errors.New("chat page not ready")

// PageConfig controls how a session page is opened.
type PageConfig struct {
	URL             string
	Scripts         []string      // paths or URLs injected after load, in order
	ReadyTimeout    time.Duration // wait for WPP.isReady
	EvaluateTimeout time.Duration // per round trip, 0 = none
}

// Page is a live WhatsApp Web tab. It implements wpp.Executor.
type Page struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *slog.Logger
}

var _ wpp.Executor = (*Page)(nil)

// OpenPage starts Chrome on the bridge profile, loads the chat page, injects
// the page API and waits until it reports ready. The session must already
// be paired. Close the page when done.
func (b *Bridge) OpenPage(ctx context.Context, cfg PageConfig) (*Page, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if len(cfg.Scripts) == 0 {
		cfg.Scripts = []string{DefaultWAJS}
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Minute
	}

	// ctx bounds startup only; once ready the page lives until Close.
	taskCtx, cancel := b.NewContext(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	p := &Page{ctx: taskCtx, cancel: cancel, timeout: cfg.EvaluateTimeout, logger: b.logger}

	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(cfg.URL),
		chromedp.WaitReady("body"),
	); err != nil {
		cancel()
		return nil, fmt.Errorf("open chat page: %w", err)
	}

	for _, src := range cfg.Scripts {
		if err := p.inject(ctx, src); err != nil {
			cancel()
			return nil, err
		}
	}

	if err := p.waitReady(cfg.ReadyTimeout); err != nil {
		cancel()
		return nil, err
	}

	if !stop() {
		return nil, fmt.Errorf("open chat page: %w", ctx.Err())
	}
	b.logger.Info("chat page ready", "url", cfg.URL)
	return p, nil
}

// Close shuts down the tab and its browser.
func (p *Page) Close() {
	p.cancel()
}

// Evaluate applies script to arg inside the page and waits for the returned
// promise. A JavaScript exception comes back as an error.
func (p *Page) Evaluate(ctx context.Context, script wpp.Script, arg any) (json.RawMessage, error) {
	expr, err := buildExpression(script, arg)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := p.runContext(ctx)
	defer cancel()

	var obj *runtime.RemoteObject
	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, &obj, awaitByValue)); err != nil {
		return nil, err
	}
	return remoteValue(obj), nil
}

// Healthy reports whether the page API is still loaded.
func (p *Page) Healthy(ctx context.Context) error {
	runCtx, cancel := p.runContext(ctx)
	defer cancel()

	var ready bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(readyExpr, &ready)); err != nil {
		return fmt.Errorf("probe page: %w", err)
	}
	if !ready {
		return ErrPageNotReady
	}
	return nil
}

// runContext derives a round trip context from the tab that also ends
// when the caller's ctx does.
func (p *Page) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if p.timeout > 0 {
		runCtx, cancel = context.WithTimeout(p.ctx, p.timeout)
	} else {
		runCtx, cancel = context.WithCancel(p.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *Page) inject(ctx context.Context, src string) error {
	code, err := loadScript(ctx, src)
	if err != nil {
		return fmt.Errorf("load %s: %w", src, err)
	}
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(code, nil)); err != nil {
		return fmt.Errorf("inject %s: %w", src, err)
	}
	p.logger.Debug("script injected", "src", src, "bytes", len(code))
	return nil
}

func (p *Page) waitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var ready bool
		if err := chromedp.Run(p.ctx, chromedp.Evaluate(readyExpr, &ready)); err != nil {
			return fmt.Errorf("probe page: %w", err)
		}
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s (is the session paired?)", ErrPageNotReady, timeout)
		}
		select {
		case <-p.ctx.Done():
			return p.ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// buildExpression renders `(<script>)(<arg as JSON>)`.
func buildExpression(script wpp.Script, arg any) (string, error) {
	src := script.Source()
	if src == "" {
		return "", fmt.Errorf("unknown script %q", script)
	}
	b, err := json.Marshal(arg)
	if err != nil {
		return "", fmt.Errorf("marshal %s argument: %w", script, err)
	}
	return "(" + src + ")(" + string(b) + ")", nil
}

func awaitByValue(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true).WithReturnByValue(true)
}

// remoteValue returns the JSON value of obj, nil for undefined.
func remoteValue(obj *runtime.RemoteObject) json.RawMessage {
	if obj == nil || obj.Type == runtime.TypeUndefined || len(obj.Value) == 0 {
		return nil
	}
	return json.RawMessage(obj.Value)
}

func loadScript(ctx context.Context, src string) (string, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		b, err := os.ReadFile(src)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
