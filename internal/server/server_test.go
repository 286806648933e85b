package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wppbot/internal/journal"
	"wppbot/internal/metrics"
	"wppbot/internal/wpp"
)

type call struct {
	Script wpp.Script
	Arg    any
}

type fakePage struct {
	mu      sync.Mutex
	calls   []call
	respond func(wpp.Script, any) (json.RawMessage, error)
	unready error
}

func (f *fakePage) Evaluate(_ context.Context, script wpp.Script, arg any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{script, arg})
	f.mu.Unlock()
	if f.respond == nil {
		return json.RawMessage(`{"ack":1,"id":"true_1@c.us_X","sendMsgResult":{}}`), nil
	}
	return f.respond(script, arg)
}

func (f *fakePage) Healthy(context.Context) error { return f.unready }

func (f *fakePage) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	page    *fakePage
	journal *journal.Store
	srv     *httptest.Server
}

func newFixture(t *testing.T, apiKey string) *fixture {
	t.Helper()
	page := &fakePage{}
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	collector := metrics.NewCollector("wppbot")
	sender := wpp.NewSender(wpp.SenderConfig{
		Executor:  page,
		Session:   wpp.Session{Name: "api", Logger: testLogger()},
		Recorders: []wpp.Recorder{store, metrics.NewRecorder(collector)},
	})
	s := New(Config{
		APIKey:  apiKey,
		Sender:  sender,
		History: store,
		Health:  page,
		Metrics: collector.Handler(),
		Logger:  testLogger(),
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{page: page, journal: store, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, body, key string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func TestAuth(t *testing.T) {
	f := newFixture(t, "s3cret")

	code, body := f.do(t, "POST", "/api/send-text", `{"to":"1","content":"hi"}`, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid API key", body["error"])

	code, _ = f.do(t, "POST", "/api/send-text", `{"to":"1","content":"hi"}`, "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Empty(t, f.page.Calls())

	code, _ = f.do(t, "POST", "/api/send-text", `{"to":"1","content":"hi"}`, "s3cret")
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, code, "health is public")
}

func TestSendText(t *testing.T) {
	f := newFixture(t, "")
	code, body := f.do(t, "POST", "/api/send-text", `{"to":"5511999999999","content":"hello"}`, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "true_1@c.us_X", body["id"])
	assert.EqualValues(t, 1, body["ack"])

	calls := f.page.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, wpp.ScriptSendText, calls[0].Script)
	arg := calls[0].Arg.(map[string]any)
	assert.Equal(t, "5511999999999@c.us", arg["to"])
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t, "")
	tests := []struct {
		path, body string
	}{
		{"/api/send-text", `{not json`},
		{"/api/send-text", `{"content":"no recipient"}`},
		{"/api/send-text", `{"to":"1","unknown":true}`},
		{"/api/send-image", `{"to":"1"}`},
		{"/api/send-image", `{"to":"1","path":"/a.png","base64":"data:image/png;base64,AA=="}`},
		{"/api/send-file", `{"to":"1"}`},
		{"/api/send-vcard", `{"to":"1","contacts":[]}`},
		{"/api/reply", `{"to":"1","content":"x"}`},
		{"/api/forward", `{"to":"1"}`},
		{"/api/seen", `{}`},
		{"/api/chat-state", `{"chatId":"1","state":7}`},
		{"/api/send-link", `{"to":"1"}`},
	}
	for _, tt := range tests {
		code, _ := f.do(t, "POST", tt.path, tt.body, "")
		assert.Equal(t, http.StatusBadRequest, code, "%s %s", tt.path, tt.body)
	}
	assert.Empty(t, f.page.Calls())
}

func TestNotAttemptedIs422(t *testing.T) {
	f := newFixture(t, "")
	code, body := f.do(t, "POST", "/api/send-image", `{"to":"1","path":"/no/such/file.png"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body["error"], "not attempted")

	pdf := "data:application/pdf;base64,JVBERi0="
	code, _ = f.do(t, "POST", "/api/send-image", `{"to":"1","base64":"`+pdf+`"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Empty(t, f.page.Calls())
}

func TestDispatchErrorIs502(t *testing.T) {
	f := newFixture(t, "")
	f.page.respond = func(wpp.Script, any) (json.RawMessage, error) {
		return nil, errors.New("Evaluation failed: WPP is not defined")
	}
	code, body := f.do(t, "POST", "/api/send-location", `{"to":"1","latitude":-23.5,"longitude":-46.6,"title":"SP"}`, "")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body["error"], "WPP is not defined")
}

func TestTimeoutIs504(t *testing.T) {
	f := newFixture(t, "")
	f.page.respond = func(wpp.Script, any) (json.RawMessage, error) {
		return nil, context.DeadlineExceeded
	}
	code, _ := f.do(t, "POST", "/api/seen", `{"chatId":"1"}`, "")
	assert.Equal(t, http.StatusGatewayTimeout, code)
}

func TestRemoteFailureIsData(t *testing.T) {
	f := newFixture(t, "")
	f.page.respond = func(wpp.Script, any) (json.RawMessage, error) {
		return json.RawMessage(`{"ack":1,"id":null,"sendMsgResult":null,"error":"chat not found"}`), nil
	}
	code, body := f.do(t, "POST", "/api/send-vcard", `{"to":"1","contacts":["2@c.us"]}`, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "chat not found", body["error"])
	assert.EqualValues(t, -1, body["ack"])
}

func TestReplyTwoPhase(t *testing.T) {
	f := newFixture(t, "")
	f.page.respond = func(s wpp.Script, arg any) (json.RawMessage, error) {
		if s == wpp.ScriptFetchByID {
			return json.RawMessage(`{"id":"true_1@c.us_X","body":"thanks","ack":2,"fromMe":true,"t":1700000000}`), nil
		}
		return json.RawMessage(`{"ack":1,"id":"true_1@c.us_X","sendMsgResult":{}}`), nil
	}
	code, body := f.do(t, "POST", "/api/reply", `{"to":"1","content":"thanks","quotedMessageId":"false_1@c.us_Q"}`, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "thanks", body["body"])
	assert.EqualValues(t, 2, body["ack"])

	calls := f.page.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "true_1@c.us_X", calls[1].Arg)
}

func TestSendFileBase64(t *testing.T) {
	f := newFixture(t, "")
	code, _ := f.do(t, "POST", "/api/send-file",
		`{"to":"123-456","base64":"data:application/pdf;base64,JVBERi0=","filename":"a.pdf","caption":"doc"}`, "")
	require.Equal(t, http.StatusOK, code)

	arg := f.page.Calls()[0].Arg.(map[string]any)
	assert.Equal(t, "123-456@g.us", arg["to"])
	opts := arg["options"].(map[string]any)
	assert.Equal(t, "a.pdf", opts["filename"])
	assert.Equal(t, "doc", opts["caption"])
}

func TestSendList(t *testing.T) {
	f := newFixture(t, "")
	body := `{"to":"1","list":{"buttonText":"Pick","description":"Menu","sections":[{"title":"Food","rows":[{"rowId":"1","title":"Pizza"}]}]}}`
	code, _ := f.do(t, "POST", "/api/send-list", body, "")
	require.Equal(t, http.StatusOK, code)

	calls := f.page.Calls()
	require.Len(t, calls, 2)
	opts := calls[0].Arg.(map[string]any)["options"].(wpp.ListOptions)
	assert.Equal(t, "Pick", opts.ButtonText)
	assert.Equal(t, "Pizza", opts.Sections[0].Rows[0].Title)
}

func TestPresenceRoutes(t *testing.T) {
	f := newFixture(t, "")
	f.page.respond = func(wpp.Script, any) (json.RawMessage, error) { return json.RawMessage(`true`), nil }

	code, body := f.do(t, "POST", "/api/typing", `{"to":"1","durationMs":3000}`, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["result"])

	code, _ = f.do(t, "POST", "/api/typing", `{"to":"1","stop":true}`, "")
	require.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, "POST", "/api/presence", `{"online":false}`, "")
	require.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, "POST", "/api/chat-state", `{"chatId":"1","state":1}`, "")
	require.Equal(t, http.StatusOK, code)

	scripts := []wpp.Script{}
	for _, c := range f.page.Calls() {
		scripts = append(scripts, c.Script)
	}
	assert.Equal(t, []wpp.Script{wpp.ScriptMarkComposing, wpp.ScriptMarkPaused, wpp.ScriptMarkAvailable, wpp.ScriptSetChatState}, scripts)
}

func TestForward(t *testing.T) {
	f := newFixture(t, "")
	f.page.respond = func(wpp.Script, any) (json.RawMessage, error) { return json.RawMessage(`[{"id":"a"}]`), nil }
	code, body := f.do(t, "POST", "/api/forward", `{"to":"1","messageIds":["m1","m2"]}`, "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["result"], 1)
}

func TestHistory(t *testing.T) {
	f := newFixture(t, "")
	f.do(t, "POST", "/api/send-text", `{"to":"111","content":"a"}`, "")
	f.do(t, "POST", "/api/send-text", `{"to":"222","content":"b"}`, "")
	f.do(t, "POST", "/api/send-image", `{"to":"111","path":"/missing.png"}`, "")

	code, body := f.do(t, "GET", "/api/history?chat=111", "", "")
	require.Equal(t, http.StatusOK, code)
	entries := body["dispatches"].([]any)
	require.Len(t, entries, 2)
	first := entries[0].(map[string]any)
	assert.Equal(t, "send_image", first["op"])
	assert.Equal(t, "not_attempted", first["outcome"])

	code, body = f.do(t, "GET", "/api/history?outcome=sent&limit=1", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["dispatches"], 1)

	since := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	code, body = f.do(t, "GET", "/api/history?since="+since, "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["dispatches"])

	code, _ = f.do(t, "GET", "/api/history?limit=zero", "", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHistoryDisabled(t *testing.T) {
	sender := wpp.NewSender(wpp.SenderConfig{Executor: &fakePage{}, Session: wpp.Session{Logger: testLogger()}})
	srv := httptest.NewServer(New(Config{Sender: sender, Logger: testLogger()}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/history")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "")
	code, body := f.do(t, "GET", "/healthz", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "api", body["session"])

	f.page.unready = errors.New("page not ready")
	code, body = f.do(t, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "page not ready", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, "")
	f.do(t, "POST", "/api/send-text", `{"to":"1","content":"a"}`, "")

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(data), `wppbot_dispatches_total{op="send_text",outcome="sent"} 1`)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("x")))
	assert.Equal(t, http.StatusBadGateway, statusOf(&wpp.DispatchError{Script: wpp.ScriptSendText, Err: errors.New("x")}))
}
