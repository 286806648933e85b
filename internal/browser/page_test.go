package browser

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wppbot/internal/wpp"
)

func TestBuildExpression(t *testing.T) {
	expr, err := buildExpression(wpp.ScriptMarkRead, "5511999999999@c.us")
	require.NoError(t, err)
	assert.Equal(t, `((chatId) => WPP.chat.markIsRead(chatId))("5511999999999@c.us")`, expr)

	expr, err = buildExpression(wpp.ScriptSendText, map[string]any{"to": "1@c.us", "content": "</script>"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(expr, "(async ({ to, content, options }) =>"))
	assert.True(t, strings.HasSuffix(expr, `)({"content":"\u003c/script\u003e","to":"1@c.us"})`))
}

func TestBuildExpression_UnknownScript(t *testing.T) {
	_, err := buildExpression(wpp.Script("drop-database"), nil)
	assert.Error(t, err)
}

func TestBuildExpression_UnmarshalableArg(t *testing.T) {
	_, err := buildExpression(wpp.ScriptMarkRead, func() {})
	assert.Error(t, err)
}

func TestEveryScriptHasSource(t *testing.T) {
	for _, s := range []wpp.Script{
		wpp.ScriptSendText, wpp.ScriptSendFile, wpp.ScriptSendLocation, wpp.ScriptSendVcard,
		wpp.ScriptSendList, wpp.ScriptSendMessageOptions, wpp.ScriptMarkRead, wpp.ScriptMarkComposing,
		wpp.ScriptMarkPaused, wpp.ScriptMarkAvailable, wpp.ScriptFetchByID, wpp.ScriptForward,
		wpp.ScriptSetChatState,
	} {
		_, err := buildExpression(s, nil)
		assert.NoError(t, err, s)
	}
}

func TestRemoteValue(t *testing.T) {
	assert.Nil(t, remoteValue(nil))
	assert.Nil(t, remoteValue(&runtime.RemoteObject{Type: runtime.TypeUndefined}))
	assert.JSONEq(t, `{"id":"X"}`, string(remoteValue(&runtime.RemoteObject{
		Type:  runtime.TypeObject,
		Value: []byte(`{"id":"X"}`),
	})))
}

func TestLoadScript_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wa.js")
	require.NoError(t, os.WriteFile(path, []byte("window.WPP = {}"), 0o644))

	code, err := loadScript(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "window.WPP = {}", code)

	_, err = loadScript(context.Background(), filepath.Join(t.TempDir(), "missing.js"))
	assert.Error(t, err)
}

func TestLoadScript_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wa.js" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("window.WPP = {isReady: true}"))
	}))
	defer srv.Close()

	code, err := loadScript(context.Background(), srv.URL+"/wa.js")
	require.NoError(t, err)
	assert.Contains(t, code, "isReady")

	_, err = loadScript(context.Background(), srv.URL+"/nope.js")
	assert.Error(t, err)
}

func TestNewBridge_Defaults(t *testing.T) {
	b := NewBridge(BridgeConfig{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))})
	assert.Contains(t, b.ProfileDir(), filepath.Join(".wppbot", "chrome-profiles", "default"))
}
