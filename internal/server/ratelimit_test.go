package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wppbot/internal/wpp"
)

func TestRateLimiter_ImmediateBurst(t *testing.T) {
	rl := NewRateLimiter(5, 60.0)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, rl.Wait(ctx), "burst token %d", i)
	}
}

func TestRateLimiter_WaitsAfterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 600.0) // 10/sec refill

	ctx := context.Background()
	require.NoError(t, rl.Wait(ctx))

	start := time.Now()
	require.NoError(t, rl.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	rl := NewRateLimiter(1, 1.0)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, rl.Wait(ctx))

	cancel()
	assert.ErrorIs(t, rl.Wait(ctx), context.Canceled)
}

func TestThrottle_Answers429(t *testing.T) {
	page := &fakePage{}
	sender := wpp.NewSender(wpp.SenderConfig{
		Executor: page,
		Session:  wpp.Session{Name: "api", Logger: testLogger()},
	})
	s := New(Config{
		Sender:  sender,
		Limiter: NewRateLimiter(1, 1.0),
		MaxWait: 20 * time.Millisecond,
		Logger:  testLogger(),
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	post := func(path string) *http.Response {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(`{"to":"1","content":"hi"}`))
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusOK, post("/api/send-text").StatusCode)

	resp := post("/api/send-text")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.Len(t, page.Calls(), 1)

	// presence calls are not paced
	resp, err := http.Post(srv.URL+"/api/seen", "application/json", strings.NewReader(`{"chatId":"1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
