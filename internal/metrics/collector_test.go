package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wppbot/internal/wpp"
)

func TestLabels_String(t *testing.T) {
	assert.Equal(t, "", Labels(nil).String())
	assert.Equal(t, `a="1",b="x\"y"`, Labels{"b": `x"y`, "a": "1"}.String())
}

func TestCollector_CounterIsShared(t *testing.T) {
	c := NewCollector("t")
	c.Counter("hits_total", "hits", Labels{"op": "a"}).Inc()
	c.Counter("hits_total", "hits", Labels{"op": "a"}).Add(2)
	c.Counter("hits_total", "hits", Labels{"op": "b"}).Inc()

	assert.EqualValues(t, 3, c.Counter("hits_total", "hits", Labels{"op": "a"}).Value())
	assert.EqualValues(t, 1, c.Counter("hits_total", "hits", Labels{"op": "b"}).Value())
}

func TestCollector_Render(t *testing.T) {
	c := NewCollector("wppbot")
	c.Counter("dispatches_total", "Sends", Labels{"op": "send_text", "outcome": "sent"}).Inc()
	c.Gauge("page_ready", "Page ready", nil).Set(1)
	h := c.Histogram("dispatch_duration_seconds", "Latency", Labels{"op": "send_text"}, []float64{0.1, 1})
	h.Observe(0.0625)
	h.Observe(0.5)
	h.Observe(3)

	out := c.Render()
	assert.Contains(t, out, "# TYPE wppbot_uptime_seconds gauge")
	assert.Contains(t, out, "# HELP wppbot_dispatches_total Sends\n# TYPE wppbot_dispatches_total counter\n")
	assert.Contains(t, out, `wppbot_dispatches_total{op="send_text",outcome="sent"} 1`)
	assert.Contains(t, out, "wppbot_page_ready 1\n")
	assert.Contains(t, out, `wppbot_dispatch_duration_seconds_bucket{op="send_text",le="0.1"} 1`)
	assert.Contains(t, out, `wppbot_dispatch_duration_seconds_bucket{op="send_text",le="1"} 2`)
	assert.Contains(t, out, `wppbot_dispatch_duration_seconds_bucket{op="send_text",le="+Inf"} 3`)
	assert.Contains(t, out, `wppbot_dispatch_duration_seconds_count{op="send_text"} 3`)
	assert.Contains(t, out, `wppbot_dispatch_duration_seconds_sum{op="send_text"} 3.5625`)
}

func TestCollector_RenderIsStable(t *testing.T) {
	c := NewCollector("x")
	for _, op := range []string{"c", "a", "b"} {
		c.Counter("n_total", "n", Labels{"op": op}).Inc()
	}
	first := c.Render()
	i := strings.Index(first, `op="a"`)
	j := strings.Index(first, `op="b"`)
	k := strings.Index(first, `op="c"`)
	assert.True(t, i < j && j < k)
	assert.Equal(t, 1, strings.Count(first, "# TYPE x_n_total counter"))
}

func TestHandler(t *testing.T) {
	c := NewCollector("wppbot")
	rr := httptest.NewRecorder()
	c.Handler()(rr, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rr.Body.String(), "wppbot_uptime_seconds")
}

func TestRecorder(t *testing.T) {
	c := NewCollector("wppbot")
	r := NewRecorder(c)

	r.Record(context.Background(), wpp.Record{Op: "reply", Outcome: wpp.OutcomeSent, Phases: 2, Duration: 300 * time.Millisecond})
	r.Record(context.Background(), wpp.Record{Op: "send_image", Outcome: wpp.OutcomeNotAttempted})

	assert.EqualValues(t, 1, c.Counter("dispatches_total", "", Labels{"op": "reply", "outcome": "sent"}).Value())
	assert.EqualValues(t, 2, c.Counter("page_round_trips_total", "", Labels{"op": "reply"}).Value())
	assert.EqualValues(t, 1, c.Counter("dispatches_total", "", Labels{"op": "send_image", "outcome": "not_attempted"}).Value())

	out := c.Render()
	require.Contains(t, out, `wppbot_dispatch_duration_seconds_count{op="reply"} 1`)
	assert.NotContains(t, out, `wppbot_dispatch_duration_seconds_count{op="send_image"}`)
	assert.NotContains(t, out, `page_round_trips_total{op="send_image"}`)
}
