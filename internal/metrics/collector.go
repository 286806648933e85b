// Package metrics renders dispatch counters and latencies in the Prometheus
// text exposition format.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Labels are rendered sorted by name.
type Labels map[string]string

func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	names := make([]string, 0, len(l))
	for k := range l {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = fmt.Sprintf("%s=%q", k, l[k])
	}
	return strings.Join(parts, ",")
}

// Collector aggregates counters, gauges and histograms keyed by name and
// label set. Safe for concurrent use.
type Collector struct {
	namespace string
	start     time.Time

	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	help       map[string]string
}

func NewCollector(namespace string) *Collector {
	return &Collector{
		namespace:  namespace,
		start:      time.Now(),
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		help:       make(map[string]string),
	}
}

func (c *Collector) Uptime() time.Duration {
	return time.Since(c.start)
}

type Counter struct {
	name   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

type Gauge struct {
	name   string
	labels string
	value  atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	name    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (c *Collector) fullName(name string) string {
	if c.namespace == "" {
		return name
	}
	return c.namespace + "_" + name
}

// Counter returns the counter for name and labels, creating it on first use.
func (c *Collector) Counter(name, help string, labels Labels) *Counter {
	name = c.fullName(name)
	key := name + "{" + labels.String() + "}"

	c.mu.RLock()
	ctr, ok := c.counters[key]
	c.mu.RUnlock()
	if ok {
		return ctr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok := c.counters[key]; ok {
		return ctr
	}
	ctr = &Counter{name: name, labels: labels.String()}
	c.counters[key] = ctr
	c.help[name] = help
	return ctr
}

func (c *Collector) Gauge(name, help string, labels Labels) *Gauge {
	name = c.fullName(name)
	key := name + "{" + labels.String() + "}"

	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.gauges[key]; ok {
		return g
	}
	g := &Gauge{name: name, labels: labels.String()}
	c.gauges[key] = g
	c.help[name] = help
	return g
}

// Histogram returns the histogram for name and labels. buckets only apply
// when the histogram is created; +Inf is always added.
func (c *Collector) Histogram(name, help string, labels Labels, buckets []float64) *Histogram {
	name = c.fullName(name)
	key := name + "{" + labels.String() + "}"

	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.histograms[key]; ok {
		return h
	}
	bs := append([]float64(nil), buckets...)
	sort.Float64s(bs)
	if len(bs) == 0 || !math.IsInf(bs[len(bs)-1], 1) {
		bs = append(bs, math.Inf(1))
	}
	hb := make([]histBucket, len(bs))
	for i, b := range bs {
		hb[i] = histBucket{le: b}
	}
	h := &Histogram{name: name, labels: labels.String(), buckets: hb}
	c.histograms[key] = h
	c.help[name] = help
	return h
}

// Handler renders every metric in Prometheus text format, sorted by name.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, c.Render())
	}
}

func (c *Collector) Render() string {
	var sb strings.Builder

	uptime := c.fullName("uptime_seconds")
	fmt.Fprintf(&sb, "# HELP %s Time since start in seconds\n", uptime)
	fmt.Fprintf(&sb, "# TYPE %s gauge\n", uptime)
	fmt.Fprintf(&sb, "%s %d\n", uptime, int64(c.Uptime().Seconds()))

	c.mu.RLock()
	defer c.mu.RUnlock()

	written := make(map[string]bool)
	header := func(name, kind string) {
		if written[name] {
			return
		}
		written[name] = true
		fmt.Fprintf(&sb, "# HELP %s %s\n", name, c.help[name])
		fmt.Fprintf(&sb, "# TYPE %s %s\n", name, kind)
	}

	for _, key := range sortedKeys(c.counters) {
		ctr := c.counters[key]
		header(ctr.name, "counter")
		fmt.Fprintf(&sb, "%s %d\n", series(ctr.name, ctr.labels, ""), ctr.Value())
	}
	for _, key := range sortedKeys(c.gauges) {
		g := c.gauges[key]
		header(g.name, "gauge")
		fmt.Fprintf(&sb, "%s %d\n", series(g.name, g.labels, ""), g.Value())
	}
	for _, key := range sortedKeys(c.histograms) {
		h := c.histograms[key]
		header(h.name, "histogram")
		h.mu.Lock()
		for _, b := range h.buckets {
			le := fmt.Sprintf("%g", b.le)
			if math.IsInf(b.le, 1) {
				le = "+Inf"
			}
			fmt.Fprintf(&sb, "%s %d\n", series(h.name+"_bucket", h.labels, `le="`+le+`"`), b.count)
		}
		fmt.Fprintf(&sb, "%s %g\n", series(h.name+"_sum", h.labels, ""), h.sum)
		fmt.Fprintf(&sb, "%s %d\n", series(h.name+"_count", h.labels, ""), h.count)
		h.mu.Unlock()
	}
	return sb.String()
}

func series(name, labels, extra string) string {
	switch {
	case labels == "" && extra == "":
		return name
	case labels == "":
		return name + "{" + extra + "}"
	case extra == "":
		return name + "{" + labels + "}"
	default:
		return name + "{" + labels + "," + extra + "}"
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
