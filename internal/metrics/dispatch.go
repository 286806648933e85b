package metrics

import (
	"context"

	"wppbot/internal/wpp"
)

// DispatchBuckets are round trip latency buckets in seconds. A page
// evaluation is rarely under 50ms and a two-phase send can take seconds.
var DispatchBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Recorder counts finished sends by op and outcome and observes their
// latency.
type Recorder struct {
	c *Collector
}

var _ wpp.Recorder = (*Recorder)(nil)

func NewRecorder(c *Collector) *Recorder {
	return &Recorder{c: c}
}

func (r *Recorder) Record(_ context.Context, rec wpp.Record) {
	r.c.Counter("dispatches_total", "Sends finished, by op and outcome",
		Labels{"op": rec.Op, "outcome": string(rec.Outcome)}).Inc()

	if rec.Outcome == wpp.OutcomeNotAttempted {
		return
	}
	r.c.Counter("page_round_trips_total", "Page evaluations made by sends",
		Labels{"op": rec.Op}).Add(int64(rec.Phases))
	r.c.Histogram("dispatch_duration_seconds", "Send latency including every page round trip",
		Labels{"op": rec.Op}, DispatchBuckets).Observe(rec.Duration.Seconds())
}
