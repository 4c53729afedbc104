package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics exposes a tiny in-memory counter set for the push service.
type Metrics struct {
	consumed   atomic.Int64
	delivered  atomic.Int64
	partial    atomic.Int64
	failed     atomic.Int64
	retried    atomic.Int64
	suppressed atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Consumed   int64 `json:"consumed"`
	Delivered  int64 `json:"delivered"`
	Partial    int64 `json:"partially_delivered"`
	Failed     int64 `json:"failed"`
	Retried    int64 `json:"retried"`
	Suppressed int64 `json:"suppressed_tokens"`
}

// New returns a zeroed Metrics collector.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncConsumed()   { m.consumed.Add(1) }
func (m *Metrics) IncDelivered()  { m.delivered.Add(1) }
func (m *Metrics) IncPartial()    { m.partial.Add(1) }
func (m *Metrics) IncFailed()     { m.failed.Add(1) }
func (m *Metrics) IncSuppressed() { m.suppressed.Add(1) }

// AddRetried counts resend attempts; non-positive values are ignored.
func (m *Metrics) AddRetried(n int) {
	if n > 0 {
		m.retried.Add(int64(n))
	}
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Consumed:   m.consumed.Load(),
		Delivered:  m.delivered.Load(),
		Partial:    m.partial.Load(),
		Failed:     m.failed.Load(),
		Retried:    m.retried.Load(),
		Suppressed: m.suppressed.Load(),
	}
}

// Handler serves the counters as JSON.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Snapshot())
	})
}
