package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thypress/thypress/internal/logging"
)

// reportInterval paces the periodic metrics log line.
const reportInterval = 10 * time.Second

// responseTimeSamples bounds the rolling latency window.
const responseTimeSamples = 256

// Metrics tracks request counters and a rolling response-time window.
type Metrics struct {
	requests        int64
	httpCacheHits   int64 // 304 responses
	serverCacheHits int64 // served from a cache layer
	serverRenders   int64 // rendered on demand

	mu      sync.Mutex
	samples []time.Duration
	next    int
}

// NewMetrics creates an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{samples: make([]time.Duration, 0, responseTimeSamples)}
}

func (m *Metrics) Request()         { atomic.AddInt64(&m.requests, 1) }
func (m *Metrics) HTTPCacheHit()    { atomic.AddInt64(&m.httpCacheHits, 1) }
func (m *Metrics) ServerCacheHit()  { atomic.AddInt64(&m.serverCacheHits, 1) }
func (m *Metrics) ServerRenderHit() { atomic.AddInt64(&m.serverRenders, 1) }

// Observe records one response time into the rolling window.
func (m *Metrics) Observe(d time.Duration) {
	m.mu.Lock()
	if len(m.samples) < responseTimeSamples {
		m.samples = append(m.samples, d)
	} else {
		m.samples[m.next] = d
		m.next = (m.next + 1) % responseTimeSamples
	}
	m.mu.Unlock()
}

// MeanResponseTime reports the rolling average, zero when empty.
func (m *Metrics) MeanResponseTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range m.samples {
		total += d
	}
	return total / time.Duration(len(m.samples))
}

// Snapshot returns current counter values.
func (m *Metrics) Snapshot() (requests, httpCacheHits, serverCacheHits, serverRenders int64) {
	return atomic.LoadInt64(&m.requests),
		atomic.LoadInt64(&m.httpCacheHits),
		atomic.LoadInt64(&m.serverCacheHits),
		atomic.LoadInt64(&m.serverRenders)
}

// Report logs the counters every reporting interval until ctx ends.
// Quiet periods with no new requests are skipped.
func (m *Metrics) Report(ctx context.Context, log logging.Logger) {
	log = log.WithComponent("metrics")
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	var lastRequests int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requests, httpHits, cacheHits, renders := m.Snapshot()
			if requests == lastRequests {
				continue
			}
			lastRequests = requests
			log.Info(ctx, "request counters",
				"requests", requests,
				"httpCacheHits", httpHits,
				"serverCacheHits", cacheHits,
				"serverRenderHits", renders,
				"meanResponseTime", m.MeanResponseTime().String())
		}
	}
}
