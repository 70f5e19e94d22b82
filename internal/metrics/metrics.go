// Package metrics provides lightweight, lock-minimal performance counters
// for a running replay session, plus a Prometheus-exposition view of the
// same counters for the management server's /metrics endpoint.
//
// Counters use sync/atomic so hot paths (chunk streaming, exchange lookup)
// incur no mutex contention. Latency statistics use a single mutex per
// dimension; they are updated at most once per exchange.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all runtime counters for a running replay session.
// The zero value is valid and ready to use; prefer New() for clarity.
type Metrics struct {
	TapesLoaded atomic.Int64
	TapesUsed   atomic.Int64
	TapesNew    atomic.Int64

	ExchangeHits   atomic.Int64
	ExchangeMisses atomic.Int64

	ChunksStreamed atomic.Int64
	BytesStreamed  atomic.Int64

	RedactionsApplied atomic.Int64
	ErrorsInjected    atomic.Int64

	matchMu   sync.Mutex
	matchStat latencyStats

	startTime time.Time
}

// New returns a new Metrics with the start time recorded.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordMatchLatency records how long the matching engine took to resolve
// one lookup (index hit or linear scan).
func (m *Metrics) RecordMatchLatency(d time.Duration) {
	m.matchMu.Lock()
	m.matchStat.record(float64(d.Microseconds()) / 1000.0)
	m.matchMu.Unlock()
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.matchMu.Lock()
	match := m.matchStat.snapshot()
	m.matchMu.Unlock()

	return Snapshot{
		Tapes: TapeSnapshot{
			Loaded: m.TapesLoaded.Load(),
			Used:   m.TapesUsed.Load(),
			New:    m.TapesNew.Load(),
		},
		Exchanges: ExchangeSnapshot{
			Hits:   m.ExchangeHits.Load(),
			Misses: m.ExchangeMisses.Load(),
		},
		Streaming: StreamingSnapshot{
			Chunks: m.ChunksStreamed.Load(),
			Bytes:  m.BytesStreamed.Load(),
		},
		Redactions:   m.RedactionsApplied.Load(),
		ErrorsFired:  m.ErrorsInjected.Load(),
		MatchLatency: match,
		UptimeSecs:   time.Since(m.startTime).Seconds(),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Tapes        TapeSnapshot      `json:"tapes"`
	Exchanges    ExchangeSnapshot  `json:"exchanges"`
	Streaming    StreamingSnapshot `json:"streaming"`
	Redactions   int64             `json:"redactions"`
	ErrorsFired  int64             `json:"errorsFired"`
	MatchLatency LatencySnapshot   `json:"matchLatencyMs"`
	UptimeSecs   float64           `json:"uptimeSecs"`
}

// TapeSnapshot holds tape-population counters.
type TapeSnapshot struct {
	Loaded int64 `json:"loaded"`
	Used   int64 `json:"used"`
	New    int64 `json:"new"`
}

// ExchangeSnapshot holds matching-engine outcome counters.
type ExchangeSnapshot struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// StreamingSnapshot holds chunk-streaming volume counters.
type StreamingSnapshot struct {
	Chunks int64 `json:"chunks"`
	Bytes  int64 `json:"bytes"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}

// --- Prometheus exposition ---

// Collector adapts Metrics to prometheus.Collector so the management
// server can expose it alongside the plain JSON snapshot.
type Collector struct {
	m *Metrics
}

// NewCollector wraps m for Prometheus registration.
func NewCollector(m *Metrics) *Collector { return &Collector{m: m} }

var (
	descTapesLoaded = prometheus.NewDesc("replay_tapes_loaded", "Tapes loaded at startup.", nil, nil)
	descTapesUsed   = prometheus.NewDesc("replay_tapes_used", "Tapes that served at least one hit.", nil, nil)
	descTapesNew    = prometheus.NewDesc("replay_tapes_new", "Tapes created this run.", nil, nil)
	descHits        = prometheus.NewDesc("replay_exchange_hits_total", "Exchanges resolved from a tape.", nil, nil)
	descMisses      = prometheus.NewDesc("replay_exchange_misses_total", "Exchange lookups with no match.", nil, nil)
	descChunks      = prometheus.NewDesc("replay_chunks_streamed_total", "Chunks streamed to the harness.", nil, nil)
	descBytes       = prometheus.NewDesc("replay_bytes_streamed_total", "Bytes streamed to the harness.", nil, nil)
	descRedactions  = prometheus.NewDesc("replay_redactions_total", "Secret redactions applied before save.", nil, nil)
	descErrors      = prometheus.NewDesc("replay_errors_injected_total", "Synthetic errors injected during replay.", nil, nil)
)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descTapesLoaded
	ch <- descTapesUsed
	ch <- descTapesNew
	ch <- descHits
	ch <- descMisses
	ch <- descChunks
	ch <- descBytes
	ch <- descRedactions
	ch <- descErrors
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(descTapesLoaded, prometheus.GaugeValue, float64(c.m.TapesLoaded.Load()))
	ch <- prometheus.MustNewConstMetric(descTapesUsed, prometheus.GaugeValue, float64(c.m.TapesUsed.Load()))
	ch <- prometheus.MustNewConstMetric(descTapesNew, prometheus.GaugeValue, float64(c.m.TapesNew.Load()))
	ch <- prometheus.MustNewConstMetric(descHits, prometheus.CounterValue, float64(c.m.ExchangeHits.Load()))
	ch <- prometheus.MustNewConstMetric(descMisses, prometheus.CounterValue, float64(c.m.ExchangeMisses.Load()))
	ch <- prometheus.MustNewConstMetric(descChunks, prometheus.CounterValue, float64(c.m.ChunksStreamed.Load()))
	ch <- prometheus.MustNewConstMetric(descBytes, prometheus.CounterValue, float64(c.m.BytesStreamed.Load()))
	ch <- prometheus.MustNewConstMetric(descRedactions, prometheus.CounterValue, float64(c.m.RedactionsApplied.Load()))
	ch <- prometheus.MustNewConstMetric(descErrors, prometheus.CounterValue, float64(c.m.ErrorsInjected.Load()))
}
