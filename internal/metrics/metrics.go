// Package metrics exposes Prometheus collectors for the tokenization service.
package metrics

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "wordpiece"

// Registry holds every collector of this package plus the Go runtime and
// process collectors.
var Registry = prometheus.NewRegistry()

var (
	requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Count of HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)
	requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by endpoint.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"endpoint"},
	)
	tokenCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Count of tokens produced by the segmenter.",
		},
	)
	unknownCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_tokens_total",
			Help:      "Count of words replaced by the unknown token.",
		},
	)
	inflightGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_requests",
			Help:      "Requests currently holding a worker slot.",
		},
	)
)

// CacheStats is a snapshot of the word cache counters.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

var cacheSource atomic.Pointer[func() CacheStats]

// SetCacheSource installs the function read by the cache collectors. Nil
// reports zeros.
func SetCacheSource(fn func() CacheStats) {
	if fn == nil {
		cacheSource.Store(nil)
		return
	}
	cacheSource.Store(&fn)
}

func cacheStats() CacheStats {
	if fn := cacheSource.Load(); fn != nil {
		return (*fn)()
	}
	return CacheStats{}
}

func cacheCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Word cache hits.",
		}, func() float64 { return float64(cacheStats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Word cache misses.",
		}, func() float64 { return float64(cacheStats().Misses) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Word cache evictions.",
		}, func() float64 { return float64(cacheStats().Evictions) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Words currently cached.",
		}, func() float64 { return float64(cacheStats().Size) }),
	}
}

var registerMetrics sync.Once

// Register all metrics.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		Registry.MustRegister(requestCounter)
		Registry.MustRegister(requestLatency)
		Registry.MustRegister(tokenCounter)
		Registry.MustRegister(unknownCounter)
		Registry.MustRegister(inflightGauge)
		Registry.MustRegister(cacheCollectors()...)
	})
}

// RecordRequest records one finished request.
func RecordRequest(endpoint string, code int, elapsed time.Duration) {
	requestCounter.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	requestLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// RecordTokens records the output of one tokenization.
func RecordTokens(tokens, unknown int) {
	tokenCounter.Add(float64(tokens))
	unknownCounter.Add(float64(unknown))
}

// IncInflight marks a request as holding a worker slot; the returned
// function releases it.
func IncInflight() func() {
	inflightGauge.Inc()
	return inflightGauge.Dec
}
