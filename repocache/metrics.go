package repocache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// prepareCount is a Counter vector of prepare calls
	prepareCount *prometheus.CounterVec
	// prepareLatency is a Histogram vector that keeps track of prepare durations
	prepareLatency *prometheus.HistogramVec
	// evictionCount is a Counter vector of evicted repository dirs
	evictionCount *prometheus.CounterVec
	// cacheSize is a Gauge of the total size of cached repositories
	cacheSize prometheus.Gauge
)

// EnableMetrics will enable metrics collection for the cache.
// Available metrics are...
//   - git_cache_prepare_count - (tags: repo,result)
//     A Counter for each prepare call, tagged with the serving decision
//     (result=hit|refresh|clone|error)
//   - git_cache_prepare_latency_seconds - (tags: repo)
//     A Histogram that keeps track of the prepare latency per repo.
//   - git_cache_eviction_count - (tags: reason)
//     A Counter for each evicted repository dir tagged with the eviction
//     reason (reason=idle|capacity)
//   - git_cache_size_bytes
//     A Gauge of the total size of all cached repositories on disk.
func EnableMetrics(metricsNamespace string, registerer prometheus.Registerer) {
	prepareCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "git_cache_prepare_count",
		Help:      "Count of repository prepare calls",
	},
		[]string{
			// name of the repository
			"repo",
			// serving decision
			"result",
		},
	)

	prepareLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "git_cache_prepare_latency_seconds",
		Help:      "Latency for repository prepare calls",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 20, 30, 60, 90, 120},
	},
		[]string{
			// name of the repository
			"repo",
		},
	)

	evictionCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "git_cache_eviction_count",
		Help:      "Count of evicted repository dirs",
	},
		[]string{
			// why the dir was removed
			"reason",
		},
	)

	cacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "git_cache_size_bytes",
		Help:      "Total size of cached repositories on disk",
	})

	registerer.MustRegister(
		prepareCount,
		prepareLatency,
		evictionCount,
		cacheSize,
	)
}

// recordPrepare records a prepare call with its serving decision
func recordPrepare(repo, result string) {
	// if metrics not enabled return
	if prepareCount == nil {
		return
	}
	prepareCount.With(prometheus.Labels{
		"repo":   repo,
		"result": result,
	}).Inc()
}

func updatePrepareLatency(repo string, start time.Time) {
	// if metrics not enabled return
	if prepareLatency == nil {
		return
	}
	prepareLatency.WithLabelValues(repo).Observe(time.Since(start).Seconds())
}

func recordEviction(reason string) {
	// if metrics not enabled return
	if evictionCount == nil {
		return
	}
	evictionCount.WithLabelValues(reason).Inc()
}

func updateCacheSize(bytes int64) {
	// if metrics not enabled return
	if cacheSize == nil {
		return
	}
	cacheSize.Set(float64(bytes))
}
