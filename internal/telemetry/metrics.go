package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "campaignkb"

// Metrics holds the Prometheus collectors for the ingest and query paths.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	documentsIngested prometheus.Counter
	chunksProduced    prometheus.Counter
	chunksWritten     prometheus.Counter
	chunksSkipped     prometheus.Counter
	chunksPruned      prometheus.Counter
	ingestFailures    *prometheus.CounterVec
	queries           *prometheus.CounterVec
	queryDuration     *prometheus.HistogramVec
	queryHits         *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		documentsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "documents_ingested_total",
			Help:      "Documents successfully ingested.",
		}),
		chunksProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chunks_produced_total",
			Help:      "Chunks produced by the chunker.",
		}),
		chunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chunks_written_total",
			Help:      "Chunks embedded and written to the vector index.",
		}),
		chunksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chunks_skipped_total",
			Help:      "Chunks left untouched because their content hash was unchanged.",
		}),
		chunksPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chunks_pruned_total",
			Help:      "Stale chunks removed when a document was re-ingested in replace mode.",
		}),
		ingestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ingest_failures_total",
			Help:      "Failed document ingests by error code.",
		}, []string{"code"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queries_total",
			Help:      "Queries served by kind.",
		}, []string{"kind"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "query_duration_seconds",
			Help:      "Time spent answering a query.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		queryHits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "query_hits",
			Help:      "Records returned by the vector index per query.",
			Buckets:   []float64{0, 1, 2, 4, 6, 8, 12, 20},
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.documentsIngested,
		m.chunksProduced,
		m.chunksWritten,
		m.chunksSkipped,
		m.chunksPruned,
		m.ingestFailures,
		m.queries,
		m.queryDuration,
		m.queryHits,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// ObserveIngest records one successful document ingest.
func (m *Metrics) ObserveIngest(produced, written, skipped int, pruned int64) {
	if m == nil {
		return
	}
	m.documentsIngested.Inc()
	m.chunksProduced.Add(float64(produced))
	m.chunksWritten.Add(float64(written))
	m.chunksSkipped.Add(float64(skipped))
	m.chunksPruned.Add(float64(pruned))
}

// IngestFailed records a failed ingest under its error code.
func (m *Metrics) IngestFailed(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.ingestFailures.WithLabelValues(code).Inc()
}

// ObserveQuery records one query of the given kind.
func (m *Metrics) ObserveQuery(kind string, took time.Duration, hits int) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(kind).Inc()
	m.queryDuration.WithLabelValues(kind).Observe(took.Seconds())
	m.queryHits.WithLabelValues(kind).Observe(float64(hits))
}

// ObserveRequest records one HTTP request. Requests that matched no route
// share the "unmatched" label.
func (m *Metrics) ObserveRequest(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(took.Seconds())
}
