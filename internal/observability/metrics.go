package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	httpDurationHistogram    *prometheus.HistogramVec
	operationCounter         *prometheus.CounterVec
	receiptFailureCounter    *prometheus.CounterVec
	postingCounter           *prometheus.CounterVec
	referenceFallbackCounter *prometheus.CounterVec
	houseDriftCounter        *prometheus.CounterVec
	idempotencyCounter       *prometheus.CounterVec
	pendingPostingsGauge     prometheus.Gauge
	workerRunCounter         *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		operationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_operations_total",
			Help: "Buy, sell, swap and funding settlement outcomes",
		}, []string{"kind", "result"})

		receiptFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receipt_emission_failures_total",
			Help: "Receipts that could not be emitted after a committed operation",
		}, []string{"operation"})

		postingCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounting_postings_total",
			Help: "Accounting ledger posting outcomes",
		}, []string{"category", "outcome"})

		referenceFallbackCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reference_price_fallback_total",
			Help: "Reference price resolutions that did not use the reference sell price",
		}, []string{"currency", "source"})

		houseDriftCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "house_position_drift_total",
			Help: "Reconciliation runs where the house position diverged from its entries",
		}, []string{"currency"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		pendingPostingsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pending_postings",
			Help: "Accounting postings waiting in the outbox",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			operationCounter,
			receiptFailureCounter,
			postingCounter,
			referenceFallbackCounter,
			houseDriftCounter,
			idempotencyCounter,
			pendingPostingsGauge,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementOperation(kind, result string) {
	if operationCounter == nil {
		return
	}
	operationCounter.WithLabelValues(kind, result).Inc()
}

func IncrementReceiptFailure(operation string) {
	if receiptFailureCounter == nil {
		return
	}
	receiptFailureCounter.WithLabelValues(operation).Inc()
}

func IncrementPosting(category, outcome string) {
	if postingCounter == nil {
		return
	}
	postingCounter.WithLabelValues(category, outcome).Inc()
}

func IncrementReferenceFallback(currency, source string) {
	if referenceFallbackCounter == nil {
		return
	}
	referenceFallbackCounter.WithLabelValues(currency, source).Inc()
}

func IncrementHouseDrift(currency string) {
	if houseDriftCounter == nil {
		return
	}
	houseDriftCounter.WithLabelValues(currency).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func SetPendingPostings(size int64) {
	if pendingPostingsGauge == nil {
		return
	}
	pendingPostingsGauge.Set(float64(size))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
