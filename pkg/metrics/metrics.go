package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditflow_http_requests_total",
			Help: "Toplam HTTP istek sayısı",
		},
		[]string{"method", "endpoint", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "creditflow_http_request_duration_seconds",
			Help:    "HTTP istek süresi (saniye)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	LedgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditflow_ledger_entries_total",
			Help: "Deftere yazılan kayıt sayısı",
		},
		[]string{"entry_type"},
	)

	ChainVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditflow_chain_verifications_total",
			Help: "Zincir doğrulama sonuçları",
		},
		[]string{"result"},
	)

	CreditMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditflow_credit_mutations_total",
			Help: "Kredi bakiye mutasyonları",
		},
		[]string{"type", "status"},
	)

	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditflow_webhooks_total",
			Help: "Alınan webhook teslimatları",
		},
		[]string{"provider", "outcome"},
	)

	DLQInsertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "creditflow_dlq_inserts_total",
			Help: "DLQ'ya düşen olay sayısı",
		},
	)

	DLQRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "creditflow_dlq_retries_total",
			Help: "DLQ tekrar deneme sayısı",
		},
	)

	DLQResolvedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "creditflow_dlq_resolved_total",
			Help: "Çözülen DLQ kaydı sayısı",
		},
	)

	WorkerPoolQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "creditflow_worker_pool_queue_size",
			Help: "Worker pool kuyruğundaki iş sayısı",
		},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "creditflow_cache_hits_total",
			Help: "Önbellek isabet sayısı",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "creditflow_cache_misses_total",
			Help: "Önbellek isabet etmeme sayısı",
		},
	)
)

func RecordHttpRequest(method, endpoint, status string, duration time.Duration) {
	HttpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HttpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func RecordLedgerEntry(entryType string) {
	LedgerEntriesTotal.WithLabelValues(entryType).Inc()
}

func RecordChainVerification(valid bool) {
	result := "valid"
	if !valid {
		result = "broken"
	}
	ChainVerificationsTotal.WithLabelValues(result).Inc()
}

func RecordCreditMutation(txType string, status string) {
	CreditMutationsTotal.WithLabelValues(txType, status).Inc()
}

func RecordWebhook(provider string, outcome string) {
	WebhooksTotal.WithLabelValues(provider, outcome).Inc()
}

func RecordDLQInsert() {
	DLQInsertsTotal.Inc()
}

func RecordDLQRetry() {
	DLQRetriesTotal.Inc()
}

func RecordDLQResolved() {
	DLQResolvedTotal.Inc()
}

func UpdateWorkerPoolQueueSize(queueSize int) {
	WorkerPoolQueueSize.Set(float64(queueSize))
}

func RecordCacheHit() {
	CacheHits.Inc()
}

func RecordCacheMiss() {
	CacheMisses.Inc()
}
