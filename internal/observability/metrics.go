package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the vault service.
type Metrics struct {
	// --- Operations ---
	OpsApplied   *prometheus.CounterVec
	OpsRejected  *prometheus.CounterVec
	OpDuration   *prometheus.HistogramVec
	OracleRate   prometheus.Gauge
	CoreSequence prometheus.Gauge

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupTier2Errors      prometheus.Counter

	// --- Channels ---
	ChannelSize  *prometheus.GaugeVec
	PublishDrops prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistLastSequence  prometheus.Gauge

	// --- Projections ---
	ProjectionLastSequence prometheus.Gauge
	ProjectionErrors       prometheus.Counter

	// --- Messaging ---
	IngestMessages  *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec

	// --- Keeper ---
	KeeperTicks *prometheus.CounterVec

	// --- API ---
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg. Passing
// prometheus.DefaultRegisterer exposes them on promhttp.Handler(); tests pass
// a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	opBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
	}

	return &Metrics{
		OpsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_operations_applied_total",
			Help: "Operations committed",
		}, []string{"operation"}),

		OpsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_operations_rejected_total",
			Help: "Operations rejected, by error kind",
		}, []string{"operation", "reason"}),

		OpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_operation_duration_seconds",
			Help:    "Time to run one operation including the store commit",
			Buckets: opBuckets,
		}, []string{"operation"}),

		OracleRate: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_oracle_rate",
			Help: "Last committed conversion rate (scaled by 1e6)",
		}),

		CoreSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_core_sequence",
			Help: "Next event sequence number",
		}),

		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"event_type", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_dedup_lru_size",
			Help: "Keys held in the in-memory dedup tier",
		}),

		DedupTier2Errors: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_dedup_tier2_errors_total",
			Help: "Postgres dedup lookups that failed",
		}),

		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistEventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_events_written_total",
			Help: "Events written to the event log",
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_size",
			Help:    "Events per persisted batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_persist_errors_total",
			Help: "Persistence failures by stage",
		}, []string{"stage"}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_persist_last_sequence",
			Help: "Highest sequence committed to the event log",
		}),

		ProjectionLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_projection_last_sequence",
			Help: "Highest event log sequence folded into the history projections",
		}),

		ProjectionErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_projection_errors_total",
			Help: "Projection passes that failed",
		}),

		IngestMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ingest_messages_total",
			Help: "NATS command messages by outcome (ack/nak/term)",
		}, []string{"command", "result"}),

		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_events_published_total",
			Help: "Events published to the outbound stream",
		}, []string{"event_type"}),

		KeeperTicks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_keeper_ticks_total",
			Help: "Keeper price update attempts by result",
		}, []string{"result"}),

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_api_requests_total",
			Help: "gRPC requests by method and status code",
		}, []string{"method", "code"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_api_request_duration_seconds",
			Help:    "gRPC request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}
