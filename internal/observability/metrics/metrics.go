package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "vault_"

	resultSuccess  = "success"
	resultError    = "error"
	resultRejected = "rejected"
)

var (
	registerOnce sync.Once

	operationTotal   *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec

	batchSkipped *prometheus.CounterVec
	queueOpen    *prometheus.GaugeVec

	navUpdates *prometheus.CounterVec
	navAge     *prometheus.GaugeVec

	compensations *prometheus.CounterVec

	outboxPublishTotal    *prometheus.CounterVec
	outboxPublishLatency  *prometheus.HistogramVec
	outboxDispatchTotal   *prometheus.CounterVec
	outboxDispatchLatency *prometheus.HistogramVec
	outboxDispatchRecords *prometheus.CounterVec
	consumerLag           *prometheus.GaugeVec
	consumerEvents        *prometheus.CounterVec

	statementExportTotal   *prometheus.CounterVec
	statementExportLatency *prometheus.HistogramVec
)

// Init registers metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		operationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operations_total",
				Help: "Total vault engine operations by operation and result",
			},
			[]string{"operation", "result"},
		)
		operationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "operation_latency_seconds",
				Help:    "Vault engine operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		)

		batchSkipped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "batch_skipped_total",
				Help: "Redemption requests skipped by batch processing by reason",
			},
			[]string{"reason"},
		)
		queueOpen = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "redemption_queue_open",
				Help: "Open early-exit redemption requests",
			},
			[]string{"asset_class"},
		)

		navUpdates = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "nav_updates_total",
				Help: "NAV updates by asset class and result",
			},
			[]string{"asset_class", "result"},
		)
		navAge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "nav_age_seconds",
				Help: "Seconds since the last accepted NAV update",
			},
			[]string{"asset_class"},
		)

		compensations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "compensations_total",
				Help: "Custody compensations after failed operations by result",
			},
			[]string{"result"},
		)

		outboxPublishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_publish_total",
				Help: "Total outbox inserts by result",
			},
			[]string{"result"},
		)
		outboxPublishLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_publish_latency_seconds",
				Help:    "Outbox insert latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Total outbox dispatch runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_latency_seconds",
				Help:    "Outbox dispatch run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchRecords = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_records_total",
				Help: "Outbox records handled by outcome",
			},
			[]string{"outcome"},
		)
		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)
		consumerEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "event_consumer_events_total",
				Help: "Events seen by consumers by outcome (handled, duplicate, error)",
			},
			[]string{"consumer", "outcome"},
		)

		statementExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "statement_export_total",
				Help: "Total redemption statement exports by format and result",
			},
			[]string{"format", "result"},
		)
		statementExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "statement_export_latency_seconds",
				Help:    "Redemption statement export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			operationTotal,
			operationLatency,
			batchSkipped,
			queueOpen,
			navUpdates,
			navAge,
			compensations,
			outboxPublishTotal,
			outboxPublishLatency,
			outboxDispatchTotal,
			outboxDispatchLatency,
			outboxDispatchRecords,
			consumerLag,
			consumerEvents,
			statementExportTotal,
			statementExportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveOperation records an engine operation and its result.
func ObserveOperation(operation, result string, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if operationTotal != nil {
		operationTotal.WithLabelValues(operation, result).Inc()
	}
	if operationLatency != nil {
		operationLatency.WithLabelValues(operation, result).Observe(duration.Seconds())
	}
}

// IncBatchSkipped counts a request skipped by batch processing.
func IncBatchSkipped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if batchSkipped != nil {
		batchSkipped.WithLabelValues(reason).Inc()
	}
}

// SetQueueOpen sets the open request gauge.
func SetQueueOpen(assetClass string, open int) {
	if queueOpen != nil {
		queueOpen.WithLabelValues(assetClass).Set(float64(open))
	}
}

// IncNavUpdate counts a NAV update attempt.
func IncNavUpdate(assetClass, result string) {
	if result == "" {
		result = resultSuccess
	}
	if navUpdates != nil {
		navUpdates.WithLabelValues(assetClass, result).Inc()
	}
}

// ObserveNavAge sets the NAV age gauge.
func ObserveNavAge(assetClass string, age time.Duration) {
	if age < 0 {
		age = 0
	}
	if navAge != nil {
		navAge.WithLabelValues(assetClass).Set(age.Seconds())
	}
}

// IncCompensation counts a compensating custody movement.
func IncCompensation(result string) {
	if result == "" {
		result = resultSuccess
	}
	if compensations != nil {
		compensations.WithLabelValues(result).Inc()
	}
}

// ObserveOutboxPublish records outbox insert latency and result.
func ObserveOutboxPublish(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if outboxPublishTotal != nil {
		outboxPublishTotal.WithLabelValues(result).Inc()
	}
	if outboxPublishLatency != nil {
		outboxPublishLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveOutboxDispatch records a dispatch run.
func ObserveOutboxDispatch(result string, duration time.Duration, sent, failed, dlq int) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchLatency != nil {
		outboxDispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if outboxDispatchRecords != nil {
		if sent > 0 {
			outboxDispatchRecords.WithLabelValues("sent").Add(float64(sent))
		}
		if failed > 0 {
			outboxDispatchRecords.WithLabelValues("failed").Add(float64(failed))
		}
		if dlq > 0 {
			outboxDispatchRecords.WithLabelValues("dlq").Add(float64(dlq))
		}
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// IncConsumerEvent counts an event seen by consumer.
func IncConsumerEvent(consumer, outcome string) {
	if consumer == "" {
		consumer = "unknown"
	}
	if consumerEvents != nil {
		consumerEvents.WithLabelValues(consumer, outcome).Inc()
	}
}

// ObserveStatementExport records export latency and result.
func ObserveStatementExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if statementExportTotal != nil {
		statementExportTotal.WithLabelValues(format, result).Inc()
	}
	if statementExportLatency != nil {
		statementExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultRejected = resultRejected
)
