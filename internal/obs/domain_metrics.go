package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuotesTotal counts pricing attempts by category and outcome.
	QuotesTotal *prometheus.CounterVec
	// CategoryFallbackTotal counts quotes priced with the default customs rate.
	CategoryFallbackTotal *prometheus.CounterVec
	// CompatibilityChecksTotal counts compatibility decisions.
	CompatibilityChecksTotal *prometheus.CounterVec
	// StockChecksTotal counts stock lookups.
	StockChecksTotal *prometheus.CounterVec
	// OrdersCommittedTotal counts order commit outcomes.
	OrdersCommittedTotal *prometheus.CounterVec
	// OrderCommitLatency records commit latency in milliseconds.
	OrderCommitLatency prometheus.Histogram
	// RateSnapshotVersion exposes the version of the active rate snapshot.
	RateSnapshotVersion prometheus.Gauge
	// CatalogSize exposes the record counts of the loaded catalog snapshot.
	CatalogSize *prometheus.GaugeVec
	// WebhookDeliveries counts outbound event deliveries by topic and result.
	WebhookDeliveries *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Count of price computations by category and outcome.",
		}, []string{"category", "result"})
		CategoryFallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "category_fallback_total",
			Help:      "Count of quotes that used the default customs rate.",
		}, []string{"category"})
		CompatibilityChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compatibility_checks_total",
			Help:      "Count of vehicle/part compatibility decisions.",
		}, []string{"result"})
		StockChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_checks_total",
			Help:      "Count of stock lookups by outcome.",
		}, []string{"result"})
		OrdersCommittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_committed_total",
			Help:      "Count of order commit outcomes.",
		}, []string{"result"})
		OrderCommitLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_commit_duration_ms",
			Help:      "Latency of order commits in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		})
		RateSnapshotVersion = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_snapshot_version",
			Help:      "Version of the rate snapshot currently used for pricing.",
		})

		CatalogSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_records",
			Help:      "Records in the in-memory catalog snapshot by kind.",
		}, []string{"kind"})

		WebhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Outbound domain event deliveries by topic and result.",
		}, []string{"topic", "result"})

		mustRegisterCollector(reg, WebhookDeliveries, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				WebhookDeliveries = v
			}
		})
		mustRegisterCollector(reg, CatalogSize, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.GaugeVec); ok {
				CatalogSize = v
			}
		})
		mustRegisterCollector(reg, QuotesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuotesTotal = v
			}
		})
		mustRegisterCollector(reg, CategoryFallbackTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CategoryFallbackTotal = v
			}
		})
		mustRegisterCollector(reg, CompatibilityChecksTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CompatibilityChecksTotal = v
			}
		})
		mustRegisterCollector(reg, StockChecksTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				StockChecksTotal = v
			}
		})
		mustRegisterCollector(reg, OrdersCommittedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrdersCommittedTotal = v
			}
		})
		mustRegisterCollector(reg, OrderCommitLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				OrderCommitLatency = v
			}
		})
		mustRegisterCollector(reg, RateSnapshotVersion, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				RateSnapshotVersion = v
			}
		})
	})
}

// IncCounter increments vec with labels when domain metrics are registered.
func IncCounter(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

// SetGauge sets vec with labels when domain metrics are registered.
func SetGauge(vec *prometheus.GaugeVec, value float64, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Set(value)
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
