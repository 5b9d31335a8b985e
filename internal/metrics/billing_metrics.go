package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics содержит метрики оформления счетов.
type BillingMetrics struct {
	// Счётчики операций
	billsCreated prometheus.Counter
	billsFailed  prometheus.Counter
	stockDenied  prometheus.Counter

	// Гистограммы времени выполнения
	checkoutDuration prometheus.Histogram
	stageDuration    *prometheus.HistogramVec

	// Счётчик событий outbox
	outboxEvents prometheus.Counter

	// Gauge для активных оформлений
	activeCheckouts prometheus.Gauge
}

// NewBillingMetrics создаёт новый экземпляр метрик оформления счетов.
func NewBillingMetrics() *BillingMetrics {
	return newBillingMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newBillingMetricsWithRegisterer(registerer prometheus.Registerer) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &BillingMetrics{
		billsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "billing_bills_created_total",
			Help: "Total number of bills created successfully",
		}),
		billsFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "billing_bills_failed_total",
			Help: "Total number of bill creations failed",
		}),
		stockDenied: registerCounter(registerer, prometheus.CounterOpts{
			Name: "billing_stock_denied_total",
			Help: "Total number of checkouts denied due to insufficient stock",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "billing_checkout_duration_seconds",
			Help:    "Duration of bill creation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stageDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "billing_checkout_stage_duration_seconds",
			Help:    "Duration of individual checkout stages in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"stage"}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "billing_outbox_events_total",
			Help: "Total number of outbox events published",
		}),
		activeCheckouts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "billing_active_checkouts",
			Help: "Number of currently running checkouts",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordBillCreated увеличивает счётчик успешно созданных счетов.
func (m *BillingMetrics) RecordBillCreated() {
	m.billsCreated.Inc()
}

// RecordBillFailed увеличивает счётчик неудачных оформлений.
func (m *BillingMetrics) RecordBillFailed() {
	m.billsFailed.Inc()
}

// RecordStockDenied увеличивает счётчик отказов из-за нехватки остатка.
func (m *BillingMetrics) RecordStockDenied() {
	m.stockDenied.Inc()
}

// RecordCheckoutStarted увеличивает количество активных оформлений.
func (m *BillingMetrics) RecordCheckoutStarted() {
	m.activeCheckouts.Inc()
}

// RecordCheckoutFinished уменьшает количество активных оформлений.
func (m *BillingMetrics) RecordCheckoutFinished() {
	m.activeCheckouts.Dec()
}

// RecordCheckoutDuration записывает время оформления счёта.
func (m *BillingMetrics) RecordCheckoutDuration(duration time.Duration) {
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordStageDuration записывает время выполнения этапа оформления.
func (m *BillingMetrics) RecordStageDuration(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *BillingMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
