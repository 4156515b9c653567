package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine collectors on a dedicated registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ordersReceived  *prometheus.CounterVec
	ordersRejected  *prometheus.CounterVec
	ordersCancelled *prometheus.CounterVec
	tradesExecuted  *prometheus.CounterVec
	tradedQuantity  *prometheus.CounterVec
	restingOrders   *prometheus.GaugeVec
	publishFailures *prometheus.CounterVec
	matchingLatency *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ordersReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_received_total",
			Help:      "Orders submitted to a market",
		}, []string{"market"}),

		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Orders and cancels rejected, by reason",
		}, []string{"market", "reason"}),

		ordersCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_cancelled_total",
			Help:      "Resting orders cancelled",
		}, []string{"market"}),

		tradesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_executed_total",
			Help:      "Trades executed",
		}, []string{"market"}),

		tradedQuantity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_quantity_lots_total",
			Help:      "Quantity traded in lots",
		}, []string{"market"}),

		restingOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resting_orders",
			Help:      "Orders currently resting in the book",
		}, []string{"market"}),

		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_publish_failures_total",
			Help:      "Trade batches the publisher failed to deliver",
		}, []string{"market"}),

		matchingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "matching_latency_seconds",
			Help:      "Time spent inside the order book per command",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 10),
		}, []string{"market", "command"}),
	}

	registry.MustRegister(
		m.ordersReceived,
		m.ordersRejected,
		m.ordersCancelled,
		m.tradesExecuted,
		m.tradedQuantity,
		m.restingOrders,
		m.publishFailures,
		m.matchingLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OrderReceived(market string) {
	if m == nil {
		return
	}
	m.ordersReceived.WithLabelValues(market).Inc()
}

func (m *Metrics) OrderRejected(market, reason string) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(market, reason).Inc()
}

func (m *Metrics) OrderCancelled(market string) {
	if m == nil {
		return
	}
	m.ordersCancelled.WithLabelValues(market).Inc()
}

func (m *Metrics) TradesExecuted(market string, trades int, quantity int64) {
	if m == nil || trades == 0 {
		return
	}
	m.tradesExecuted.WithLabelValues(market).Add(float64(trades))
	m.tradedQuantity.WithLabelValues(market).Add(float64(quantity))
}

func (m *Metrics) SetRestingOrders(market string, n int) {
	if m == nil {
		return
	}
	m.restingOrders.WithLabelValues(market).Set(float64(n))
}

func (m *Metrics) PublishFailed(market string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(market).Inc()
}

func (m *Metrics) ObserveLatency(market, command string, d time.Duration) {
	if m == nil {
		return
	}
	m.matchingLatency.WithLabelValues(market, command).Observe(d.Seconds())
}
