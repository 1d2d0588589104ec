package converter

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "liquidity_converter"

// Metrics holds the Prometheus collectors of a Converter.
type Metrics struct {
	ConversionsTotal   *prometheus.CounterVec
	PreviewsTotal      *prometheus.CounterVec
	ConversionDuration *prometheus.HistogramVec
	WhitelistedRouters prometheus.Gauge
}

// NewMetrics creates the converter collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConversionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "conversions_total",
			Help:      "Conversions attempted, by result.",
		}, []string{"result"}),
		PreviewsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "previews_total",
			Help:      "Conversion previews computed, by result.",
		}, []string{"result"}),
		ConversionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "conversion_duration_seconds",
			Help:      "Time spent executing a conversion, including waiting for the ledger lock.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{}),
		WhitelistedRouters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "whitelisted_routers",
			Help:      "Number of source routers currently whitelisted.",
		}),
	}
	reg.MustRegister(m.ConversionsTotal, m.PreviewsTotal, m.ConversionDuration, m.WhitelistedRouters)
	return m
}
