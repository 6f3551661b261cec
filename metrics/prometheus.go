package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHandler returns `http.Handler` serving the given registry.
func PrometheusHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns prometheus registry with the go runtime collectors attached.
func PrometheusRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewBuildInfoCollector())
	registry.MustRegister(collectors.NewGoCollector())
	return registry
}

// PrometheusFactory returns factory that registers every instrument in registry.
func PrometheusFactory(registry *prometheus.Registry) Factory {
	return &prometheusFactory{factory: promauto.With(registry)}
}

// prometheusFactory implements `Factory` interface
type prometheusFactory struct {
	factory promauto.Factory
}

func (d *prometheusFactory) NewCounter(opts CounterOpts) Counter {
	return d.factory.NewCounter(prometheus.CounterOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      opts.Name,
		Help:      opts.Help,
	})
}

func (d *prometheusFactory) NewCounterVec(opts CounterOpts, labelNames []string) Vec[Counter] {
	return promCounterVec{d.factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      opts.Name,
		Help:      opts.Help,
	}, labelNames)}
}

func (d *prometheusFactory) NewGauge(opts GaugeOpts) Gauge {
	return d.factory.NewGauge(prometheus.GaugeOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      opts.Name,
		Help:      opts.Help,
	})
}

func (d *prometheusFactory) NewGaugeVec(opts GaugeOpts, labelNames []string) Vec[Gauge] {
	return promGaugeVec{d.factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      opts.Name,
		Help:      opts.Help,
	}, labelNames)}
}

type promCounterVec struct {
	v *prometheus.CounterVec
}

func (c promCounterVec) WithLabelValues(lvls ...string) Counter {
	return c.v.WithLabelValues(lvls...)
}

type promGaugeVec struct {
	v *prometheus.GaugeVec
}

func (c promGaugeVec) WithLabelValues(lvls ...string) Gauge {
	return c.v.WithLabelValues(lvls...)
}
