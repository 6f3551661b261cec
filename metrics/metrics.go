// Package metrics abstracts the few instrument kinds the streaming
// components export, so that they do not depend on prometheus directly.
package metrics

type Factory interface {
	NewCounter(opts CounterOpts) Counter
	NewCounterVec(opts CounterOpts, labelNames []string) Vec[Counter]
	NewGauge(opts GaugeOpts) Gauge
	NewGaugeVec(opts GaugeOpts, labelNames []string) Vec[Gauge]
}

type Gauge interface {
	Set(float64)
	Inc()
	Dec()
	Add(float64)
	Sub(float64)
}

type Vec[T any] interface {
	WithLabelValues(lvs ...string) T
}

type Counter interface {
	Inc()
	Add(float64)
}

type Opts struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
}

type (
	CounterOpts Opts
	GaugeOpts   Opts
)

// VoidFactory returns metrics factory without any collection.
func VoidFactory() Factory {
	return &noopFactory{}
}
