// Package metrics provides a context-scoped Prometheus collector for run
// instrumentation.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and feeds Prometheus metrics under a fixed namespace.
type Collector interface {
	RegisterCounter(ctx context.Context, name string, labels ...string) (prometheus.Counter, error)
	AddCounter(ctx context.Context, name string, value float64, labels ...string) error
	UnregisterCounter(ctx context.Context, name string, labels ...string) error

	RegisterHistogram(ctx context.Context, name string, labels ...string) (prometheus.Observer, error)
	ObserveHistogram(ctx context.Context, name string, value float64, labels ...string) error
	AddHistogram(ctx context.Context, name string, value float64, labels ...string) error
	UnregisterHistogram(ctx context.Context, name string, labels ...string) error

	RegisterGauge(ctx context.Context, name string, labels ...string) (prometheus.Gauge, error)
	SetGauge(ctx context.Context, name string, value float64, labels ...string) error
	UnregisterGauge(ctx context.Context, name string, labels ...string) error

	// MeasureFunctionExecutionTime starts a timer for the named function and
	// returns the stop func that records the observation.
	MeasureFunctionExecutionTime(ctx context.Context, name string) (func(), error)

	// MetricsHandler exposes the collector's registry for scraping.
	MetricsHandler() http.Handler
}

type contextKey string

// WithMetrics stores a new collector for the namespace in the context.
func WithMetrics(ctx context.Context, namespace string) context.Context {
	return context.WithValue(ctx, contextKey(namespace), newPrometheusCollector(namespace))
}

// FromContext returns the namespace's collector from the context, or a fresh
// one when the context carries none.
func FromContext(ctx context.Context, namespace string) Collector {
	if c, ok := ctx.Value(contextKey(namespace)).(Collector); ok {
		return c
	}
	return newPrometheusCollector(namespace)
}

// prometheusCollector is the Prometheus-backed Collector. Each collector owns
// its registry so independent runs do not collide.
type prometheusCollector struct {
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
	namespace  string
}

func newPrometheusCollector(namespace string) *prometheusCollector {
	return &prometheusCollector{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		namespace:  namespace,
	}
}

func (c *prometheusCollector) key(name string) string {
	return fmt.Sprintf("%s_%s", c.namespace, name)
}

// RegisterCounter registers a counter vector and returns the child for the
// given labels.
func (c *prometheusCollector) RegisterCounter(_ context.Context, name string, labels ...string) (prometheus.Counter, error) {
	key := c.key(name)
	if _, exists := c.counters[key]; exists {
		return nil, fmt.Errorf("counter %s already registered", key)
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.namespace,
		Name:      key,
		Help:      "Counter for " + key,
	}, labels)
	if err := c.registry.Register(vec); err != nil {
		return nil, fmt.Errorf("failed to register counter %s: %w", key, err)
	}
	c.counters[key] = vec
	return vec.WithLabelValues(labels...), nil
}

// AddCounter adds value to the counter's child for the given labels.
func (c *prometheusCollector) AddCounter(_ context.Context, name string, value float64, labels ...string) error {
	vec, ok := c.counters[c.key(name)]
	if !ok {
		return fmt.Errorf("counter %s not found", c.key(name))
	}
	vec.WithLabelValues(labels...).Add(value)
	return nil
}

// UnregisterCounter removes the counter. Unregistering an unknown counter is
// a no-op.
func (c *prometheusCollector) UnregisterCounter(_ context.Context, name string, _ ...string) error {
	key := c.key(name)
	if vec, ok := c.counters[key]; ok {
		c.registry.Unregister(vec)
		delete(c.counters, key)
	}
	return nil
}

// RegisterHistogram registers a histogram vector and returns the observer for
// the given labels.
func (c *prometheusCollector) RegisterHistogram(_ context.Context, name string, labels ...string) (prometheus.Observer, error) {
	key := c.key(name)
	if _, exists := c.histograms[key]; exists {
		return nil, fmt.Errorf("histogram %s already registered", key)
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.namespace,
		Name:      key,
		Help:      "Histogram for " + key,
	}, labels)
	if err := c.registry.Register(vec); err != nil {
		return nil, fmt.Errorf("failed to register histogram %s: %w", key, err)
	}
	c.histograms[key] = vec
	return vec.WithLabelValues(labels...), nil
}

// ObserveHistogram records value on the histogram's child for the given labels.
func (c *prometheusCollector) ObserveHistogram(_ context.Context, name string, value float64, labels ...string) error {
	vec, ok := c.histograms[c.key(name)]
	if !ok {
		return fmt.Errorf("histogram %s not found", c.key(name))
	}
	vec.WithLabelValues(labels...).Observe(value)
	return nil
}

// AddHistogram is an alias for ObserveHistogram.
func (c *prometheusCollector) AddHistogram(ctx context.Context, name string, value float64, labels ...string) error {
	return c.ObserveHistogram(ctx, name, value, labels...)
}

// UnregisterHistogram removes the histogram. Unregistering an unknown
// histogram is a no-op.
func (c *prometheusCollector) UnregisterHistogram(_ context.Context, name string, _ ...string) error {
	key := c.key(name)
	if vec, ok := c.histograms[key]; ok {
		c.registry.Unregister(vec)
		delete(c.histograms, key)
	}
	return nil
}

// RegisterGauge registers a gauge vector and returns the child for the given
// labels.
func (c *prometheusCollector) RegisterGauge(_ context.Context, name string, labels ...string) (prometheus.Gauge, error) {
	key := c.key(name)
	if _, exists := c.gauges[key]; exists {
		return nil, fmt.Errorf("gauge %s already registered", key)
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Name:      key,
		Help:      "Gauge for " + key,
	}, labels)
	if err := c.registry.Register(vec); err != nil {
		return nil, fmt.Errorf("failed to register gauge %s: %w", key, err)
	}
	c.gauges[key] = vec
	return vec.WithLabelValues(labels...), nil
}

// SetGauge sets the gauge's child for the given labels to value.
func (c *prometheusCollector) SetGauge(_ context.Context, name string, value float64, labels ...string) error {
	vec, ok := c.gauges[c.key(name)]
	if !ok {
		return fmt.Errorf("gauge %s not found", c.key(name))
	}
	vec.WithLabelValues(labels...).Set(value)
	return nil
}

// UnregisterGauge removes the gauge. Unregistering an unknown gauge is a
// no-op.
func (c *prometheusCollector) UnregisterGauge(_ context.Context, name string, _ ...string) error {
	key := c.key(name)
	if vec, ok := c.gauges[key]; ok {
		c.registry.Unregister(vec)
		delete(c.gauges, key)
	}
	return nil
}

// MeasureFunctionExecutionTime times a function under the shared duration
// histogram, registering it on first use.
func (c *prometheusCollector) MeasureFunctionExecutionTime(_ context.Context, name string) (func(), error) {
	key := c.namespace + "_function_duration_seconds"
	vec, ok := c.histograms[key]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    key,
			Help:    "Time spent executing functions.",
			Buckets: []float64{0.25, 0.5, 1},
		}, []string{"function"})
		if err := c.registry.Register(vec); err != nil {
			return nil, fmt.Errorf("failed to register function duration histogram: %w", err)
		}
		c.histograms[key] = vec
	}
	start := time.Now()
	return func() {
		vec.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}, nil
}

// MetricsHandler exposes this collector's registry.
func (c *prometheusCollector) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
