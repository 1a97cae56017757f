// Package metrics exports load and dump outcomes as Prometheus series.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	bridge "github.com/SimonDaKappa/go-pave-bridge"
)

const (
	OpLoad = "load"
	OpDump = "dump"

	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

type CollectorOpts struct {
	// Namespace prefixes every metric name. Defaults to "bridge".
	Namespace string

	// Registerer receives the collectors. Nil registers with
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// Buckets for the duration histogram, in seconds.
	Buckets []float64
}

// Collector is a bridge.Observer counting calls and timing them per
// schema.
type Collector struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ bridge.Observer = (*Collector)(nil)

// NewCollector creates and registers the collector vectors. Vectors
// already registered under the same names are reused.
func NewCollector(opts CollectorOpts) (*Collector, error) {
	if opts.Namespace == "" {
		opts.Namespace = "bridge"
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Buckets == nil {
		opts.Buckets = prometheus.ExponentialBuckets(0.00001, 4, 10)
	}

	c := &Collector{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: opts.Namespace,
				Name:      "calls_total",
				Help:      "Load and dump calls by schema, operation and outcome.",
			},
			[]string{"schema", "op", "many", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: opts.Namespace,
				Name:      "call_duration_seconds",
				Help:      "Load and dump call latency.",
				Buckets:   opts.Buckets,
			},
			[]string{"schema", "op"},
		),
	}

	for _, col := range []prometheus.Collector{c.calls, c.duration} {
		if err := opts.Registerer.Register(col); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
			// Share series with a collector registered earlier under the
			// same names.
			switch existing := already.ExistingCollector.(type) {
			case *prometheus.CounterVec:
				c.calls = existing
			case *prometheus.HistogramVec:
				c.duration = existing
			}
		}
	}
	return c, nil
}

// MustCollector is NewCollector that panics on error.
func MustCollector(opts CollectorOpts) *Collector {
	c, err := NewCollector(opts)
	if err != nil {
		panic(err)
	}
	return c
}

// ObserveLoad records one load call.
func (c *Collector) ObserveLoad(schema string, many bool, err error, elapsed time.Duration) {
	c.observe(schema, OpLoad, many, err, elapsed)
}

// ObserveDump records one dump call.
func (c *Collector) ObserveDump(schema string, many bool, err error, elapsed time.Duration) {
	c.observe(schema, OpDump, many, err, elapsed)
}

func (c *Collector) observe(schema, op string, many bool, err error, elapsed time.Duration) {
	c.calls.WithLabelValues(schema, op, strconv.FormatBool(many), Outcome(err)).Inc()
	c.duration.WithLabelValues(schema, op).Observe(elapsed.Seconds())
}

// Outcome classifies a call result. Validation failures are the
// caller's data and are kept apart from everything else.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, bridge.ErrValidation):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}
