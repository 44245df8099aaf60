package shared

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mirkobrombin/go-shared/v1/shared"

type options struct {
	name         string
	pollInterval time.Duration
	tracer       trace.Tracer
	metrics      bool
}

// Option configures a Resource.
type Option func(*options)

// WithName sets the name used in metric labels and span attributes. It
// defaults to the value type's name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithPollInterval sets how often AcquireContext retries TryLock on locks
// that do not implement ContextLocker.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithTracerProvider records AcquireContext spans on tp instead of the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp.Tracer(tracerName) }
}

// WithoutMetrics disables Prometheus accounting for the resource.
func WithoutMetrics() Option {
	return func(o *options) { o.metrics = false }
}

func newOptions(name string, opts []Option) options {
	o := options{
		name:         name,
		pollInterval: DefaultPollInterval,
		tracer:       otel.Tracer(tracerName),
		metrics:      true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
