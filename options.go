package imagedb

import (
	"log/slog"

	"github.com/hupe1980/imagedb/codec"
	"github.com/hupe1980/imagedb/core"
)

type options struct {
	capacity         uint64
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures DB constructor/load behavior.
type Option func(*options)

// WithCapacity limits the number of images the database accepts. The
// default is the full internal ID space.
func WithCapacity(capacity uint64) Option {
	return func(o *options) {
		o.capacity = capacity
	}
}

// WithCodec configures the compression codec used when saving snapshots.
//
// If nil is passed, codec.Default is used. Loading always honours the codec
// recorded in the snapshot header.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		capacity:         uint64(core.MaxInternID),
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
