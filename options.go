// Copyright 2025 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracelog

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
)

// Option configures a Forwarder during New. Options are applied in order
// after the environment has been read, so they take precedence over it.
type Option func(*options)

type options struct {
	cfg         Config
	skipEnv     bool
	submitter   Submitter
	dialOptions []grpc.DialOption
	enableOTel  bool
	fallback    *slog.Logger
	registerer  prometheus.Registerer
	generator   func() string
	clock       func() time.Time
}

// WithConfig replaces the environment-derived configuration entirely. New
// does not read the environment when this option is present.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
		o.skipEnv = true
	}
}

// WithServiceName sets the service identity stamped on every entry,
// overriding SERVICE_NAME.
func WithServiceName(name string) Option {
	return func(o *options) {
		o.cfg.ServiceName = name
	}
}

// WithSubmitter sets the transport used to deliver entries. It takes
// precedence over WithTarget and LOGGER_SERVICE_ADDR.
func WithSubmitter(s Submitter) Option {
	return func(o *options) {
		o.submitter = s
	}
}

// WithTarget sets the gRPC target of the logging backend, overriding
// LOGGER_SERVICE_ADDR. The Forwarder dials it and closes the connection
// on Close.
func WithTarget(target string) Option {
	return func(o *options) {
		o.cfg.LoggerAddr = target
	}
}

// WithDialOptions appends options used when dialing the backend target.
// They are applied after the defaults (insecure transport credentials and the
// tracelog user agent) and can override them.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) {
		o.dialOptions = append(o.dialOptions, opts...)
	}
}

// WithOTel toggles the otelgrpc stats handler on the backend connection.
// Enabled by default.
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.enableOTel = enabled
	}
}

// WithQueueSize sets the submission queue capacity. Non-positive values
// restore the default.
func WithQueueSize(size int) Option {
	return func(o *options) {
		o.cfg.QueueSize = size
	}
}

// WithWorkers sets the number of goroutines delivering entries.
// Non-positive values restore the default.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.cfg.Workers = n
	}
}

// WithSubmitTimeout bounds each delivery attempt. Zero disables the bound.
func WithSubmitTimeout(d time.Duration) Option {
	return func(o *options) {
		o.cfg.SubmitTimeout = d
	}
}

// WithFlushTimeout bounds how long Close waits for queued entries.
// Zero waits indefinitely.
func WithFlushTimeout(d time.Duration) Option {
	return func(o *options) {
		o.cfg.FlushTimeout = d
	}
}

// WithHostMetadata toggles the "host" metadata key on every entry.
func WithHostMetadata(enabled bool) Option {
	return func(o *options) {
		o.cfg.HostMetadata = enabled
	}
}

// WithMinLevel discards entries below level, overriding TRACELOG_LEVEL.
func WithMinLevel(level Level) Option {
	return func(o *options) {
		o.cfg.MinLevel = level.String()
	}
}

// WithFallbackLogger sets the local logger that receives entries the backend
// did not accept. A nil logger restores the default JSON logger on stderr.
func WithFallbackLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.fallback = logger
	}
}

// WithMetricsRegisterer registers delivery counters with reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithTraceIDGenerator replaces GenerateTraceID for this Forwarder.
func WithTraceIDGenerator(fn func() string) Option {
	return func(o *options) {
		o.generator = fn
	}
}

// withClock overrides the timestamp source; used by tests.
func withClock(fn func() time.Time) Option {
	return func(o *options) {
		o.clock = fn
	}
}
