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

package tracegrpc

import (
	"strings"
	"time"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/pjscruggs/tracelog"
)

// Option configures the interceptors and helper functions.
type Option func(*config)

type config struct {
	label           string
	fullServiceName bool
	enableOTel      bool
	outcomeRecords  bool
	useSpanTraceID  bool
	tracerProvider  trace.TracerProvider
	propagators     propagation.TextMapPropagator
	filters         []func(fullMethod string) bool
	now             func() time.Time
}

// defaultConfig returns the baseline interceptor configuration.
func defaultConfig() *config {
	return &config{
		label:          tracelog.ContextGRPC,
		enableOTel:     true,
		useSpanTraceID: true,
		now:            time.Now,
	}
}

// applyOptions applies opts over defaultConfig.
func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithRPCLabel overrides the "gRPC" prefix of completion messages.
func WithRPCLabel(label string) Option {
	return func(cfg *config) {
		if label = strings.TrimSpace(label); label != "" {
			cfg.label = label
		}
	}
}

// WithFullServiceName keeps the package qualifier in logged service names
// ("orders.v1.OrdersService" rather than "OrdersService").
func WithFullServiceName(enabled bool) Option {
	return func(cfg *config) {
		cfg.fullServiceName = enabled
	}
}

// WithOTel enables or disables the otelgrpc StatsHandlers installed by
// [ServerOptions] and [DialOptions]. Enabled by default.
func WithOTel(enabled bool) Option {
	return func(cfg *config) {
		cfg.enableOTel = enabled
	}
}

// WithSpanTraceID controls whether a valid OpenTelemetry span context is used
// as the trace id when neither the payload nor the metadata carries one.
// Enabled by default.
func WithSpanTraceID(enabled bool) Option {
	return func(cfg *config) {
		cfg.useSpanTraceID = enabled
	}
}

// WithOutcomeRecords additionally emits a [tracelog.Forwarder.LogRPCCall]
// summary for every intercepted call.
func WithOutcomeRecords(enabled bool) Option {
	return func(cfg *config) {
		cfg.outcomeRecords = enabled
	}
}

// WithFilter appends a predicate over the full method name. Calls for which
// any predicate returns true bypass interception entirely.
func WithFilter(skip func(fullMethod string) bool) Option {
	return func(cfg *config) {
		if skip != nil {
			cfg.filters = append(cfg.filters, skip)
		}
	}
}

// WithTracerProvider configures the tracer provider used by the otelgrpc
// StatsHandlers.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracerProvider = tp
	}
}

// WithPropagators sets the propagator used by the otelgrpc StatsHandlers.
// When omitted, the global propagator is used.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *config) {
		cfg.propagators = p
	}
}

// withClock swaps the time source used to measure durations.
func withClock(now func() time.Time) Option {
	return func(cfg *config) {
		if now != nil {
			cfg.now = now
		}
	}
}

// skipped reports whether fullMethod matches any configured filter.
func (cfg *config) skipped(fullMethod string) bool {
	for _, skip := range cfg.filters {
		if skip(fullMethod) {
			return true
		}
	}
	return false
}
