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

package tracehttp

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Option configures the HTTP middleware and transport.
type Option func(*config)

type config struct {
	enableOTel     bool
	useSpanTraceID bool
	responseHeader bool
	tracerProvider trace.TracerProvider
	propagators    propagation.TextMapPropagator
	filters        []func(*http.Request) bool
	now            func() time.Time
}

// defaultConfig returns the baseline configuration for the HTTP helpers.
func defaultConfig() *config {
	return &config{
		enableOTel:     true,
		useSpanTraceID: true,
		responseHeader: true,
		now:            time.Now,
	}
}

// applyOptions applies opts on top of defaultConfig.
func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithOTel enables or disables otelhttp instrumentation around the
// middleware and transport. Enabled by default.
func WithOTel(enabled bool) Option {
	return func(cfg *config) {
		cfg.enableOTel = enabled
	}
}

// WithSpanTraceID controls whether a valid OpenTelemetry span context supplies
// the trace id when the request carries no X-Trace-Id header. Enabled by
// default.
func WithSpanTraceID(enabled bool) Option {
	return func(cfg *config) {
		cfg.useSpanTraceID = enabled
	}
}

// WithResponseHeader toggles echoing the resolved trace id in the
// X-Trace-Id response header. Enabled by default.
func WithResponseHeader(enabled bool) Option {
	return func(cfg *config) {
		cfg.responseHeader = enabled
	}
}

// WithTracerProvider configures the tracer provider used by otelhttp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracerProvider = tp
	}
}

// WithPropagators sets the propagator used by otelhttp. When omitted, the
// global propagator is used.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *config) {
		cfg.propagators = p
	}
}

// WithFilter appends a predicate. Requests for which any predicate returns
// true are served without a trace id or a request record.
func WithFilter(skip func(*http.Request) bool) Option {
	return func(cfg *config) {
		if skip != nil {
			cfg.filters = append(cfg.filters, skip)
		}
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

func (cfg *config) skipped(r *http.Request) bool {
	for _, skip := range cfg.filters {
		if skip(r) {
			return true
		}
	}
	return false
}
