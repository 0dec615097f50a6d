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
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/pjscruggs/tracelog"
)

const (
	// HeaderTraceID carries the trace id on requests and responses.
	HeaderTraceID = "X-Trace-Id"

	instrumentationName = "github.com/pjscruggs/tracelog/tracehttp"
)

// Forwarder is the subset of [tracelog.Forwarder] the middleware uses.
type Forwarder interface {
	GenerateTraceID() string
	SetTrace(id string)
	ClearTrace()
	LogHTTPRequest(ctx context.Context, method, url string, statusCode int, duration time.Duration, traceID string)
}

var _ Forwarder = (*tracelog.Forwarder)(nil)

// Middleware returns an http.Handler middleware that serves each request
// under a trace id and records it with [tracelog.Forwarder.LogHTTPRequest]
// once the handler returns.
func Middleware(fwd Forwarder, opts ...Option) func(http.Handler) http.Handler {
	cfg := applyOptions(opts)

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return wrapWithOTel(cfg, buildLoggingHandler(fwd, cfg, next))
	}
}

// buildLoggingHandler constructs the recording handler around next.
func buildLoggingHandler(fwd Forwarder, cfg *config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.skipped(r) {
			next.ServeHTTP(w, r)
			return
		}

		traceID := resolveTraceID(r, cfg)
		if traceID == "" {
			traceID = fwd.GenerateTraceID()
		}
		fwd.SetTrace(traceID)
		defer fwd.ClearTrace()

		ctx := tracelog.ContextWithTraceID(r.Context(), traceID)
		r = r.WithContext(ctx)
		if cfg.responseHeader {
			w.Header().Set(HeaderTraceID, traceID)
		}

		start := cfg.now()
		recorder := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		fwd.LogHTTPRequest(ctx, r.Method, r.URL.RequestURI(), recorder.Status(), cfg.now().Sub(start), traceID)
	})
}

// resolveTraceID takes the X-Trace-Id header, then the active span.
func resolveTraceID(r *http.Request, cfg *config) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderTraceID)); id != "" {
		return id
	}
	if cfg.useSpanTraceID {
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			return sc.TraceID().String()
		}
	}
	return ""
}

// wrapWithOTel wraps handler with otelhttp middleware when enabled.
func wrapWithOTel(cfg *config, handler http.Handler) http.Handler {
	if !cfg.enableOTel {
		return handler
	}
	return otelhttp.NewHandler(handler, instrumentationName, otelOptions(cfg)...)
}

// otelOptions builds OpenTelemetry options from configuration.
func otelOptions(cfg *config) []otelhttp.Option {
	var otelOpts []otelhttp.Option
	if cfg.tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(cfg.tracerProvider))
	}
	if cfg.propagators != nil {
		otelOpts = append(otelOpts, otelhttp.WithPropagators(cfg.propagators))
	}
	return otelOpts
}

type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

// WriteHeader records the first status code before delegating.
func (rr *responseRecorder) WriteHeader(status int) {
	if !rr.wroteHeader {
		rr.status = status
		rr.wroteHeader = true
	}
	rr.ResponseWriter.WriteHeader(status)
}

// Write forwards to the underlying writer, implying 200 when no status was set.
func (rr *responseRecorder) Write(p []byte) (int, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	n, err := rr.ResponseWriter.Write(p)
	if err != nil {
		return n, fmt.Errorf("write response body: %w", err)
	}
	return n, nil
}

// ReadFrom keeps io.ReaderFrom fast paths available to handlers.
func (rr *responseRecorder) ReadFrom(src io.Reader) (int64, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	n, err := io.Copy(rr.ResponseWriter, src)
	if err != nil {
		return n, fmt.Errorf("copy response body: %w", err)
	}
	return n, nil
}

// Status returns the HTTP status code sent to the client.
func (rr *responseRecorder) Status() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

// Unwrap exposes the underlying ResponseWriter for http.ResponseController.
func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// Flush forwards to the underlying writer when it supports http.Flusher.
func (rr *responseRecorder) Flush() {
	if flusher, ok := rr.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack delegates to the wrapped Hijacker when supported.
func (rr *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rr.ResponseWriter.(http.Hijacker); ok {
		conn, rw, err := hijacker.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, rw, nil
	}
	return nil, nil, http.ErrNotSupported
}
