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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"github.com/pjscruggs/tracelog/internal/dispatch"
)

var (
	// ErrNoTransport is returned by New when neither a Submitter nor a
	// backend target is configured.
	ErrNoTransport = errors.New("tracelog: no submitter or LOGGER_SERVICE_ADDR configured")
	// ErrClosed is reported to the fallback logger for entries logged after Close.
	ErrClosed = errors.New("tracelog: forwarder closed")
	// ErrQueueFull is reported to the fallback logger when the submission
	// queue has no free slot.
	ErrQueueFull = errors.New("tracelog: submission queue full")
)

// Forwarder turns log calls into fire-and-forget submissions to the remote
// logging backend. A Forwarder is safe for concurrent use and is meant to be
// shared by every in-flight call of a process.
//
// Each entry carries a trace id resolved in this order: the id stored in the
// call's context by ContextWithTraceID, the process-wide slot set with
// SetTrace, and finally a freshly generated id. Only the context path is
// reliable when calls run concurrently; the slot exists for callers without
// a context and is last-write-wins.
type Forwarder struct {
	service       string
	minLevel      Level
	hostMetadata  string
	submitter     Submitter
	conn          *grpc.ClientConn
	dispatcher    *dispatch.Dispatcher
	fallback      *slog.Logger
	metrics       *metrics
	generate      func() string
	now           func() time.Time
	submitTimeout time.Duration

	current atomic.Pointer[string]

	closeOnce sync.Once
	closeErr  error
}

// New builds a Forwarder from the environment (see Config) and opts.
func New(opts ...Option) (*Forwarder, error) {
	probe := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(probe)
		}
	}

	o := &options{cfg: DefaultConfig(), enableOTel: true}
	if !probe.skipEnv {
		envCfg, err := LoadConfig()
		if err != nil {
			return nil, err
		}
		o.cfg = envCfg
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.cfg.normalize()

	minLevel, err := ParseLevel(o.cfg.MinLevel)
	if err != nil {
		return nil, fmt.Errorf("tracelog: TRACELOG_LEVEL: %w", err)
	}

	if !o.cfg.DisablePropagatorAutoset {
		EnsurePropagation()
	}

	f := &Forwarder{
		service:       o.cfg.ServiceName,
		minLevel:      minLevel,
		submitter:     o.submitter,
		fallback:      o.fallback,
		generate:      o.generator,
		now:           o.clock,
		submitTimeout: o.cfg.SubmitTimeout,
	}
	if f.fallback == nil {
		f.fallback = defaultFallbackLogger()
	}
	if f.generate == nil {
		f.generate = GenerateTraceID
	}
	if f.now == nil {
		f.now = time.Now
	}
	if o.cfg.HostMetadata {
		f.hostMetadata = DetectHost()
	}

	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("tracelog: register metrics: %w", err)
	}
	f.metrics = m

	if f.submitter == nil {
		if o.cfg.LoggerAddr == "" {
			return nil, ErrNoTransport
		}
		conn, err := dialBackend(o.cfg.LoggerAddr, o)
		if err != nil {
			return nil, fmt.Errorf("tracelog: dial %s: %w", o.cfg.LoggerAddr, err)
		}
		f.conn = conn
		f.submitter = NewGRPCSubmitter(conn)
	}

	f.dispatcher = dispatch.New(dispatch.Config{
		QueueSize:    o.cfg.QueueSize,
		WorkerCount:  o.cfg.Workers,
		FlushTimeout: o.cfg.FlushTimeout,
		ErrorWriter:  slogWriter{logger: f.fallback},
	})
	return f, nil
}

// Service returns the service identity stamped on entries.
func (f *Forwarder) Service() string {
	return f.service
}

// GenerateTraceID returns a new trace id from the configured generator.
func (f *Forwarder) GenerateTraceID() string {
	return f.generate()
}

// SetTrace stores id in the process-wide slot.
func (f *Forwarder) SetTrace(id string) {
	if id == "" {
		f.current.Store(nil)
		return
	}
	f.current.Store(&id)
}

// Trace returns the id in the process-wide slot, or a freshly generated id
// when the slot is empty. It never returns "".
func (f *Forwarder) Trace() string {
	if p := f.current.Load(); p != nil {
		return *p
	}
	return f.generate()
}

// ClearTrace empties the process-wide slot.
func (f *Forwarder) ClearTrace() {
	f.current.Store(nil)
}

// TraceFor resolves the trace id an entry logged with ctx would carry.
func (f *Forwarder) TraceFor(ctx context.Context) string {
	if id, ok := TraceIDFromContext(ctx); ok {
		return id
	}
	return f.Trace()
}

// Log emits an info entry. An empty subsystem defaults to "Application".
func (f *Forwarder) Log(ctx context.Context, message, subsystem string, metadata map[string]string) {
	f.emit(ctx, LevelInfo, message, subsystem, metadata, nil)
}

// Warn emits a warn entry.
func (f *Forwarder) Warn(ctx context.Context, message, subsystem string, metadata map[string]string) {
	f.emit(ctx, LevelWarn, message, subsystem, metadata, nil)
}

// Debug emits a debug entry.
func (f *Forwarder) Debug(ctx context.Context, message, subsystem string, metadata map[string]string) {
	f.emit(ctx, LevelDebug, message, subsystem, metadata, nil)
}

// Error emits an error entry. traceDetail is stored under the "trace"
// metadata key, overriding any caller-supplied value for that key.
func (f *Forwarder) Error(ctx context.Context, message, traceDetail, subsystem string, metadata map[string]string) {
	f.emit(ctx, LevelError, message, subsystem, metadata, map[string]string{"trace": traceDetail})
}

// LogHTTPRequest emits an info entry describing a completed HTTP request.
// A non-empty traceID becomes the current trace, both in the process-wide
// slot and for this entry; an empty one leaves the slot untouched.
func (f *Forwarder) LogHTTPRequest(ctx context.Context, method, url string, statusCode int, duration time.Duration, traceID string) {
	if traceID != "" {
		f.SetTrace(traceID)
		ctx = ContextWithTraceID(ctx, traceID)
	}
	status := strconv.Itoa(statusCode)
	f.Log(ctx, fmt.Sprintf("HTTP %s %s %s", method, url, status), ContextHTTP, map[string]string{
		"method":     method,
		"url":        url,
		"statusCode": status,
		"duration":   FormatDuration(duration),
	})
}

// LogRPCCall emits a summary entry for an RPC: info when it succeeded,
// error otherwise.
func (f *Forwarder) LogRPCCall(ctx context.Context, service, method string, duration time.Duration, succeeded bool) {
	level, outcome := LevelInfo, "succeeded"
	if !succeeded {
		level, outcome = LevelError, "failed"
	}
	f.emit(ctx, level, fmt.Sprintf("%s %s.%s %s", ContextGRPC, service, method, outcome), ContextGRPC, map[string]string{
		"grpc_service": service,
		"grpc_method":  method,
		"duration":     FormatDuration(duration),
		"success":      strconv.FormatBool(succeeded),
	}, nil)
}

// Close stops accepting entries, waits for queued ones up to the flush
// timeout, and closes the backend connection if New dialed it. Entries
// logged after Close go to the fallback logger.
func (f *Forwarder) Close() error {
	f.closeOnce.Do(func() {
		var errs []error
		if err := f.dispatcher.Close(); err != nil {
			errs = append(errs, err)
		}
		if f.conn != nil {
			if err := f.conn.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		f.closeErr = errors.Join(errs...)
	})
	return f.closeErr
}

// emit builds an entry and hands it to the dispatcher. extra is merged over
// the caller's metadata. Entries below the minimum level are discarded.
func (f *Forwarder) emit(ctx context.Context, level Level, message, subsystem string, metadata, extra map[string]string) {
	if level < f.minLevel {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if subsystem == "" {
		subsystem = ContextApplication
	}

	md := make(map[string]string, len(metadata)+len(extra)+1)
	maps.Copy(md, metadata)
	maps.Copy(md, extra)
	if f.hostMetadata != "" {
		if _, ok := md["host"]; !ok {
			md["host"] = f.hostMetadata
		}
	}

	f.submit(ctx, LogEntry{
		Level:     level,
		Message:   message,
		Service:   f.service,
		Context:   subsystem,
		TraceID:   f.TraceFor(ctx),
		Timestamp: f.now(),
		Metadata:  md,
	})
}

// submit dispatches entry without waiting for the backend. Delivery runs
// under a context detached from the caller's cancellation.
func (f *Forwarder) submit(ctx context.Context, entry LogEntry) {
	detached := context.WithoutCancel(ctx)
	level := entry.Level.String()

	task := func() {
		sctx := detached
		if f.submitTimeout > 0 {
			var cancel context.CancelFunc
			sctx, cancel = context.WithTimeout(detached, f.submitTimeout)
			defer cancel()
		}
		if err := f.submitter.Submit(sctx, entry); err != nil {
			f.metrics.failed.WithLabelValues(level).Inc()
			f.writeFallback(detached, entry, err)
			return
		}
		f.metrics.submitted.WithLabelValues(level).Inc()
	}

	_ = f.dispatcher.Dispatch(task, func(err error) {
		reason, reported := dropReasonQueueFull, ErrQueueFull
		if errors.Is(err, dispatch.ErrClosed) {
			reason, reported = dropReasonClosed, ErrClosed
		}
		f.metrics.dropped.WithLabelValues(reason).Inc()
		f.writeFallback(detached, entry, reported)
	})
}

// FormatDuration renders d as whole milliseconds, the unit used by every
// "duration" metadata value.
func FormatDuration(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

// slogWriter forwards dispatcher diagnostics to the fallback logger.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	w.logger.Error(string(trimNewline(p)))
	return len(p), nil
}

func trimNewline(p []byte) []byte {
	if n := len(p); n > 0 && p[n-1] == '\n' {
		return p[:n-1]
	}
	return p
}
