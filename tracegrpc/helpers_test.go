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
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pjscruggs/tracelog"
)

// entrySink collects entries handed to the backend.
type entrySink struct {
	mu      sync.Mutex
	entries []tracelog.LogEntry
}

func (s *entrySink) Submit(_ context.Context, entry tracelog.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *entrySink) all() []tracelog.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tracelog.LogEntry(nil), s.entries...)
}

// newForwarder returns a Forwarder for "orders-svc" that submits to a sink.
// Call drain before inspecting the sink.
func newForwarder(t *testing.T, opts ...tracelog.Option) (*tracelog.Forwarder, func() []tracelog.LogEntry) {
	t.Helper()

	cfg := tracelog.DefaultConfig()
	cfg.ServiceName = "orders-svc"
	cfg.DisablePropagatorAutoset = true

	sink := &entrySink{}
	base := []tracelog.Option{
		tracelog.WithConfig(cfg),
		tracelog.WithSubmitter(sink),
		tracelog.WithFallbackLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))),
		tracelog.WithMetricsRegisterer(prometheus.NewRegistry()),
	}
	fwd, err := tracelog.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("tracelog.New returned %v", err)
	}
	t.Cleanup(func() { _ = fwd.Close() })

	drain := func() []tracelog.LogEntry {
		t.Helper()
		if err := fwd.Close(); err != nil {
			t.Fatalf("Close returned %v", err)
		}
		return sink.all()
	}
	return fwd, drain
}

// steppedClock advances by step on every call.
func steppedClock(step time.Duration) func() time.Time {
	var (
		mu sync.Mutex
		n  int
	)
	base := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := base.Add(time.Duration(n) * step)
		n++
		return now
	}
}

// recordingForwarder is a Forwarder fake that logs every call in order.
type recordingForwarder struct {
	mu    sync.Mutex
	calls []string
	slot  string
	ids   []string
}

func (r *recordingForwarder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recordingForwarder) GenerateTraceID() string {
	r.record("generate")
	return "trace-generated"
}

func (r *recordingForwarder) SetTrace(id string) {
	r.record("set:" + id)
	r.mu.Lock()
	r.slot = id
	r.mu.Unlock()
}

func (r *recordingForwarder) ClearTrace() {
	r.record("clear")
	r.mu.Lock()
	r.slot = ""
	r.mu.Unlock()
}

func (r *recordingForwarder) Log(ctx context.Context, _, _ string, _ map[string]string) {
	r.record("log")
	r.noteTrace(ctx)
}

func (r *recordingForwarder) Error(ctx context.Context, _, _, _ string, _ map[string]string) {
	r.record("error")
	r.noteTrace(ctx)
}

func (r *recordingForwarder) LogRPCCall(ctx context.Context, _, _ string, _ time.Duration, succeeded bool) {
	if succeeded {
		r.record("rpc:ok")
	} else {
		r.record("rpc:failed")
	}
	r.noteTrace(ctx)
}

func (r *recordingForwarder) noteTrace(ctx context.Context) {
	id, _ := tracelog.TraceIDFromContext(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *recordingForwarder) snapshot() (calls []string, slot string, ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...), r.slot, append([]string(nil), r.ids...)
}
