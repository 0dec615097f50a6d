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
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// lockedBuffer guards a bytes.Buffer for concurrent writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// records decodes every JSON line written so far.
func (b *lockedBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	raw := strings.TrimSpace(b.String())
	if raw == "" {
		return nil
	}
	var out []map[string]any
	for _, line := range strings.Split(raw, "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("unmarshal fallback line %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

// recordingSubmitter captures entries and optionally fails every call.
type recordingSubmitter struct {
	mu      sync.Mutex
	entries []LogEntry
	err     error
}

func (s *recordingSubmitter) Submit(_ context.Context, entry LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.err
}

func (s *recordingSubmitter) all() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogEntry(nil), s.entries...)
}

// testConfig returns a configuration independent of the process environment.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ServiceName = "orders-svc"
	cfg.DisablePropagatorAutoset = true
	return cfg
}

// newTestForwarder builds a Forwarder that submits to sub and falls back to buf.
func newTestForwarder(t *testing.T, sub Submitter, buf *lockedBuffer, opts ...Option) *Forwarder {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	base := []Option{
		WithConfig(testConfig()),
		WithSubmitter(sub),
		WithFallbackLogger(logger),
	}
	fwd, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New returned %v", err)
	}
	t.Cleanup(func() { _ = fwd.Close() })
	return fwd
}
