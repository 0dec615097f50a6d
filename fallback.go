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
	"log/slog"
	"os"
)

// FallbackReason is the value of the "fallback" attribute on local records.
const FallbackReason = "failed to send log to logger service"

// defaultFallbackLogger writes JSON lines to stderr at every level.
func defaultFallbackLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// writeFallback records entry locally together with the delivery error. The
// record keeps the entry's level and message so operators see the same line
// they would have found in the backend.
func (f *Forwarder) writeFallback(ctx context.Context, entry LogEntry, err error) {
	attrs := []slog.Attr{
		slog.String("fallback", FallbackReason),
		slog.String("service", entry.Service),
		slog.String("context", entry.Context),
		slog.String("trace_id", entry.TraceID),
		slog.String("timestamp", FormatTimestamp(entry.Timestamp)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	if len(entry.Metadata) > 0 {
		mdAttrs := make([]any, 0, len(entry.Metadata))
		for k, v := range entry.Metadata {
			mdAttrs = append(mdAttrs, slog.String(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", mdAttrs...))
	}
	f.fallback.LogAttrs(ctx, entry.Level.Level(), entry.Message, attrs...)
}
