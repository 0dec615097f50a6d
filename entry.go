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
	"maps"
	"time"

	"github.com/pjscruggs/tracelog/loggerpb"
)

// Default context tags used by the forwarder and the interceptors.
const (
	ContextApplication = "Application"
	ContextGRPC        = "gRPC"
	ContextHTTP        = "HTTP"
)

// TimestampLayout is the ISO-8601 layout used for LogEntry.Timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// LogEntry is a single structured record submitted to the logging backend.
type LogEntry struct {
	Level     Level
	Message   string
	Service   string
	Context   string
	TraceID   string
	Timestamp time.Time
	Metadata  map[string]string
}

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Request converts the entry into its wire representation. The metadata map
// is copied; an entry without metadata yields an empty, non-nil map.
func (e LogEntry) Request() *loggerpb.LogRequest {
	md := make(map[string]string, len(e.Metadata))
	maps.Copy(md, e.Metadata)
	return &loggerpb.LogRequest{
		Level:     e.Level.String(),
		Message:   e.Message,
		Service:   e.Service,
		Context:   e.Context,
		TraceId:   e.TraceID,
		Timestamp: FormatTimestamp(e.Timestamp),
		Metadata:  md,
	}
}
