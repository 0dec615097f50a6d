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

// Package tracelog forwards structured, trace-correlated log entries from a
// service to a remote logging backend (logger.LoggerService) without letting
// backend trouble reach the service's callers.
//
// The central type is [Forwarder]. It stamps every entry with the process's
// service identity (SERVICE_NAME, "null" when unset), a context tag such as
// "gRPC" or "HTTP", the current trace id, and an ISO-8601 timestamp, then
// hands the entry to a worker queue. Logging calls return immediately. When
// the backend rejects an entry, cannot be reached, or the queue is full, the
// entry is written to a local [log/slog] logger instead; nothing is retried.
//
// # Trace ids
//
// Trace ids look like "trace-1718000000000-k3j9x0a1b" (see
// [GenerateTraceID]). They travel in the request context via
// [ContextWithTraceID]. The Forwarder also keeps a process-wide slot
// ([Forwarder.SetTrace], [Forwarder.Trace], [Forwarder.ClearTrace]) for code
// that has no context at hand; entries prefer the context value.
//
// # Subpackages
//
//   - [github.com/pjscruggs/tracelog/tracegrpc] wraps gRPC handlers, resolves
//     or generates the trace id per call, and reports each call's outcome.
//   - [github.com/pjscruggs/tracelog/tracehttp] does the same for net/http
//     handlers through [Forwarder.LogHTTPRequest].
//   - [github.com/pjscruggs/tracelog/loggerpb] holds the backend wire contract.
//
// # Quick Start
//
//	fwd, err := tracelog.New(tracelog.WithTarget("logger:50051"))
//	if err != nil {
//	    log.Fatalf("create forwarder: %v", err)
//	}
//	defer fwd.Close() // drains queued entries
//
//	server := grpc.NewServer(tracegrpc.ServerOptions(fwd)...)
package tracelog
