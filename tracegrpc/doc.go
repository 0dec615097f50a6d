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

// Package tracegrpc wraps gRPC handlers so every call is logged through a
// [tracelog.Forwarder] under a single trace id.
//
// For each call the interceptors resolve a trace id (the request payload's
// trace_id field, the incoming x-trace-id metadata, the active OpenTelemetry
// span, or a freshly generated id), make it current for the duration of the
// handler, and emit one completion record: an info entry
// "gRPC Service.Method completed in Nms" on success, or an error entry
// "gRPC Service.Method failed: <error>" carrying a stack trace on failure.
// The handler's result and error are returned unchanged and the current
// trace is always cleared afterwards, including when the handler panics.
//
// Convenience helpers are available:
//
//   - [UnaryServerInterceptor] and [StreamServerInterceptor]
//   - [UnaryClientInterceptor] and [StreamClientInterceptor], which forward
//     the caller's trace id as x-trace-id metadata
//   - [ServerOptions] and [DialOptions], which bundle otelgrpc StatsHandlers
//     with the interceptors
//   - [Intercept], the framework-independent core for other RPC adapters
//
// Typical usage:
//
//	fwd, err := tracelog.New()
//	if err != nil {
//	    // handle error
//	}
//	defer fwd.Close()
//
//	server := grpc.NewServer(tracegrpc.ServerOptions(fwd)...)
package tracegrpc
