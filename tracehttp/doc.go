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

// Package tracehttp records HTTP traffic through a [tracelog.Forwarder].
//
// [Middleware] serves every request under a trace id taken from the
// X-Trace-Id header, the active OpenTelemetry span, or a freshly generated
// id, echoes it back in the response header, and emits one
// "HTTP <method> <url> <status>" record when the handler returns.
// [Transport] forwards the trace id of an outgoing request's context so the
// next service logs under the same id.
//
//	mux := http.NewServeMux()
//	handler := tracehttp.Middleware(fwd)(mux)
//
//	client := &http.Client{Transport: tracehttp.Transport(nil)}
package tracehttp
