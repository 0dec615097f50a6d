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
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pjscruggs/tracelog"
)

// Transport returns an http.RoundTripper that copies the request context's
// trace id into the X-Trace-Id header. Requests that already carry the
// header are sent unchanged.
func Transport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	cfg := applyOptions(opts)
	if base == nil {
		base = http.DefaultTransport
	}

	var rt http.RoundTripper = roundTripper{base: base, cfg: cfg}
	if cfg.enableOTel {
		rt = otelhttp.NewTransport(rt, otelOptions(cfg)...)
	}
	return rt
}

type roundTripper struct {
	base http.RoundTripper
	cfg  *config
}

// RoundTrip injects the trace header and forwards to the base transport.
func (t roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req != nil && !t.cfg.skipped(req) && req.Header.Get(HeaderTraceID) == "" {
		if traceID, ok := tracelog.TraceIDFromContext(req.Context()); ok {
			req = req.Clone(req.Context())
			req.Header.Set(HeaderTraceID, traceID)
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, fmt.Errorf("round trip request: %w", err)
	}
	return resp, nil
}
