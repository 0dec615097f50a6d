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
	"strings"

	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

const (
	// MetadataKey carries the trace id between services.
	MetadataKey = "x-trace-id"

	// PayloadField is the request field consulted for a caller-supplied id.
	PayloadField = "trace_id"
)

// resolveTraceID picks the id for a call: the request payload, then incoming
// metadata, then the active span. It returns "" when none applies.
func resolveTraceID(ctx context.Context, req any, cfg *config) string {
	if id := traceIDFromPayload(req); id != "" {
		return id
	}
	if id := traceIDFromMetadata(ctx); id != "" {
		return id
	}
	if cfg.useSpanTraceID {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			return sc.TraceID().String()
		}
	}
	return ""
}

// traceIDFromPayload reads a trace_id from generated messages, any value with
// a GetTraceId accessor, or a decoded map.
func traceIDFromPayload(req any) string {
	switch m := req.(type) {
	case nil:
		return ""
	case interface{ GetTraceId() string }:
		return strings.TrimSpace(m.GetTraceId())
	case proto.Message:
		return protoStringField(m.ProtoReflect(), PayloadField)
	case map[string]string:
		return strings.TrimSpace(m[PayloadField])
	case map[string]any:
		if s, ok := m[PayloadField].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// protoStringField returns the value of a singular string field by name.
func protoStringField(msg protoreflect.Message, name protoreflect.Name) string {
	if msg == nil || !msg.IsValid() {
		return ""
	}
	fd := msg.Descriptor().Fields().ByName(name)
	if fd == nil || fd.Kind() != protoreflect.StringKind || fd.Cardinality() == protoreflect.Repeated {
		return ""
	}
	return strings.TrimSpace(msg.Get(fd).String())
}

// traceIDFromMetadata returns the first non-blank x-trace-id value.
func traceIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(MetadataKey) {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// shortServiceName drops the package qualifier from a gRPC service name.
func shortServiceName(service string) string {
	if i := strings.LastIndexByte(service, '.'); i >= 0 {
		return service[i+1:]
	}
	return service
}

// splitFullMethod parses "/pkg.Service/Method" into its service and method.
func splitFullMethod(full string) (service, method string) {
	if !strings.HasPrefix(full, "/") {
		return "", strings.TrimSpace(full)
	}
	full = strings.TrimPrefix(full, "/")
	parts := strings.SplitN(full, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return full, ""
}

// callInfoFor builds the CallInfo for a full method name.
func callInfoFor(fullMethod string, req any, cfg *config) CallInfo {
	service, method := splitFullMethod(fullMethod)
	if !cfg.fullServiceName {
		service = shortServiceName(service)
	}
	return CallInfo{Service: service, Method: method, Request: req}
}
