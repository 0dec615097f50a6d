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
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/pjscruggs/tracelog"
)

// Forwarder is the subset of [tracelog.Forwarder] the interceptors use.
type Forwarder interface {
	GenerateTraceID() string
	SetTrace(id string)
	ClearTrace()
	Log(ctx context.Context, message, subsystem string, metadata map[string]string)
	Error(ctx context.Context, message, traceDetail, subsystem string, metadata map[string]string)
	LogRPCCall(ctx context.Context, service, method string, duration time.Duration, succeeded bool)
}

var _ Forwarder = (*tracelog.Forwarder)(nil)

// CallInfo identifies an intercepted call.
type CallInfo struct {
	Service string
	Method  string
	// Request is the call payload consulted for a trace_id. It may be nil.
	Request any
}

// Intercept runs proceed under a resolved trace id and logs its outcome
// through fwd. The result and error of proceed are returned unchanged.
func Intercept(ctx context.Context, fwd Forwarder, call CallInfo, proceed func(context.Context) (any, error), opts ...Option) (any, error) {
	return intercept(ctx, fwd, call, proceed, applyOptions(opts))
}

func intercept(ctx context.Context, fwd Forwarder, call CallInfo, proceed func(context.Context) (any, error), cfg *config) (any, error) {
	traceID := resolveTraceID(ctx, call.Request, cfg)
	if traceID == "" {
		traceID = fwd.GenerateTraceID()
	}
	fwd.SetTrace(traceID)
	defer fwd.ClearTrace()
	ctx = tracelog.ContextWithTraceID(ctx, traceID)

	start := cfg.now()
	resp, err := proceed(ctx)
	elapsed := cfg.now().Sub(start)
	duration := tracelog.FormatDuration(elapsed)

	if err != nil {
		fwd.Error(ctx,
			fmt.Sprintf("%s %s.%s failed: %s", cfg.label, call.Service, call.Method, err.Error()),
			tracelog.ErrorTrace(err),
			tracelog.ContextGRPC,
			map[string]string{
				"duration":      duration,
				"error_message": err.Error(),
			},
		)
	} else {
		fwd.Log(ctx,
			fmt.Sprintf("%s %s.%s completed in %sms", cfg.label, call.Service, call.Method, duration),
			tracelog.ContextGRPC,
			map[string]string{
				"duration": duration,
				"success":  "true",
			},
		)
	}
	if cfg.outcomeRecords {
		fwd.LogRPCCall(ctx, call.Service, call.Method, elapsed, err == nil)
	}
	return resp, err
}

// UnaryServerInterceptor logs every unary call through fwd.
func UnaryServerInterceptor(fwd Forwarder, opts ...Option) grpc.UnaryServerInterceptor {
	cfg := applyOptions(opts)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if cfg.skipped(info.FullMethod) {
			return handler(ctx, req)
		}
		call := callInfoFor(info.FullMethod, req, cfg)
		return intercept(ctx, fwd, call, func(ctx context.Context) (any, error) {
			return handler(ctx, req)
		}, cfg)
	}
}

// StreamServerInterceptor logs every streaming call through fwd. Streams
// have no single request message, so the payload is not consulted.
func StreamServerInterceptor(fwd Forwarder, opts ...Option) grpc.StreamServerInterceptor {
	cfg := applyOptions(opts)

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if cfg.skipped(info.FullMethod) {
			return handler(srv, ss)
		}
		call := callInfoFor(info.FullMethod, nil, cfg)
		_, err := intercept(ss.Context(), fwd, call, func(ctx context.Context) (any, error) {
			return nil, handler(srv, &serverStream{ServerStream: ss, ctx: ctx})
		}, cfg)
		return err
	}
}

// UnaryClientInterceptor forwards the trace id carried by the call context
// as x-trace-id metadata. Existing x-trace-id values are left alone.
func UnaryClientInterceptor(opts ...Option) grpc.UnaryClientInterceptor {
	cfg := applyOptions(opts)

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		if !cfg.skipped(method) {
			ctx = injectTraceID(ctx)
		}
		return invoker(ctx, method, req, reply, cc, callOpts...)
	}
}

// StreamClientInterceptor is the streaming counterpart of
// [UnaryClientInterceptor].
func StreamClientInterceptor(opts ...Option) grpc.StreamClientInterceptor {
	cfg := applyOptions(opts)

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, callOpts ...grpc.CallOption) (grpc.ClientStream, error) {
		if !cfg.skipped(method) {
			ctx = injectTraceID(ctx)
		}
		return streamer(ctx, desc, cc, method, callOpts...)
	}
}

// ServerOptions returns grpc.ServerOptions that install otelgrpc StatsHandlers
// and the server interceptors.
func ServerOptions(fwd Forwarder, opts ...Option) []grpc.ServerOption {
	cfg := applyOptions(opts)
	var serverOpts []grpc.ServerOption

	if cfg.enableOTel {
		serverOpts = append(serverOpts, grpc.StatsHandler(otelgrpc.NewServerHandler(statsHandlerOptions(cfg)...)))
	}

	serverOpts = append(serverOpts,
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(fwd, opts...)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(fwd, opts...)),
	)
	return serverOpts
}

// DialOptions returns grpc.DialOptions that install otelgrpc StatsHandlers
// and the client interceptors.
func DialOptions(opts ...Option) []grpc.DialOption {
	cfg := applyOptions(opts)
	var dialOpts []grpc.DialOption

	if cfg.enableOTel {
		dialOpts = append(dialOpts, grpc.WithStatsHandler(otelgrpc.NewClientHandler(statsHandlerOptions(cfg)...)))
	}

	dialOpts = append(dialOpts,
		grpc.WithChainUnaryInterceptor(UnaryClientInterceptor(opts...)),
		grpc.WithChainStreamInterceptor(StreamClientInterceptor(opts...)),
	)
	return dialOpts
}

// statsHandlerOptions configures otelgrpc instrumentation from cfg.
func statsHandlerOptions(cfg *config) []otelgrpc.Option {
	var opts []otelgrpc.Option
	if cfg.tracerProvider != nil {
		opts = append(opts, otelgrpc.WithTracerProvider(cfg.tracerProvider))
	}
	if cfg.propagators != nil {
		opts = append(opts, otelgrpc.WithPropagators(cfg.propagators))
	}
	return opts
}

// injectTraceID copies the context's trace id into outgoing metadata.
func injectTraceID(ctx context.Context) context.Context {
	traceID, ok := tracelog.TraceIDFromContext(ctx)
	if !ok {
		return ctx
	}
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		md = metadata.New(nil)
	} else {
		md = md.Copy()
	}
	if len(md.Get(MetadataKey)) > 0 {
		return ctx
	}
	md.Set(MetadataKey, traceID)
	return metadata.NewOutgoingContext(ctx, md)
}

type serverStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the call context carrying the trace id.
func (s *serverStream) Context() context.Context {
	return s.ctx
}
