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
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/pjscruggs/tracelog"
	"github.com/pjscruggs/tracelog/loggerpb"
)

var createInfo = &grpc.UnaryServerInfo{FullMethod: "/orders.v1.OrdersService/Create"}

// TestUnaryServerInterceptorCompletedEntry checks the exit record of a
// successful 42ms call.
func TestUnaryServerInterceptorCompletedEntry(t *testing.T) {
	t.Parallel()

	fwd, drain := newForwarder(t)
	interceptor := UnaryServerInterceptor(fwd, withClock(steppedClock(42*time.Millisecond)))

	type reply struct{ id string }
	want := &reply{id: "order-7"}
	resp, err := interceptor(context.Background(), map[string]any{}, createInfo, func(context.Context, any) (any, error) {
		return want, nil
	})
	if err != nil {
		t.Fatalf("interceptor returned %v", err)
	}
	if resp != want {
		t.Fatalf("response = %v, want the handler's value unchanged", resp)
	}

	entries := drain()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	got := entries[0]
	if got.Level != tracelog.LevelInfo {
		t.Errorf("level = %v, want info", got.Level)
	}
	if got.Message != "gRPC OrdersService.Create completed in 42ms" {
		t.Errorf("message = %q", got.Message)
	}
	if got.Service != "orders-svc" || got.Context != tracelog.ContextGRPC {
		t.Errorf("service/context = %q/%q", got.Service, got.Context)
	}
	if !tracelog.TraceIDPattern.MatchString(got.TraceID) {
		t.Errorf("trace id %q is not a generated id", got.TraceID)
	}
	if diff := cmp.Diff(map[string]string{"duration": "42", "success": "true"}, got.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

// TestUnaryServerInterceptorFailureEntry keeps the handler error intact and
// logs it with a stack trace.
func TestUnaryServerInterceptorFailureEntry(t *testing.T) {
	t.Parallel()

	fwd, drain := newForwarder(t)
	interceptor := UnaryServerInterceptor(fwd, withClock(steppedClock(3*time.Millisecond)))

	boom := errors.New("boom")
	resp, err := interceptor(context.Background(), nil, createInfo, func(context.Context, any) (any, error) {
		return nil, boom
	})
	if err != boom {
		t.Fatalf("error = %v, want the handler's error value", err)
	}
	if resp != nil {
		t.Fatalf("response = %v, want nil", resp)
	}

	entries := drain()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	got := entries[0]
	if got.Level != tracelog.LevelError {
		t.Errorf("level = %v, want error", got.Level)
	}
	if got.Message != "gRPC OrdersService.Create failed: boom" {
		t.Errorf("message = %q", got.Message)
	}
	if got.Metadata["error_message"] != "boom" || got.Metadata["duration"] != "3" {
		t.Errorf("metadata = %v", got.Metadata)
	}
	if !strings.Contains(got.Metadata["trace"], "goroutine ") {
		t.Errorf("trace detail = %q, want a stack", got.Metadata["trace"])
	}
	if _, ok := got.Metadata["success"]; ok {
		t.Errorf("failure entry must not carry success")
	}
}

// TestUnaryServerInterceptorStatusError passes gRPC status errors through.
func TestUnaryServerInterceptorStatusError(t *testing.T) {
	t.Parallel()

	fwd, drain := newForwarder(t)
	interceptor := UnaryServerInterceptor(fwd)

	_, err := interceptor(context.Background(), nil, createInfo, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %v, want NotFound", status.Code(err))
	}

	entries := drain()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if want := "rpc error: code = NotFound desc = missing"; entries[0].Metadata["error_message"] != want {
		t.Fatalf("error_message = %q, want %q", entries[0].Metadata["error_message"], want)
	}
}

// TestUnaryServerInterceptorPayloadTraceID uses the caller's trace_id for the
// handler context and the exit record.
func TestUnaryServerInterceptorPayloadTraceID(t *testing.T) {
	t.Parallel()

	fwd, drain := newForwarder(t)
	interceptor := UnaryServerInterceptor(fwd)

	var handlerID string
	_, err := interceptor(context.Background(), map[string]any{"trace_id": "T"}, createInfo, func(ctx context.Context, _ any) (any, error) {
		handlerID, _ = tracelog.TraceIDFromContext(ctx)
		fwd.Log(ctx, "inside handler", "", nil)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor returned %v", err)
	}
	if handlerID != "T" {
		t.Fatalf("handler trace id = %q, want T", handlerID)
	}

	for _, entry := range drain() {
		if entry.TraceID != "T" {
			t.Fatalf("entry %q trace id = %q, want T", entry.Message, entry.TraceID)
		}
	}
}

// TestInterceptClearsTrace leaves no trace behind after success or failure.
func TestInterceptClearsTrace(t *testing.T) {
	t.Parallel()

	ids := []string{"trace-1-aaaaaaaaa", "trace-2-bbbbbbbbb", "trace-3-ccccccccc", "trace-4-ddddddddd"}
	var next int
	fwd, _ := newForwarder(t, tracelog.WithTraceIDGenerator(func() string {
		id := ids[next]
		next++
		return id
	}))

	call := CallInfo{Service: "OrdersService", Method: "Create"}
	if _, err := Intercept(context.Background(), fwd, call, func(context.Context) (any, error) { return "ok", nil }); err != nil {
		t.Fatalf("Intercept returned %v", err)
	}
	if got := fwd.Trace(); got != ids[1] {
		t.Fatalf("Trace() after success = %q, want fresh %q", got, ids[1])
	}

	if _, err := Intercept(context.Background(), fwd, call, func(context.Context) (any, error) { return nil, errors.New("boom") }); err == nil {
		t.Fatalf("expected failure")
	}
	if got := fwd.Trace(); got != ids[3] {
		t.Fatalf("Trace() after failure = %q, want fresh %q", got, ids[3])
	}
}

// TestInterceptClearsTraceOnPanic re-raises the panic after clearing.
func TestInterceptClearsTraceOnPanic(t *testing.T) {
	t.Parallel()

	rec := &recordingForwarder{}
	call := CallInfo{Service: "OrdersService", Method: "Create", Request: map[string]string{"trace_id": "T"}}

	func() {
		defer func() {
			if r := recover(); r != "kaboom" {
				t.Fatalf("recovered %v, want kaboom", r)
			}
		}()
		_, _ = Intercept(context.Background(), rec, call, func(context.Context) (any, error) {
			panic("kaboom")
		})
	}()

	calls, slot, _ := rec.snapshot()
	if diff := cmp.Diff([]string{"set:T", "clear"}, calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if slot != "" {
		t.Fatalf("slot = %q after panic", slot)
	}
}

// TestInterceptCallSequence checks generation, logging order, and outcome
// records.
func TestInterceptCallSequence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []Option
		handler func(context.Context) (any, error)
		want    []string
	}{
		{
			name:    "success",
			handler: func(context.Context) (any, error) { return nil, nil },
			want:    []string{"generate", "set:trace-generated", "log", "clear"},
		},
		{
			name:    "failure",
			handler: func(context.Context) (any, error) { return nil, errors.New("boom") },
			want:    []string{"generate", "set:trace-generated", "error", "clear"},
		},
		{
			name:    "success with outcome record",
			opts:    []Option{WithOutcomeRecords(true)},
			handler: func(context.Context) (any, error) { return nil, nil },
			want:    []string{"generate", "set:trace-generated", "log", "rpc:ok", "clear"},
		},
		{
			name:    "failure with outcome record",
			opts:    []Option{WithOutcomeRecords(true)},
			handler: func(context.Context) (any, error) { return nil, errors.New("boom") },
			want:    []string{"generate", "set:trace-generated", "error", "rpc:failed", "clear"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &recordingForwarder{}
			_, _ = Intercept(context.Background(), rec, CallInfo{Service: "S", Method: "M"}, tt.handler, tt.opts...)

			calls, _, ids := rec.snapshot()
			if diff := cmp.Diff(tt.want, calls); diff != "" {
				t.Fatalf("calls mismatch (-want +got):\n%s", diff)
			}
			for _, id := range ids {
				if id != "trace-generated" {
					t.Fatalf("entry logged with trace %q", id)
				}
			}
		})
	}
}

// TestUnaryServerInterceptorLabelAndServiceName applies naming options.
func TestUnaryServerInterceptorLabelAndServiceName(t *testing.T) {
	t.Parallel()

	fwd, drain := newForwarder(t)
	interceptor := UnaryServerInterceptor(fwd,
		WithRPCLabel("rpc"),
		WithFullServiceName(true),
		withClock(steppedClock(5*time.Millisecond)),
	)
	if _, err := interceptor(context.Background(), nil, createInfo, func(context.Context, any) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("interceptor returned %v", err)
	}

	entries := drain()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if want := "rpc orders.v1.OrdersService.Create completed in 5ms"; entries[0].Message != want {
		t.Fatalf("message = %q, want %q", entries[0].Message, want)
	}
}

// TestUnaryServerInterceptorFilter bypasses filtered methods.
func TestUnaryServerInterceptorFilter(t *testing.T) {
	t.Parallel()

	rec := &recordingForwarder{}
	interceptor := UnaryServerInterceptor(rec, WithFilter(func(fullMethod string) bool {
		return strings.HasPrefix(fullMethod, "/grpc.health.v1.Health/")
	}))

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	var sawTrace bool
	if _, err := interceptor(context.Background(), nil, info, func(ctx context.Context, _ any) (any, error) {
		_, sawTrace = tracelog.TraceIDFromContext(ctx)
		return nil, nil
	}); err != nil {
		t.Fatalf("interceptor returned %v", err)
	}
	if calls, _, _ := rec.snapshot(); len(calls) != 0 || sawTrace {
		t.Fatalf("filtered call was intercepted: %v", calls)
	}

	if _, err := interceptor(context.Background(), nil, createInfo, func(context.Context, any) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("interceptor returned %v", err)
	}
	if calls, _, _ := rec.snapshot(); len(calls) == 0 {
		t.Fatalf("unfiltered call was not intercepted")
	}
}

// TestStreamServerInterceptorUsesMetadataTrace exposes the resolved id on the
// wrapped stream's context.
func TestStreamServerInterceptorUsesMetadataTrace(t *testing.T) {
	t.Parallel()

	fwd, drain := newForwarder(t)
	interceptor := StreamServerInterceptor(fwd, withClock(steppedClock(time.Millisecond)))

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(MetadataKey, "trace-from-peer"))
	stream := &fakeServerStream{ctx: ctx}
	info := &grpc.StreamServerInfo{FullMethod: "/orders.v1.OrdersService/Watch", IsServerStream: true}

	var streamID string
	err := interceptor(nil, stream, info, func(_ any, ss grpc.ServerStream) error {
		streamID, _ = tracelog.TraceIDFromContext(ss.Context())
		return nil
	})
	if err != nil {
		t.Fatalf("interceptor returned %v", err)
	}
	if streamID != "trace-from-peer" {
		t.Fatalf("stream trace id = %q", streamID)
	}

	entries := drain()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].TraceID != "trace-from-peer" || entries[0].Message != "gRPC OrdersService.Watch completed in 1ms" {
		t.Fatalf("entry = %+v", entries[0])
	}
}

// TestUnaryClientInterceptorInjectsTrace forwards the context's trace id.
func TestUnaryClientInterceptorInjectsTrace(t *testing.T) {
	t.Parallel()

	interceptor := UnaryClientInterceptor()
	capture := func(ctx context.Context) metadata.MD {
		var md metadata.MD
		err := interceptor(ctx, "/orders.v1.OrdersService/Create", nil, nil, nil,
			func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
				md, _ = metadata.FromOutgoingContext(ctx)
				return nil
			})
		if err != nil {
			t.Fatalf("interceptor returned %v", err)
		}
		return md
	}

	ctx := tracelog.ContextWithTraceID(context.Background(), "trace-abc")
	if got := capture(ctx).Get(MetadataKey); len(got) != 1 || got[0] != "trace-abc" {
		t.Fatalf("x-trace-id = %v", got)
	}

	if got := capture(context.Background()).Get(MetadataKey); len(got) != 0 {
		t.Fatalf("x-trace-id without a trace = %v", got)
	}

	explicit := metadata.AppendToOutgoingContext(ctx, MetadataKey, "trace-explicit", "tenant", "acme")
	md := capture(explicit)
	if got := md.Get(MetadataKey); len(got) != 1 || got[0] != "trace-explicit" {
		t.Fatalf("explicit x-trace-id overwritten: %v", got)
	}
	if got := md.Get("tenant"); len(got) != 1 || got[0] != "acme" {
		t.Fatalf("existing metadata lost: %v", md)
	}
}

// TestServerAndDialOptions counts the bundled options.
func TestServerAndDialOptions(t *testing.T) {
	t.Parallel()

	rec := &recordingForwarder{}
	if got := len(ServerOptions(rec)); got != 3 {
		t.Fatalf("ServerOptions with otel = %d, want 3", got)
	}
	if got := len(ServerOptions(rec, WithOTel(false))); got != 2 {
		t.Fatalf("ServerOptions without otel = %d, want 2", got)
	}
	if got := len(DialOptions()); got != 3 {
		t.Fatalf("DialOptions with otel = %d, want 3", got)
	}
	if got := len(DialOptions(WithOTel(false))); got != 2 {
		t.Fatalf("DialOptions without otel = %d, want 2", got)
	}
}

type tracedLogServer struct {
	loggerpb.UnimplementedLoggerServiceServer
	fwd *tracelog.Forwarder
	ids chan string
}

func (s *tracedLogServer) Log(ctx context.Context, req *loggerpb.LogRequest) (*loggerpb.LogResponse, error) {
	id, _ := tracelog.TraceIDFromContext(ctx)
	s.ids <- id
	s.fwd.Debug(ctx, "received "+req.Message, "", nil)
	return &loggerpb.LogResponse{Success: true}, nil
}

// TestTracePropagatesAcrossServices runs a client and server over bufconn and
// checks the client's trace id reaches the server's records.
func TestTracePropagatesAcrossServices(t *testing.T) {
	t.Parallel()

	fwd, drain := newForwarder(t)

	lis := bufconn.Listen(1 << 16)
	srvOpts := append(ServerOptions(fwd, WithOTel(false)), grpc.ForceServerCodec(loggerpb.Codec{}))
	srv := grpc.NewServer(srvOpts...)
	impl := &tracedLogServer{fwd: fwd, ids: make(chan string, 1)}
	loggerpb.RegisterLoggerServiceServer(srv, impl)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialOpts := append(DialOptions(WithOTel(false)),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	conn, err := grpc.NewClient("passthrough:///bufnet", dialOpts...)
	if err != nil {
		t.Fatalf("NewClient returned %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	ctx := tracelog.ContextWithTraceID(context.Background(), "trace-upstream")
	if _, err := loggerpb.NewLoggerServiceClient(conn).Log(ctx, &loggerpb.LogRequest{Message: "hello"}); err != nil {
		t.Fatalf("Log returned %v", err)
	}
	if got := <-impl.ids; got != "trace-upstream" {
		t.Fatalf("server trace id = %q", got)
	}

	entries := drain()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, entry := range entries {
		if entry.TraceID != "trace-upstream" {
			t.Fatalf("entry %q trace id = %q", entry.Message, entry.TraceID)
		}
	}
	var exit *tracelog.LogEntry
	for i := range entries {
		if entries[i].Context == tracelog.ContextGRPC {
			exit = &entries[i]
		}
	}
	if exit == nil || !strings.HasPrefix(exit.Message, "gRPC LoggerService.Log completed in ") {
		t.Fatalf("no exit record in %+v", entries)
	}
	if _, err := strconv.Atoi(exit.Metadata["duration"]); err != nil {
		t.Fatalf("duration %q is not whole milliseconds", exit.Metadata["duration"])
	}
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeServerStream) Context() context.Context { return f.ctx }
