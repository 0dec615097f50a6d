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

package loggerpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// ServiceName is the fully qualified name of the logging backend service.
	ServiceName = "logger.LoggerService"
	// LogFullMethodName is the full method name of LoggerService.Log.
	LogFullMethodName = "/logger.LoggerService/Log"
)

// LoggerServiceClient is the client API for logger.LoggerService.
type LoggerServiceClient interface {
	Log(ctx context.Context, in *LogRequest, opts ...grpc.CallOption) (*LogResponse, error)
}

type loggerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLoggerServiceClient returns a client that issues calls on cc.
func NewLoggerServiceClient(cc grpc.ClientConnInterface) LoggerServiceClient {
	return &loggerServiceClient{cc: cc}
}

// Log submits a single entry.
func (c *loggerServiceClient) Log(ctx context.Context, in *LogRequest, opts ...grpc.CallOption) (*LogResponse, error) {
	out := new(LogResponse)
	callOpts := append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	if err := c.cc.Invoke(ctx, LogFullMethodName, in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}

// LoggerServiceServer is the server API for logger.LoggerService.
type LoggerServiceServer interface {
	Log(context.Context, *LogRequest) (*LogResponse, error)
}

// UnimplementedLoggerServiceServer can be embedded for forward compatibility.
type UnimplementedLoggerServiceServer struct{}

// Log returns codes.Unimplemented.
func (UnimplementedLoggerServiceServer) Log(context.Context, *LogRequest) (*LogResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Log not implemented")
}

// RegisterLoggerServiceServer registers srv on s. The server must be created
// with grpc.ForceServerCodec(Codec{}) so requests decode through this
// package's encoding.
func RegisterLoggerServiceServer(s grpc.ServiceRegistrar, srv LoggerServiceServer) {
	s.RegisterService(&LoggerServiceDesc, srv)
}

func logHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(LogRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LoggerServiceServer).Log(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LogFullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LoggerServiceServer).Log(ctx, req.(*LogRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// LoggerServiceDesc describes logger.LoggerService for grpc.Server.
var LoggerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LoggerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Log",
			Handler:    logHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "logger.proto",
}
