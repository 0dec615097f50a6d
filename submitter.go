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

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/pjscruggs/tracelog/loggerpb"
)

// Submitter delivers a single entry to the logging backend. Submit is called
// from a worker goroutine, never from the goroutine that logged the entry.
type Submitter interface {
	Submit(ctx context.Context, entry LogEntry) error
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(ctx context.Context, entry LogEntry) error

// Submit calls fn(ctx, entry).
func (fn SubmitterFunc) Submit(ctx context.Context, entry LogEntry) error {
	return fn(ctx, entry)
}

type grpcSubmitter struct {
	client   loggerpb.LoggerServiceClient
	callOpts []grpc.CallOption
}

// NewGRPCSubmitter returns a Submitter that calls logger.LoggerService/Log on
// cc. The response body is not inspected; only transport and status errors
// count as failures.
func NewGRPCSubmitter(cc grpc.ClientConnInterface, opts ...grpc.CallOption) Submitter {
	return &grpcSubmitter{
		client:   loggerpb.NewLoggerServiceClient(cc),
		callOpts: opts,
	}
}

// Submit sends entry as a LogRequest.
func (s *grpcSubmitter) Submit(ctx context.Context, entry LogEntry) error {
	_, err := s.client.Log(ctx, entry.Request(), s.callOpts...)
	return err
}

// dialBackend opens a client connection to the logging backend.
func dialBackend(target string, o *options) (*grpc.ClientConn, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent(userAgent()),
	}
	if o.enableOTel {
		dialOpts = append(dialOpts, grpc.WithStatsHandler(otelgrpc.NewClientHandler()))
	}
	dialOpts = append(dialOpts, o.dialOptions...)
	return grpc.NewClient(target, dialOpts...)
}
