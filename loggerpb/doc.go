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

// Package loggerpb implements the wire contract of the remote logging backend
// described in logger.proto: the LogRequest and LogResponse messages, a gRPC
// codec that encodes them, and client and server bindings for
// logger.LoggerService.
//
// Messages are encoded with protowire rather than generated code, so the
// package carries no descriptor registration. The encoding is byte-compatible
// with protoc-generated peers.
package loggerpb
