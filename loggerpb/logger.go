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
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

// Field numbers of logger.LogRequest.
const (
	fieldLevel     protowire.Number = 1
	fieldMessage   protowire.Number = 2
	fieldService   protowire.Number = 3
	fieldContext   protowire.Number = 4
	fieldTraceID   protowire.Number = 5
	fieldTimestamp protowire.Number = 6
	fieldMetadata  protowire.Number = 7

	fieldMapKey   protowire.Number = 1
	fieldMapValue protowire.Number = 2

	fieldSuccess protowire.Number = 1
)

// LogRequest is a single log submission to logger.LoggerService.
type LogRequest struct {
	Level     string
	Message   string
	Service   string
	Context   string
	TraceId   string
	Timestamp string
	Metadata  map[string]string
}

// GetTraceId returns the trace id carried by the request.
func (x *LogRequest) GetTraceId() string {
	if x == nil {
		return ""
	}
	return x.TraceId
}

// LogResponse acknowledges a LogRequest.
type LogResponse struct {
	Success bool
}

// MarshalBinary encodes the request in protobuf wire format. Map entries are
// written in key order so the output is deterministic.
func (x *LogRequest) MarshalBinary() ([]byte, error) {
	if x == nil {
		return nil, nil
	}
	var b []byte
	b = appendString(b, fieldLevel, x.Level)
	b = appendString(b, fieldMessage, x.Message)
	b = appendString(b, fieldService, x.Service)
	b = appendString(b, fieldContext, x.Context)
	b = appendString(b, fieldTraceID, x.TraceId)
	b = appendString(b, fieldTimestamp, x.Timestamp)

	keys := make([]string, 0, len(x.Metadata))
	for k := range x.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var entry []byte
		entry = appendString(entry, fieldMapKey, k)
		entry = appendString(entry, fieldMapValue, x.Metadata[k])
		b = protowire.AppendTag(b, fieldMetadata, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b, nil
}

// UnmarshalBinary decodes a protobuf-encoded request, skipping unknown fields.
func (x *LogRequest) UnmarshalBinary(b []byte) error {
	*x = LogRequest{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if typ != protowire.BytesType || num < fieldLevel || num > fieldMetadata {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case fieldLevel:
			x.Level = string(v)
		case fieldMessage:
			x.Message = string(v)
		case fieldService:
			x.Service = string(v)
		case fieldContext:
			x.Context = string(v)
		case fieldTraceID:
			x.TraceId = string(v)
		case fieldTimestamp:
			x.Timestamp = string(v)
		case fieldMetadata:
			k, val, err := consumeMapEntry(v)
			if err != nil {
				return fmt.Errorf("metadata entry: %w", err)
			}
			if x.Metadata == nil {
				x.Metadata = make(map[string]string)
			}
			x.Metadata[k] = val
		}
	}
	return nil
}

// MarshalBinary encodes the response in protobuf wire format.
func (x *LogResponse) MarshalBinary() ([]byte, error) {
	if x == nil || !x.Success {
		return nil, nil
	}
	b := protowire.AppendTag(nil, fieldSuccess, protowire.VarintType)
	return protowire.AppendVarint(b, 1), nil
}

// UnmarshalBinary decodes a protobuf-encoded response, skipping unknown fields.
func (x *LogResponse) UnmarshalBinary(b []byte) error {
	*x = LogResponse{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if num == fieldSuccess && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			x.Success = v != 0
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	// proto3 omits default values.
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func consumeMapEntry(b []byte) (string, string, error) {
	var key, value string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", "", protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType || (num != fieldMapKey && num != fieldMapValue) {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", "", protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeString(b)
		if n < 0 {
			return "", "", protowire.ParseError(n)
		}
		b = b[n:]
		if num == fieldMapKey {
			key = v
		} else {
			value = v
		}
	}
	return key, value, nil
}

// Codec is a gRPC codec that encodes LogRequest and LogResponse by hand and
// defers to the protobuf runtime for any other message. It registers under
// the "proto" name so peers see a regular application/grpc+proto call.
type Codec struct{}

type binaryMessage interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary([]byte) error
}

// Name reports the content-subtype of the codec.
func (Codec) Name() string { return "proto" }

// Marshal encodes v.
func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case binaryMessage:
		return m.MarshalBinary()
	case proto.Message:
		return proto.Marshal(m)
	default:
		return nil, fmt.Errorf("loggerpb: cannot marshal %T", v)
	}
}

// Unmarshal decodes data into v.
func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case binaryMessage:
		return m.UnmarshalBinary(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	default:
		return fmt.Errorf("loggerpb: cannot unmarshal into %T", v)
	}
}
