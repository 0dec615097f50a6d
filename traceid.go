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
	"crypto/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	traceIDPrefix  = "trace-"
	traceSuffixLen = 9
	base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// TraceIDPattern matches identifiers produced by GenerateTraceID.
var TraceIDPattern = regexp.MustCompile(`^trace-\d+-[0-9a-z]{9}$`)

var (
	randReader = rand.Read
	nowFunc    = time.Now
)

// GenerateTraceID returns a new identifier of the form
// trace-<unix millis>-<9 base36 chars>. The suffix carries about 46 bits of
// randomness per millisecond.
func GenerateTraceID() string {
	var sb strings.Builder
	sb.Grow(len(traceIDPrefix) + 14 + 1 + traceSuffixLen)
	sb.WriteString(traceIDPrefix)
	sb.WriteString(strconv.FormatInt(nowFunc().UnixMilli(), 10))
	sb.WriteByte('-')
	sb.Write(randomSuffix())
	return sb.String()
}

// unbiasedLimit is the largest multiple of 36 that fits in a byte. Bytes at or
// above it are redrawn so every suffix character is equally likely.
const unbiasedLimit = 256 - 256%len(base36Alphabet)

// randomSuffix draws traceSuffixLen uniformly distributed base36 characters.
func randomSuffix() []byte {
	out := make([]byte, 0, traceSuffixLen)
	var raw [16]byte
	for len(out) < traceSuffixLen {
		if _, err := randReader(raw[:]); err != nil {
			return clockSuffix()
		}
		for _, b := range raw {
			if int(b) >= unbiasedLimit {
				continue
			}
			out = append(out, base36Alphabet[int(b)%len(base36Alphabet)])
			if len(out) == traceSuffixLen {
				break
			}
		}
	}
	return out
}

// clockSuffix derives a suffix from the nanosecond clock. crypto/rand does not
// fail on supported platforms; this keeps ids unique per nanosecond if it does.
func clockSuffix() []byte {
	digits := strconv.FormatUint(uint64(nowFunc().UnixNano()), len(base36Alphabet))
	if len(digits) < traceSuffixLen {
		digits = strings.Repeat("0", traceSuffixLen-len(digits)) + digits
	}
	return []byte(digits[len(digits)-traceSuffixLen:])
}

type traceIDKey struct{}

// ContextWithTraceID returns a child context carrying id. An empty id leaves
// ctx unchanged.
func ContextWithTraceID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey{}, id)
}

// TraceIDFromContext returns the trace id stored by ContextWithTraceID.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(traceIDKey{}).(string)
	return id, ok && id != ""
}
