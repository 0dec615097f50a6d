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
	"errors"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

const maxStackFrames = 64

var stackPCPool = sync.Pool{
	New: func() any {
		buf := make([]uintptr, maxStackFrames)
		return &buf
	},
}

// stackTracer is implemented by errors that record where they were created.
type stackTracer interface {
	StackTrace() []uintptr
}

// extractAndFormatOriginStack formats the program counters of the first error
// in err's chain implementing stackTracer, or returns "".
func extractAndFormatOriginStack(err error) string {
	var st stackTracer
	if !errors.As(err, &st) {
		return ""
	}
	pcs := st.StackTrace()
	if len(pcs) > maxStackFrames {
		pcs = pcs[:maxStackFrames]
	}
	return formatPCsToStackString(pcs)
}

// formatPCsToStackString formats program counters in the layout of
// runtime/debug.Stack, skipping runtime exit and unnamed frames.
func formatPCsToStackString(pcs []uintptr) string {
	if len(pcs) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.Grow(len(pcs) * 64)
	sb.WriteString(currentGoroutineHeader())
	sb.WriteByte('\n')

	var num [20]byte
	frames := runtime.CallersFrames(pcs)
	for written := 0; written < maxStackFrames; {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}
		if frame.Function != "" && frame.Function != "runtime.goexit" {
			sb.WriteString(frame.Function)
			sb.WriteString("\n\t")
			sb.WriteString(frame.File)
			sb.WriteByte(':')
			sb.Write(strconv.AppendInt(num[:0], int64(frame.Line), 10))
			if frame.Entry != 0 && frame.PC > frame.Entry {
				sb.WriteString(" +0x")
				sb.Write(strconv.AppendUint(num[:0], uint64(frame.PC-frame.Entry), 16))
			}
			sb.WriteByte('\n')
			written++
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// trimStackPCs removes leading frames that match skipFn while preserving the remainder.
func trimStackPCs(pcs []uintptr, skipFn func(string) bool) []uintptr {
	if len(pcs) == 0 {
		return pcs
	}

	frames := runtime.CallersFrames(pcs)
	skip := 0
	for {
		frame, more := frames.Next()
		if skipFn == nil || !skipFn(frame.Function) {
			break
		}
		skip++
		if !more {
			return nil
		}
	}
	if skip == 0 {
		return pcs
	}
	return pcs[skip:]
}

// SkipInternalStackFrame reports whether a stack frame belongs to tracelog,
// its subpackages, or runtime internals.
func SkipInternalStackFrame(funcName string) bool {
	return strings.HasPrefix(funcName, "runtime.") ||
		strings.HasPrefix(funcName, "github.com/pjscruggs/tracelog/") ||
		strings.HasPrefix(funcName, "github.com/pjscruggs/tracelog.")
}

// CaptureStack captures the current goroutine stack, trimming leading frames
// matched by skipFn (SkipInternalStackFrame when nil). It returns the
// formatted trace and the first remaining frame.
func CaptureStack(skipFn func(string) bool) (string, runtime.Frame) {
	bufPtr := stackPCPool.Get().(*[]uintptr)
	defer stackPCPool.Put(bufPtr)

	pcs := (*bufPtr)[:runtime.Callers(0, *bufPtr)]
	if len(pcs) == 0 {
		return "", runtime.Frame{}
	}

	if skipFn == nil {
		skipFn = SkipInternalStackFrame
	}
	trimmed := trimStackPCs(pcs, skipFn)
	if len(trimmed) == 0 {
		trimmed = pcs
	}

	top, _ := runtime.CallersFrames(trimmed).Next()
	return formatPCsToStackString(trimmed), top
}

// currentGoroutineHeader returns the first line runtime.Stack would print,
// e.g. "goroutine 7 [running]:".
func currentGoroutineHeader() string {
	var buf [128]byte
	header := string(buf[:runtime.Stack(buf[:], false)])
	if idx := strings.IndexByte(header, '\n'); idx >= 0 {
		header = header[:idx]
	}
	if header = strings.TrimSpace(header); header == "" {
		return "goroutine 0 [running]:"
	}
	return header
}

// ErrorTrace returns the diagnostic stack text reported alongside a failure.
// Errors that carry their own program counters (StackTrace() []uintptr,
// anywhere in the wrap chain) are formatted from those; otherwise the
// caller's goroutine stack is captured. A nil error yields "".
func ErrorTrace(err error) string {
	if err == nil {
		return ""
	}
	if origin := extractAndFormatOriginStack(err); origin != "" {
		return origin
	}
	stack, _ := CaptureStack(nil)
	return stack
}
