// Copyright 2018 Google LLC
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

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// GoogleEmitter is a wrapper that emits logs in a format compatible with
// package github.com/golang/glog.
type GoogleEmitter struct {
	// Emitter is the underlying emitter.
	Emitter
}

// pid fills the threadid column. glog pads it to 7 columns.
var pid = fmt.Sprintf("%7d", os.Getpid())

// glogTimeLayout is the mmdd hh:mm:ss.uuuuuu part of the header.
const glogTimeLayout = "0102 15:04:05.000000"

// Emit emits the message, google-style.
//
// Log lines have this form:
//
//	Lmmdd hh:mm:ss.uuuuuu threadid file:line] msg...
//
// where L is the level (D, I or W) and threadid is the process ID.
func (g GoogleEmitter) Emit(depth int, level Level, timestamp time.Time, format string, args ...any) {
	caller := "???:0"
	if _, file, line, ok := runtime.Caller(depth + 1); ok {
		caller = filepath.Base(file) + ":" + strconv.Itoa(line)
	}

	b := make([]byte, 0, len(glogTimeLayout)+len(pid)+len(caller)+len(format)+8)
	switch level {
	case Debug:
		b = append(b, 'D')
	case Info:
		b = append(b, 'I')
	default:
		b = append(b, 'W')
	}
	b = timestamp.AppendFormat(b, glogTimeLayout)
	b = append(b, ' ')
	b = append(b, pid...)
	b = append(b, ' ')
	b = append(b, caller...)
	b = append(b, "] "...)
	b = append(b, format...)
	b = append(b, '\n')

	// The header becomes part of the format the underlying emitter expands.
	g.Emitter.Emit(depth, level, timestamp, string(b), args...)
}
