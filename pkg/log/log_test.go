// Copyright 2018 The gVisor Authors.
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
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/time/rate"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, errors.New("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	expected := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if diff := cmp.Diff(expected, tw.lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestWriterAppendsNewline(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("no newline")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}
	if diff := cmp.Diff([]string{"no newline", "\n"}, tw.lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestBasicLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: &buf}}

	l.Debugf("debug %d", 1)
	l.Infof("info %d", 2)
	l.Warningf("warning %d", 3)
	if got, want := buf.String(), "info 2\nwarning 3\n"; got != want {
		t.Errorf("got output %q, want %q", got, want)
	}

	buf.Reset()
	l.SetLevel(Warning)
	l.Infof("info")
	if buf.Len() != 0 {
		t.Errorf("got output %q at Warning level, want none", buf.String())
	}
	if l.IsLogging(Info) {
		t.Error("IsLogging(Info) = true at Warning level")
	}
}

func TestGoogleEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := GoogleEmitter{&Writer{Next: &buf}}
	ts := time.Date(2020, time.March, 4, 5, 6, 7, 8000, time.UTC)
	e.Emit(0, Warning, ts, "hello %s", "world")

	re := regexp.MustCompile(`^W0304 05:06:07\.000008 +\d+ log_test\.go:\d+\] hello world\n$`)
	if got := buf.String(); !re.MatchString(got) {
		t.Errorf("got %q, want match for %s", got, re)
	}
}

func TestJSONEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := JSONEmitter{&Writer{Next: &buf}}
	e.Emit(0, Info, time.Unix(0, 0).UTC(), "n=%d", 7)

	var got jsonLog
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal(%q): %v", buf.String(), err)
	}
	if got.Level != Info {
		t.Errorf("got level %v, want %v", got.Level, Info)
	}
	if got.Msg != "n=7" {
		t.Errorf("got msg %q, want %q", got.Msg, "n=7")
	}
	if !strings.HasPrefix(got.Caller, "log_test.go:") {
		t.Errorf("got caller %q, want prefix %q", got.Caller, "log_test.go:")
	}
	if !strings.Contains(buf.String(), `"level":"info"`) {
		t.Errorf("got %q, want level encoded as \"info\"", buf.String())
	}
}

func TestRateLimitedLogger(t *testing.T) {
	var buf bytes.Buffer
	l := RateLimitedLogger(&BasicLogger{Level: Debug, Emitter: &Writer{Next: &buf}}, time.Hour)
	for i := 0; i < 5; i++ {
		l.Warningf("message %d", i)
	}
	if got, want := buf.String(), "message 0\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !l.IsLogging(Debug) {
		t.Error("IsLogging(Debug) = false, want true")
	}
}

func TestRateLimitedLoggerCountsSuppressed(t *testing.T) {
	var buf bytes.Buffer
	l := RateLimitedLogger(&BasicLogger{Level: Debug, Emitter: &Writer{Next: &buf}}, time.Hour).(*rateLimitedLogger)
	for i := 0; i < 4; i++ {
		l.Warningf("send failed on NIC %d", i)
	}
	l.limit = rate.NewLimiter(rate.Inf, 1)
	l.Infof("send failed on NIC %d", 9)
	l.Debugf("recovered")

	want := "send failed on NIC 0\n" +
		"send failed on NIC 9 (3 similar messages suppressed)\n" +
		"recovered\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLevel(t *testing.T) {
	for s, want := range map[string]Level{"warning": Warning, "WARN": Warning, "info": Info, "Debug": Debug} {
		got, err := ParseLevel(s)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, nil)", s, got, err, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel(verbose) succeeded")
	}
}

func TestNewEmitter(t *testing.T) {
	w := &Writer{Next: &bytes.Buffer{}}
	if e, err := NewEmitter(FormatJSON, w); err != nil {
		t.Errorf("NewEmitter(json): %v", err)
	} else if _, ok := e.(JSONEmitter); !ok {
		t.Errorf("NewEmitter(json) = %T, want JSONEmitter", e)
	}
	if e, err := NewEmitter("", w); err != nil {
		t.Errorf("NewEmitter(\"\"): %v", err)
	} else if _, ok := e.(GoogleEmitter); !ok {
		t.Errorf("NewEmitter(\"\") = %T, want GoogleEmitter", e)
	}
	if _, err := NewEmitter("xml", w); err == nil {
		t.Error("NewEmitter(xml) succeeded")
	}
}

func TestOpenFile(t *testing.T) {
	f, err := OpenFile("")
	if err != nil || f != nil {
		t.Fatalf("OpenFile(\"\") = (%v, %v), want (nil, nil)", f, err)
	}

	path := filepath.Join(t.TempDir(), "sub", "ndp.log")
	f, err = OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile(%q): %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString("x"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if b, err := os.ReadFile(path); err != nil || string(b) != "x" {
		t.Errorf("ReadFile(%q) = (%q, %v), want (\"x\", nil)", path, b, err)
	}
}
