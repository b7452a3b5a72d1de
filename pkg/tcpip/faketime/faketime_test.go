// Copyright 2020 The gVisor Authors.
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

package faketime_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/faketime"
)

func TestManualClockAdvance(t *testing.T) {
	const timeout = time.Millisecond
	clock := faketime.NewManualClock()
	start := clock.NowMonotonic()

	var fired []int
	clock.AfterFunc(2*timeout, func() { fired = append(fired, 2) })
	clock.AfterFunc(timeout, func() { fired = append(fired, 1) })
	clock.AfterFunc(timeout, func() { fired = append(fired, 11) })
	clock.AfterFunc(3*timeout, func() { fired = append(fired, 3) })

	clock.Advance(timeout - 1)
	if len(fired) != 0 {
		t.Fatalf("got fired = %v before any timer expired", fired)
	}

	clock.Advance(timeout)
	if diff := cmp.Diff([]int{1, 11}, fired); diff != "" {
		t.Errorf("fired mismatch (-want +got):\n%s", diff)
	}
	if got, want := clock.NowMonotonic()-start, int64(2*timeout-1); got != want {
		t.Errorf("got elapsed %d, want %d", got, want)
	}

	clock.Advance(2 * timeout)
	if diff := cmp.Diff([]int{1, 11, 2, 3}, fired); diff != "" {
		t.Errorf("fired mismatch (-want +got):\n%s", diff)
	}
	if got := clock.Pending(); got != 0 {
		t.Errorf("got Pending() = %d, want 0", got)
	}
}

func TestManualClockCallbackSchedules(t *testing.T) {
	clock := faketime.NewManualClock()
	var at []int64
	start := clock.NowMonotonic()
	var f func()
	f = func() {
		at = append(at, clock.NowMonotonic()-start)
		if len(at) < 3 {
			clock.AfterFunc(time.Second, f)
		}
	}
	clock.AfterFunc(time.Second, f)

	clock.Advance(10 * time.Second)
	want := []int64{int64(time.Second), int64(2 * time.Second), int64(3 * time.Second)}
	if diff := cmp.Diff(want, at); diff != "" {
		t.Errorf("callback times mismatch (-want +got):\n%s", diff)
	}
}

func TestManualTimerStop(t *testing.T) {
	clock := faketime.NewManualClock()
	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("got Stop() = false for a pending timer")
	}
	if timer.Stop() {
		t.Error("got Stop() = true for a stopped timer")
	}
	clock.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestManualTimerReset(t *testing.T) {
	clock := faketime.NewManualClock()
	count := 0
	timer := clock.AfterFunc(time.Second, func() { count++ })

	clock.Advance(500 * time.Millisecond)
	timer.Reset(time.Second)
	clock.Advance(600 * time.Millisecond)
	if count != 0 {
		t.Fatalf("got count = %d after reset, want 0", count)
	}
	clock.Advance(400 * time.Millisecond)
	if count != 1 {
		t.Fatalf("got count = %d, want 1", count)
	}
	if timer.Stop() {
		t.Error("got Stop() = true for a fired timer")
	}

	// A fired timer may be rearmed.
	timer.Reset(time.Second)
	clock.Advance(time.Second)
	if count != 2 {
		t.Errorf("got count = %d, want 2", count)
	}
}
