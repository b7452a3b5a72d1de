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

// Package faketime provides a fake clock that implements tcpip.Clock interface.
package faketime

import (
	"container/heap"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
)

// ManualClock implements tcpip.Clock and only advances manually with Advance
// method.
//
// Timer callbacks run synchronously on the goroutine calling Advance, in the
// order of their expiry; timers expiring at the same instant run in the order
// they were scheduled.
type ManualClock struct {
	clock clockwork.FakeClock

	// mu protects the fields below.
	mu sync.Mutex

	// timers is a min-heap of pending timers. A heap is used for quick
	// retrieval of the next upcoming scheduled work.
	timers timerHeap

	// seq orders timers scheduled for the same instant.
	seq uint64
}

// NewManualClock creates a new ManualClock instance.
func NewManualClock() *ManualClock {
	return &ManualClock{
		clock: clockwork.NewFakeClock(),
	}
}

var _ tcpip.Clock = (*ManualClock)(nil)

// NowNanoseconds implements tcpip.Clock.NowNanoseconds.
func (mc *ManualClock) NowNanoseconds() int64 {
	return mc.clock.Now().UnixNano()
}

// NowMonotonic implements tcpip.Clock.NowMonotonic.
func (mc *ManualClock) NowMonotonic() int64 {
	return mc.NowNanoseconds()
}

// AfterFunc implements tcpip.Clock.AfterFunc.
func (mc *ManualClock) AfterFunc(d time.Duration, f func()) tcpip.Timer {
	t := &manualTimer{clock: mc, f: f, index: -1}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.scheduleLocked(t, d)
	return t
}

// Pending returns the number of timers that have not yet fired or been
// stopped.
func (mc *ManualClock) Pending() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.timers.Len()
}

// +checklocks:mc.mu
func (mc *ManualClock) scheduleLocked(t *manualTimer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.until = mc.clock.Now().Add(d)
	t.seq = mc.seq
	mc.seq++
	heap.Push(&mc.timers, t)
}

// Advance executes all work that have been scheduled to execute within d from
// the current time, including work scheduled by that work. Blocks until all
// work has completed execution.
func (mc *ManualClock) Advance(d time.Duration) {
	until := mc.clock.Now().Add(d)
	for {
		mc.mu.Lock()
		if mc.timers.Len() == 0 || mc.timers[0].until.After(until) {
			mc.mu.Unlock()
			break
		}
		t := heap.Pop(&mc.timers).(*manualTimer)
		if diff := t.until.Sub(mc.clock.Now()); diff > 0 {
			mc.clock.Advance(diff)
		}
		mc.mu.Unlock()

		t.f()
	}
	if now := mc.clock.Now(); until.After(now) {
		mc.clock.Advance(until.Sub(now))
	}
}

type manualTimer struct {
	clock *ManualClock
	f     func()

	// The fields below are protected by clock.mu.
	until time.Time
	seq   uint64
	// index is the position in clock.timers, or -1 when not pending.
	index int
}

var _ tcpip.Timer = (*manualTimer)(nil)

// Reset implements tcpip.Timer.Reset.
func (t *manualTimer) Reset(d time.Duration) {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.index >= 0 {
		heap.Remove(&t.clock.timers, t.index)
	}
	t.clock.scheduleLocked(t, d)
}

// Stop implements tcpip.Timer.Stop.
func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&t.clock.timers, t.index)
	return true
}

type timerHeap []*manualTimer

var _ heap.Interface = (*timerHeap)(nil)

func (h timerHeap) Len() int {
	return len(h)
}

func (h timerHeap) Less(i, j int) bool {
	if h[i].until.Equal(h[j].until) {
		return h[i].seq < h[j].seq
	}
	return h[i].until.Before(h[j].until)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*manualTimer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	last := old[len(old)-1]
	old[len(old)-1] = nil
	last.index = -1
	*h = old[:len(old)-1]
	return last
}
