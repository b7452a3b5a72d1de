// Copyright 2019 The gVisor Authors.
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

package ipv6

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/vsrinivas/fuchsia-sub084/pkg/log"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/header"
)

const (
	nicID = 1

	linkAddr1 = tcpip.LinkAddress("\x02\x02\x03\x04\x05\x06")

	llAddr1 = tcpip.Address("\xfe\x80\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x01")
)

type sentRS struct {
	Src  tcpip.Address
	Body []byte
}

// fakeRSContext is an RSContext whose timer is fired by hand.
type fakeRSContext struct {
	t *testing.T

	state    RouterSolicitationState
	configs  NDPConfigurations
	linkAddr tcpip.LinkAddress
	src      tcpip.Address
	hasSrc   bool

	armed     bool
	scheduled []time.Duration
	cancelled int

	delay    time.Duration
	randMaxs []time.Duration

	sendErr error
	sent    []sentRS

	stats Stats
}

func newFakeRSContext(t *testing.T, configs NDPConfigurations) *fakeRSContext {
	return &fakeRSContext{t: t, configs: configs}
}

func (c *fakeRSContext) RouterSolicitationState(id tcpip.NICID) *RouterSolicitationState {
	if id != nicID {
		return nil
	}
	return &c.state
}

func (c *fakeRSContext) NDPConfigurations(tcpip.NICID) NDPConfigurations {
	return c.configs
}

func (c *fakeRSContext) LinkAddress(tcpip.NICID) tcpip.LinkAddress {
	return c.linkAddr
}

func (c *fakeRSContext) SourceAddress(tcpip.NICID) (tcpip.Address, bool) {
	return c.src, c.hasSrc
}

func (c *fakeRSContext) ScheduleTimer(_ tcpip.NICID, d time.Duration) {
	c.armed = true
	c.scheduled = append(c.scheduled, d)
}

func (c *fakeRSContext) CancelTimer(tcpip.NICID) bool {
	wasArmed := c.armed
	c.armed = false
	if wasArmed {
		c.cancelled++
	}
	return wasArmed
}

func (c *fakeRSContext) UniformDuration(max time.Duration) time.Duration {
	c.randMaxs = append(c.randMaxs, max)
	if c.delay >= max {
		return 0
	}
	return c.delay
}

func (c *fakeRSContext) SendRouterSolicitation(_ tcpip.NICID, src tcpip.Address, bodyLen int, fill func(header.NDPRouterSolicit)) error {
	body := make([]byte, bodyLen)
	for i := range body {
		body[i] = 0xff
	}
	fill(header.NDPRouterSolicit(body))
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, sentRS{Src: src, Body: body})
	return nil
}

func (c *fakeRSContext) RSStats() *Stats {
	return &c.stats
}

func (c *fakeRSContext) RSLogger() log.Logger {
	return &log.BasicLogger{Level: log.Warning, Emitter: &log.TestEmitter{TestLogger: c.t}}
}

// fire delivers the armed timer, as a TimerContext implementation would.
func (c *fakeRSContext) fire() {
	c.t.Helper()
	if !c.armed {
		c.t.Fatal("fire called with no timer armed")
	}
	c.armed = false
	HandleRSTimer(c, nicID)
}

func TestRouterSolicitationCadence(t *testing.T) {
	c := newFakeRSContext(t, DefaultNDPConfigurations())
	c.delay = 300 * time.Millisecond

	StartSolicitingRouters(c, nicID)
	if diff := cmp.Diff([]time.Duration{MaxRtrSolicitationDelay}, c.randMaxs); diff != "" {
		t.Errorf("random delay bounds mismatch (-want +got):\n%s", diff)
	}
	if remaining, ok := c.state.Remaining(); !ok || remaining != MaxRtrSolicitations {
		t.Fatalf("got Remaining() = (%d, %t), want (%d, true)", remaining, ok, MaxRtrSolicitations)
	}

	for i := 0; i < MaxRtrSolicitations; i++ {
		c.fire()
		if got := len(c.sent); got != i+1 {
			t.Fatalf("got %d solicitations after %d timers, want %d", got, i+1, i+1)
		}
	}

	want := []time.Duration{300 * time.Millisecond, RtrSolicitationInterval, RtrSolicitationInterval}
	if diff := cmp.Diff(want, c.scheduled); diff != "" {
		t.Errorf("scheduled timers mismatch (-want +got):\n%s", diff)
	}
	if c.armed {
		t.Error("timer still armed after the last solicitation")
	}
	if _, ok := c.state.Remaining(); ok {
		t.Error("state still running after the last solicitation")
	}
	if got := c.stats.RouterSolicitSent.Value(); got != MaxRtrSolicitations {
		t.Errorf("got RouterSolicitSent = %d, want %d", got, MaxRtrSolicitations)
	}

	// A stale timer does nothing.
	HandleRSTimer(c, nicID)
	if got := len(c.sent); got != MaxRtrSolicitations {
		t.Errorf("got %d solicitations after a stale timer, want %d", got, MaxRtrSolicitations)
	}
}

func TestRouterSolicitationShortenedConfig(t *testing.T) {
	c := newFakeRSContext(t, NDPConfigurations{
		MaxRtrSolicitations:     2,
		RtrSolicitationInterval: time.Millisecond,
		MaxRtrSolicitationDelay: 0,
	})
	StartSolicitingRouters(c, nicID)
	c.fire()
	c.fire()
	if diff := cmp.Diff([]time.Duration{0, time.Millisecond}, c.scheduled); diff != "" {
		t.Errorf("scheduled timers mismatch (-want +got):\n%s", diff)
	}
	if len(c.sent) != 2 || c.armed {
		t.Errorf("got %d sent, armed = %t; want 2 sent, not armed", len(c.sent), c.armed)
	}
}

func TestRouterSolicitationInvalidConfigUsesDefaults(t *testing.T) {
	c := newFakeRSContext(t, NDPConfigurations{
		MaxRtrSolicitations:     2,
		RtrSolicitationInterval: 0,
		MaxRtrSolicitationDelay: -time.Second,
	})
	StartSolicitingRouters(c, nicID)
	c.fire()
	if diff := cmp.Diff([]time.Duration{MaxRtrSolicitationDelay}, c.randMaxs); diff != "" {
		t.Errorf("random delay bounds mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]time.Duration{0, RtrSolicitationInterval}, c.scheduled); diff != "" {
		t.Errorf("scheduled timers mismatch (-want +got):\n%s", diff)
	}
}

func TestRouterSolicitationOptions(t *testing.T) {
	tests := []struct {
		name     string
		linkAddr tcpip.LinkAddress
		src      tcpip.Address
		hasSrc   bool
		wantSrc  tcpip.Address
		wantBody []byte
	}{
		{
			name:     "No source address",
			linkAddr: linkAddr1,
			wantSrc:  header.IPv6Any,
			wantBody: []byte{0, 0, 0, 0},
		},
		{
			name:     "Unspecified source address",
			linkAddr: linkAddr1,
			src:      header.IPv6Any,
			hasSrc:   true,
			wantSrc:  header.IPv6Any,
			wantBody: []byte{0, 0, 0, 0},
		},
		{
			name:     "Source address without link address",
			src:      llAddr1,
			hasSrc:   true,
			wantSrc:  llAddr1,
			wantBody: []byte{0, 0, 0, 0},
		},
		{
			name:     "Ethernet link address",
			linkAddr: linkAddr1,
			src:      llAddr1,
			hasSrc:   true,
			wantSrc:  llAddr1,
			wantBody: []byte{
				0, 0, 0, 0,
				1, 1, 2, 2, 3, 4, 5, 6,
			},
		},
		{
			name:     "Short link address padded",
			linkAddr: "\x0a\x0b",
			src:      llAddr1,
			hasSrc:   true,
			wantSrc:  llAddr1,
			wantBody: []byte{
				0, 0, 0, 0,
				1, 1, 0x0a, 0x0b, 0, 0, 0, 0,
			},
		},
		{
			name:     "Long link address not truncated",
			linkAddr: "\x01\x02\x03\x04\x05\x06\x07\x08",
			src:      llAddr1,
			hasSrc:   true,
			wantSrc:  llAddr1,
			wantBody: []byte{
				0, 0, 0, 0,
				1, 2, 1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0, 0, 0,
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := newFakeRSContext(t, NDPConfigurations{MaxRtrSolicitations: 1, RtrSolicitationInterval: time.Second})
			c.linkAddr = test.linkAddr
			c.src = test.src
			c.hasSrc = test.hasSrc

			StartSolicitingRouters(c, nicID)
			c.fire()

			want := []sentRS{{Src: test.wantSrc, Body: test.wantBody}}
			if diff := cmp.Diff(want, c.sent); diff != "" {
				t.Errorf("sent solicitations mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRouterSolicitationDisabled(t *testing.T) {
	c := newFakeRSContext(t, NDPConfigurations{MaxRtrSolicitations: 0})
	StartSolicitingRouters(c, nicID)
	if c.armed || len(c.scheduled) != 0 {
		t.Errorf("got scheduled = %v with soliciting disabled", c.scheduled)
	}
	HandleRSTimer(c, nicID)
	if len(c.sent) != 0 {
		t.Errorf("got %d solicitations with soliciting disabled", len(c.sent))
	}
}

func TestRouterSolicitationUnknownNIC(t *testing.T) {
	c := newFakeRSContext(t, DefaultNDPConfigurations())
	StartSolicitingRouters(c, nicID+1)
	HandleRSTimer(c, nicID+1)
	StopSolicitingRouters(c, nicID+1)
	if len(c.scheduled) != 0 || len(c.sent) != 0 {
		t.Errorf("got scheduled = %v, sent = %v for an unknown NIC", c.scheduled, c.sent)
	}
}

func TestRouterSolicitationStartWhileRunning(t *testing.T) {
	c := newFakeRSContext(t, DefaultNDPConfigurations())
	StartSolicitingRouters(c, nicID)
	c.fire()
	StartSolicitingRouters(c, nicID)
	if got, want := len(c.scheduled), 2; got != want {
		t.Errorf("got %d timers scheduled, want %d", got, want)
	}
	if remaining, _ := c.state.Remaining(); remaining != MaxRtrSolicitations-1 {
		t.Errorf("got remaining = %d, want %d", remaining, MaxRtrSolicitations-1)
	}
}

func TestStopSolicitingRouters(t *testing.T) {
	c := newFakeRSContext(t, DefaultNDPConfigurations())

	// Stopping before starting is a no-op.
	StopSolicitingRouters(c, nicID)
	StopSolicitingRouters(c, nicID)
	if c.armed || c.cancelled != 0 {
		t.Fatalf("got armed = %t, cancelled = %d after stopping an idle state machine", c.armed, c.cancelled)
	}

	StartSolicitingRouters(c, nicID)
	c.fire()
	StopSolicitingRouters(c, nicID)
	StopSolicitingRouters(c, nicID)
	if c.armed {
		t.Error("timer armed after stop")
	}
	if c.cancelled != 1 {
		t.Errorf("got cancelled = %d, want 1", c.cancelled)
	}
	if _, ok := c.state.Remaining(); ok {
		t.Error("state running after stop")
	}

	// A timer that was already in flight sends nothing.
	HandleRSTimer(c, nicID)
	if got := len(c.sent); got != 1 {
		t.Errorf("got %d solicitations, want 1", got)
	}

	// Soliciting can start again with a full count.
	StartSolicitingRouters(c, nicID)
	if remaining, ok := c.state.Remaining(); !ok || remaining != MaxRtrSolicitations {
		t.Errorf("got Remaining() = (%d, %t) after restart, want (%d, true)", remaining, ok, MaxRtrSolicitations)
	}
}

func TestRouterSolicitationSendFailure(t *testing.T) {
	c := newFakeRSContext(t, DefaultNDPConfigurations())
	c.sendErr = errors.New("link down")

	StartSolicitingRouters(c, nicID)
	for i := 0; i < MaxRtrSolicitations; i++ {
		c.fire()
	}
	if c.armed {
		t.Error("timer armed after all attempts")
	}
	if got := c.stats.RouterSolicitDropped.Value(); got != MaxRtrSolicitations {
		t.Errorf("got RouterSolicitDropped = %d, want %d", got, MaxRtrSolicitations)
	}
	if got := c.stats.RouterSolicitSent.Value(); got != 0 {
		t.Errorf("got RouterSolicitSent = %d, want 0", got)
	}
	if got, want := len(c.scheduled), MaxRtrSolicitations; got != want {
		t.Errorf("got %d timers scheduled, want %d", got, want)
	}
}
