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

package header_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/header"
)

const (
	groupAddr  = tcpip.Address("\xff\x02\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x01\x00\x03")
	globalAddr = tcpip.Address("\x20\x01\x0d\xb8\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x01")
)

func mustMulticast(t *testing.T, addr tcpip.Address) header.MulticastAddress {
	t.Helper()
	g, ok := header.NewMulticastAddress(addr)
	if !ok {
		t.Fatalf("NewMulticastAddress(%s) failed", addr)
	}
	return g
}

func TestMLDQueryRoundTrip(t *testing.T) {
	delay, err := header.NewMLDResponseDelay(10 * time.Second)
	if err != nil {
		t.Fatalf("NewMLDResponseDelay(10s): %s", err)
	}

	for _, group := range []tcpip.Address{groupAddr, header.IPv6Any} {
		t.Run(group.String(), func(t *testing.T) {
			b := header.MLDQueryBuilder{Delay: delay, Group: group}
			icmp := header.ICMPv6(make([]byte, b.Length()))
			b.Serialize(icmp)

			if got := icmp.Type(); got != header.ICMPv6MulticastListenerQuery {
				t.Errorf("got Type() = %s, want = %s", got, header.ICMPv6MulticastListenerQuery)
			}
			if got := icmp.Code(); got != 0 {
				t.Errorf("got Code() = %d, want = 0", got)
			}

			q, err := header.ParseMLDQuery(icmp.MessageBody())
			if err != nil {
				t.Fatalf("ParseMLDQuery(_): %s", err)
			}
			if got := q.MaxResponseDelay(); got != delay {
				t.Errorf("got MaxResponseDelay() = %d, want = %d", got, delay)
			}
			if got := q.MaxResponseDelay().Duration(); got != 10*time.Second {
				t.Errorf("got MaxResponseDelay().Duration() = %s, want = 10s", got)
			}
			if got := q.GroupAddress(); got != group {
				t.Errorf("got GroupAddress() = %s, want = %s", got, group)
			}
		})
	}
}

func TestMLDReportAndDoneRoundTrip(t *testing.T) {
	group := mustMulticast(t, groupAddr)

	t.Run("Report", func(t *testing.T) {
		b := header.MLDReportBuilder{Group: group}
		icmp := header.ICMPv6(make([]byte, b.Length()))
		b.Serialize(icmp)
		if got := icmp.Type(); got != header.ICMPv6MulticastListenerReport {
			t.Errorf("got Type() = %s, want = %s", got, header.ICMPv6MulticastListenerReport)
		}
		r, err := header.ParseMLDReport(icmp.MessageBody())
		if err != nil {
			t.Fatalf("ParseMLDReport(_): %s", err)
		}
		if got := r.GroupAddress(); got != group {
			t.Errorf("got GroupAddress() = %s, want = %s", got, group)
		}
		if got := r.Body().MaximumResponseCode(); got != 0 {
			t.Errorf("got MaximumResponseCode() = %d, want = 0", got)
		}
	})

	t.Run("Done", func(t *testing.T) {
		b := header.MLDDoneBuilder{Group: group}
		icmp := header.ICMPv6(make([]byte, b.Length()))
		b.Serialize(icmp)
		if got := icmp.Type(); got != header.ICMPv6MulticastListenerDone {
			t.Errorf("got Type() = %s, want = %s", got, header.ICMPv6MulticastListenerDone)
		}
		d, err := header.ParseMLDDone(icmp.MessageBody())
		if err != nil {
			t.Fatalf("ParseMLDDone(_): %s", err)
		}
		if got := d.GroupAddress(); got != group {
			t.Errorf("got GroupAddress() = %s, want = %s", got, group)
		}
		if got := d.MaxResponseDelay(); got != (header.MLDUnit{}) {
			t.Errorf("got MaxResponseDelay() = %#v, want = MLDUnit{}", got)
		}
	})
}

func TestMLDSerializeWireFormat(t *testing.T) {
	b := header.MLDQueryBuilder{Delay: 1000, Group: groupAddr}
	icmp := header.ICMPv6(make([]byte, header.MLDMessageSize))
	for i := range icmp {
		icmp[i] = 0xff
	}
	b.Serialize(icmp)

	want := []byte{
		130, 0, 0, 0,
		0x03, 0xe8, 0, 0,
	}
	want = append(want, groupAddr...)
	if diff := cmp.Diff(want, []byte(icmp)); diff != "" {
		t.Errorf("serialized query mismatch (-want +got):\n%s", diff)
	}
}

func TestMLDReservedIgnored(t *testing.T) {
	body := make([]byte, header.MLDMinimumSize)
	binary.BigEndian.PutUint16(body[0:], 500)
	binary.BigEndian.PutUint16(body[2:], 0xbeef)
	copy(body[4:], groupAddr)

	q, err := header.ParseMLDQuery(body)
	if err != nil {
		t.Fatalf("ParseMLDQuery(_): %s", err)
	}
	if got := q.MaxResponseDelay().Duration(); got != 500*time.Millisecond {
		t.Errorf("got MaxResponseDelay() = %s, want = 500ms", got)
	}
	if _, err := header.ParseMLDReport(body); err != nil {
		t.Errorf("ParseMLDReport(_): %s", err)
	}
}

func TestParseMLDErrors(t *testing.T) {
	valid := make([]byte, header.MLDMinimumSize)
	copy(valid[4:], groupAddr)
	unicast := make([]byte, header.MLDMinimumSize)
	copy(unicast[4:], globalAddr)

	tests := []struct {
		name    string
		parse   func([]byte) error
		body    []byte
		wantErr error
	}{
		{
			name:    "Query short",
			parse:   func(b []byte) error { _, err := header.ParseMLDQuery(b); return err },
			body:    valid[:header.MLDMinimumSize-1],
			wantErr: header.ErrMLDSize,
		},
		{
			name:    "Query long",
			parse:   func(b []byte) error { _, err := header.ParseMLDQuery(b); return err },
			body:    append(append([]byte(nil), valid...), 0),
			wantErr: header.ErrMLDSize,
		},
		{
			name:    "Report short",
			parse:   func(b []byte) error { _, err := header.ParseMLDReport(b); return err },
			body:    valid[:4],
			wantErr: header.ErrMLDSize,
		},
		{
			name:    "Report unicast group",
			parse:   func(b []byte) error { _, err := header.ParseMLDReport(b); return err },
			body:    unicast,
			wantErr: header.ErrMLDGroupAddress,
		},
		{
			name:    "Done unicast group",
			parse:   func(b []byte) error { _, err := header.ParseMLDDone(b); return err },
			body:    unicast,
			wantErr: header.ErrMLDGroupAddress,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.parse(test.body)
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("got error %v, want %v", err, test.wantErr)
			}
			if !errors.Is(err, header.ErrMLDFormat) {
				t.Errorf("got error %v, want it to wrap %v", err, header.ErrMLDFormat)
			}
		})
	}

	// A query may name any group, including a unicast one.
	if _, err := header.ParseMLDQuery(unicast); err != nil {
		t.Errorf("ParseMLDQuery(unicast group): %s", err)
	}
}

func TestNewMLDResponseDelay(t *testing.T) {
	tests := []struct {
		d       time.Duration
		want    header.MLDResponseDelay
		wantErr error
	}{
		{d: 0, want: 0},
		{d: 1500 * time.Microsecond, want: 1},
		{d: header.MaxMLDResponseDelay, want: 65535},
		{d: header.MaxMLDResponseDelay + time.Millisecond, wantErr: header.ErrMLDResponseDelayTooLarge},
		{d: -time.Millisecond, wantErr: header.ErrMLDResponseDelayNegative},
	}

	for _, test := range tests {
		t.Run(test.d.String(), func(t *testing.T) {
			got, err := header.NewMLDResponseDelay(test.d)
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("got NewMLDResponseDelay(%s) = (_, %v), want error %v", test.d, err, test.wantErr)
			}
			if got != test.want {
				t.Errorf("got NewMLDResponseDelay(%s) = %d, want = %d", test.d, got, test.want)
			}
		})
	}
}

func TestNewMulticastAddress(t *testing.T) {
	if _, ok := header.NewMulticastAddress(globalAddr); ok {
		t.Errorf("NewMulticastAddress(%s) succeeded for a unicast address", globalAddr)
	}
	if _, ok := header.NewMulticastAddress("\xff\x02"); ok {
		t.Error("NewMulticastAddress succeeded for a 2-byte address")
	}
	g := mustMulticast(t, header.IPv6AllNodesMulticastAddress)
	if got, want := g.String(), "ff02::1"; got != want {
		t.Errorf("got String() = %q, want = %q", got, want)
	}
}

func TestMLDSerializePanicsOnSize(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected Serialize to panic")
		}
	}()
	header.MLDReportBuilder{}.Serialize(make([]byte, header.MLDMessageSize-1))
}

func TestMLDSerializePanicsOnGroup(t *testing.T) {
	tests := []struct {
		name      string
		serialize func(header.ICMPv6)
	}{
		{
			name:      "Report zero group",
			serialize: func(icmp header.ICMPv6) { header.MLDReportBuilder{}.Serialize(icmp) },
		},
		{
			name:      "Done zero group",
			serialize: func(icmp header.ICMPv6) { header.MLDDoneBuilder{}.Serialize(icmp) },
		},
		{
			name:      "Query short group",
			serialize: func(icmp header.ICMPv6) { header.MLDQueryBuilder{Group: "\xff\x02"}.Serialize(icmp) },
		},
		{
			name:      "Query empty group",
			serialize: func(icmp header.ICMPv6) { header.MLDQueryBuilder{}.Serialize(icmp) },
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			icmp := header.ICMPv6(make([]byte, header.MLDMessageSize))
			for i := range icmp {
				icmp[i] = 0xff
			}
			defer func() {
				if r := recover(); r == nil {
					t.Error("expected Serialize to panic")
				}
				for i, b := range icmp {
					if b != 0xff {
						t.Errorf("byte %d written before panic: got %#x", i, b)
						break
					}
				}
			}()
			test.serialize(icmp)
		})
	}
}
