// Copyright 2021 The gVisor Authors.
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

package rawsock

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	xipv6 "golang.org/x/net/ipv6"

	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/header"
)

const linkAddr = tcpip.LinkAddress("\x02\x02\x03\x04\x05\x06")

func TestBuildRouterSolicitation(t *testing.T) {
	opts := header.NDPOptionsSerializer{header.NDPSourceLinkLayerAddressOption(linkAddr)}
	msg := buildRouterSolicitation(header.NDPRSMinimumSize+opts.Length(), func(rs header.NDPRouterSolicit) {
		rs.Serialize(opts)
	})
	want := []byte{
		133, 0, 0, 0, // type, code, checksum
		0, 0, 0, 0, // reserved
		1, 1, 2, 2, 3, 4, 5, 6, // source link-layer address
	}
	if diff := cmp.Diff(want, msg); diff != "" {
		t.Errorf("router solicitation mismatch (-want +got):\n%s", diff)
	}
}

func TestControlMessage(t *testing.T) {
	llAddr := tcpip.Address(net.ParseIP("fe80::1"))

	tests := []struct {
		name string
		src  tcpip.Address
		want *xipv6.ControlMessage
	}{
		{
			name: "Specified",
			src:  llAddr,
			want: &xipv6.ControlMessage{HopLimit: 255, IfIndex: 3, Src: net.ParseIP("fe80::1")},
		},
		{
			name: "Unspecified",
			src:  header.IPv6Any,
			want: &xipv6.ControlMessage{HopLimit: 255, IfIndex: 3},
		},
		{
			name: "Empty",
			want: &xipv6.ControlMessage{HopLimit: 255, IfIndex: 3},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if diff := cmp.Diff(test.want, controlMessage(3, test.src)); diff != "" {
				t.Errorf("control message mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func routerAdvert(typ header.ICMPv6Type, opts ...byte) []byte {
	b := []byte{
		byte(typ), 0, 0, 0,
		64,         // cur hop limit
		0xc0,       // M and O flags
		0x07, 0x08, // router lifetime: 1800s
		0, 0, 0x75, 0x30, // reachable time: 30000ms
		0, 0, 0x03, 0xe8, // retrans timer: 1000ms
	}
	return append(b, opts...)
}

func TestParseRouterAdvertisement(t *testing.T) {
	router := &net.IPAddr{IP: net.ParseIP("fe80::1"), Zone: "eth0"}
	good := &xipv6.ControlMessage{HopLimit: 255}

	tests := []struct {
		name    string
		b       []byte
		cm      *xipv6.ControlMessage
		peer    net.Addr
		wantErr error
	}{
		{
			name: "Valid",
			b:    routerAdvert(header.ICMPv6RouterAdvert, 1, 1, 2, 2, 3, 4, 5, 6),
			cm:   good,
			peer: router,
		},
		{
			name:    "Truncated ICMPv6",
			b:       []byte{134, 0},
			cm:      good,
			peer:    router,
			wantErr: header.ErrICMPv6Truncated,
		},
		{
			name:    "Not an advertisement",
			b:       routerAdvert(header.ICMPv6RouterSolicit),
			cm:      good,
			peer:    router,
			wantErr: ErrNotAdvertisement,
		},
		{
			name:    "Hop limit",
			b:       routerAdvert(header.ICMPv6RouterAdvert),
			cm:      &xipv6.ControlMessage{HopLimit: 254},
			peer:    router,
			wantErr: ErrInvalidHopLimit,
		},
		{
			name:    "No control message",
			b:       routerAdvert(header.ICMPv6RouterAdvert),
			peer:    router,
			wantErr: ErrInvalidHopLimit,
		},
		{
			name:    "Global source",
			b:       routerAdvert(header.ICMPv6RouterAdvert),
			cm:      good,
			peer:    &net.IPAddr{IP: net.ParseIP("2001:db8::1")},
			wantErr: ErrInvalidRouterAddr,
		},
		{
			name:    "Truncated body",
			b:       routerAdvert(header.ICMPv6RouterAdvert)[:header.ICMPv6HeaderSize+header.NDPRAMinimumSize-1],
			cm:      good,
			peer:    router,
			wantErr: header.ErrNDPRATruncated,
		},
		{
			name:    "Malformed option",
			b:       routerAdvert(header.ICMPv6RouterAdvert, 1, 0, 0, 0, 0, 0, 0, 0),
			cm:      good,
			peer:    router,
			wantErr: header.ErrNDPOptMalformedHeader,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ra, err := parseRouterAdvertisement(test.b, test.cm, test.peer)
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("got parseRouterAdvertisement(...) = %v, want %v", err, test.wantErr)
			}
			if err != nil {
				return
			}
			if got, want := ra.Router, tcpip.Address(net.ParseIP("fe80::1")); got != want {
				t.Errorf("got Router = %s, want %s", got, want)
			}
			type fields struct {
				CurrHopLimit   uint8
				Managed, Other bool
				RouterLifetime time.Duration
				ReachableTime  time.Duration
				RetransTimer   time.Duration
			}
			want := fields{
				CurrHopLimit:   64,
				Managed:        true,
				Other:          true,
				RouterLifetime: 1800 * time.Second,
				ReachableTime:  30 * time.Second,
				RetransTimer:   time.Second,
			}
			got := fields{
				CurrHopLimit:   ra.Message.CurrHopLimit(),
				Managed:        ra.Message.ManagedAddrConfFlag(),
				Other:          ra.Message.OtherConfFlag(),
				RouterLifetime: ra.Message.RouterLifetime(),
				ReachableTime:  ra.Message.ReachableTime(),
				RetransTimer:   ra.Message.RetransTimer(),
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("router advertisement mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
