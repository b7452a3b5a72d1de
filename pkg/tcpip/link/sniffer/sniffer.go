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

// Package sniffer provides the implementation of data-link layer endpoints that
// wrap another endpoint and logs outbound packets.
//
// Sniffer endpoints can be used by calling New(ep) to create a new endpoint,
// where ep is the endpoint being wrapped, and then attaching the result in
// its place.
package sniffer

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/vsrinivas/fuchsia-sub084/pkg/log"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/buffer"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/header"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/stack"
)

// LogPackets is a flag used to enable or disable packet logging via the log
// package. Valid values are 0 or 1.
//
// LogPackets must be accessed atomically.
var LogPackets uint32 = 1

// LogPacketsToPCAP is a flag used to enable or disable logging packets to a
// pcap writer. Valid values are 0 or 1. A writer must have been specified when the
// sniffer was created for this flag to have effect.
//
// LogPacketsToPCAP must be accessed atomically.
var LogPacketsToPCAP uint32 = 1

type endpoint struct {
	lower stack.LinkEndpoint
	clock tcpip.Clock

	// mu serializes writes to writer.
	mu         sync.Mutex
	writer     *pcapgo.Writer
	maxPCAPLen uint32
}

var _ stack.LinkEndpoint = (*endpoint)(nil)

// New creates a new sniffer link-layer endpoint. It wraps around another
// endpoint and logs packets and they traverse the endpoint.
func New(lower stack.LinkEndpoint) stack.LinkEndpoint {
	return &endpoint{lower: lower}
}

// NewWithWriter creates a new sniffer link-layer endpoint. It wraps around
// another endpoint and logs packets as they traverse the endpoint.
//
// Packets are logged to writer in the pcap format, stamped with the time of
// clock. A sniffer created with this function will not emit packets using
// the standard log package.
//
// snapLen is the maximum amount of a packet to be saved. Packets with a length
// less than or equal to snapLen will be saved in their entirety. Longer
// packets will be truncated to snapLen.
func NewWithWriter(lower stack.LinkEndpoint, writer io.Writer, snapLen uint32, clock tcpip.Clock) (stack.LinkEndpoint, error) {
	w := pcapgo.NewWriter(writer)
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeRaw); err != nil {
		return nil, fmt.Errorf("writing pcap header: %w", err)
	}
	return &endpoint{
		lower:      lower,
		clock:      clock,
		writer:     w,
		maxPCAPLen: snapLen,
	}, nil
}

// MTU implements stack.LinkEndpoint.MTU.
func (e *endpoint) MTU() uint32 {
	return e.lower.MTU()
}

// LinkAddress implements stack.LinkEndpoint.LinkAddress.
func (e *endpoint) LinkAddress() tcpip.LinkAddress {
	return e.lower.LinkAddress()
}

// WritePacket implements the stack.LinkEndpoint interface. It is called by
// higher-level protocols to write packets; it just logs the packet and
// forwards the request to the lower endpoint.
func (e *endpoint) WritePacket(protocol tcpip.NetworkProtocolNumber, pkt buffer.View) error {
	e.dumpPacket("send", protocol, pkt)
	return e.lower.WritePacket(protocol, pkt)
}

func (e *endpoint) dumpPacket(prefix string, protocol tcpip.NetworkProtocolNumber, pkt buffer.View) {
	if e.writer == nil {
		if atomic.LoadUint32(&LogPackets) == 1 {
			logPacket(prefix, protocol, pkt)
		}
		return
	}
	if atomic.LoadUint32(&LogPacketsToPCAP) != 1 {
		return
	}

	length := len(pkt)
	if max := int(e.maxPCAPLen); length > max {
		length = max
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Unix(0, e.clock.NowNanoseconds()),
		CaptureLength: length,
		Length:        len(pkt),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writer.WritePacket(ci, pkt[:length]); err != nil {
		log.Warningf("sniffer: writing pcap record: %s", err)
	}
}

func logPacket(prefix string, protocol tcpip.NetworkProtocolNumber, pkt buffer.View) {
	if protocol != header.IPv6ProtocolNumber {
		log.Infof("%s unknown network protocol: %#04x", prefix, protocol)
		return
	}
	ip, _, err := header.ParseIPv6(pkt)
	if err != nil {
		log.Infof("%s invalid packet: %s", prefix, err)
		return
	}
	src := ip.SourceAddress()
	dst := ip.DestinationAddress()
	size := ip.Header().PayloadLength()

	if ip.NextHeader().TransportProtocol() != header.ICMPv6ProtocolNumber {
		log.Infof("%s %s -> %s unknown transport protocol: %s", prefix, src, dst, ip.NextHeader())
		return
	}
	icmp, err := header.ParseICMPv6(ip.Body())
	if err != nil {
		log.Infof("%s icmp %s -> %s invalid packet: %s", prefix, src, dst, err)
		return
	}

	details := ""
	body := icmp.MessageBody()
	switch icmp.Type() {
	case header.ICMPv6RouterSolicit:
		if len(body) >= header.NDPRSMinimumSize {
			details = "options:" + optionsString(header.NDPRouterSolicit(body).Options())
		}
	case header.ICMPv6RouterAdvert:
		if ra, err := header.ParseNDPRouterAdvert(body); err == nil {
			details = fmt.Sprintf("curhoplimit:%d lifetime:%s options:%s", ra.CurrHopLimit(), ra.RouterLifetime(), optionsString(ra.Options()))
		}
	case header.ICMPv6MulticastListenerQuery:
		if q, err := header.ParseMLDQuery(body); err == nil {
			details = fmt.Sprintf("group:%s delay:%s", q.GroupAddress(), q.MaxResponseDelay().Duration())
		}
	case header.ICMPv6MulticastListenerReport:
		if r, err := header.ParseMLDReport(body); err == nil {
			details = fmt.Sprintf("group:%s", r.GroupAddress())
		}
	case header.ICMPv6MulticastListenerDone:
		if d, err := header.ParseMLDDone(body); err == nil {
			details = fmt.Sprintf("group:%s", d.GroupAddress())
		}
	}

	log.Infof("%s icmp %s -> %s %s len:%d hoplimit:%d code:%d xsum:0x%04x %s", prefix, src, dst, icmp.Type(), size, ip.HopLimit(), icmp.Code(), icmp.Checksum(), details)
}

func optionsString(opts header.NDPOptions) string {
	var b strings.Builder
	b.WriteByte('[')
	it := opts.Iter()
	for first := true; ; first = false {
		opt, done, err := it.Next()
		if err != nil {
			if !first {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "invalid: %s", err)
			break
		}
		if done {
			break
		}
		if !first {
			b.WriteByte(' ')
		}
		b.WriteString(opt.String())
	}
	b.WriteByte(']')
	return b.String()
}
