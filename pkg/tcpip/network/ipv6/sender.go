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

package ipv6

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/buffer"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/header"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/stack"
)

// Errors returned by PacketSender.
var (
	ErrNoEndpoint    = errors.New("no link endpoint attached to NIC")
	ErrPacketTooBig  = errors.New("packet exceeds link MTU")
	ErrInvalidSource = errors.New("source is not an IPv6 address")
	ErrInvalidGroup  = errors.New("group is not an IPv6 multicast address")
)

// PacketSender frames ICMPv6 control messages in IPv6 and writes them to the
// link endpoint attached for each NIC. It implements RSSender.
type PacketSender struct {
	stats *Stats

	mu  sync.RWMutex
	eps map[tcpip.NICID]stack.LinkEndpoint
}

var _ RSSender = (*PacketSender)(nil)

// NewPacketSender returns a PacketSender with no endpoints attached. MLD
// messages it sends are counted in stats, which may be nil.
func NewPacketSender(stats *Stats) *PacketSender {
	if stats == nil {
		stats = &Stats{}
	}
	return &PacketSender{
		stats: stats,
		eps:   make(map[tcpip.NICID]stack.LinkEndpoint),
	}
}

// Attach makes ep the link endpoint for nicID.
func (s *PacketSender) Attach(nicID tcpip.NICID, ep stack.LinkEndpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eps[nicID] = ep
}

// Detach removes the link endpoint of nicID.
func (s *PacketSender) Detach(nicID tcpip.NICID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.eps, nicID)
}

func (s *PacketSender) endpoint(nicID tcpip.NICID) (stack.LinkEndpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.eps[nicID]
	if !ok {
		return nil, fmt.Errorf("NIC %d: %w", nicID, ErrNoEndpoint)
	}
	return ep, nil
}

// SendRouterSolicitation implements RSSender. The solicitation is sent to the
// all-routers multicast group with the hop limit NDP requires.
func (s *PacketSender) SendRouterSolicitation(nicID tcpip.NICID, src tcpip.Address, bodyLen int, fill func(header.NDPRouterSolicit)) error {
	return s.writeICMPv6(nicID, src, header.IPv6AllRoutersLinkLocalMulticastAddress, header.NDPHopLimit, bodyLen, func(icmp header.ICMPv6) {
		icmp.SetType(header.ICMPv6RouterSolicit)
		icmp.SetCode(0)
		fill(header.NDPRouterSolicit(icmp.MessageBody()))
	})
}

// SendMLDReport sends a Multicast Listener Report for group to the group
// itself, as per RFC 2710 section 4.
func (s *PacketSender) SendMLDReport(nicID tcpip.NICID, src tcpip.Address, group header.MulticastAddress) error {
	b := header.MLDReportBuilder{Group: group}
	return s.writeMLD(nicID, src, group.Address(), group, &s.stats.MulticastListenerReportSent, b.Length(), func(icmp header.ICMPv6) { b.Serialize(icmp) })
}

// SendMLDDone sends a Multicast Listener Done for group to the link-local
// all-routers group, as per RFC 2710 section 4.
func (s *PacketSender) SendMLDDone(nicID tcpip.NICID, src tcpip.Address, group header.MulticastAddress) error {
	b := header.MLDDoneBuilder{Group: group}
	return s.writeMLD(nicID, src, header.IPv6AllRoutersLinkLocalMulticastAddress, group, &s.stats.MulticastListenerDoneSent, b.Length(), func(icmp header.ICMPv6) { b.Serialize(icmp) })
}

func (s *PacketSender) writeMLD(nicID tcpip.NICID, src, dst tcpip.Address, group header.MulticastAddress, sent *tcpip.StatCounter, length int, serialize func(header.ICMPv6)) error {
	// The builders panic on the zero group, which callers can hold.
	if !header.IsV6MulticastAddress(group.Address()) {
		s.stats.MLDDropped.Increment()
		return fmt.Errorf("%w: %q", ErrInvalidGroup, group.Address())
	}
	// The whole message is written by serialize; bodyLen excludes the
	// ICMPv6 header writeICMPv6 accounts for.
	if err := s.writeICMPv6(nicID, src, dst, header.MLDHopLimit, length-header.ICMPv6HeaderSize, serialize); err != nil {
		s.stats.MLDDropped.Increment()
		return err
	}
	sent.Increment()
	return nil
}

// writeICMPv6 builds an ICMPv6 message of bodyLen body bytes with build,
// checksums it and writes it in an IPv6 packet from src to dst.
func (s *PacketSender) writeICMPv6(nicID tcpip.NICID, src, dst tcpip.Address, hopLimit uint8, bodyLen int, build func(header.ICMPv6)) error {
	if len(src) != header.IPv6AddressSize {
		return fmt.Errorf("%w: %q", ErrInvalidSource, src)
	}
	ep, err := s.endpoint(nicID)
	if err != nil {
		return err
	}

	icmpLen := header.ICMPv6HeaderSize + bodyLen
	total := header.IPv6FixedHeaderSize + icmpLen
	if mtu := ep.MTU(); total > int(mtu) {
		return fmt.Errorf("%w: %d > %d", ErrPacketTooBig, total, mtu)
	}

	p := buffer.NewPrependable(total)
	icmp := header.ICMPv6(p.Prepend(icmpLen))
	build(icmp)
	icmp.SetChecksum(header.ICMPv6Checksum(icmp, src, dst))

	b := header.NewIPv6Builder(src, dst, hopLimit, header.IPv6NextHeaderICMPv6)
	return ep.WritePacket(header.IPv6ProtocolNumber, b.Serialize(&p))
}
