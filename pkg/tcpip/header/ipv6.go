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

package header

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/buffer"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/bufview"
)

const (
	versTCFL = 0
	// IPv6PayloadLenOffset is the offset of the PayloadLength field in
	// IPv6 header.
	IPv6PayloadLenOffset = 4
	// IPv6NextHeaderOffset is the offset of the NextHeader field in
	// IPv6 header.
	IPv6NextHeaderOffset = 6
	hopLimit             = 7
	v6SrcAddr            = 8
	v6DstAddr            = v6SrcAddr + IPv6AddressSize
)

const (
	// IPv6MinimumSize is the minimum size of a valid IPv6 packet, which is
	// the size of the fixed header.
	IPv6MinimumSize = IPv6FixedHeaderSize

	// IPv6FixedHeaderSize is the size, in bytes, of the IPv6 fixed header.
	IPv6FixedHeaderSize = 40

	// IPv6AddressSize is the size, in bytes, of an IPv6 address.
	IPv6AddressSize = 16

	// IPv6MaximumPayloadSize is the maximum size of a valid IPv6 payload per
	// RFC 8200 Section 4.5.
	IPv6MaximumPayloadSize = 65535

	// IPv6ProtocolNumber is IPv6's network protocol number.
	IPv6ProtocolNumber tcpip.NetworkProtocolNumber = 0x86dd

	// IPv6Version is the version of the IPv6 protocol.
	IPv6Version = 6

	// IPv6MaxDS is the largest Differentiated Services value that fits in the
	// six high bits of the Traffic Class field.
	IPv6MaxDS = 1<<6 - 1

	// IPv6MaxECN is the largest Explicit Congestion Notification value that
	// fits in the two low bits of the Traffic Class field.
	IPv6MaxECN = 1<<2 - 1

	// IPv6MaxFlowLabel is the largest value of the 20-bit Flow Label field.
	IPv6MaxFlowLabel = 1<<20 - 1

	// ipv6ExtensionHeadersLen is the length of the extension headers between
	// the fixed header and the body. Extension headers are never parsed or
	// emitted, so it is always zero.
	ipv6ExtensionHeadersLen = 0
)

var (
	// IPv6Any is the non-routable IPv6 "any" meta address. It is also
	// known as the unspecified address.
	IPv6Any tcpip.Address = "\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"

	// IPv6AllNodesMulticastAddress is a link-local multicast group that
	// all IPv6 nodes MUST join, as per RFC 4291, section 2.8. Packets
	// destined to this address will reach all nodes on a link.
	//
	// The address is ff02::1.
	IPv6AllNodesMulticastAddress tcpip.Address = "\xff\x02\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x01"

	// IPv6AllRoutersLinkLocalMulticastAddress is a link-local multicast
	// group that all IPv6 routers MUST join, as per RFC 4291, section 2.8.
	// Packets destined to this address will reach all routers on a link.
	//
	// The address is ff02::2.
	IPv6AllRoutersLinkLocalMulticastAddress tcpip.Address = "\xff\x02\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x02"
)

// Errors returned when parsing an IPv6 packet. Every error wraps
// ErrIPv6Format.
var (
	ErrIPv6Format        = errors.New("malformed IPv6 packet")
	ErrIPv6Truncated     = fmt.Errorf("%w: buffer shorter than the fixed header", ErrIPv6Format)
	ErrIPv6Version       = fmt.Errorf("%w: version is not 6", ErrIPv6Format)
	ErrIPv6PayloadLength = fmt.Errorf("%w: payload length does not match body", ErrIPv6Format)
)

// IPv6 is the 40-byte IPv6 fixed header. Every 40-byte pattern is a valid
// instance and the type has no alignment requirement. Obtain one through
// ParseIPv6 or bufview.
//
// Only read accessors are exported; the header is written by IPv6Builder and
// IPv6PacketMut.
type IPv6 []byte

// IPv6 satisfies bufview.Layout.
var _ = bufview.New[IPv6]

// SizeBytes implements bufview.Layout.
func (IPv6) SizeBytes() int {
	return IPv6FixedHeaderSize
}

// AlignBytes implements bufview.Layout.
func (IPv6) AlignBytes() int {
	return 1
}

// Version returns the value of the version field.
func (b IPv6) Version() uint8 {
	return b[versTCFL] >> 4
}

// TrafficClass returns the 8-bit Traffic Class field, which straddles the
// first two octets.
func (b IPv6) TrafficClass() uint8 {
	return uint8(binary.BigEndian.Uint32(b[versTCFL:]) >> 20)
}

// DS returns the Differentiated Services code point, the upper six bits of
// the Traffic Class.
func (b IPv6) DS() uint8 {
	return b.TrafficClass() >> 2
}

// ECN returns the Explicit Congestion Notification bits, the lower two bits
// of the Traffic Class.
func (b IPv6) ECN() uint8 {
	return b.TrafficClass() & IPv6MaxECN
}

// FlowLabel returns the 20-bit Flow Label field.
func (b IPv6) FlowLabel() uint32 {
	return binary.BigEndian.Uint32(b[versTCFL:]) & IPv6MaxFlowLabel
}

// PayloadLength returns the value of the "payload length" field of the ipv6
// header.
func (b IPv6) PayloadLength() uint16 {
	return binary.BigEndian.Uint16(b[IPv6PayloadLenOffset:])
}

// HopLimit returns the value of the "Hop Limit" field of the ipv6 header.
func (b IPv6) HopLimit() uint8 {
	return b[hopLimit]
}

// NextHeader returns the value of the "next header" field of the ipv6 header.
func (b IPv6) NextHeader() IPv6NextHeader {
	return IPv6NextHeader(b[IPv6NextHeaderOffset])
}

// SourceAddress returns the "source address" field of the ipv6 header.
func (b IPv6) SourceAddress() tcpip.Address {
	return tcpip.Address(b[v6SrcAddr:][:IPv6AddressSize])
}

// DestinationAddress returns the "destination address" field of the ipv6
// header.
func (b IPv6) DestinationAddress() tcpip.Address {
	return tcpip.Address(b[v6DstAddr:][:IPv6AddressSize])
}

func (b IPv6) setHopLimit(v uint8) {
	b[hopLimit] = v
}

// encode overwrites every byte of the fixed header.
func (b IPv6) encode(f *IPv6Builder, payloadLength uint16) {
	clear(b)
	tc := uint32(f.ds)<<2 | uint32(f.ecn)
	binary.BigEndian.PutUint32(b[versTCFL:], IPv6Version<<28|tc<<20|f.flowLabel)
	binary.BigEndian.PutUint16(b[IPv6PayloadLenOffset:], payloadLength)
	b[IPv6NextHeaderOffset] = uint8(f.proto)
	b[hopLimit] = f.hopLimit
	copy(b[v6SrcAddr:][:IPv6AddressSize], f.src)
	copy(b[v6DstAddr:][:IPv6AddressSize], f.dst)
}

// IPv6NextHeader is the value of the Next Header field. Values outside the
// protocols this package names are still valid; Known reports which is which
// and the raw value is always available by conversion.
type IPv6NextHeader uint8

// Next Header values named by this package.
const (
	IPv6NextHeaderHopByHop           IPv6NextHeader = 0
	IPv6NextHeaderTCP                IPv6NextHeader = 6
	IPv6NextHeaderUDP                IPv6NextHeader = 17
	IPv6NextHeaderRouting            IPv6NextHeader = 43
	IPv6NextHeaderFragment           IPv6NextHeader = 44
	IPv6NextHeaderICMPv6             IPv6NextHeader = 58
	IPv6NextHeaderNoNextHeader       IPv6NextHeader = 59
	IPv6NextHeaderDestinationOptions IPv6NextHeader = 60
)

// Known returns true if n is one of the named Next Header values.
func (n IPv6NextHeader) Known() bool {
	switch n {
	case IPv6NextHeaderHopByHop,
		IPv6NextHeaderTCP,
		IPv6NextHeaderUDP,
		IPv6NextHeaderRouting,
		IPv6NextHeaderFragment,
		IPv6NextHeaderICMPv6,
		IPv6NextHeaderNoNextHeader,
		IPv6NextHeaderDestinationOptions:
		return true
	default:
		return false
	}
}

// Raw returns the value as carried on the wire.
func (n IPv6NextHeader) Raw() uint8 {
	return uint8(n)
}

// TransportProtocol returns n as a transport protocol number.
func (n IPv6NextHeader) TransportProtocol() tcpip.TransportProtocolNumber {
	return tcpip.TransportProtocolNumber(n)
}

// String implements fmt.Stringer.
func (n IPv6NextHeader) String() string {
	switch n {
	case IPv6NextHeaderHopByHop:
		return "HopByHop"
	case IPv6NextHeaderTCP:
		return "TCP"
	case IPv6NextHeaderUDP:
		return "UDP"
	case IPv6NextHeaderRouting:
		return "Routing"
	case IPv6NextHeaderFragment:
		return "Fragment"
	case IPv6NextHeaderICMPv6:
		return "ICMPv6"
	case IPv6NextHeaderNoNextHeader:
		return "NoNextHeader"
	case IPv6NextHeaderDestinationOptions:
		return "DestinationOptions"
	default:
		return fmt.Sprintf("Other(%d)", uint8(n))
	}
}

// BodyRange is the half-open range [Start, End) of a parsed buffer that holds
// the packet body.
type BodyRange struct {
	Start int
	End   int
}

// Len returns the number of bytes in the range.
func (r BodyRange) Len() int {
	return r.End - r.Start
}

// IPv6Packet is a parsed IPv6 packet. It borrows the buffer passed to
// ParseIPv6 and must not outlive it.
type IPv6Packet struct {
	hdr  bufview.Ref[IPv6]
	body []byte
}

// ParseIPv6 validates b as an IPv6 packet with no extension headers.
//
// The checks stop at the first violation: b must hold the fixed header, the
// version must be 6 and the Payload Length field must equal the number of
// bytes following the header. On success it returns the packet and the range
// of b holding the body.
func ParseIPv6(b []byte) (IPv6Packet, BodyRange, error) {
	hdr, body, ok := bufview.NewFromPrefix[IPv6](b)
	if !ok {
		return IPv6Packet{}, BodyRange{}, fmt.Errorf("%w: got %d bytes", ErrIPv6Truncated, len(b))
	}
	h := hdr.Layout()
	if v := h.Version(); v != IPv6Version {
		return IPv6Packet{}, BodyRange{}, fmt.Errorf("%w: got %d", ErrIPv6Version, v)
	}
	hdrLen := IPv6FixedHeaderSize + ipv6ExtensionHeadersLen
	if got, want := len(body), int(h.PayloadLength()); got != want {
		return IPv6Packet{}, BodyRange{}, fmt.Errorf("%w: field = %d, body = %d bytes", ErrIPv6PayloadLength, want, got)
	}
	return IPv6Packet{hdr: hdr, body: body}, BodyRange{Start: hdrLen, End: len(b)}, nil
}

// Header returns the fixed header. It aliases the parsed buffer and must be
// treated as read-only; use ParseIPv6Mut to modify a packet.
func (p IPv6Packet) Header() IPv6 {
	return p.hdr.Layout()
}

// DS returns the Differentiated Services code point.
func (p IPv6Packet) DS() uint8 { return p.Header().DS() }

// ECN returns the Explicit Congestion Notification bits.
func (p IPv6Packet) ECN() uint8 { return p.Header().ECN() }

// FlowLabel returns the flow label.
func (p IPv6Packet) FlowLabel() uint32 { return p.Header().FlowLabel() }

// HopLimit returns the hop limit.
func (p IPv6Packet) HopLimit() uint8 { return p.Header().HopLimit() }

// NextHeader returns the protocol of the body.
func (p IPv6Packet) NextHeader() IPv6NextHeader { return p.Header().NextHeader() }

// SourceAddress returns the source address.
func (p IPv6Packet) SourceAddress() tcpip.Address { return p.Header().SourceAddress() }

// DestinationAddress returns the destination address.
func (p IPv6Packet) DestinationAddress() tcpip.Address { return p.Header().DestinationAddress() }

// Body returns the bytes following the header. It aliases the parsed buffer;
// callers must not modify it.
func (p IPv6Packet) Body() []byte {
	return p.body
}

// IPv6PacketMut is a parsed IPv6 packet over a buffer the caller may write.
type IPv6PacketMut struct {
	IPv6Packet
	mut bufview.MutRef[IPv6]
}

// ParseIPv6Mut is ParseIPv6 for a buffer the caller owns and may modify.
func ParseIPv6Mut(b []byte) (IPv6PacketMut, BodyRange, error) {
	p, r, err := ParseIPv6(b)
	if err != nil {
		return IPv6PacketMut{}, BodyRange{}, err
	}
	// ParseIPv6 already validated the prefix.
	mut, _, _ := bufview.NewMutFromPrefix[IPv6](b)
	return IPv6PacketMut{IPv6Packet: p, mut: mut}, r, nil
}

// SetHopLimit sets the hop limit in place.
func (p IPv6PacketMut) SetHopLimit(v uint8) {
	p.mut.Layout().setHopLimit(v)
}

// BodyMut returns the body for writing.
func (p IPv6PacketMut) BodyMut() []byte {
	return p.body
}

// IPv6Builder holds the fields of an IPv6 fixed header to serialize.
//
// The setters panic on out-of-range values: they are supplied by the
// program, not read from the network.
type IPv6Builder struct {
	ds        uint8
	ecn       uint8
	flowLabel uint32
	hopLimit  uint8
	proto     IPv6NextHeader
	src       tcpip.Address
	dst       tcpip.Address
}

// NewIPv6Builder returns a builder with zero DS, ECN and flow label.
//
// Panics if src or dst is not an IPv6 address.
func NewIPv6Builder(src, dst tcpip.Address, hopLimit uint8, proto IPv6NextHeader) IPv6Builder {
	if len(src) != IPv6AddressSize {
		panic(fmt.Sprintf("invalid IPv6 source address %x", []byte(src)))
	}
	if len(dst) != IPv6AddressSize {
		panic(fmt.Sprintf("invalid IPv6 destination address %x", []byte(dst)))
	}
	return IPv6Builder{
		hopLimit: hopLimit,
		proto:    proto,
		src:      src,
		dst:      dst,
	}
}

// SetDS sets the Differentiated Services code point.
//
// Panics if ds > IPv6MaxDS.
func (b *IPv6Builder) SetDS(ds uint8) {
	if ds > IPv6MaxDS {
		panic(fmt.Sprintf("invalid DS %d > %d", ds, IPv6MaxDS))
	}
	b.ds = ds
}

// SetECN sets the Explicit Congestion Notification bits.
//
// Panics if ecn > IPv6MaxECN.
func (b *IPv6Builder) SetECN(ecn uint8) {
	if ecn > IPv6MaxECN {
		panic(fmt.Sprintf("invalid ECN %d > %d", ecn, IPv6MaxECN))
	}
	b.ecn = ecn
}

// SetFlowLabel sets the flow label.
//
// Panics if flowLabel > IPv6MaxFlowLabel.
func (b *IPv6Builder) SetFlowLabel(flowLabel uint32) {
	if flowLabel > IPv6MaxFlowLabel {
		panic(fmt.Sprintf("invalid flow label %#x > %#x", flowLabel, IPv6MaxFlowLabel))
	}
	b.flowLabel = flowLabel
}

// SetHopLimit sets the hop limit.
func (b *IPv6Builder) SetHopLimit(v uint8) {
	b.hopLimit = v
}

// Serialize writes the fixed header in front of the body held by p and
// returns the bytes covering the header and the body.
//
// The used part of p is the body. The caller must have reserved at least
// IPv6FixedHeaderSize bytes in front of it; Serialize panics otherwise, and
// also panics if the body is longer than IPv6MaximumPayloadSize. The reserved
// region is fully overwritten, so reused buffers never leak into the header.
func (b *IPv6Builder) Serialize(p *buffer.Prependable) []byte {
	payloadLength := ipv6ExtensionHeadersLen + p.UsedLength()
	if payloadLength > IPv6MaximumPayloadSize {
		panic(fmt.Sprintf("IPv6 payload of %d bytes exceeds %d", payloadLength, IPv6MaximumPayloadSize))
	}
	if got := p.AvailableLength(); got < IPv6FixedHeaderSize {
		panic(fmt.Sprintf("need %d bytes of header space, have %d", IPv6FixedHeaderSize, got))
	}
	IPv6(p.Prepend(IPv6FixedHeaderSize)).encode(b, uint16(payloadLength))
	return p.UsedBytes()
}

// IsV6MulticastAddress determines if the provided address is an IPv6
// multicast address (anything starting with FF).
func IsV6MulticastAddress(addr tcpip.Address) bool {
	if len(addr) != IPv6AddressSize {
		return false
	}
	return addr[0] == 0xff
}

// IsV6UnspecifiedAddress determines if the provided address is the IPv6
// unspecified address (::).
func IsV6UnspecifiedAddress(addr tcpip.Address) bool {
	return addr == IPv6Any
}

// IsV6LinkLocalUnicastAddress determines if the provided address is an IPv6
// link-local unicast address (fe80::/10).
func IsV6LinkLocalUnicastAddress(addr tcpip.Address) bool {
	if len(addr) != IPv6AddressSize {
		return false
	}
	return addr[0] == 0xfe && (addr[1]&0xc0) == 0x80
}
