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
)

// ICMPv6 represents an ICMPv6 header stored in a byte array.
type ICMPv6 []byte

const (
	// ICMPv6HeaderSize is the size of the ICMPv6 header. That is, the
	// sum of the size of the ICMPv6 Type, Code and Checksum fields, as
	// per RFC 4443 section 2.1. After the ICMPv6 header, the ICMPv6
	// message body begins.
	ICMPv6HeaderSize = 4

	// ICMPv6MinimumSize is the minimum size of a valid ICMP packet.
	ICMPv6MinimumSize = ICMPv6HeaderSize

	// ICMPv6ProtocolNumber is the ICMP transport protocol number.
	ICMPv6ProtocolNumber tcpip.TransportProtocolNumber = 58

	// icmpv6ChecksumOffset is the offset of the checksum field
	// in an ICMPv6 message.
	icmpv6ChecksumOffset = 2
)

// ErrICMPv6Truncated is returned when a buffer cannot hold the ICMPv6
// header.
var ErrICMPv6Truncated = errors.New("ICMPv6 message shorter than its header")

// ICMPv6Type is the ICMP type field described in RFC 4443 and friends.
type ICMPv6Type byte

// Typical values of ICMPv6Type defined in RFC 4443.
const (
	ICMPv6DstUnreachable ICMPv6Type = 1
	ICMPv6PacketTooBig   ICMPv6Type = 2
	ICMPv6TimeExceeded   ICMPv6Type = 3
	ICMPv6ParamProblem   ICMPv6Type = 4
	ICMPv6EchoRequest    ICMPv6Type = 128
	ICMPv6EchoReply      ICMPv6Type = 129

	// Neighbor Discovery Protocol (NDP) messages, see RFC 4861.

	ICMPv6RouterSolicit   ICMPv6Type = 133
	ICMPv6RouterAdvert    ICMPv6Type = 134
	ICMPv6NeighborSolicit ICMPv6Type = 135
	ICMPv6NeighborAdvert  ICMPv6Type = 136
	ICMPv6RedirectMsg     ICMPv6Type = 137

	// Multicast Listener Discovery (MLD) messages, see RFC 2710.

	ICMPv6MulticastListenerQuery  ICMPv6Type = 130
	ICMPv6MulticastListenerReport ICMPv6Type = 131
	ICMPv6MulticastListenerDone   ICMPv6Type = 132
)

// String implements fmt.Stringer.
func (typ ICMPv6Type) String() string {
	switch typ {
	case ICMPv6DstUnreachable:
		return "DstUnreachable"
	case ICMPv6PacketTooBig:
		return "PacketTooBig"
	case ICMPv6TimeExceeded:
		return "TimeExceeded"
	case ICMPv6ParamProblem:
		return "ParamProblem"
	case ICMPv6EchoRequest:
		return "EchoRequest"
	case ICMPv6EchoReply:
		return "EchoReply"
	case ICMPv6RouterSolicit:
		return "RouterSolicit"
	case ICMPv6RouterAdvert:
		return "RouterAdvert"
	case ICMPv6NeighborSolicit:
		return "NeighborSolicit"
	case ICMPv6NeighborAdvert:
		return "NeighborAdvert"
	case ICMPv6RedirectMsg:
		return "RedirectMsg"
	case ICMPv6MulticastListenerQuery:
		return "MulticastListenerQuery"
	case ICMPv6MulticastListenerReport:
		return "MulticastListenerReport"
	case ICMPv6MulticastListenerDone:
		return "MulticastListenerDone"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(typ))
	}
}

// IsErrorType returns true if the receiver is an ICMP error type.
func (typ ICMPv6Type) IsErrorType() bool {
	// Per RFC 4443 section 2.1:
	//   ICMPv6 messages are grouped into two classes: error messages and
	//   informational messages.  Error messages are identified as such by a
	//   zero in the high-order bit of their message Type field values.  Thus,
	//   error messages have message types from 0 to 127; informational
	//   messages have message types from 128 to 255.
	return typ&0x80 == 0
}

// ParseICMPv6 returns b as an ICMPv6 message if it can hold the header.
func ParseICMPv6(b []byte) (ICMPv6, error) {
	if len(b) < ICMPv6HeaderSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrICMPv6Truncated, len(b))
	}
	return ICMPv6(b), nil
}

// Type is the ICMP type field.
func (b ICMPv6) Type() ICMPv6Type { return ICMPv6Type(b[0]) }

// SetType sets the ICMP type field.
func (b ICMPv6) SetType(t ICMPv6Type) { b[0] = byte(t) }

// Code is the ICMP code field. Its meaning depends on the value of Type.
func (b ICMPv6) Code() byte { return b[1] }

// SetCode sets the ICMP code field.
func (b ICMPv6) SetCode(c byte) { b[1] = c }

// Checksum is the ICMP checksum field.
func (b ICMPv6) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[icmpv6ChecksumOffset:])
}

// SetChecksum sets the ICMP checksum field.
func (b ICMPv6) SetChecksum(checksum uint16) {
	binary.BigEndian.PutUint16(b[icmpv6ChecksumOffset:], checksum)
}

// MessageBody returns the message body as defined by RFC 4443 section 2.1; the
// portion of the ICMPv6 buffer after the first ICMPv6HeaderSize bytes.
func (b ICMPv6) MessageBody() []byte {
	return b[ICMPv6HeaderSize:]
}

// ICMPv6Checksum calculates the ICMP checksum over the provided ICMPv6 message
// and the IPv6 pseudo-header of src and dst. The checksum field of h is
// treated as zero.
func ICMPv6Checksum(h ICMPv6, src, dst tcpip.Address) uint16 {
	xsum := PseudoHeaderChecksum(ICMPv6ProtocolNumber, src, dst, uint32(len(h)))

	// h[2:4] is the checksum itself, skip it to avoid checksumming the
	// checksum.
	xsum = Checksum(h[:icmpv6ChecksumOffset], xsum)
	xsum = Checksum(h[icmpv6ChecksumOffset+2:], xsum)

	return ^xsum
}
