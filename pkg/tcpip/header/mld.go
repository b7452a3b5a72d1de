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

package header

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip/bufview"
)

const (
	// MLDMinimumSize is the size of an MLDv1 message body, the part of the
	// message following the ICMPv6 header.
	//
	// MLDv1 messages have the following format (RFC 2710 section 3):
	//
	//    0                   1                   2                   3
	//    0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	//   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//   |     Type      |     Code      |          Checksum             |
	//   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//   |     Maximum Response Delay    |          Reserved             |
	//   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//   |                                                               |
	//   +                                                               +
	//   |                                                               |
	//   +                       Multicast Address                       +
	//   |                                                               |
	//   +                                                               +
	//   |                                                               |
	//   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	MLDMinimumSize = 20

	// MLDMessageSize is the size of a complete MLDv1 ICMPv6 message.
	MLDMessageSize = ICMPv6HeaderSize + MLDMinimumSize

	// MLDHopLimit is the Hop Limit for all IPv6 packets including an MLD
	// message, as per RFC 2710 section 3.
	MLDHopLimit = 1

	// mldMaximumResponseDelayOffset is the offset to the Maximum Response
	// Delay field within MLD.
	mldMaximumResponseDelayOffset = 0

	// mldReservedOffset is the offset to the Reserved field within MLD.
	mldReservedOffset = 2

	// mldMulticastAddressOffset is the offset to the Multicast Address field
	// within MLD.
	mldMulticastAddressOffset = 4

	// MaxMLDResponseDelay is the largest response delay a Maximum Response
	// Code can carry.
	MaxMLDResponseDelay = math.MaxUint16 * time.Millisecond
)

// Errors returned by the MLD codec.
var (
	ErrMLDFormat                = errors.New("malformed MLD message")
	ErrMLDSize                  = fmt.Errorf("%w: body is not %d bytes", ErrMLDFormat, MLDMinimumSize)
	ErrMLDGroupAddress          = fmt.Errorf("%w: group address is not multicast", ErrMLDFormat)
	ErrMLDResponseDelayTooLarge = fmt.Errorf("response delay exceeds %s", MaxMLDResponseDelay)
	ErrMLDResponseDelayNegative = errors.New("response delay is negative")
)

// MLD is an MLDv1 message body. Every 20-byte pattern is a valid instance and
// the type has no alignment requirement.
type MLD []byte

// MLD satisfies bufview.Layout.
var _ = bufview.New[MLD]

// SizeBytes implements bufview.Layout.
func (MLD) SizeBytes() int {
	return MLDMinimumSize
}

// AlignBytes implements bufview.Layout.
func (MLD) AlignBytes() int {
	return 1
}

// MaximumResponseCode returns the raw Maximum Response Delay field. Its
// meaning depends on the kind of message.
func (m MLD) MaximumResponseCode() uint16 {
	return binary.BigEndian.Uint16(m[mldMaximumResponseDelayOffset:])
}

// MulticastAddress returns the Multicast Address field.
func (m MLD) MulticastAddress() tcpip.Address {
	return tcpip.Address(m[mldMulticastAddressOffset:][:IPv6AddressSize])
}

func (m MLD) encode(code uint16, group tcpip.Address) {
	clear(m)
	binary.BigEndian.PutUint16(m[mldMaximumResponseDelayOffset:], code)
	binary.BigEndian.PutUint16(m[mldReservedOffset:], 0)
	copy(m[mldMulticastAddressOffset:][:IPv6AddressSize], group)
}

// MLDResponseDelay is the Maximum Response Delay of a Multicast Listener
// Query, in milliseconds.
type MLDResponseDelay uint16

// NewMLDResponseDelay converts d to whole milliseconds. Sub-millisecond
// remainders are dropped; durations that do not fit in 16 bits of
// milliseconds are rejected rather than truncated.
func NewMLDResponseDelay(d time.Duration) (MLDResponseDelay, error) {
	if d < 0 {
		return 0, fmt.Errorf("%w: %s", ErrMLDResponseDelayNegative, d)
	}
	ms := d.Milliseconds()
	if ms > math.MaxUint16 {
		return 0, fmt.Errorf("%w: got %s", ErrMLDResponseDelayTooLarge, d)
	}
	return MLDResponseDelay(ms), nil
}

// Duration returns the delay as a time.Duration.
func (d MLDResponseDelay) Duration() time.Duration {
	return time.Duration(d) * time.Millisecond
}

// MLDUnit is the response delay of messages that carry none; it always
// encodes as zero.
type MLDUnit struct{}

// MulticastAddress is an IPv6 address known to be multicast. The zero value
// holds no address and must not be serialized.
type MulticastAddress struct {
	addr tcpip.Address
}

// NewMulticastAddress returns addr as a MulticastAddress if it is an IPv6
// multicast address.
func NewMulticastAddress(addr tcpip.Address) (MulticastAddress, bool) {
	if !IsV6MulticastAddress(addr) {
		return MulticastAddress{}, false
	}
	return MulticastAddress{addr: addr}, true
}

// Address returns the address.
func (m MulticastAddress) Address() tcpip.Address {
	return m.addr
}

// String implements fmt.Stringer.
func (m MulticastAddress) String() string {
	return m.addr.String()
}

// ICMPv6MessageKind describes how a message kind is framed in ICMPv6.
type ICMPv6MessageKind interface {
	// ICMPv6Type returns the ICMPv6 Type field of the message.
	ICMPv6Type() ICMPv6Type

	// ICMPv6Code returns the ICMPv6 Code field of the message.
	ICMPv6Code() byte
}

// MLDv1Semantics describes how a message kind interprets the two variable
// fields of the MLDv1 body. D is the representation of the Maximum Response
// Delay and G the representation of the Multicast Address.
type MLDv1Semantics[D, G any] interface {
	// EncodeDelay returns the Maximum Response Code to write for d.
	EncodeDelay(d D) uint16

	// DecodeDelay interprets a received Maximum Response Code.
	DecodeDelay(code uint16) D

	// EncodeGroup returns the Multicast Address to write for g.
	EncodeGroup(g G) tcpip.Address

	// DecodeGroup validates and converts a received Multicast Address.
	DecodeGroup(addr tcpip.Address) (G, error)
}

// MLDKind is implemented by the MLDv1 message kinds. Implementations are
// empty structs; their methods must not depend on the receiver.
type MLDKind[D, G any] interface {
	ICMPv6MessageKind
	MLDv1Semantics[D, G]
}

// MLDQueryKind is the Multicast Listener Query. Its delay is a response delay
// in milliseconds and its group is any address; the unspecified address makes
// it a general query.
type MLDQueryKind struct{}

var _ MLDKind[MLDResponseDelay, tcpip.Address] = MLDQueryKind{}

// ICMPv6Type implements ICMPv6MessageKind.
func (MLDQueryKind) ICMPv6Type() ICMPv6Type { return ICMPv6MulticastListenerQuery }

// ICMPv6Code implements ICMPv6MessageKind.
func (MLDQueryKind) ICMPv6Code() byte { return 0 }

// EncodeDelay implements MLDv1Semantics.
func (MLDQueryKind) EncodeDelay(d MLDResponseDelay) uint16 { return uint16(d) }

// DecodeDelay implements MLDv1Semantics.
func (MLDQueryKind) DecodeDelay(code uint16) MLDResponseDelay { return MLDResponseDelay(code) }

// EncodeGroup implements MLDv1Semantics.
//
// Panics if g is not an IPv6 address.
func (MLDQueryKind) EncodeGroup(g tcpip.Address) tcpip.Address {
	if len(g) != IPv6AddressSize {
		panic(fmt.Sprintf("MLD query group %q is %d bytes, want %d", g, len(g), IPv6AddressSize))
	}
	return g
}

// DecodeGroup implements MLDv1Semantics.
func (MLDQueryKind) DecodeGroup(addr tcpip.Address) (tcpip.Address, error) { return addr, nil }

// MLDReportKind is the Multicast Listener Report.
type MLDReportKind struct{}

var _ MLDKind[MLDUnit, MulticastAddress] = MLDReportKind{}

// ICMPv6Type implements ICMPv6MessageKind.
func (MLDReportKind) ICMPv6Type() ICMPv6Type { return ICMPv6MulticastListenerReport }

// ICMPv6Code implements ICMPv6MessageKind.
func (MLDReportKind) ICMPv6Code() byte { return 0 }

// EncodeDelay implements MLDv1Semantics.
func (MLDReportKind) EncodeDelay(MLDUnit) uint16 { return 0 }

// DecodeDelay implements MLDv1Semantics. Senders set the field to zero and
// receivers ignore it.
func (MLDReportKind) DecodeDelay(uint16) MLDUnit { return MLDUnit{} }

// EncodeGroup implements MLDv1Semantics.
//
// Panics if g is the zero MulticastAddress.
func (MLDReportKind) EncodeGroup(g MulticastAddress) tcpip.Address { return encodeMulticastGroup(g) }

// DecodeGroup implements MLDv1Semantics.
func (MLDReportKind) DecodeGroup(addr tcpip.Address) (MulticastAddress, error) {
	return decodeMulticastGroup(addr)
}

// MLDDoneKind is the Multicast Listener Done.
type MLDDoneKind struct{}

var _ MLDKind[MLDUnit, MulticastAddress] = MLDDoneKind{}

// ICMPv6Type implements ICMPv6MessageKind.
func (MLDDoneKind) ICMPv6Type() ICMPv6Type { return ICMPv6MulticastListenerDone }

// ICMPv6Code implements ICMPv6MessageKind.
func (MLDDoneKind) ICMPv6Code() byte { return 0 }

// EncodeDelay implements MLDv1Semantics.
func (MLDDoneKind) EncodeDelay(MLDUnit) uint16 { return 0 }

// DecodeDelay implements MLDv1Semantics.
func (MLDDoneKind) DecodeDelay(uint16) MLDUnit { return MLDUnit{} }

// EncodeGroup implements MLDv1Semantics.
//
// Panics if g is the zero MulticastAddress.
func (MLDDoneKind) EncodeGroup(g MulticastAddress) tcpip.Address { return encodeMulticastGroup(g) }

// DecodeGroup implements MLDv1Semantics.
func (MLDDoneKind) DecodeGroup(addr tcpip.Address) (MulticastAddress, error) {
	return decodeMulticastGroup(addr)
}

func encodeMulticastGroup(g MulticastAddress) tcpip.Address {
	if !IsV6MulticastAddress(g.addr) {
		panic(fmt.Sprintf("MLD group %q is not an IPv6 multicast address", g.addr))
	}
	return g.addr
}

func decodeMulticastGroup(addr tcpip.Address) (MulticastAddress, error) {
	g, ok := NewMulticastAddress(addr)
	if !ok {
		return MulticastAddress{}, fmt.Errorf("%w: %s", ErrMLDGroupAddress, addr)
	}
	return g, nil
}

// MLDMessage is a parsed MLDv1 message body of kind K.
type MLDMessage[K MLDKind[D, G], D, G any] struct {
	body  bufview.Ref[MLD]
	group G
}

// The instantiated message types.
type (
	MLDQuery  = MLDMessage[MLDQueryKind, MLDResponseDelay, tcpip.Address]
	MLDReport = MLDMessage[MLDReportKind, MLDUnit, MulticastAddress]
	MLDDone   = MLDMessage[MLDDoneKind, MLDUnit, MulticastAddress]
)

// ParseMLD parses the body of an ICMPv6 message of kind K. The body must be
// exactly MLDMinimumSize bytes.
func ParseMLD[K MLDKind[D, G], D, G any](body []byte) (MLDMessage[K, D, G], error) {
	ref, ok := bufview.New[MLD](body)
	if !ok {
		return MLDMessage[K, D, G]{}, fmt.Errorf("%w: got %d", ErrMLDSize, len(body))
	}
	var k K
	group, err := k.DecodeGroup(ref.Layout().MulticastAddress())
	if err != nil {
		return MLDMessage[K, D, G]{}, err
	}
	return MLDMessage[K, D, G]{body: ref, group: group}, nil
}

// ParseMLDQuery parses a Multicast Listener Query body.
func ParseMLDQuery(body []byte) (MLDQuery, error) {
	return ParseMLD[MLDQueryKind, MLDResponseDelay, tcpip.Address](body)
}

// ParseMLDReport parses a Multicast Listener Report body.
func ParseMLDReport(body []byte) (MLDReport, error) {
	return ParseMLD[MLDReportKind, MLDUnit, MulticastAddress](body)
}

// ParseMLDDone parses a Multicast Listener Done body.
func ParseMLDDone(body []byte) (MLDDone, error) {
	return ParseMLD[MLDDoneKind, MLDUnit, MulticastAddress](body)
}

// MaxResponseDelay returns the Maximum Response Delay as the kind interprets
// it.
func (m MLDMessage[K, D, G]) MaxResponseDelay() D {
	var k K
	return k.DecodeDelay(m.body.Layout().MaximumResponseCode())
}

// GroupAddress returns the Multicast Address as the kind interprets it.
func (m MLDMessage[K, D, G]) GroupAddress() G {
	return m.group
}

// Body returns the read-only wire view of the message body.
func (m MLDMessage[K, D, G]) Body() MLD {
	return m.body.Layout()
}

// MLDBuilder serializes an MLDv1 message of kind K.
type MLDBuilder[K MLDKind[D, G], D, G any] struct {
	Delay D
	Group G
}

// The instantiated builders.
type (
	MLDQueryBuilder  = MLDBuilder[MLDQueryKind, MLDResponseDelay, tcpip.Address]
	MLDReportBuilder = MLDBuilder[MLDReportKind, MLDUnit, MulticastAddress]
	MLDDoneBuilder   = MLDBuilder[MLDDoneKind, MLDUnit, MulticastAddress]
)

// Length returns the size of the ICMPv6 message Serialize writes.
func (MLDBuilder[K, D, G]) Length() int {
	return MLDMessageSize
}

// Serialize writes the complete ICMPv6 message, header included, into icmp.
// The checksum field is zeroed; it depends on the enclosing IPv6 header.
//
// Panics if len(icmp) != MLDMessageSize or if the kind rejects b.Group; icmp
// is left untouched in both cases.
func (b MLDBuilder[K, D, G]) Serialize(icmp ICMPv6) {
	if len(icmp) != MLDMessageSize {
		panic(fmt.Sprintf("MLD message buffer is %d bytes, want %d", len(icmp), MLDMessageSize))
	}
	var k K
	group := k.EncodeGroup(b.Group)
	icmp.SetType(k.ICMPv6Type())
	icmp.SetCode(k.ICMPv6Code())
	icmp.SetChecksum(0)
	MLD(icmp.MessageBody()).encode(k.EncodeDelay(b.Delay), group)
}
