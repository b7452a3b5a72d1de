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

package header

import (
	"errors"
	"fmt"

	"github.com/vsrinivas/fuchsia-sub084/pkg/tcpip"
)

// NDPOptionIdentifier is an NDP option type identifier.
type NDPOptionIdentifier uint8

const (
	// NDPSourceLinkLayerAddressOptionType is the type of the Source Link Layer
	// Address option, as per RFC 4861 section 4.6.1.
	NDPSourceLinkLayerAddressOptionType NDPOptionIdentifier = 1

	// NDPTargetLinkLayerAddressOptionType is the type of the Target Link Layer
	// Address option, as per RFC 4861 section 4.6.1.
	NDPTargetLinkLayerAddressOptionType NDPOptionIdentifier = 2

	// ndpOptionHeaderSize is the size of the Type and Length fields that
	// start every NDP option.
	ndpOptionHeaderSize = 2

	// lengthByteUnits is the multiplier factor for the Length field of an
	// NDP option. That is, the length field for NDP options is in units of
	// 8 octets, as per RFC 4861 section 4.6.
	lengthByteUnits = 8

	// maxOptionLengthUnits is the largest value of the one-byte Length
	// field.
	maxOptionLengthUnits = 255
)

// Errors returned while iterating over NDP options.
var (
	// ErrNDPOptMalformedHeader indicates that an option's Length field is
	// zero, which RFC 4861 section 4.6 forbids.
	ErrNDPOptMalformedHeader = errors.New("NDP option has a zero length field")

	// ErrNDPOptBufExhausted indicates that an option claims more bytes than
	// remain in the buffer.
	ErrNDPOptBufExhausted = errors.New("NDP option extends past the end of the buffer")
)

// NDPOption is the set of functions to be implemented by all NDP option types.
type NDPOption interface {
	fmt.Stringer

	// Type returns the type of the receiver.
	Type() NDPOptionIdentifier

	// Length returns the length of the body of the receiver, in bytes.
	Length() int

	// serializeInto serializes the receiver into the provided byte
	// buffer.
	//
	// Note, the caller MUST provide a byte buffer with size of at least
	// Length. Implementers of this function may assume that the byte buffer
	// is of sufficient size. serializeInto MAY panic if the provided byte
	// buffer is not of sufficient size.
	//
	// serializeInto will return the number of bytes that was used to
	// serialize the receiver. Implementers must only use the number of
	// bytes required to serialize the receiver. Callers MAY provide a
	// larger buffer than required to serialize into.
	serializeInto([]byte) int
}

// paddedLength returns the length of o, in bytes, with any padding bytes, if
// required.
func paddedLength(o NDPOption) int {
	l := o.Length()

	if l == 0 {
		return 0
	}

	// Length excludes the 2 Type and Length bytes.
	l += ndpOptionHeaderSize

	// Add extra bytes if needed to make sure the option is
	// lengthByteUnits-byte aligned. We do this by adding lengthByteUnits-1
	// to l and then stripping off the last few LSBits from l. This will
	// make sure that l is rounded up to the nearest unit of
	// lengthByteUnits. This works since lengthByteUnits is a power of 2
	// (= 8).
	mask := lengthByteUnits - 1
	l += mask
	l &^= mask

	if l/lengthByteUnits > maxOptionLengthUnits {
		// Should never happen because an option can only have a max
		// value of 255 for its Length field, so just return 0 so this
		// option does not get serialized.
		//
		// Returning 0 here will make sure that this option does not get
		// serialized when NDPOptions.Serialize is called with the
		// NDPOptionsSerializer that holds this option, effectively
		// skipping this option during serialization. Also note that
		// a value of zero for the Length field in an NDP option is
		// invalid so this is another sign to the caller that this NDP
		// option is malformed, as per RFC 4861 section 4.6.
		return 0
	}

	return l
}

// NDPOptionsSerializer is a serializer for NDP options.
type NDPOptionsSerializer []NDPOption

// Length returns the total number of bytes required to serialize.
func (b NDPOptionsSerializer) Length() int {
	l := 0

	for _, o := range b {
		l += paddedLength(o)
	}

	return l
}

// NDPOptions is a buffer of NDP options as defined by RFC 4861 section 4.6.
type NDPOptions []byte

// Serialize serializes the provided list of NDP options into b.
//
// Note, b must be of sufficient size to hold all the options in s. See
// NDPOptionsSerializer.Length for details on the getting the total size
// of a serialized NDPOptionsSerializer.
//
// Serialize may panic if b is not of sufficient size to hold all the options
// in s.
func (b NDPOptions) Serialize(s NDPOptionsSerializer) int {
	done := 0

	for _, o := range s {
		l := paddedLength(o)

		if l == 0 {
			continue
		}

		b[0] = byte(o.Type())

		// We know this safe because paddedLength would have returned
		// 0 if o had an invalid length (> 255 * lengthByteUnits).
		b[1] = uint8(l / lengthByteUnits)

		// Serialize NDP option body.
		used := o.serializeInto(b[ndpOptionHeaderSize:])

		// Zero out remaining (padding) bytes, if any exists.
		clear(b[ndpOptionHeaderSize+used : l])

		b = b[l:]
		done += l
	}

	return done
}

// Iter returns an iterator over the options in b.
func (b NDPOptions) Iter() NDPOptionIterator {
	return NDPOptionIterator{opts: b}
}

// NDPOptionIterator is an iterator over NDP options.
//
// Note, between when an NDPOptionIterator is obtained and last used, no
// changes to the NDPOptions may happen.
type NDPOptionIterator struct {
	opts []byte
}

// Next returns the next option in the buffer. done is true once all options
// have been consumed. A malformed option ends the iteration with an error;
// options of unknown type are returned as NDPUnknownOption.
func (i *NDPOptionIterator) Next() (opt NDPOption, done bool, err error) {
	if len(i.opts) == 0 {
		return nil, true, nil
	}
	if len(i.opts) < ndpOptionHeaderSize {
		i.opts = nil
		return nil, true, ErrNDPOptBufExhausted
	}

	typ := NDPOptionIdentifier(i.opts[0])
	l := int(i.opts[1]) * lengthByteUnits
	if l == 0 {
		i.opts = nil
		return nil, true, ErrNDPOptMalformedHeader
	}
	if l > len(i.opts) {
		i.opts = nil
		return nil, true, fmt.Errorf("%w: option needs %d bytes, have %d", ErrNDPOptBufExhausted, l, len(i.opts))
	}

	body := i.opts[ndpOptionHeaderSize:l:l]
	i.opts = i.opts[l:]

	switch typ {
	case NDPSourceLinkLayerAddressOptionType:
		return NDPSourceLinkLayerAddressOption(body), false, nil
	case NDPTargetLinkLayerAddressOptionType:
		return NDPTargetLinkLayerAddressOption(body), false, nil
	default:
		return &NDPUnknownOption{typ: typ, body: body}, false, nil
	}
}

// NDPSourceLinkLayerAddressOption is the NDP Source Link Layer Option
// as defined by RFC 4861 section 4.6.1.
//
// It is the first X bytes following the NDP option's Type and Length field
// where X is the value in Length multiplied by lengthByteUnits - 2 bytes. The
// address is carried verbatim and zero padded up to the next 8-octet unit; a
// parsed option includes that padding.
type NDPSourceLinkLayerAddressOption tcpip.LinkAddress

// Type implements NDPOption.
func (o NDPSourceLinkLayerAddressOption) Type() NDPOptionIdentifier {
	return NDPSourceLinkLayerAddressOptionType
}

// Length implements NDPOption.
func (o NDPSourceLinkLayerAddressOption) Length() int {
	return len(o)
}

// serializeInto implements NDPOption.
func (o NDPSourceLinkLayerAddressOption) serializeInto(b []byte) int {
	return copy(b, o)
}

// String implements fmt.Stringer.
func (o NDPSourceLinkLayerAddressOption) String() string {
	return fmt.Sprintf("%T(%s)", o, tcpip.LinkAddress(o))
}

// NDPTargetLinkLayerAddressOption is the NDP Target Link Layer Option
// as defined by RFC 4861 section 4.6.1.
type NDPTargetLinkLayerAddressOption tcpip.LinkAddress

// Type implements NDPOption.
func (o NDPTargetLinkLayerAddressOption) Type() NDPOptionIdentifier {
	return NDPTargetLinkLayerAddressOptionType
}

// Length implements NDPOption.
func (o NDPTargetLinkLayerAddressOption) Length() int {
	return len(o)
}

// serializeInto implements NDPOption.
func (o NDPTargetLinkLayerAddressOption) serializeInto(b []byte) int {
	return copy(b, o)
}

// String implements fmt.Stringer.
func (o NDPTargetLinkLayerAddressOption) String() string {
	return fmt.Sprintf("%T(%s)", o, tcpip.LinkAddress(o))
}

// NDPUnknownOption is an option of a type this package does not interpret.
type NDPUnknownOption struct {
	typ  NDPOptionIdentifier
	body []byte
}

// Type implements NDPOption.
func (o *NDPUnknownOption) Type() NDPOptionIdentifier {
	return o.typ
}

// Length implements NDPOption.
func (o *NDPUnknownOption) Length() int {
	return len(o.body)
}

// serializeInto implements NDPOption.
func (o *NDPUnknownOption) serializeInto(b []byte) int {
	return copy(b, o.body)
}

// String implements fmt.Stringer.
func (o *NDPUnknownOption) String() string {
	return fmt.Sprintf("%T(%d, %x)", o, o.typ, o.body)
}
