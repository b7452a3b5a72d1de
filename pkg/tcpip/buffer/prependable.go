// Copyright 2016 The gVisor Authors.
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

package buffer

// Prependable is a buffer that grows backwards, that is, more data can be
// prepended to it. It is useful when building networking packets, where each
// protocol adds its own headers to the front of the higher-level protocol
// header and payload; for example, ICMPv6 would prepend its message to the
// options, then IPv6 would prepend its own header.
//
// The bytes in front of the used region are spare capacity. Their contents
// are unspecified: a Prependable may be built over a reused buffer, so every
// prepender must overwrite the full region it reserves.
type Prependable struct {
	// Buf is the buffer backing the prependable buffer.
	buf View

	// usedIdx is the index where the used part of the buffer begins.
	usedIdx int
}

// NewPrependable allocates a new prependable buffer with the given size.
func NewPrependable(size int) Prependable {
	return Prependable{buf: NewView(size), usedIdx: size}
}

// NewPrependableFromView creates a Prependable over v whose used part is
// v[reserved:]. The first reserved bytes of v are available for prepending.
//
// Panics if reserved is outside [0, len(v)].
func NewPrependableFromView(v View, reserved int) Prependable {
	if reserved < 0 || reserved > len(v) {
		panic("buffer: reserved space outside the view")
	}
	return Prependable{buf: v, usedIdx: reserved}
}

// NewPrependableWithBody allocates a buffer holding body with reserve bytes of
// spare capacity in front of it.
func NewPrependableWithBody(reserve int, body []byte) Prependable {
	p := NewPrependable(reserve + len(body))
	copy(p.Prepend(len(body)), body)
	return p
}

// Prepend reserves the requested space in front of the buffer, returning a
// slice that represents the reserved space.
//
// Returns nil if fewer than size bytes are available.
func (p *Prependable) Prepend(size int) []byte {
	if size < 0 || size > p.usedIdx {
		return nil
	}

	p.usedIdx -= size
	return p.buf[p.usedIdx:][:size:size]
}

// View returns a View of the backing buffer that contains all prepended
// data so far.
func (p *Prependable) View() View {
	v := p.buf
	v.TrimFront(p.usedIdx)
	return v
}

// UsedBytes returns a slice of the backing buffer that contains all prepended
// data so far.
func (p *Prependable) UsedBytes() []byte {
	return p.buf[p.usedIdx:]
}

// UsedLength returns the number of bytes used so far.
func (p *Prependable) UsedLength() int {
	return len(p.buf) - p.usedIdx
}

// AvailableLength returns the number of bytes that can still be prepended.
func (p *Prependable) AvailableLength() int {
	return p.usedIdx
}
