// Copyright 2026 The gVisor Authors.
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

// Package bufview provides checked, zero-copy views of fixed-size wire
// layouts over byte buffers.
//
// A Layout is a byte slice type whose methods read and write a protocol
// structure in place. Any byte pattern of the right length is a valid
// instance of a Layout, and a Layout has no padding. The only way to obtain a
// Layout over untrusted bytes is through New, NewFromPrefix, NewMut or
// NewMutFromPrefix, which verify the length (and alignment, when the layout
// declares one) exactly once. Accessors on the returned view then index the
// buffer without further bounds reasoning.
//
// Read-only access is a calling convention, not something the type system
// enforces: Ref.Layout returns the Layout itself, a slice aliasing the
// borrowed buffer, so writes through it are visible to every other view of
// that buffer. Code holding a Ref must not call the Layout's setters or write
// to its bytes. Take a MutRef where mutation is intended, and copy the bytes
// where a view must outlive or be isolated from its buffer.
package bufview

// Layout is implemented by fixed-size wire formats.
//
// SizeBytes and AlignBytes must not read the receiver: they are invoked on
// the zero value of the type to describe the layout before any buffer is
// checked.
type Layout interface {
	~[]byte

	// SizeBytes returns the number of bytes the layout occupies.
	SizeBytes() int

	// AlignBytes returns the required alignment of the first byte of the
	// layout. Layouts returning 0 or 1 are alignment-free and are never
	// checked for alignment.
	AlignBytes() int
}

// Ref is a read-only view of a Layout. It borrows the buffer it was created
// from and never owns it.
type Ref[T Layout] struct {
	b T
}

// New returns a Ref over b if len(b) equals the size of T and b satisfies
// T's alignment.
func New[T Layout](b []byte) (Ref[T], bool) {
	if !check[T](b, true /* exact */) {
		return Ref[T]{}, false
	}
	return Ref[T]{b: T(b[:sizeOf[T]():sizeOf[T]()])}, true
}

// NewFromPrefix returns a Ref over the first SizeBytes of b and the remaining
// bytes of b. It fails if b is shorter than T or misaligned.
func NewFromPrefix[T Layout](b []byte) (Ref[T], []byte, bool) {
	if !check[T](b, false /* exact */) {
		return Ref[T]{}, nil, false
	}
	n := sizeOf[T]()
	return Ref[T]{b: T(b[:n:n])}, b[n:], true
}

// Layout returns the typed view. It aliases the borrowed buffer; callers
// holding a Ref must treat it as read-only, as mutation is only granted
// through MutRef.
func (r Ref[T]) Layout() T {
	return r.b
}

// Len returns the number of bytes covered by the view.
func (r Ref[T]) Len() int {
	return len(r.b)
}

// MutRef is a mutable view of a Layout.
type MutRef[T Layout] struct {
	b T
}

// NewMut is New for buffers the caller may write through.
func NewMut[T Layout](b []byte) (MutRef[T], bool) {
	r, ok := New[T](b)
	return MutRef[T]{b: r.b}, ok
}

// NewMutFromPrefix is NewFromPrefix for buffers the caller may write through.
func NewMutFromPrefix[T Layout](b []byte) (MutRef[T], []byte, bool) {
	r, rest, ok := NewFromPrefix[T](b)
	return MutRef[T]{b: r.b}, rest, ok
}

// Layout returns the typed view.
func (r MutRef[T]) Layout() T {
	return r.b
}

// Bytes returns the underlying bytes for writing.
func (r MutRef[T]) Bytes() []byte {
	return r.b
}

// Len returns the number of bytes covered by the view.
func (r MutRef[T]) Len() int {
	return len(r.b)
}

// ReadOnly drops the write grant.
func (r MutRef[T]) ReadOnly() Ref[T] {
	return Ref[T]{b: r.b}
}

func sizeOf[T Layout]() int {
	var t T
	return t.SizeBytes()
}

func check[T Layout](b []byte, exact bool) bool {
	var t T
	size := t.SizeBytes()
	if exact && len(b) != size {
		return false
	}
	if len(b) < size {
		return false
	}
	if align := t.AlignBytes(); align > 1 && size > 0 && !aligned(b, align) {
		return false
	}
	return true
}
