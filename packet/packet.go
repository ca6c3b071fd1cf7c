// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package packet provides support for encoding and decoding binary packet data.
//
// A [Builder] accumulates fixed-width values and length-prefixed strings in a
// chosen byte order, and a [Scanner] reads them back. Length prefixes are
// 32-bit unsigned integers in the same byte order as the values.
package packet

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/creachadair/mds/value"
)

// A Builder is a buffer that accumulates data into a packet. The zero value is
// ready for use as an empty builder that encodes in big-endian order.
type Builder struct {
	buf   []byte
	order binary.AppendByteOrder
}

// NewBuilder constructs an empty [Builder] that encodes values in the given
// byte order. If order == nil, big-endian order is used.
func NewBuilder(order binary.AppendByteOrder) *Builder {
	return &Builder{order: order}
}

func (b *Builder) byteOrder() binary.AppendByteOrder {
	if b.order == nil {
		return binary.BigEndian
	}
	return b.order
}

// Bool appends a Boolean to b. The encoding is a single byte with value 0 or 1.
func (b *Builder) Bool(ok bool) { b.Put(value.Cond[byte](ok, 1, 0)) }

// Put appends the specified bytes to v in order.
func (b *Builder) Put(vs ...byte) { b.buf = append(b.buf, vs...) }

// PutString appends the specified string to v.
func (b *Builder) PutString(s string) { b.buf = append(b.buf, s...) }

// VPut appends a length-prefixed string to b. The length is encoded as a uint32.
func (b *Builder) VPut(vs []byte) {
	b.Grow(4 + len(vs))
	b.Uint32(uint32(len(vs)))
	b.buf = append(b.buf, vs...)
}

// VPutString appends a length-prefixed string to b. The length is encoded as a uint32.
func (b *Builder) VPutString(s string) {
	b.Grow(4 + len(s))
	b.Uint32(uint32(len(s)))
	b.buf = append(b.buf, s...)
}

// Uint16 appends v to b in the byte order of b.
func (b *Builder) Uint16(v uint16) { b.buf = b.byteOrder().AppendUint16(b.buf, v) }

// Uint32 appends v to b in the byte order of b.
func (b *Builder) Uint32(v uint32) { b.buf = b.byteOrder().AppendUint32(b.buf, v) }

// Uint64 appends v to b in the byte order of b.
func (b *Builder) Uint64(v uint64) { b.buf = b.byteOrder().AppendUint64(b.buf, v) }

// Len reports the number of bytes currently in the buffer.
func (b *Builder) Len() int { return len(b.buf) }

// Bytes reports the current contents of the buffer. The builder retains ownership
// of the reported slice, and the caller must not retain or modify its contents
// unless b will no longer be accessed.
func (b *Builder) Bytes() []byte { return b.buf }

// Reset discards the contents of b and leaves it empty.
func (b *Builder) Reset() { b.buf = b.buf[:0] }

// Grow resizes the internal buffer of b if necessary to ensure that at least n
// more bytes can be added without triggering another allocation.
func (b *Builder) Grow(n int) {
	want := len(b.buf) + n
	if cap(b.buf) < want {
		r := make([]byte, len(b.buf), max(want, 2*cap(b.buf)))
		copy(r, b.buf)
		b.buf = r
	}
}

// A Scanner reads encoded values from the contents of a packet.
// The methods of a scanner return [io.EOF] when no further input is available.
// Incomplete values report [io.ErrUnexpectedEOF].
type Scanner struct {
	input  []byte
	rest   []byte
	offset int // of reset from input
	order  binary.ByteOrder
}

// NewScanner constructs a [Scanner] that consumes big-endian data from input.
// The scanner does not modify the contents of input, but retain slices
// into it, so the caller should ensure it is not modified while the scanner
// is in use.
func NewScanner[Str ~string | ~[]byte](input Str) *Scanner {
	data := []byte(input)
	return &Scanner{input: data, rest: data, order: binary.BigEndian}
}

// WithOrder sets the byte order used by s for fixed-width values and length
// prefixes, and returns s to permit chaining.
func (s *Scanner) WithOrder(order binary.ByteOrder) *Scanner {
	s.order = order
	return s
}

// Bool scans a single byte from the head of the input and converts it into a
// Boolean value (0 means false, 1 means true). Any other byte is an error,
// and is not consumed.
func (s *Scanner) Bool() (bool, error) {
	if len(s.rest) != 0 && s.rest[0] > 1 {
		return false, fmt.Errorf("offset %d: invalid Boolean value %d", s.offset, s.rest[0])
	}
	b, err := s.Byte()
	if err != nil {
		return false, err
	}
	return b == 1, nil
}

// Byte scans a single byte from the head of the input.
func (s *Scanner) Byte() (byte, error) {
	if len(s.rest) == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	s.offset++
	out := s.rest[0]
	s.rest = s.rest[1:]
	return out, nil
}

// Uint16 parses a uint16 value from the head of the input.
func (s *Scanner) Uint16() (uint16, error) {
	if len(s.rest) < 2 {
		return 0, fmt.Errorf("value truncated (%d < 2 bytes): %w", len(s.rest), io.ErrUnexpectedEOF)
	}
	s.offset += 2
	out := s.order.Uint16(s.rest[:2])
	s.rest = s.rest[2:]
	return out, nil
}

// Uint32 parses a uint32 value from the head of the input.
func (s *Scanner) Uint32() (uint32, error) {
	if len(s.rest) < 4 {
		return 0, fmt.Errorf("value truncated (%d < 4 bytes): %w", len(s.rest), io.ErrUnexpectedEOF)
	}
	s.offset += 4
	out := s.order.Uint32(s.rest[:4])
	s.rest = s.rest[4:]
	return out, nil
}

// Uint64 parses a uint64 value from the head of the input.
func (s *Scanner) Uint64() (uint64, error) {
	if len(s.rest) < 8 {
		return 0, fmt.Errorf("value truncated (%d < 8 bytes): %w", len(s.rest), io.ErrUnexpectedEOF)
	}
	s.offset += 8
	out := s.order.Uint64(s.rest[:8])
	s.rest = s.rest[8:]
	return out, nil
}

// Len reports the number of remaining unconsumed input bytes in s.
func (s *Scanner) Len() int { return len(s.rest) }

// Offset reports the offset (0-based) of the next unconsumed input byte in s.
func (s *Scanner) Offset() int { return s.offset }

// Rest returns a slice of the remaining unconsumed input of s.
// The reported slice is only valid until the next call to a method of s,
// and the caller must not modify its contents.
func (s *Scanner) Rest() []byte { return s.rest }

// VGet parses a single length-prefixed string from the head of s.
// The length must be encoded as a uint32, and is checked against the
// remaining input before any of the string is consumed.
// When the result is a slice, the value aliases the input, and the caller must
// not modify its contents.
func VGet[Str ~string | ~[]byte](s *Scanner) (out Str, err error) {
	if len(s.rest) == 0 {
		return out, io.EOF
	}
	n, err := s.Uint32()
	if err != nil {
		return out, err
	}
	if uint64(len(s.rest)) < uint64(n) {
		return out, fmt.Errorf("value truncated (%d < %d bytes): %w", len(s.rest), n, io.ErrUnexpectedEOF)
	}
	s.offset += int(n)
	out = Str(s.rest[:n])
	s.rest = s.rest[n:]
	return out, nil
}

// Get returns a string of exactly n bytes from the head of the input.
// If the full requested amount is not available, a partial result is returned
// along with an error.  When the result is a slice, the value aliases the
// input, and the caller must not modify its contents.
func Get[Str ~string | ~[]byte](s *Scanner, n int) (Str, error) {
	if len(s.rest) < n {
		return Str(s.rest), fmt.Errorf("value truncated (%d < %d bytes): %w", len(s.rest), n, io.ErrUnexpectedEOF)
	}
	s.offset += n
	out := Str(s.rest[:n])
	s.rest = s.rest[n:]
	return out, nil
}

// Strings encodes a list of strings as a uint32 count followed by each string
// with a uint32 length prefix, in big-endian order.
func Strings(ss []string) []byte {
	var b Builder
	b.Uint32(uint32(len(ss)))
	for _, s := range ss {
		b.VPutString(s)
	}
	return b.Bytes()
}

// ParseStrings decodes a list of strings encoded by [Strings]. Trailing data
// after the list is an error.
func ParseStrings(data []byte) ([]string, error) {
	s := NewScanner(data)
	n, err := s.Uint32()
	if err != nil {
		return nil, fmt.Errorf("list count: %w", err)
	}
	if uint64(n)*4 > uint64(s.Len()) {
		return nil, fmt.Errorf("list count %d exceeds %d bytes: %w", n, s.Len(), io.ErrUnexpectedEOF)
	}
	out := make([]string, 0, n)
	for i := range n {
		v, err := VGet[string](s)
		if err != nil {
			return nil, fmt.Errorf("list item %d: %w", i+1, err)
		}
		out = append(out, v)
	}
	if s.Len() != 0 {
		return nil, fmt.Errorf("extra data after list (%d bytes)", s.Len())
	}
	return out, nil
}
