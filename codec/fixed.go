// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/creachadair/orb/objref"
	"github.com/creachadair/orb/packet"
)

// byteOrder combines the reading and appending halves of a byte order.
type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Fixed is a [Factory] for a codec that encodes every value in a fixed byte
// order. Fixed-width values are stored at their natural size. Text and byte
// strings are prefixed by a 32-bit length; wide text is a 32-bit count of
// 32-bit code points; lists are a 32-bit count followed by the items.
type Fixed struct {
	name  string
	order byteOrder
}

var (
	// BigEndian is the fixed codec in big-endian byte order, "fixed-be".
	BigEndian = Fixed{name: "fixed-be", order: binary.BigEndian}

	// LittleEndian is the fixed codec in little-endian byte order, "fixed-le".
	LittleEndian = Fixed{name: "fixed-le", order: binary.LittleEndian}
)

// Name implements part of [Factory].
func (f Fixed) Name() string { return f.name }

// NewEncoder implements part of [Factory].
func (f Fixed) NewEncoder(w io.Writer) Encoder {
	return &fixedEncoder{w: w, b: packet.NewBuilder(f.order)}
}

// NewDecoder implements part of [Factory].
func (f Fixed) NewDecoder(data []byte) Decoder {
	return &fixedDecoder{s: packet.NewScanner(data).WithOrder(f.order)}
}

type fixedEncoder struct {
	w   io.Writer
	b   *packet.Builder // scratch for the value being written
	err error
}

// flush writes the scratch buffer to the output and resets it.
func (e *fixedEncoder) flush() {
	if e.err == nil {
		_, e.err = e.w.Write(e.b.Bytes())
	}
	e.b.Reset()
}

func (e *fixedEncoder) Fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *fixedEncoder) Err() error { return e.err }

func (e *fixedEncoder) WriteRef(r objref.Ref) {
	e.b.VPutString(r.Scheme)
	e.b.VPutString(r.Authority)
	e.b.VPutString(r.Path)
	e.b.Uint32(r.ObjectID)
	e.b.VPutString(r.Interface)
	e.b.Uint32(r.Version)
	e.flush()
}

func (e *fixedEncoder) WriteBool(v bool)     { e.b.Bool(v); e.flush() }
func (e *fixedEncoder) WriteInt8(v int8)     { e.b.Put(byte(v)); e.flush() }
func (e *fixedEncoder) WriteInt16(v int16)   { e.b.Uint16(uint16(v)); e.flush() }
func (e *fixedEncoder) WriteInt32(v int32)   { e.b.Uint32(uint32(v)); e.flush() }
func (e *fixedEncoder) WriteInt64(v int64)   { e.b.Uint64(uint64(v)); e.flush() }
func (e *fixedEncoder) WriteUint8(v uint8)   { e.b.Put(v); e.flush() }
func (e *fixedEncoder) WriteUint16(v uint16) { e.b.Uint16(v); e.flush() }
func (e *fixedEncoder) WriteUint32(v uint32) { e.b.Uint32(v); e.flush() }
func (e *fixedEncoder) WriteUint64(v uint64) { e.b.Uint64(v); e.flush() }
func (e *fixedEncoder) WriteChar(v byte)     { e.b.Put(v); e.flush() }

func (e *fixedEncoder) WriteWChar(v rune) {
	if !utf8.ValidRune(v) {
		e.Fail(fmt.Errorf("invalid code point %U", v))
		return
	}
	e.b.Uint32(uint32(v))
	e.flush()
}

func (e *fixedEncoder) WriteFloat32(v float32) { e.b.Uint32(math.Float32bits(v)); e.flush() }
func (e *fixedEncoder) WriteFloat64(v float64) { e.b.Uint64(math.Float64bits(v)); e.flush() }
func (e *fixedEncoder) WriteString(s string)   { e.b.VPutString(s); e.flush() }
func (e *fixedEncoder) WriteBytes(v []byte)    { e.b.VPut(v); e.flush() }

func (e *fixedEncoder) WriteWString(s string) {
	e.putWide(s)
	e.flush()
}

func (e *fixedEncoder) putWide(s string) {
	e.b.Grow(4 + 4*len(s))
	e.b.Uint32(uint32(utf8.RuneCountInString(s)))
	for _, r := range s {
		e.b.Uint32(uint32(r))
	}
}

func (e *fixedEncoder) WriteStrings(ss []string) {
	e.b.Uint32(uint32(len(ss)))
	for _, s := range ss {
		e.b.VPutString(s)
	}
	e.flush()
}

func (e *fixedEncoder) WriteWStrings(ss []string) {
	e.b.Uint32(uint32(len(ss)))
	for _, s := range ss {
		e.putWide(s)
	}
	e.flush()
}

type fixedDecoder struct {
	s *packet.Scanner
}

func decodeErr(what string, err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %s: %w", ErrDecode, what, err)
}

func (d *fixedDecoder) Len() int { return d.s.Len() }

func (d *fixedDecoder) str(what string) (string, error) {
	s, err := packet.VGet[string](d.s)
	if err != nil {
		return "", decodeErr(what, err)
	}
	return s, nil
}

func (d *fixedDecoder) u32(what string) (uint32, error) {
	v, err := d.s.Uint32()
	if err != nil {
		return 0, decodeErr(what, err)
	}
	return v, nil
}

// count reads a list count and checks that the remaining input could hold
// that many items of at least size bytes each.
func (d *fixedDecoder) count(what string, size int) (int, error) {
	n, err := d.u32(what)
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(size) > uint64(d.s.Len()) {
		return 0, decodeErr(what, fmt.Errorf("count %d exceeds %d bytes remaining", n, d.s.Len()))
	}
	return int(n), nil
}

func (d *fixedDecoder) ReadRef() (objref.Ref, error) {
	var r objref.Ref
	var err error
	if r.Scheme, err = d.str("ref scheme"); err != nil {
		return objref.Ref{}, err
	}
	if r.Authority, err = d.str("ref authority"); err != nil {
		return objref.Ref{}, err
	}
	if r.Path, err = d.str("ref path"); err != nil {
		return objref.Ref{}, err
	}
	if r.ObjectID, err = d.u32("ref object id"); err != nil {
		return objref.Ref{}, err
	}
	if r.Interface, err = d.str("ref interface"); err != nil {
		return objref.Ref{}, err
	}
	if r.Version, err = d.u32("ref version"); err != nil {
		return objref.Ref{}, err
	}
	return r, nil
}

func (d *fixedDecoder) ReadBool() (bool, error) {
	v, err := d.s.Bool()
	if err != nil {
		return false, decodeErr("bool", err)
	}
	return v, nil
}

func (d *fixedDecoder) ReadUint8() (uint8, error) {
	v, err := d.s.Byte()
	if err != nil {
		return 0, decodeErr("uint8", err)
	}
	return v, nil
}

func (d *fixedDecoder) ReadUint16() (uint16, error) {
	v, err := d.s.Uint16()
	if err != nil {
		return 0, decodeErr("uint16", err)
	}
	return v, nil
}

func (d *fixedDecoder) ReadUint32() (uint32, error) { return d.u32("uint32") }

func (d *fixedDecoder) ReadUint64() (uint64, error) {
	v, err := d.s.Uint64()
	if err != nil {
		return 0, decodeErr("uint64", err)
	}
	return v, nil
}

func (d *fixedDecoder) ReadInt8() (int8, error) {
	v, err := d.ReadUint8()
	return int8(v), err
}

func (d *fixedDecoder) ReadInt16() (int16, error) {
	v, err := d.ReadUint16()
	return int16(v), err
}

func (d *fixedDecoder) ReadInt32() (int32, error) {
	v, err := d.ReadUint32()
	return int32(v), err
}

func (d *fixedDecoder) ReadInt64() (int64, error) {
	v, err := d.ReadUint64()
	return int64(v), err
}

func (d *fixedDecoder) ReadChar() (byte, error) { return d.ReadUint8() }

func (d *fixedDecoder) ReadWChar() (rune, error) {
	v, err := d.u32("wchar")
	if err != nil {
		return 0, err
	} else if !utf8.ValidRune(rune(v)) {
		return 0, decodeErr("wchar", fmt.Errorf("invalid code point %#x", v))
	}
	return rune(v), nil
}

func (d *fixedDecoder) ReadFloat32() (float32, error) {
	v, err := d.u32("float32")
	return math.Float32frombits(v), err
}

func (d *fixedDecoder) ReadFloat64() (float64, error) {
	v, err := d.s.Uint64()
	if err != nil {
		return 0, decodeErr("float64", err)
	}
	return math.Float64frombits(v), nil
}

func (d *fixedDecoder) ReadString() (string, error) { return d.str("string") }

func (d *fixedDecoder) ReadWString() (string, error) {
	n, err := d.count("wstring length", 4)
	if err != nil {
		return "", err
	}
	buf := make([]byte, 0, n)
	for range n {
		r, err := d.ReadWChar()
		if err != nil {
			return "", err
		}
		buf = utf8.AppendRune(buf, r)
	}
	return string(buf), nil
}

func (d *fixedDecoder) ReadBytes() ([]byte, error) {
	v, err := packet.VGet[[]byte](d.s)
	if err != nil {
		return nil, decodeErr("bytes", err)
	}
	return bytes.Clone(v), nil
}

func (d *fixedDecoder) ReadStrings() ([]string, error) {
	n, err := d.count("string list", 4)
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = d.str("string list item"); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *fixedDecoder) ReadWStrings() ([]string, error) {
	n, err := d.count("wstring list", 4)
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = d.ReadWString(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
