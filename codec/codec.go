// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package codec defines the contract for the wire encodings used by a broker
// to carry call parameters and results, and provides a concrete codec that
// encodes values in a fixed byte order.
//
// An [Encoder] writes a sequence of values to an [io.Writer]. A [Decoder]
// reads the same sequence back from a byte slice. Every length or count
// prefix read by a Decoder is validated against the bytes remaining, and a
// failure reports an error wrapping [ErrDecode] without reading past the end
// of the input.
//
// Each connection selects one codec at open time with [Negotiate].
package codec

import (
	"errors"
	"io"
	"slices"

	"github.com/creachadair/orb/objref"
)

var (
	// ErrDecode is reported for malformed or truncated encoded data.
	ErrDecode = errors.New("decode error")

	// ErrNoCommonEncoding is reported when two peers share no encoding.
	ErrNoCommonEncoding = errors.New("no common encoding")
)

// An Encoder writes encoded values. Write errors are sticky: once a write
// fails, later writes are no-ops and Err reports the first failure.
type Encoder interface {
	WriteRef(objref.Ref)
	WriteBool(bool)
	WriteInt8(int8)
	WriteInt16(int16)
	WriteInt32(int32)
	WriteInt64(int64)
	WriteUint8(uint8)
	WriteUint16(uint16)
	WriteUint32(uint32)
	WriteUint64(uint64)

	// WriteChar writes a narrow character.
	WriteChar(byte)

	// WriteWChar writes a wide character. A value that is not a valid
	// Unicode code point is an encoding error.
	WriteWChar(rune)

	WriteFloat32(float32)
	WriteFloat64(float64)

	// WriteString writes narrow text as its raw bytes.
	WriteString(string)

	// WriteWString writes text as a sequence of wide characters. Invalid
	// UTF-8 in the input is encoded as U+FFFD.
	WriteWString(string)

	WriteBytes([]byte)
	WriteStrings([]string)
	WriteWStrings([]string)

	// Fail records err as the sticky error of the encoder, if no error has
	// already been recorded.
	Fail(err error)

	// Err reports the first error encountered by the encoder, or nil.
	Err() error
}

// A Decoder reads values written by the matching [Encoder].
type Decoder interface {
	ReadRef() (objref.Ref, error)
	ReadBool() (bool, error)
	ReadInt8() (int8, error)
	ReadInt16() (int16, error)
	ReadInt32() (int32, error)
	ReadInt64() (int64, error)
	ReadUint8() (uint8, error)
	ReadUint16() (uint16, error)
	ReadUint32() (uint32, error)
	ReadUint64() (uint64, error)
	ReadChar() (byte, error)
	ReadWChar() (rune, error)
	ReadFloat32() (float32, error)
	ReadFloat64() (float64, error)
	ReadString() (string, error)
	ReadWString() (string, error)

	// ReadBytes returns a copy of the encoded bytes, not aliasing the input.
	ReadBytes() ([]byte, error)
	ReadStrings() ([]string, error)
	ReadWStrings() ([]string, error)

	// Len reports the number of unread input bytes.
	Len() int
}

// A Factory constructs encoders and decoders for one named wire format.
type Factory interface {
	// Name reports the encoding name advertised during negotiation.
	Name() string

	// NewEncoder returns an Encoder that writes to w.
	NewEncoder(w io.Writer) Encoder

	// NewDecoder returns a Decoder that reads from data. The decoder does not
	// modify data, and the caller must not modify it while the decoder is in
	// use.
	NewDecoder(data []byte) Decoder
}

// Negotiate selects an encoding given the preference list of the peer that
// opened a connection and the list supported by the accepting peer. It
// returns the first name in opener that is also present in acceptor. If there
// is none, it reports [ErrNoCommonEncoding].
func Negotiate(opener, acceptor []string) (string, error) {
	for _, name := range opener {
		if slices.Contains(acceptor, name) {
			return name, nil
		}
	}
	return "", ErrNoCommonEncoding
}
