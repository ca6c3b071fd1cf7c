// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package codec

import (
	"bytes"
	"encoding"
	"fmt"

	"github.com/creachadair/orb/objref"
)

// A Value pairs the operations to encode and decode one Go type. Values
// describe the parameter and result types of interface methods.
type Value[T any] struct {
	Put func(Encoder, T)
	Get func(Decoder) (T, error)
}

// Predefined values for the primitive types.
var (
	Bool     = Value[bool]{Encoder.WriteBool, Decoder.ReadBool}
	Int8     = Value[int8]{Encoder.WriteInt8, Decoder.ReadInt8}
	Int16    = Value[int16]{Encoder.WriteInt16, Decoder.ReadInt16}
	Int32    = Value[int32]{Encoder.WriteInt32, Decoder.ReadInt32}
	Int64    = Value[int64]{Encoder.WriteInt64, Decoder.ReadInt64}
	Uint8    = Value[uint8]{Encoder.WriteUint8, Decoder.ReadUint8}
	Uint16   = Value[uint16]{Encoder.WriteUint16, Decoder.ReadUint16}
	Uint32   = Value[uint32]{Encoder.WriteUint32, Decoder.ReadUint32}
	Uint64   = Value[uint64]{Encoder.WriteUint64, Decoder.ReadUint64}
	Char     = Value[byte]{Encoder.WriteChar, Decoder.ReadChar}
	WChar    = Value[rune]{Encoder.WriteWChar, Decoder.ReadWChar}
	Float32  = Value[float32]{Encoder.WriteFloat32, Decoder.ReadFloat32}
	Float64  = Value[float64]{Encoder.WriteFloat64, Decoder.ReadFloat64}
	String   = Value[string]{Encoder.WriteString, Decoder.ReadString}
	WString  = Value[string]{Encoder.WriteWString, Decoder.ReadWString}
	Bytes    = Value[[]byte]{Encoder.WriteBytes, Decoder.ReadBytes}
	Strings  = Value[[]string]{Encoder.WriteStrings, Decoder.ReadStrings}
	WStrings = Value[[]string]{Encoder.WriteWStrings, Decoder.ReadWStrings}
	Ref      = Value[objref.Ref]{Encoder.WriteRef, Decoder.ReadRef}
)

// Void is a Value for methods that take no parameters or return no result.
// It encodes nothing.
var Void = Value[struct{}]{
	Put: func(Encoder, struct{}) {},
	Get: func(Decoder) (struct{}, error) { return struct{}{}, nil },
}

// Binary returns a Value for T that encodes as a length-prefixed byte string.
// T (or *T) must implement [encoding.BinaryMarshaler], and *T must implement
// [encoding.BinaryUnmarshaler]. If these are missing, encoding fails.
func Binary[T any]() Value[T] { return marshaled[T](false) }

// Text returns a Value for T that encodes as a length-prefixed byte string.
// T (or *T) must implement [encoding.TextMarshaler], and *T must implement
// [encoding.TextUnmarshaler]. If these are missing, encoding fails.
func Text[T any]() Value[T] { return marshaled[T](true) }

func marshaled[T any](text bool) Value[T] {
	return Value[T]{
		Put: func(e Encoder, v T) {
			data, err := marshal(v, text)
			if err != nil {
				data, err = marshal(&v, text)
			}
			if err != nil {
				e.Fail(err)
				return
			}
			e.WriteBytes(data)
		},
		Get: func(d Decoder) (T, error) {
			var v T
			data, err := d.ReadBytes()
			if err != nil {
				return v, err
			}
			if err := unmarshal(data, &v, text); err != nil {
				return v, fmt.Errorf("%w: %w", ErrDecode, err)
			}
			return v, nil
		},
	}
}

// unmarshal decodes data into v. The concrete type of v must be a pointer to a
// []byte or string, or must implement either the encoding.BinaryUnmarshaler
// interface or the encoding.TextUnmarshaler interface. If v implements both,
// the text flag selects which is preferred.
func unmarshal(data []byte, v any, text bool) error {
	if text {
		if u, ok := v.(encoding.TextUnmarshaler); ok {
			return u.UnmarshalText(data)
		}
	}
	switch t := v.(type) {
	case *[]byte:
		*t = bytes.Clone(data)
	case *string:
		*t = string(data)
	case encoding.BinaryUnmarshaler:
		return t.UnmarshalBinary(data)
	case encoding.TextUnmarshaler:
		return t.UnmarshalText(data)
	default:
		return fmt.Errorf("cannot unmarshal into %T", v)
	}
	return nil
}

// marshal encodes v into data. The concrete type of v must be a []byte or
// string; otherwise it must implement either the encoding.BinaryMarshaler
// interface or the encoding.TextMarshaler interface. If v implements both,
// the text flag selects which is preferred.
func marshal(v any, text bool) ([]byte, error) {
	if text {
		if m, ok := v.(encoding.TextMarshaler); ok {
			return m.MarshalText()
		}
	}
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	case encoding.BinaryMarshaler:
		return t.MarshalBinary()
	case encoding.TextMarshaler:
		return t.MarshalText()
	default:
		return nil, fmt.Errorf("cannot marshal %T", v)
	}
}
