// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package codec_test

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/creachadair/orb/codec"
	"github.com/creachadair/orb/objref"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var factories = []codec.Fixed{codec.BigEndian, codec.LittleEndian}

// roundTrip encodes v with val, decodes the result, and checks that the value
// survives and that re-encoding reproduces the same bytes.
func roundTrip[T any](t *testing.T, f codec.Factory, val codec.Value[T], v T) {
	t.Helper()

	var buf bytes.Buffer
	enc := f.NewEncoder(&buf)
	val.Put(enc, v)
	if err := enc.Err(); err != nil {
		t.Fatalf("Encode %v: unexpected error: %v", v, err)
	}
	dec := f.NewDecoder(buf.Bytes())
	got, err := val.Get(dec)
	if err != nil {
		t.Fatalf("Decode %v: unexpected error: %v", v, err)
	}
	if dec.Len() != 0 {
		t.Errorf("Decode %v: %d bytes left over", v, dec.Len())
	}
	if diff := cmp.Diff(got, v, cmpopts.EquateEmpty(), cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("Round trip (-got, +want):\n%s", diff)
	}

	var again bytes.Buffer
	val.Put(f.NewEncoder(&again), got)
	if !bytes.Equal(again.Bytes(), buf.Bytes()) {
		t.Errorf("Re-encode: got %q, want %q", again.Bytes(), buf.Bytes())
	}
}

func TestRoundTrip(t *testing.T) {
	for _, f := range factories {
		t.Run(f.Name(), func(t *testing.T) {
			roundTrip(t, f, codec.Bool, true)
			roundTrip(t, f, codec.Bool, false)
			roundTrip(t, f, codec.Int8, math.MinInt8)
			roundTrip(t, f, codec.Int16, -12345)
			roundTrip(t, f, codec.Int32, math.MinInt32)
			roundTrip(t, f, codec.Int64, math.MaxInt64)
			roundTrip(t, f, codec.Uint8, 255)
			roundTrip(t, f, codec.Uint16, 0xbeef)
			roundTrip(t, f, codec.Uint32, 0xdeadbeef)
			roundTrip(t, f, codec.Uint64, math.MaxUint64)
			roundTrip(t, f, codec.Char, 'q')
			roundTrip(t, f, codec.WChar, '⌘')
			roundTrip(t, f, codec.Float32, float32(math.Pi))
			roundTrip(t, f, codec.Float32, float32(math.Inf(-1)))
			roundTrip(t, f, codec.Float64, math.E)
			roundTrip(t, f, codec.Float64, math.NaN())
			roundTrip(t, f, codec.String, "")
			roundTrip(t, f, codec.String, "hello, world")
			roundTrip(t, f, codec.WString, "")
			roundTrip(t, f, codec.WString, "naïve 日本語 🐹")
			roundTrip(t, f, codec.Bytes, []byte{0, 1, 2, 255})
			roundTrip(t, f, codec.Bytes, nil)
			roundTrip(t, f, codec.Strings, []string{"a", "", "bcd"})
			roundTrip(t, f, codec.WStrings, []string{"α", "β γ", ""})
			roundTrip(t, f, codec.Void, struct{}{})
			roundTrip(t, f, codec.Ref, objref.Ref{
				Scheme: "tcp", Authority: "host:1", Path: "Date",
				ObjectID: 17, Interface: "Date", Version: 2,
			})
			roundTrip(t, f, codec.Text[textInt](), 12345)
			roundTrip(t, f, codec.Binary[binPair](), binPair{A: 3, B: 250})
		})
	}
}

func TestByteOrder(t *testing.T) {
	var be, le bytes.Buffer
	codec.BigEndian.NewEncoder(&be).WriteUint32(0x01020304)
	codec.LittleEndian.NewEncoder(&le).WriteUint32(0x01020304)
	if got, want := be.String(), "\x01\x02\x03\x04"; got != want {
		t.Errorf("Big-endian: got %q, want %q", got, want)
	}
	if got, want := le.String(), "\x04\x03\x02\x01"; got != want {
		t.Errorf("Little-endian: got %q, want %q", got, want)
	}

	var ws bytes.Buffer
	codec.BigEndian.NewEncoder(&ws).WriteWString("hé")
	if got, want := ws.String(), "\x00\x00\x00\x02\x00\x00\x00h\x00\x00\x00\xe9"; got != want {
		t.Errorf("Wide string: got %q, want %q", got, want)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		read  func(codec.Decoder) error
	}{
		{"EmptyBool", "", func(d codec.Decoder) error { _, err := d.ReadBool(); return err }},
		{"BadBool", "\x02", func(d codec.Decoder) error { _, err := d.ReadBool(); return err }},
		{"ShortInt16", "\x01", func(d codec.Decoder) error { _, err := d.ReadInt16(); return err }},
		{"ShortInt64", "\x01\x02\x03", func(d codec.Decoder) error { _, err := d.ReadInt64(); return err }},
		{"ShortFloat32", "\x01", func(d codec.Decoder) error { _, err := d.ReadFloat32(); return err }},
		{"EmptyString", "", func(d codec.Decoder) error { _, err := d.ReadString(); return err }},
		{"LongString", "\x00\x00\x00\x10abc", func(d codec.Decoder) error { _, err := d.ReadString(); return err }},
		{"HugeBytes", "\xff\xff\xff\xff", func(d codec.Decoder) error { _, err := d.ReadBytes(); return err }},
		{"HugeWString", "\x7f\xff\xff\xff\x00\x00\x00\x41", func(d codec.Decoder) error {
			_, err := d.ReadWString()
			return err
		}},
		{"BadWChar", "\x00\x00\xd8\x00", func(d codec.Decoder) error { _, err := d.ReadWChar(); return err }},
		{"BadWStringItem", "\x00\x00\x00\x01\x00\x11\x00\x00", func(d codec.Decoder) error {
			_, err := d.ReadWString()
			return err
		}},
		{"HugeStrings", "\x00\x01\x00\x00\x00\x00\x00\x00", func(d codec.Decoder) error {
			_, err := d.ReadStrings()
			return err
		}},
		{"ShortStringsItem", "\x00\x00\x00\x01\x00\x00\x00\x09abc", func(d codec.Decoder) error {
			_, err := d.ReadStrings()
			return err
		}},
		{"HugeWStrings", "\x00\x00\x00\x05\x00\x00\x00\x00", func(d codec.Decoder) error {
			_, err := d.ReadWStrings()
			return err
		}},
		{"TruncatedRef", "\x00\x00\x00\x03tcp\x00\x00\x00\x00\x00\x00\x00\x04Da", func(d codec.Decoder) error {
			_, err := d.ReadRef()
			return err
		}},
		{"BadText", "\x00\x00\x00\x03abc", func(d codec.Decoder) error {
			_, err := codec.Text[textInt]().Get(d)
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := codec.BigEndian.NewDecoder([]byte(tc.input))
			if err := tc.read(d); !errors.Is(err, codec.ErrDecode) {
				t.Errorf("Read %q: got %v, want %v", tc.input, err, codec.ErrDecode)
			}
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	var buf bytes.Buffer
	enc := codec.BigEndian.NewEncoder(&buf)
	enc.WriteWChar(0xd800)
	if enc.Err() == nil {
		t.Error("WriteWChar(surrogate): got nil, want error")
	}
	enc.WriteUint8(1)
	if buf.Len() != 0 {
		t.Errorf("Write after error: wrote %q", buf.Bytes())
	}

	enc = codec.BigEndian.NewEncoder(&buf)
	codec.Binary[struct{ X int }]().Put(enc, struct{ X int }{})
	if enc.Err() == nil {
		t.Error("Binary of unmarshalable type: got nil, want error")
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		opener, acceptor []string
		want             string
	}{
		{[]string{"fixed-be", "fixed-le"}, []string{"fixed-le", "fixed-be"}, "fixed-be"},
		{[]string{"fixed-le", "fixed-be"}, []string{"fixed-be", "fixed-le"}, "fixed-le"},
		{[]string{"json", "fixed-le"}, []string{"fixed-be", "fixed-le"}, "fixed-le"},
	}
	for _, tc := range tests {
		got, err := codec.Negotiate(tc.opener, tc.acceptor)
		if err != nil || got != tc.want {
			t.Errorf("Negotiate(%q, %q): got (%q, %v), want %q", tc.opener, tc.acceptor, got, err, tc.want)
		}
	}

	if got, err := codec.Negotiate([]string{"a"}, []string{"b"}); !errors.Is(err, codec.ErrNoCommonEncoding) {
		t.Errorf("Negotiate disjoint: got (%q, %v), want %v", got, err, codec.ErrNoCommonEncoding)
	}
	if got, err := codec.Negotiate(nil, []string{"b"}); !errors.Is(err, codec.ErrNoCommonEncoding) {
		t.Errorf("Negotiate empty: got (%q, %v), want %v", got, err, codec.ErrNoCommonEncoding)
	}
}

type textInt int

func (v textInt) MarshalText() ([]byte, error) { return []byte(strconv.Itoa(int(v))), nil }

func (v *textInt) UnmarshalText(data []byte) error {
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return err
	}
	*v = textInt(n)
	return nil
}

type binPair struct{ A, B byte }

func (p binPair) MarshalBinary() ([]byte, error) { return []byte{p.A, p.B}, nil }

func (p *binPair) UnmarshalBinary(data []byte) error {
	if len(data) != 2 {
		return errors.New("wrong length")
	}
	p.A, p.B = data[0], data[1]
	return nil
}
