// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package packet_test

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/creachadair/orb/packet"
	"github.com/google/go-cmp/cmp"
)

func TestBuilder(t *testing.T) {
	var b packet.Builder
	b.Bool(true)
	b.Put(5, 9, 100)
	b.Uint16(5000)
	b.Uint32(0xfc009a01)
	b.Uint64(0x0102030405060708)
	b.VPutString("apple")
	b.VPut([]byte("pear"))
	b.PutString("xyzzy")

	const want = "\x01\x05\x09\x64\x13\x88\xfc\x00\x9a\x01\x01\x02\x03\x04\x05\x06\x07\x08" +
		"\x00\x00\x00\x05apple\x00\x00\x00\x04pearxyzzy"

	if n := b.Len(); n != len(want) {
		t.Errorf("Len = %d, want %d", n, len(want))
	}
	if string(b.Bytes()) != want {
		t.Errorf("Bytes = %q, want %q", b.Bytes(), want)
	}

	s := packet.NewScanner(b.Bytes())
	check(t, "Bool", s.Bool, true)
	check(t, "Byte 1", s.Byte, 5)
	check(t, "Byte 2", s.Byte, 9)
	check(t, "Byte 3", s.Byte, 100)
	check(t, "Uint16", s.Uint16, 5000)
	check(t, "Uint32", s.Uint32, 0xfc009a01)
	check(t, "Uint64", s.Uint64, 0x0102030405060708)
	check(t, "VString", func() (string, error) { return packet.VGet[string](s) }, "apple")
	check(t, "VBytes", func() ([]byte, error) { return packet.VGet[[]byte](s) }, []byte("pear"))
	check(t, "Literal", func() (string, error) { return packet.Get[string](s, 5) }, "xyzzy")

	if s.Len() != 0 {
		t.Errorf("Extra data at EOF (%d bytes): %q", s.Len(), s.Rest())
	}
}

func TestByteOrder(t *testing.T) {
	b := packet.NewBuilder(binary.LittleEndian)
	b.Uint16(0x0102)
	b.Uint32(0x03040506)
	b.VPutString("hi")

	const want = "\x02\x01\x06\x05\x04\x03\x02\x00\x00\x00hi"
	if got := string(b.Bytes()); got != want {
		t.Errorf("Bytes = %q, want %q", got, want)
	}

	s := packet.NewScanner(b.Bytes()).WithOrder(binary.LittleEndian)
	check(t, "Uint16", s.Uint16, 0x0102)
	check(t, "Uint32", s.Uint32, 0x03040506)
	check(t, "VString", func() (string, error) { return packet.VGet[string](s) }, "hi")
}

func TestTruncated(t *testing.T) {
	tests := []struct {
		name  string
		input string
		scan  func(*packet.Scanner) error
	}{
		{"Byte", "", func(s *packet.Scanner) error { _, err := s.Byte(); return err }},
		{"Uint16", "\x01", func(s *packet.Scanner) error { _, err := s.Uint16(); return err }},
		{"Uint32", "\x01\x02\x03", func(s *packet.Scanner) error { _, err := s.Uint32(); return err }},
		{"Uint64", "\x01\x02\x03\x04", func(s *packet.Scanner) error { _, err := s.Uint64(); return err }},
		{"VGetLength", "\x00\x00\x00\x09abc", func(s *packet.Scanner) error {
			_, err := packet.VGet[string](s)
			return err
		}},
		{"VGetHuge", "\xff\xff\xff\xff", func(s *packet.Scanner) error {
			_, err := packet.VGet[[]byte](s)
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := packet.NewScanner(tc.input)
			err := tc.scan(s)
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Errorf("Scan: got %v, want %v", err, io.ErrUnexpectedEOF)
			}
		})
	}
}

func TestBool(t *testing.T) {
	s := packet.NewScanner("\x00\x01\x02")
	check(t, "False", s.Bool, false)
	check(t, "True", s.Bool, true)
	if v, err := s.Bool(); err == nil {
		t.Errorf("Bool(0x02): got %v, want error", v)
	}
	if s.Len() != 1 {
		t.Errorf("Len after invalid Bool: got %d, want 1", s.Len())
	}
}

func TestStrings(t *testing.T) {
	want := []string{"fixed-be", "", "fixed-le"}
	enc := packet.Strings(want)
	got, err := packet.ParseStrings(enc)
	if err != nil {
		t.Fatalf("ParseStrings: unexpected error: %v", err)
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("ParseStrings (-got, +want):\n%s", diff)
	}

	for _, bad := range []string{
		"",                     // no count
		"\x00\x00\x00\x02",     // count exceeds data
		"\x00\x00\x00\x00junk", // trailing data
		"\x00\x00\x00\x01\x00\x00\x00\x05ab", // short item
	} {
		if got, err := packet.ParseStrings([]byte(bad)); err == nil {
			t.Errorf("ParseStrings(%q): got %q, want error", bad, got)
		}
	}
}

func check[T any](t *testing.T, label string, f func() (T, error), want T) {
	t.Helper()

	got, err := f()
	if err != nil {
		t.Errorf("%s: unexpected error: %v", label, err)
	} else if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("%s result (-got, +want):\n%s", label, diff)
	}
}
