// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package orb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/creachadair/orb/bufpool"
	"github.com/creachadair/orb/codec"
	"github.com/creachadair/orb/packet"
)

// MaxFrameSize is the largest frame body accepted from or sent to a peer,
// counting the bytes after the length field.
const MaxFrameSize = 16 << 20

const (
	headerLen        = 9  // 4 length, 1 kind, 4 correlation ID
	requestHeaderLen = 17 // header, 4 object ID, 4 method ID

	// Exception messages are truncated to this many bytes.
	maxMessageLen = 4096
)

// FrameKind describes the structure of a frame.
type FrameKind byte

const (
	KindRequest   FrameKind = 1 // A call to a method of an object
	KindReply     FrameKind = 2 // The successful result of a call
	KindException FrameKind = 3 // The failed result of a call
	KindPing      FrameKind = 4 // Handshake or liveness probe
)

func (k FrameKind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindReply:
		return "REPLY"
	case KindException:
		return "EXCEPTION"
	case KindPing:
		return "PING"
	default:
		return fmt.Sprintf("KIND:%d", byte(k))
	}
}

func (k FrameKind) valid() bool { return k >= KindRequest && k <= KindPing }

// Frame is the parsed format of a frame exchanged between connected brokers.
type Frame struct {
	Kind          FrameKind
	CorrelationID uint32
	ObjectID      uint32 // REQUEST only
	MethodID      uint32 // REQUEST only
	Payload       []byte
}

func (f *Frame) headerSize() int {
	if f.Kind == KindRequest {
		return requestHeaderLen
	}
	return headerLen
}

// Encode encodes f in binary format.
func (f Frame) Encode() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, f.headerSize()+len(f.Payload)))
	if _, err := f.WriteTo(buf); err != nil {
		panic(fmt.Errorf("encoding frame: %w", err))
	}
	return buf.Bytes()
}

// WriteTo writes the frame to w in binary format. It satisfies io.WriterTo.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	var hdr [requestHeaderLen]byte
	n := f.putHeader(hdr[:])
	binary.BigEndian.PutUint32(hdr[0:], uint32(n-4+len(f.Payload)))
	nw, err := w.Write(hdr[:n])
	if err == nil && len(f.Payload) != 0 {
		var np int
		np, err = w.Write(f.Payload)
		nw += np
	}
	return int64(nw), err
}

// putHeader writes the header of f into buf with a zero length field, and
// returns the number of bytes used.
func (f *Frame) putHeader(buf []byte) int {
	binary.BigEndian.PutUint32(buf[0:], 0)
	buf[4] = byte(f.Kind)
	binary.BigEndian.PutUint32(buf[5:], f.CorrelationID)
	if f.Kind != KindRequest {
		return headerLen
	}
	binary.BigEndian.PutUint32(buf[9:], f.ObjectID)
	binary.BigEndian.PutUint32(buf[13:], f.MethodID)
	return requestHeaderLen
}

// UnmarshalBinary decodes a frame body, the bytes following the length field.
// It implements encoding.BinaryUnmarshaler. The payload is copied.
func (f *Frame) UnmarshalBinary(body []byte) error {
	s := packet.NewScanner(body)
	kind, err := s.Byte()
	if err != nil {
		return fmt.Errorf("%w: empty frame", ErrProtocol)
	}
	f.Kind = FrameKind(kind)
	if !f.Kind.valid() {
		return fmt.Errorf("%w: invalid frame kind %d", ErrProtocol, kind)
	}
	if f.CorrelationID, err = s.Uint32(); err != nil {
		return fmt.Errorf("%w: short %v header", ErrProtocol, f.Kind)
	}
	f.ObjectID, f.MethodID = 0, 0
	if f.Kind == KindRequest {
		if f.ObjectID, err = s.Uint32(); err == nil {
			f.MethodID, err = s.Uint32()
		}
		if err != nil {
			return fmt.Errorf("%w: short %v header", ErrProtocol, f.Kind)
		}
	}
	if s.Len() != 0 {
		f.Payload = bytes.Clone(s.Rest())
	} else {
		f.Payload = nil
	}
	return nil
}

// String returns a human-friendly rendering of the frame.
func (f *Frame) String() string {
	var pay string
	if len(f.Payload) > 16 {
		pay = fmt.Sprintf("%+v ...", f.Payload[:16])
	} else {
		pay = fmt.Sprintf("%+v", f.Payload)
	}
	if f.Kind == KindRequest {
		return fmt.Sprintf("Frame(%v, ID=%d, Object=%d, Method=%d, %s)",
			f.Kind, f.CorrelationID, f.ObjectID, f.MethodID, pay)
	}
	return fmt.Sprintf("Frame(%v, ID=%d, %s)", f.Kind, f.CorrelationID, pay)
}

// beginFrame writes the header of f to w with a placeholder length.
// The payload of f is ignored; the caller writes it through an encoder.
func beginFrame(w *bufpool.Writer, f Frame) {
	var hdr [requestHeaderLen]byte
	n := f.putHeader(hdr[:])
	w.Write(hdr[:n])
}

// finishFrame fills in the length field of the frame held by w.
func finishFrame(w *bufpool.Writer) error {
	n := w.Len() - 4
	if n > MaxFrameSize {
		return fmt.Errorf("frame size %d exceeds limit %d", n, MaxFrameSize)
	}
	var lbuf [4]byte
	binary.BigEndian.PutUint32(lbuf[:], uint32(n))
	w.Patch(0, lbuf[:])
	return nil
}

// A framer accumulates inbound bytes and splits them into frames.
type framer struct {
	buf []byte
	off int // start of unconsumed data
}

// write appends data to the unconsumed input.
func (fr *framer) write(data []byte) {
	if fr.off > 0 && fr.off >= len(fr.buf)/2 {
		n := copy(fr.buf, fr.buf[fr.off:])
		fr.buf = fr.buf[:n]
		fr.off = 0
	}
	fr.buf = append(fr.buf, data...)
}

// next returns the next complete frame, or nil if more input is needed.
// An error means the input is malformed and the stream cannot continue.
func (fr *framer) next() (*Frame, error) {
	data := fr.buf[fr.off:]
	if len(data) < 4 {
		return nil, nil
	}
	n := binary.BigEndian.Uint32(data)
	if n < headerLen-4 || n > MaxFrameSize {
		return nil, fmt.Errorf("%w: invalid frame length %d", ErrProtocol, n)
	}
	if len(data) < 4+int(n) {
		return nil, nil
	}
	f := new(Frame)
	if err := f.UnmarshalBinary(data[4 : 4+n]); err != nil {
		return nil, err
	}
	fr.off += 4 + int(n)
	if fr.off == len(fr.buf) {
		fr.buf, fr.off = fr.buf[:0], 0
	}
	return f, nil
}

// Len reports the number of unconsumed bytes.
func (fr *framer) Len() int { return len(fr.buf) - fr.off }

// writeException encodes an exception payload to enc.
func writeException(enc codec.Encoder, code ExceptionCode, name, message string) {
	enc.WriteUint8(uint8(code))
	enc.WriteString(name)
	enc.WriteString(truncate(message, maxMessageLen))
}

// readException decodes an exception payload. Declared error names are
// resolved against iface, which may be nil.
func readException(dec codec.Decoder, iface *Interface) *RemoteError {
	code, err := dec.ReadUint8()
	if err != nil {
		return &RemoteError{Code: CodeFailure, Message: "malformed exception", Err: err}
	}
	re := &RemoteError{Code: ExceptionCode(code)}
	if re.Name, err = dec.ReadString(); err == nil {
		re.Message, err = dec.ReadString()
	}
	if err != nil {
		return &RemoteError{Code: CodeFailure, Message: "malformed exception", Err: err}
	}
	re.Err = re.Code.sentinel()
	if re.Code == CodeUser && iface != nil {
		if e := iface.errorNamed(re.Name); e != nil {
			re.Err = e
		}
	}
	return re
}

// truncate returns a prefix of a UTF-8 string s, having length no greater than
// n bytes.  If s exceeds this length, it is truncated at a point ≤ n so that
// the result does not end in a partial UTF-8 encoding.
func truncate(s string, n int) string {
	if n >= len(s) {
		return s
	}

	// Back up until we find the beginning of a UTF-8 encoding.
	for n > 0 && s[n-1]&0xc0 == 0x80 { // 0x10... is a continuation byte
		n--
	}

	// If we're at the beginning of a multi-byte encoding, back up one more to
	// skip it. It's possible the value was already complete, but it's simpler
	// if we only have to check in one direction.
	//
	// Otherwise, we have a single-byte code (0x00... or 0x01...).
	if n > 0 && s[n-1]&0xc0 == 0xc0 { // 0x11... starts a multibyte encoding
		n--
	}
	return s[:n]
}
