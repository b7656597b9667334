package wsframe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// First byte contains fin, rsv1, rsv2, rsv3 and the opcode.
// Second byte contains the mask flag and the payload length.
// Next 8 bytes are the maximum extended payload length.
// Last 4 bytes are the mask key.
// https://tools.ietf.org/html/rfc6455#section-5.2
const (
	MinHeaderSize = 1 + 1
	MaxHeaderSize = 1 + 1 + 8 + 4
)

// Header represents a WebSocket frame Header.
// See https://tools.ietf.org/html/rfc6455#section-5.2
type Header struct {
	Fin  bool
	RSV1 bool
	RSV2 bool
	RSV3 bool

	Opcode Opcode

	Masked bool

	// PayloadLength is the length of the payload after the header.
	// The RFC mandates the most significant bit is never set.
	PayloadLength uint64

	// MaskKey is only meaningful when Masked is set and
	// should be left zero otherwise.
	MaskKey [4]byte
}

// HeaderSize returns the number of bytes a header with the given
// payload length and mask flag occupies on the wire.
func HeaderSize(payloadLength uint64, masked bool) int {
	n := MinHeaderSize
	switch {
	case payloadLength > math.MaxUint16:
		n += 8
	case payloadLength > 125:
		n += 2
	}
	if masked {
		n += 4
	}
	return n
}

// EncodedSize returns the number of bytes Encode writes for h.
func (h Header) EncodedSize() int {
	return HeaderSize(h.PayloadLength, h.Masked)
}

// DecodeResult describes the outcome of DecodeHeader.
type DecodeResult int

// DecodeResult constants.
const (
	// HeaderSuccess means the header was fully decoded.
	HeaderSuccess DecodeResult = iota
	// HeaderIncomplete means more bytes are required.
	HeaderIncomplete
	// HeaderInvalidOpcode means the opcode is reserved.
	HeaderInvalidOpcode
	// HeaderInflatedLength means an extended payload length was used
	// for a length that fits in a narrower field.
	HeaderInflatedLength
	// HeaderLengthMSBSet means the 64 bit payload length has its
	// most significant bit set.
	HeaderLengthMSBSet
)

// Errors describing a structurally invalid header.
var (
	ErrInvalidOpcode  = errors.New("invalid opcode")
	ErrInflatedLength = errors.New("payload length is not minimally encoded")
	ErrLengthMSBSet   = errors.New("most significant bit of 64 bit payload length is set")
)

// Err returns the error for a structural failure and nil
// for HeaderSuccess and HeaderIncomplete.
func (r DecodeResult) Err() error {
	switch r {
	case HeaderInvalidOpcode:
		return ErrInvalidOpcode
	case HeaderInflatedLength:
		return ErrInflatedLength
	case HeaderLengthMSBSet:
		return ErrLengthMSBSet
	}
	return nil
}

func (r DecodeResult) String() string {
	switch r {
	case HeaderSuccess:
		return "Success"
	case HeaderIncomplete:
		return "Incomplete"
	case HeaderInvalidOpcode:
		return "InvalidOpcode"
	case HeaderInflatedLength:
		return "InflatedLength"
	case HeaderLengthMSBSet:
		return "LengthMSBSet"
	}
	return "DecodeResult(" + strconv.Itoa(int(r)) + ")"
}

// DecodeHeader decodes a Header from the start of p.
// p may contain fewer or more bytes than the header, any
// bytes after the header are ignored.
//
// On HeaderSuccess the number of header bytes consumed is returned.
// For every other result the zero Header and 0 are returned.
// See https://tools.ietf.org/html/rfc6455#section-5.2
func DecodeHeader(p []byte) (Header, int, DecodeResult) {
	if len(p) < MinHeaderSize {
		return Header{}, 0, HeaderIncomplete
	}

	var h Header
	h.Fin = p[0]&(1<<7) != 0
	h.RSV1 = p[0]&(1<<6) != 0
	h.RSV2 = p[0]&(1<<5) != 0
	h.RSV3 = p[0]&(1<<4) != 0

	// An unknown opcode must fail the connection.
	h.Opcode = Opcode(p[0] & 0xf)
	if !h.Opcode.Valid() {
		return Header{}, 0, HeaderInvalidOpcode
	}

	h.Masked = p[1]&(1<<7) != 0

	n := MinHeaderSize
	payloadLength := p[1] &^ (1 << 7)
	switch {
	case payloadLength < 126:
		h.PayloadLength = uint64(payloadLength)
	case payloadLength == 126:
		if len(p) < n+2 {
			return Header{}, 0, HeaderIncomplete
		}
		h.PayloadLength = uint64(binary.BigEndian.Uint16(p[n:]))
		if h.PayloadLength < 126 {
			return Header{}, 0, HeaderInflatedLength
		}
		n += 2
	default:
		if len(p) < n+8 {
			return Header{}, 0, HeaderIncomplete
		}
		h.PayloadLength = binary.BigEndian.Uint64(p[n:])
		if h.PayloadLength <= math.MaxUint16 {
			return Header{}, 0, HeaderInflatedLength
		}
		if h.PayloadLength>>63 != 0 {
			return Header{}, 0, HeaderLengthMSBSet
		}
		n += 8
	}

	if h.Masked {
		if len(p) < n+4 {
			return Header{}, 0, HeaderIncomplete
		}
		n += copy(h.MaskKey[:], p[n:n+4])
	}

	return h, n, HeaderSuccess
}

// Encode writes h into b using the minimal payload length encoding
// and returns the number of bytes written, always h.EncodedSize().
//
// Encode panics if b is too small, if the opcode does not fit in
// 4 bits or if the payload length has its most significant bit set.
func (h Header) Encode(b []byte) int {
	n := h.EncodedSize()
	if len(b) < n {
		panicf("header needs %d bytes but only %d are available", n, len(b))
	}
	if h.Opcode > 0x0F {
		panicf("opcode is not allowed to be greater than 0x0F: %#x", byte(h.Opcode))
	}
	if h.PayloadLength>>63 != 0 {
		panicf("payload length is not allowed to set the most significant bit: %#x", h.PayloadLength)
	}

	b[0] = byte(h.Opcode)
	if h.Fin {
		b[0] |= 1 << 7
	}
	if h.RSV1 {
		b[0] |= 1 << 6
	}
	if h.RSV2 {
		b[0] |= 1 << 5
	}
	if h.RSV3 {
		b[0] |= 1 << 4
	}

	i := MinHeaderSize
	switch {
	case h.PayloadLength <= 125:
		b[1] = byte(h.PayloadLength)
	case h.PayloadLength <= math.MaxUint16:
		b[1] = 126
		binary.BigEndian.PutUint16(b[i:], uint16(h.PayloadLength))
		i += 2
	default:
		b[1] = 127
		binary.BigEndian.PutUint64(b[i:], h.PayloadLength)
		i += 8
	}

	if h.Masked {
		b[1] |= 1 << 7
		i += copy(b[i:], h.MaskKey[:])
	}

	return i
}

// Append appends the encoding of h to b and returns the extended slice.
func (h Header) Append(b []byte) []byte {
	var buf [MaxHeaderSize]byte
	n := h.Encode(buf[:])
	return append(b, buf[:n]...)
}

// Bytes returns the encoding of h in a newly allocated slice.
func (h Header) Bytes() []byte {
	b := make([]byte, h.EncodedSize())
	h.Encode(b)
	return b
}

func panicf(f string, v ...interface{}) {
	msg := fmt.Sprintf(f, v...)
	panic("wsframe: " + msg)
}
