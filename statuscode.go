package wsframe

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// StatusCode represents a WebSocket close status code.
// https://tools.ietf.org/html/rfc6455#section-7.4
type StatusCode uint16

// Status codes defined by the protocol and registered with IANA.
// https://www.iana.org/assignments/websocket/websocket.xhtml#close-code-number
const (
	StatusNormal           StatusCode = 1000
	StatusGoingAway        StatusCode = 1001
	StatusProtocolError    StatusCode = 1002
	StatusUnacceptableData StatusCode = 1003

	// StatusNoCodeProvided is never sent on the wire. It is what a close
	// frame without a status code is considered to carry.
	StatusNoCodeProvided StatusCode = 1005

	StatusMismatchedData      StatusCode = 1007
	StatusPolicyViolation     StatusCode = 1008
	StatusTooMuchData         StatusCode = 1009
	StatusLackingExtension    StatusCode = 1010 // Client only.
	StatusUnexpectedCondition StatusCode = 1011 // Server only.

	StatusUnauthorised StatusCode = 3000
	StatusForbidden    StatusCode = 3003
)

// CodeRange is one of the reserved status code ranges.
// https://tools.ietf.org/html/rfc6455#section-7.4.2
type CodeRange int

// CodeRange constants.
const (
	RangeUnused   CodeRange = iota // 0 - 999
	RangeProtocol                  // 1000 - 2999
	RangeIANA                      // 3000 - 3999
	RangePrivate                   // 4000 - 4999
	RangeOutside                   // 5000 onwards
)

func (r CodeRange) String() string {
	switch r {
	case RangeUnused:
		return "Unused"
	case RangeProtocol:
		return "Protocol"
	case RangeIANA:
		return "IANA"
	case RangePrivate:
		return "Private"
	case RangeOutside:
		return "Outside"
	}
	return "CodeRange(" + strconv.Itoa(int(r)) + ")"
}

// Classify returns the range c falls in.
func Classify(c StatusCode) CodeRange {
	switch {
	case c <= 999:
		return RangeUnused
	case c <= 2999:
		return RangeProtocol
	case c <= 3999:
		return RangeIANA
	case c <= 4999:
		return RangePrivate
	}
	return RangeOutside
}

// Range returns the range c falls in.
func (c StatusCode) Range() CodeRange {
	return Classify(c)
}

// ProtocolCode is a status code with a name in the protocol range.
type ProtocolCode StatusCode

// ProtocolCode constants.
const (
	ProtocolNormal              = ProtocolCode(StatusNormal)
	ProtocolGoingAway           = ProtocolCode(StatusGoingAway)
	ProtocolProtocolError       = ProtocolCode(StatusProtocolError)
	ProtocolUnacceptableData    = ProtocolCode(StatusUnacceptableData)
	ProtocolNoCodeProvided      = ProtocolCode(StatusNoCodeProvided)
	ProtocolMismatchedData      = ProtocolCode(StatusMismatchedData)
	ProtocolPolicyViolation     = ProtocolCode(StatusPolicyViolation)
	ProtocolTooMuchData         = ProtocolCode(StatusTooMuchData)
	ProtocolLackingExtension    = ProtocolCode(StatusLackingExtension)
	ProtocolUnexpectedCondition = ProtocolCode(StatusUnexpectedCondition)
)

var protocolNames = map[ProtocolCode]string{
	ProtocolNormal:              "Normal",
	ProtocolGoingAway:           "GoingAway",
	ProtocolProtocolError:       "ProtocolError",
	ProtocolUnacceptableData:    "UnacceptableData",
	ProtocolNoCodeProvided:      "NoCodeProvided",
	ProtocolMismatchedData:      "MismatchedData",
	ProtocolPolicyViolation:     "PolicyViolation",
	ProtocolTooMuchData:         "TooMuchData",
	ProtocolLackingExtension:    "LackingExtension",
	ProtocolUnexpectedCondition: "UnexpectedCondition",
}

// Code returns p as a StatusCode.
func (p ProtocolCode) Code() StatusCode {
	return StatusCode(p)
}

func (p ProtocolCode) String() string {
	if name, ok := protocolNames[p]; ok {
		return name
	}
	return "ProtocolCode(" + strconv.Itoa(int(p)) + ")"
}

// IANACode is a status code registered with IANA in the 3000 - 3999 range.
type IANACode StatusCode

// IANACode constants.
const (
	IANAUnauthorised = IANACode(StatusUnauthorised)
	IANAForbidden    = IANACode(StatusForbidden)
)

var ianaNames = map[IANACode]string{
	IANAUnauthorised: "Unauthorised",
	IANAForbidden:    "Forbidden",
}

// Code returns i as a StatusCode.
func (i IANACode) Code() StatusCode {
	return StatusCode(i)
}

func (i IANACode) String() string {
	if name, ok := ianaNames[i]; ok {
		return name
	}
	return "IANACode(" + strconv.Itoa(int(i)) + ")"
}

// Protocol returns the named protocol code for c.
// The boolean is false when c has no name, which is not an error.
func (c StatusCode) Protocol() (ProtocolCode, bool) {
	p := ProtocolCode(c)
	_, ok := protocolNames[p]
	return p, ok
}

// IANA returns the named IANA code for c.
// The boolean is false when c has no name, which is not an error.
func (c StatusCode) IANA() (IANACode, bool) {
	i := IANACode(c)
	_, ok := ianaNames[i]
	return i, ok
}

// String returns the name of c or its number if it has none.
func (c StatusCode) String() string {
	if p, ok := c.Protocol(); ok {
		return p.String()
	}
	if i, ok := c.IANA(); ok {
		return i.String()
	}
	return strconv.Itoa(int(c))
}

// ValidWireCode reports whether c may be sent in a close frame.
// See http://www.iana.org/assignments/websocket/websocket.xhtml#close-code-number
// and https://tools.ietf.org/html/rfc6455#section-7.4.1
func ValidWireCode(c StatusCode) bool {
	switch c.Range() {
	case RangeProtocol:
		_, ok := c.Protocol()
		return ok && c != StatusNoCodeProvided
	case RangeIANA, RangePrivate:
		return true
	}
	return false
}

// ParseStatusCode reads the status code from the start of a close payload.
// If p holds fewer than 2 bytes there is no code and
// StatusNoCodeProvided is returned.
// See https://tools.ietf.org/html/rfc6455#section-7.1.5
func ParseStatusCode(p []byte) StatusCode {
	if len(p) < 2 {
		return StatusNoCodeProvided
	}
	return StatusCode(binary.BigEndian.Uint16(p))
}

// PutStatusCode writes c into b in network byte order and returns
// the number of bytes written.
// StatusNoCodeProvided is never written and 0 is returned for it.
// PutStatusCode panics if b is shorter than 2 bytes.
func PutStatusCode(b []byte, c StatusCode) int {
	if c == StatusNoCodeProvided {
		return 0
	}
	if len(b) < 2 {
		panicf("status code needs 2 bytes but only %d are available", len(b))
	}
	binary.BigEndian.PutUint16(b, uint16(c))
	return 2
}

// AppendStatusCode appends c to b in network byte order.
// b is returned unchanged for StatusNoCodeProvided.
func AppendStatusCode(b []byte, c StatusCode) []byte {
	if c == StatusNoCodeProvided {
		return b
	}
	return append(b, byte(c>>8), byte(c))
}

// maxControlPayload is the maximum length of a control frame payload.
// See https://tools.ietf.org/html/rfc6455#section-5.5.
const maxControlPayload = 125

// ParseClosePayload returns the status code and reason of a close payload.
func ParseClosePayload(p []byte) (StatusCode, string) {
	code := ParseStatusCode(p)
	if len(p) < 2 {
		return code, ""
	}
	return code, string(p[2:])
}

// ClosePayload returns the payload of a close frame carrying c and reason.
func ClosePayload(c StatusCode, reason string) ([]byte, error) {
	if c == StatusNoCodeProvided {
		if reason != "" {
			return nil, fmt.Errorf("cannot send reason %q without a status code", reason)
		}
		return []byte{}, nil
	}
	if len(reason) > maxControlPayload-2 {
		return nil, fmt.Errorf("reason string max is %v but got %q with length %v", maxControlPayload-2, reason, len(reason))
	}
	if !ValidWireCode(c) {
		return nil, fmt.Errorf("status code %v cannot be set", c)
	}

	buf := make([]byte, 2+len(reason))
	PutStatusCode(buf, c)
	copy(buf[2:], reason)
	return buf, nil
}
