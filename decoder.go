package wsframe

import (
	"errors"
	"fmt"
	"strconv"
)

// Frame is a single decoded WebSocket frame.
type Frame struct {
	Header Header
	// Payload is always unmasked and len(Payload) == Header.PayloadLength.
	Payload []byte
}

// DecoderState is the state of a Decoder between calls to Decode.
type DecoderState int

// DecoderState constants.
const (
	// AwaitingHeader means the next bytes belong to a frame header.
	AwaitingHeader DecoderState = iota
	// AwaitingPayload means a header was decoded and its payload is incomplete.
	AwaitingPayload
	// Errored means a structurally invalid header was seen.
	// The stream cannot be decoded any further.
	Errored
)

func (s DecoderState) String() string {
	switch s {
	case AwaitingHeader:
		return "AwaitingHeader"
	case AwaitingPayload:
		return "AwaitingPayload"
	case Errored:
		return "Errored"
	}
	return "DecoderState(" + strconv.Itoa(int(s)) + ")"
}

// ErrDecoderFailed is returned by Decode after an earlier call
// returned a parse error.
var ErrDecoderFailed = errors.New("decoder failed on an earlier parse error")

// ParseError is returned by Decode for a structurally invalid header.
type ParseError struct {
	Result DecodeResult
	// Offset is the position of the header's first byte
	// in the stream passed to Decode.
	Offset int64
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid frame header at offset %d: %v", e.Offset, e.Result.Err())
}

// Unwrap returns the sentinel error for e.Result.
func (e *ParseError) Unwrap() error {
	return e.Result.Err()
}

// DecoderOptions represents the options available to a Decoder.
type DecoderOptions struct {
	// BufferSize is the capacity initially reserved for bytes that do
	// not yet complete a header or payload.
	//
	// Defaults to 1024.
	BufferSize int
}

const defaultDecoderBufferSize = 1024

// Result holds the outcome of a call to Decode.
type Result struct {
	// Frames are the frames completed by the call, in stream order.
	Frames []Frame
	// Extra is the number of bytes retained by the decoder for
	// the next call. It is 0 when the stream ends on a frame boundary.
	Extra int
}

// Decoder decodes a stream of bytes into frames. The stream may be
// split across any number of Decode calls at arbitrary positions.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	bufSize int
	state   DecoderState

	// pending holds either the start of a header or the start of the
	// payload for header, never both.
	pending []byte
	header  Header

	// offset is the stream position of pending[0].
	offset int64
	err    error
}

// NewDecoder returns a Decoder awaiting the first frame header.
func NewDecoder(opts *DecoderOptions) *Decoder {
	if opts == nil {
		opts = &DecoderOptions{}
	}

	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = defaultDecoderBufferSize
	}

	return &Decoder{
		bufSize: bufSize,
		pending: make([]byte, 0, bufSize),
	}
}

// Decode decodes as many frames as possible from the bytes retained by
// previous calls followed by p. Incomplete trailing bytes are retained.
//
// A non nil error is a *ParseError for the first structurally invalid
// header. Frames decoded before it are still returned and Extra counts the
// bytes that were not consumed. The error is permanent: every later call
// returns an error wrapping ErrDecoderFailed until Reset is called.
//
// p is not retained and may be reused once Decode returns.
func (d *Decoder) Decode(p []byte) (Result, error) {
	if d.state == Errored {
		return Result{Extra: len(p)}, fmt.Errorf("%w: %w", ErrDecoderFailed, d.err)
	}

	b := p
	if len(d.pending) > 0 {
		d.pending = append(d.pending, p...)
		b = d.pending
	}

	var res Result
	for {
		switch d.state {
		case AwaitingHeader:
			h, n, r := DecodeHeader(b)
			switch r {
			case HeaderSuccess:
			case HeaderIncomplete:
				res.Extra = d.stash(b)
				return res, nil
			default:
				res.Extra = len(b)
				d.fail(&ParseError{
					Result: r,
					Offset: d.offset,
				})
				return res, d.err
			}

			d.header = h
			d.state = AwaitingPayload
			b = b[n:]
			d.offset += int64(n)
		case AwaitingPayload:
			if uint64(len(b)) < d.header.PayloadLength {
				res.Extra = d.stash(b)
				return res, nil
			}

			n := int(d.header.PayloadLength)
			payload := make([]byte, n)
			copy(payload, b)
			if d.header.Masked {
				Mask(payload, d.header.MaskKey)
			}

			res.Frames = append(res.Frames, Frame{
				Header:  d.header,
				Payload: payload,
			})

			d.header = Header{}
			d.state = AwaitingHeader
			b = b[n:]
			d.offset += int64(n)
		}
	}
}

// stash retains b, which may alias d.pending, for the next call.
func (d *Decoder) stash(b []byte) int {
	if len(b) > 0 && len(b) == len(d.pending) && &b[0] == &d.pending[0] {
		return len(b)
	}
	d.pending = append(d.pending[:0], b...)
	return len(d.pending)
}

func (d *Decoder) fail(err error) {
	d.state = Errored
	d.err = err
	d.pending = nil
	d.header = Header{}
}

// Reset discards all retained bytes and any parse error so the
// Decoder can be used for a new stream.
func (d *Decoder) Reset() {
	if d.pending == nil {
		d.pending = make([]byte, 0, d.bufSize)
	}
	d.pending = d.pending[:0]
	d.state = AwaitingHeader
	d.header = Header{}
	d.offset = 0
	d.err = nil
}

// State returns the current state of the Decoder.
func (d *Decoder) State() DecoderState {
	return d.state
}

// Buffered returns the number of bytes retained for the next call.
func (d *Decoder) Buffered() int {
	return len(d.pending)
}

// PendingHeader returns the header whose payload is being awaited.
// The boolean is false unless the state is AwaitingPayload.
func (d *Decoder) PendingHeader() (Header, bool) {
	if d.state != AwaitingPayload {
		return Header{}, false
	}
	return d.header, true
}

// Err returns the parse error that stopped the Decoder, if any.
func (d *Decoder) Err() error {
	return d.err
}
