package wsframe

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/eapache/queue"
	"golang.org/x/time/rate"

	"nhooyr.io/wsframe/internal/errd"
)

// ErrReadLimit is returned when a frame's payload is larger
// than ReaderOptions.ReadLimit.
var ErrReadLimit = errors.New("frame payload exceeds read limit")

// ReaderOptions represents the options available to a Reader.
type ReaderOptions struct {
	// BufferSize is the number of bytes requested from the underlying
	// reader on every Read.
	//
	// Defaults to 4096.
	BufferSize int

	// ReadLimit is the maximum payload length of a single frame.
	// The Reader fails as soon as a header over the limit is decoded.
	//
	// Zero means no limit.
	ReadLimit int64

	// Limiter, if set, is waited on before every frame is returned.
	Limiter *rate.Limiter

	// Decoder is passed to NewDecoder.
	Decoder *DecoderOptions
}

const defaultReaderBufferSize = 4096

// Reader reads frames from an io.Reader carrying a WebSocket byte stream
// such as a connection after the opening handshake.
//
// Every error is permanent. A Reader is not safe for concurrent use.
type Reader struct {
	r   io.Reader
	d   *Decoder
	buf []byte

	// frames holds decoded frames not yet returned by ReadFrame.
	frames  *queue.Queue
	limit   int64
	limiter *rate.Limiter

	err error
}

// NewReader returns a Reader decoding frames from r.
func NewReader(r io.Reader, opts *ReaderOptions) *Reader {
	if opts == nil {
		opts = &ReaderOptions{}
	}

	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = defaultReaderBufferSize
	}

	return &Reader{
		r:       r,
		d:       NewDecoder(opts.Decoder),
		buf:     make([]byte, bufSize),
		frames:  queue.New(),
		limit:   opts.ReadLimit,
		limiter: opts.Limiter,
	}
}

// ReadFrame returns the next frame in the stream.
//
// Frames decoded before an error are returned before the error.
// io.EOF is returned when the stream ends on a frame boundary and
// io.ErrUnexpectedEOF when it ends inside a frame.
//
// The context is checked between reads from the underlying reader
// and bounds the wait on the rate limiter.
func (fr *Reader) ReadFrame(ctx context.Context) (_ Frame, err error) {
	defer errd.Wrap(&err, "failed to read frame")

	for fr.frames.Length() == 0 {
		if fr.err != nil {
			return Frame{}, fr.err
		}

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		default:
		}

		fr.fill()
	}

	if fr.limiter != nil {
		err = fr.limiter.Wait(ctx)
		if err != nil {
			return Frame{}, fmt.Errorf("failed to wait for rate limiter: %w", err)
		}
	}

	return fr.frames.Remove().(Frame), nil
}

// fill performs a single read and queues any frames it completes.
func (fr *Reader) fill() {
	n, err := fr.r.Read(fr.buf)
	if n > 0 {
		res, derr := fr.d.Decode(fr.buf[:n])
		for _, f := range res.Frames {
			if fr.overLimit(f.Header) {
				return
			}
			fr.frames.Add(f)
		}
		if derr != nil {
			fr.err = derr
			return
		}
		if h, ok := fr.d.PendingHeader(); ok && fr.overLimit(h) {
			return
		}
	}

	if err != nil {
		if errors.Is(err, io.EOF) && (fr.d.State() != AwaitingHeader || fr.d.Buffered() > 0) {
			err = io.ErrUnexpectedEOF
		}
		fr.err = err
	}
}

func (fr *Reader) overLimit(h Header) bool {
	if fr.limit <= 0 || h.PayloadLength <= uint64(fr.limit) {
		return false
	}
	fr.err = fmt.Errorf("%w: %v byte %v frame is over the %v byte limit", ErrReadLimit, h.PayloadLength, h.Opcode, fr.limit)
	return true
}

// Buffered returns the number of decoded frames waiting to be read.
func (fr *Reader) Buffered() int {
	return fr.frames.Length()
}

// Decoder returns the Decoder used by fr.
func (fr *Reader) Decoder() *Decoder {
	return fr.d
}
