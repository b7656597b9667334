package wsframe_test

import (
	"errors"
	"strconv"
	"testing"

	"nhooyr.io/wsframe"
	"nhooyr.io/wsframe/internal/test/assert"
	"nhooyr.io/wsframe/internal/test/xrand"
)

const (
	// No-op masked continuation frame with an 11 byte payload.
	noopMaskedFrame = "\x00\x8B\x00\x00\x00\x00[123456789]"
	// Continuation frame with a 9 byte payload.
	plainFrame = "\x00\x09abcDEF[]!"
	// Masked text frame from RFC 6455 section 5.7.
	helloFrame = "\x81\x85\x37\xFA\x21\x3D\x7F\x9F\x4D\x51\x58"
)

type decodeStep struct {
	p        string
	payloads []string
	extra    int
}

func TestDecoder(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		steps []decodeStep
	}{
		{
			name:  "noBytes",
			steps: []decodeStep{{p: "", extra: 0}},
		},
		{
			name:  "singleByte",
			steps: []decodeStep{{p: "\x00", extra: 1}},
		},
		{
			name:  "emptyFrame",
			steps: []decodeStep{{p: "\x00\x00", payloads: []string{""}}},
		},
		{
			name:  "oneBytePayload",
			steps: []decodeStep{{p: "\x00\x01X", payloads: []string{"X"}}},
		},
		{
			name: "splitHeader",
			steps: []decodeStep{
				{p: "\x00", extra: 1},
				{p: "\x03XYZ", payloads: []string{"XYZ"}},
			},
		},
		{
			name: "splitPayload",
			steps: []decodeStep{
				{p: "\x00\x03X", extra: 1},
				{p: "YZ", payloads: []string{"XYZ"}},
			},
		},
		{
			name: "splitHeaderAndPayload",
			steps: []decodeStep{
				{p: "\x00", extra: 1},
				{p: "\x09ab", extra: 2},
				{p: "cDEF[]!", payloads: []string{"abcDEF[]!"}},
			},
		},
		{
			name: "bufferedBytes",
			steps: []decodeStep{
				{p: "\x00", extra: 1},
				{p: "\x09abc", extra: 3},
				{p: "DEF[]!", payloads: []string{"abcDEF[]!"}},
			},
		},
		{
			name:  "noopMask",
			steps: []decodeStep{{p: noopMaskedFrame, payloads: []string{"[123456789]"}}},
		},
		{
			name:  "masked",
			steps: []decodeStep{{p: helloFrame, payloads: []string{"Hello"}}},
		},
		{
			name: "reuse",
			steps: []decodeStep{
				{p: noopMaskedFrame, payloads: []string{"[123456789]"}},
				{p: "\x00", extra: 1},
				{p: "\x09ab", extra: 2},
				{p: "cDEF[]!", payloads: []string{"abcDEF[]!"}},
				{p: helloFrame, payloads: []string{"Hello"}},
			},
		},
		{
			name:  "oneCall",
			steps: []decodeStep{{p: noopMaskedFrame + plainFrame + helloFrame, payloads: []string{"[123456789]", "abcDEF[]!", "Hello"}}},
		},
		{
			name: "fiveBytesAtATime",
			steps: []decodeStep{
				{p: "\x00\x8B\x00\x00\x00", extra: 5},
				{p: "\x00[123", extra: 4},
				{p: "45678", extra: 9},
				{p: "9]\x00\x09a", payloads: []string{"[123456789]"}, extra: 1},
				{p: "bcDEF", extra: 6},
				{p: "[]!\x81\x85", payloads: []string{"abcDEF[]!"}, extra: 2},
				{p: "\x37\xFA\x21\x3D\x7F", extra: 1},
				{p: "\x9F\x4D\x51\x58", payloads: []string{"Hello"}},
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d := wsframe.NewDecoder(nil)
			for i, step := range tc.steps {
				res, err := d.Decode([]byte(step.p))
				assert.Success(t, err)

				var payloads []string
				for _, f := range res.Frames {
					assert.Equal(t, "payload length", f.Header.PayloadLength, uint64(len(f.Payload)))
					payloads = append(payloads, string(f.Payload))
				}
				assert.Equal(t, "payloads of step "+strconv.Itoa(i), step.payloads, payloads)
				assert.Equal(t, "extra of step "+strconv.Itoa(i), step.extra, res.Extra)
				assert.Equal(t, "buffered", res.Extra, d.Buffered())
			}
		})
	}
}

func TestDecoderHeaders(t *testing.T) {
	t.Parallel()

	d := wsframe.NewDecoder(nil)

	res, err := d.Decode([]byte("\x00\x00"))
	assert.Success(t, err)
	assert.Equal(t, "frames", []wsframe.Frame{{Payload: []byte{}}}, res.Frames)

	res, err = d.Decode([]byte(helloFrame))
	assert.Success(t, err)
	assert.Equal(t, "frames", []wsframe.Frame{{
		Header: wsframe.Header{
			Fin:           true,
			Opcode:        wsframe.OpText,
			Masked:        true,
			MaskKey:       [4]byte{0x37, 0xFA, 0x21, 0x3D},
			PayloadLength: 5,
		},
		Payload: []byte("Hello"),
	}}, res.Frames)
}

func TestDecoderState(t *testing.T) {
	t.Parallel()

	d := wsframe.NewDecoder(&wsframe.DecoderOptions{BufferSize: 4})
	assert.Equal(t, "state", wsframe.AwaitingHeader, d.State())
	_, ok := d.PendingHeader()
	assert.Equal(t, "pending ok", false, ok)

	_, err := d.Decode([]byte("\x82"))
	assert.Success(t, err)
	assert.Equal(t, "state", wsframe.AwaitingHeader, d.State())

	_, err = d.Decode([]byte("\x7E\x01\x00abc"))
	assert.Success(t, err)
	assert.Equal(t, "state", wsframe.AwaitingPayload, d.State())
	h, ok := d.PendingHeader()
	assert.Equal(t, "pending ok", true, ok)
	assert.Equal(t, "pending header", wsframe.Header{Fin: true, Opcode: wsframe.OpBinary, PayloadLength: 256}, h)
	assert.Equal(t, "buffered", 3, d.Buffered())

	// Retained bytes grow past the initial buffer size.
	res, err := d.Decode(xrand.Bytes(253))
	assert.Success(t, err)
	assert.Equal(t, "frames", 1, len(res.Frames))
	assert.Equal(t, "payload prefix", "abc", string(res.Frames[0].Payload[:3]))
	assert.Equal(t, "state", wsframe.AwaitingHeader, d.State())
	assert.Equal(t, "buffered", 0, d.Buffered())

	assert.Equal(t, "string", "AwaitingPayload", wsframe.AwaitingPayload.String())
	assert.Equal(t, "unknown string", "DecoderState(7)", wsframe.DecoderState(7).String())
}

func TestDecoderParseError(t *testing.T) {
	t.Parallel()

	t.Run("inflated", func(t *testing.T) {
		t.Parallel()

		d := wsframe.NewDecoder(nil)
		res, err := d.Decode([]byte("\x00\x7E\x00\x01"))
		assert.Equal(t, "frames", 0, len(res.Frames))
		assert.Equal(t, "extra", 4, res.Extra)
		assert.ErrorIs(t, wsframe.ErrInflatedLength, err)

		var perr *wsframe.ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("expected *wsframe.ParseError but got %T", err)
		}
		assert.Equal(t, "result", wsframe.HeaderInflatedLength, perr.Result)
		assert.Equal(t, "offset", int64(0), perr.Offset)
		assert.Contains(t, err, "offset 0")
		assert.Equal(t, "state", wsframe.Errored, d.State())
		assert.Equal(t, "err", err, d.Err())
	})

	t.Run("afterFrames", func(t *testing.T) {
		t.Parallel()

		d := wsframe.NewDecoder(nil)
		res, err := d.Decode([]byte("\x00\x01X\x00"))
		assert.Success(t, err)
		assert.Equal(t, "frames", 1, len(res.Frames))
		assert.Equal(t, "extra", 1, res.Extra)

		res, err = d.Decode([]byte("\x02\x00\x7F\x03\x00"))
		assert.Equal(t, "frames", 1, len(res.Frames))
		assert.Equal(t, "payload", "\x00\x7F", string(res.Frames[0].Payload))
		assert.Equal(t, "extra", 2, res.Extra)
		assert.ErrorIs(t, wsframe.ErrInvalidOpcode, err)

		var perr *wsframe.ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("expected *wsframe.ParseError but got %T", err)
		}
		assert.Equal(t, "offset", int64(7), perr.Offset)
	})

	t.Run("sticky", func(t *testing.T) {
		t.Parallel()

		d := wsframe.NewDecoder(nil)
		_, err := d.Decode([]byte("\x00\x7F\x80\x00\x00\x00\x00\x00\x00\x00"))
		assert.ErrorIs(t, wsframe.ErrLengthMSBSet, err)

		res, err := d.Decode([]byte("\x00\x00"))
		assert.Equal(t, "frames", 0, len(res.Frames))
		assert.Equal(t, "extra", 2, res.Extra)
		assert.ErrorIs(t, wsframe.ErrDecoderFailed, err)
		assert.ErrorIs(t, wsframe.ErrLengthMSBSet, err)
		assert.Equal(t, "state", wsframe.Errored, d.State())
		assert.Equal(t, "buffered", 0, d.Buffered())

		d.Reset()
		assert.Equal(t, "state", wsframe.AwaitingHeader, d.State())
		assert.Equal(t, "err", nil, d.Err())

		res, err = d.Decode([]byte(helloFrame))
		assert.Success(t, err)
		assert.Equal(t, "payload", "Hello", string(res.Frames[0].Payload))
	})
}

func TestDecoderReset(t *testing.T) {
	t.Parallel()

	d := wsframe.NewDecoder(nil)
	_, err := d.Decode([]byte(helloFrame[:8]))
	assert.Success(t, err)
	assert.Equal(t, "state", wsframe.AwaitingPayload, d.State())

	d.Reset()
	assert.Equal(t, "state", wsframe.AwaitingHeader, d.State())
	assert.Equal(t, "buffered", 0, d.Buffered())

	res, err := d.Decode([]byte(plainFrame))
	assert.Success(t, err)
	assert.Equal(t, "payload", "abcDEF[]!", string(res.Frames[0].Payload))
}

func TestDecoderPayloadOwnership(t *testing.T) {
	t.Parallel()

	d := wsframe.NewDecoder(nil)

	p := []byte(plainFrame + "\x81")
	res, err := d.Decode(p)
	assert.Success(t, err)
	for i := range p {
		p[i] = 0
	}
	assert.Equal(t, "payload", "abcDEF[]!", string(res.Frames[0].Payload))

	// The retained header byte was copied too.
	res, err = d.Decode([]byte("\x02hi"))
	assert.Success(t, err)
	assert.Equal(t, "frames", []wsframe.Frame{{
		Header:  wsframe.Header{Fin: true, Opcode: wsframe.OpText, PayloadLength: 2},
		Payload: []byte("hi"),
	}}, res.Frames)
}

func randFrame(maxPayload int) wsframe.Frame {
	h := randHeader()
	h.PayloadLength = uint64(xrand.Int(maxPayload + 1))
	return wsframe.Frame{
		Header:  h,
		Payload: xrand.Bytes(int(h.PayloadLength)),
	}
}

func encodeFrames(frames []wsframe.Frame) []byte {
	var b []byte
	for _, f := range frames {
		b = f.Header.Append(b)
		off := len(b)
		b = append(b, f.Payload...)
		if f.Header.Masked {
			wsframe.Mask(b[off:], f.Header.MaskKey)
		}
	}
	return b
}

// decodeChunks feeds stream to a new Decoder in chunks of the sizes
// returned by next and returns every frame decoded.
func decodeChunks(t *testing.T, stream []byte, next func() int) []wsframe.Frame {
	t.Helper()

	d := wsframe.NewDecoder(nil)
	var frames []wsframe.Frame
	for len(stream) > 0 {
		n := next()
		if n > len(stream) {
			n = len(stream)
		}

		res, err := d.Decode(stream[:n])
		assert.Success(t, err)
		assert.Equal(t, "buffered", d.Buffered(), res.Extra)
		frames = append(frames, res.Frames...)
		stream = stream[n:]
	}
	assert.Equal(t, "state", wsframe.AwaitingHeader, d.State())
	assert.Equal(t, "buffered", 0, d.Buffered())
	return frames
}

func TestDecoderChunking(t *testing.T) {
	t.Parallel()

	frames := []wsframe.Frame{
		{
			Header:  wsframe.Header{Fin: true, Opcode: wsframe.OpBinary, PayloadLength: 300, Masked: true, MaskKey: xrand.Key()},
			Payload: xrand.Bytes(300),
		},
		{
			Header:  wsframe.Header{Opcode: wsframe.OpText, PayloadLength: 70000},
			Payload: xrand.Bytes(70000),
		},
		{
			Header:  wsframe.Header{Fin: true, PayloadLength: 65536, Masked: true, MaskKey: xrand.Key()},
			Payload: xrand.Bytes(65536),
		},
		{
			Header:  wsframe.Header{Fin: true, Opcode: wsframe.OpPing, PayloadLength: 0},
			Payload: []byte{},
		},
	}
	for i := 0; i < 50; i++ {
		frames = append(frames, randFrame(200))
	}
	stream := encodeFrames(frames)

	testCases := []struct {
		name string
		next func() int
	}{
		{
			name: "oneCall",
			next: func() int { return len(stream) },
		},
		{
			name: "oneByte",
			next: func() int { return 1 },
		},
		{
			name: "threeBytes",
			next: func() int { return 3 },
		},
		{
			name: "random",
			next: func() int { return 1 + xrand.Int(64) },
		},
		{
			name: "randomLarge",
			next: func() int { return 1 + xrand.Int(20000) },
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := decodeChunks(t, stream, tc.next)
			assert.Equal(t, "frames", frames, got)
		})
	}

	t.Run("frameBoundaries", func(t *testing.T) {
		t.Parallel()

		d := wsframe.NewDecoder(nil)
		for _, f := range frames {
			res, err := d.Decode(encodeFrames([]wsframe.Frame{f}))
			assert.Success(t, err)
			assert.Equal(t, "extra", 0, res.Extra)
			assert.Equal(t, "frames", []wsframe.Frame{f}, res.Frames)
		}
	})
}

func TestDecoderSplitHeader(t *testing.T) {
	t.Parallel()

	// Every split point of a masked header with a 64 bit length,
	// through the extended length and the mask key.
	f := wsframe.Frame{
		Header:  wsframe.Header{Fin: true, Opcode: wsframe.OpBinary, PayloadLength: 65537, Masked: true, MaskKey: xrand.Key()},
		Payload: xrand.Bytes(65537),
	}
	stream := encodeFrames([]wsframe.Frame{f})

	for i := 1; i < wsframe.MaxHeaderSize+2; i++ {
		d := wsframe.NewDecoder(nil)

		res, err := d.Decode(stream[:i])
		assert.Success(t, err)
		assert.Equal(t, "frames", 0, len(res.Frames))
		if i < wsframe.MaxHeaderSize {
			assert.Equal(t, "state", wsframe.AwaitingHeader, d.State())
			assert.Equal(t, "extra", i, res.Extra)
		} else {
			assert.Equal(t, "state", wsframe.AwaitingPayload, d.State())
			assert.Equal(t, "extra", i-wsframe.MaxHeaderSize, res.Extra)
		}

		res, err = d.Decode(stream[i:])
		assert.Success(t, err)
		assert.Equal(t, "extra", 0, res.Extra)
		assert.Equal(t, "frames", []wsframe.Frame{f}, res.Frames)
	}
}

func BenchmarkDecoder(b *testing.B) {
	sizes := []int{
		8,
		128,
		4096,
		65536,
	}

	for _, size := range sizes {
		stream := encodeFrames([]wsframe.Frame{{
			Header:  wsframe.Header{Fin: true, Opcode: wsframe.OpBinary, PayloadLength: uint64(size), Masked: true, MaskKey: xrand.Key()},
			Payload: xrand.Bytes(size),
		}})

		b.Run(strconv.Itoa(size), func(b *testing.B) {
			b.SetBytes(int64(len(stream)))
			d := wsframe.NewDecoder(nil)

			for i := 0; i < b.N; i++ {
				_, err := d.Decode(stream)
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
