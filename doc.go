// Package wsframe implements the wire format of the WebSocket protocol.
//
// It provides the frame header codec, payload masking, close status codes and
// an incremental Decoder that turns arbitrarily chunked bytes into frames.
// The opening handshake, extensions and connection management are left
// to the caller.
//
// See https://tools.ietf.org/html/rfc6455#section-5
package wsframe
