// Package wire implements framed transport for typed messages: an 8-byte
// big-endian length prefix followed by the encoded payload. A byte stream
// has no message boundaries of its own, so the prefix is the only thing
// standing between a reader and a soup of bytes.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the size of the length prefix in bytes.
	HeaderSize = 8

	// DefaultMaxPayload caps a single frame payload. Without a cap one
	// corrupt or hostile 8-byte header could demand an absurd allocation.
	DefaultMaxPayload = 16 << 20
)

var (
	// ErrCleanDisconnect reports a peer that closed its stream exactly on
	// a frame boundary.
	ErrCleanDisconnect = errors.New("peer disconnected")

	// ErrTruncatedFrame reports a stream that ended partway through a
	// frame header or payload.
	ErrTruncatedFrame = errors.New("truncated frame")

	// ErrCorruptPayload reports a complete frame whose payload does not
	// decode as a message.
	ErrCorruptPayload = errors.New("corrupt frame payload")

	// ErrFrameTooLarge reports a header announcing a payload beyond the
	// configured cap.
	ErrFrameTooLarge = errors.New("frame exceeds maximum payload size")
)

// WriteFrame writes one frame to w. Header and payload go out in a single
// Write call so the frame bytes stay contiguous on the stream.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint64(buf, uint64(len(payload)))
	copy(buf[HeaderSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r and returns its payload. maxPayload
// bounds the announced length; 0 means DefaultMaxPayload. Short reads are
// retried via io.ReadFull until the frame is complete or the stream fails.
func ReadFrame(r io.Reader, maxPayload uint64) ([]byte, error) {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}

	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		// io.ReadFull reports io.EOF only when not a single header byte
		// arrived, the one spot where a disconnect is clean.
		if errors.Is(err, io.EOF) {
			return nil, ErrCleanDisconnect
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream ended inside the header", ErrTruncatedFrame)
		}
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	length := binary.BigEndian.Uint64(header)
	if length > maxPayload {
		return nil, fmt.Errorf("%w: header announces %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream ended inside the payload", ErrTruncatedFrame)
		}
		return nil, fmt.Errorf("failed to read frame payload: %w", err)
	}
	return payload, nil
}
