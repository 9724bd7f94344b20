package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFramePayload limits a single frame payload. The wire format itself
	// allows up to 4 GiB; anything near that is a broken or hostile peer.
	MaxFramePayload = 4 << 20 // 4 MiB

	frameHeaderSize = 4
)

var (
	ErrFrameTooLarge = errors.New("protocol: frame payload too large")
	ErrTruncated     = errors.New("protocol: frame truncated")
)

// WriteFrame encodes m and writes it as one frame.
// Format:
//
//	4 bytes: payload length (big endian)
//	N bytes: JSON payload
//
// Both parts are flushed to w before WriteFrame returns. A payload over
// MaxFramePayload is refused with ErrFrameTooLarge before anything is written,
// so the stream stays usable.
func WriteFrame(w io.Writer, m Message) error {
	payload, err := Encode(m)
	if err != nil {
		return err
	}
	if len(payload) > MaxFramePayload {
		return fmt.Errorf("%w: %d", ErrFrameTooLarge, len(payload))
	}

	bw := bufio.NewWriterSize(w, frameHeaderSize+len(payload))
	var lenBuf [frameHeaderSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := bw.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := bw.Write(payload); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadFrame reads and decodes one frame from r.
//
// It returns io.EOF only when r ends before the first length byte, which is a
// clean close by the peer. A stream that ends anywhere inside a frame yields
// ErrTruncated. Payloads that do not decode are returned as KindDecode errors.
func ReadFrame(r io.Reader) (Message, error) {
	var lenBuf [frameHeaderSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short length prefix", ErrTruncated)
		}
		return nil, err
	}
	payloadLen := binary.BigEndian.Uint32(lenBuf[:])
	if payloadLen > MaxFramePayload {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, payloadLen)
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: want %d payload bytes", ErrTruncated, payloadLen)
		}
		return nil, err
	}

	m, err := Decode(payload)
	if err != nil {
		return nil, Wrap(KindDecode, "decode frame", err)
	}
	return m, nil
}
