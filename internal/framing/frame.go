// Package framing implements the wire formats of the control channel: the
// length-prefixed record stream read back from the log store, and the
// notification frames pushed to the data characteristic.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Response type byte, first byte of every outbound notification.
const (
	RspCommandResult byte = 1
	RspData          byte = 2
	RspDataPart2     byte = 3
	RspDataPart3     byte = 4
)

const (
	// HeaderSize is the fixed size of a record header in the stored log
	// stream: frame id (2 bytes LE) followed by payload length (4 bytes LE).
	HeaderSize = 6

	// DefaultBodyLimit is the default maximum body per notification, after
	// the [type:1][ref:1][offset:4] data header.
	DefaultBodyLimit = 150

	// MaxFramePayload caps a single stored record. A record is forwarded in
	// at most two notifications, so it can never exceed twice the body
	// limit. A header claiming more is treated as corrupt.
	MaxFramePayload = 2 * DefaultBodyLimit

	// DataHeaderSize is the size of the [type:1][ref:1][offset:4] prefix of
	// a data notification.
	DataHeaderSize = 6
)

// ErrPacketOverflow reports a write past the fixed capacity of a Packet.
var ErrPacketOverflow = errors.New("packet capacity exceeded")

// FrameSizeError reports a record header whose payload length exceeds the
// reassembly capacity. The stream is unusable past this point.
type FrameSizeError struct {
	FrameID uint16
	Length  uint32
}

func (e *FrameSizeError) Error() string {
	return fmt.Sprintf("frame %#04x payload length %d exceeds maximum %d", e.FrameID, e.Length, MaxFramePayload)
}

// PutHeader writes a record header into buf, which must hold HeaderSize bytes.
func PutHeader(buf []byte, frameID uint16, length uint32) {
	binary.LittleEndian.PutUint16(buf[0:2], frameID)
	binary.LittleEndian.PutUint32(buf[2:6], length)
}

// ParseHeader decodes a record header from buf, which must hold HeaderSize bytes.
func ParseHeader(buf []byte) (frameID uint16, length uint32) {
	return binary.LittleEndian.Uint16(buf[0:2]), binary.LittleEndian.Uint32(buf[2:6])
}

// AppendFrame appends a complete header+payload record to dst.
func AppendFrame(dst []byte, frameID uint16, payload []byte) []byte {
	var hdr [HeaderSize]byte
	PutHeader(hdr[:], frameID, uint32(len(payload)))
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}

// Packet is a bounded append-only builder for a single outbound notification.
// Every write is bounds-checked against the fixed capacity, so an oversized
// notification surfaces as ErrPacketOverflow instead of silent truncation.
type Packet struct {
	buf []byte
	n   int
}

// NewPacket creates a builder with the given fixed capacity.
func NewPacket(capacity int) *Packet {
	return &Packet{buf: make([]byte, capacity)}
}

// Reset discards the packet content, keeping the capacity.
func (p *Packet) Reset() {
	p.n = 0
}

// Len returns the number of bytes written so far.
func (p *Packet) Len() int {
	return p.n
}

// PutByte appends a single byte.
func (p *Packet) PutByte(b byte) error {
	if p.n+1 > len(p.buf) {
		return ErrPacketOverflow
	}
	p.buf[p.n] = b
	p.n++
	return nil
}

// PutBytes appends a byte slice.
func (p *Packet) PutBytes(b []byte) error {
	if p.n+len(b) > len(p.buf) {
		return ErrPacketOverflow
	}
	copy(p.buf[p.n:], b)
	p.n += len(b)
	return nil
}

// PutUint32 appends a little-endian uint32.
func (p *Packet) PutUint32(v uint32) error {
	if p.n+4 > len(p.buf) {
		return ErrPacketOverflow
	}
	binary.LittleEndian.PutUint32(p.buf[p.n:], v)
	p.n += 4
	return nil
}

// Bytes returns a copy of the packet content. A copy is required because the
// notification queue outlives the builder's next Reset.
func (p *Packet) Bytes() []byte {
	out := make([]byte, p.n)
	copy(out, p.buf[:p.n])
	return out
}
