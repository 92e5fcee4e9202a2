package framing

import (
	"github.com/sirupsen/logrus"
)

// EmitFunc receives one complete record payload.
type EmitFunc func(frameID uint16, payload []byte) error

// Reassembler reconstructs length-prefixed records from a byte stream that is
// delivered split at arbitrary offsets (log-store read chunks do not respect
// record boundaries).
//
// The buffer is fixed at HeaderSize+MaxFramePayload bytes. Completed records
// are emitted eagerly and the leftover bytes of the following record are
// compacted to the buffer start, so the buffer never holds more than one
// incomplete record.
type Reassembler struct {
	buf    [HeaderSize + MaxFramePayload]byte
	n      int
	emit   EmitFunc
	logger *logrus.Logger
}

// NewReassembler creates a reassembler that forwards complete record payloads
// to emit.
func NewReassembler(emit EmitFunc, logger *logrus.Logger) *Reassembler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reassembler{emit: emit, logger: logger}
}

// Pending returns the number of buffered bytes belonging to an incomplete
// record.
func (r *Reassembler) Pending() int {
	return r.n
}

// Reset discards any buffered partial record.
func (r *Reassembler) Reset() {
	r.n = 0
}

// Push consumes one input chunk, emitting every record it completes.
//
// A header claiming a payload larger than MaxFramePayload returns a
// *FrameSizeError and resets the buffer; the caller must abandon the stream.
// An error from the emit callback also ends the stream: the failed record
// and the unconsumed remainder of the chunk are discarded and the buffer is
// reset, so the caller must abandon the transfer rather than push further
// chunks. The buffer holds at most one frame, which is why the remainder
// cannot be kept for a retry.
func (r *Reassembler) Push(chunk []byte) error {
	idx := 0
	for {
		// Top up to a full header.
		if r.n < HeaderSize {
			c := min(HeaderSize-r.n, len(chunk)-idx)
			copy(r.buf[r.n:], chunk[idx:idx+c])
			r.n += c
			idx += c
			if r.n < HeaderSize {
				return nil
			}
		}

		frameID, payloadLen := ParseHeader(r.buf[:HeaderSize])
		if payloadLen > MaxFramePayload {
			r.Reset()
			return &FrameSizeError{FrameID: frameID, Length: payloadLen}
		}

		// Top up to a full record.
		total := HeaderSize + int(payloadLen)
		if r.n < total {
			c := min(total-r.n, len(chunk)-idx)
			copy(r.buf[r.n:], chunk[idx:idx+c])
			r.n += c
			idx += c
			if r.n < total {
				return nil
			}
		}

		r.logger.WithFields(logrus.Fields{
			"frame_id": frameID,
			"length":   payloadLen,
		}).Debug("Record reassembled")

		if err := r.emit(frameID, r.buf[HeaderSize:total]); err != nil {
			r.Reset()
			return err
		}
		r.compact(total)
	}
}

// compact moves any bytes of the next record to the buffer start.
func (r *Reassembler) compact(consumed int) {
	copy(r.buf[:], r.buf[consumed:r.n])
	r.n -= consumed
}
