package framing

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Notifier delivers one transport notification to the data characteristic.
type Notifier interface {
	Notify(frame []byte) error
}

// Writer frames logical payloads into transport notifications bounded by a
// per-notification body limit.
//
// Data notifications carry [type:1][ref:1][offset:4 LE][body]; a payload
// larger than the limit is split exactly once into DATA followed by
// DATA_PART2 with the offset advanced by the first part's length. Payloads
// beyond twice the limit must be chunked upstream and are rejected here.
type Writer struct {
	out    Notifier
	limit  int
	pkt    *Packet
	logger *logrus.Logger
}

// NewWriter creates a Writer with the given per-notification body limit.
func NewWriter(out Notifier, limit int, logger *logrus.Logger) *Writer {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Writer{
		out:    out,
		limit:  limit,
		pkt:    NewPacket(DataHeaderSize + limit),
		logger: logger,
	}
}

// BodyLimit returns the per-notification body limit.
func (w *Writer) BodyLimit() int {
	return w.limit
}

// WriteData emits body as one or two data notifications tagged with the
// client reference, starting at the given stream offset. An empty body emits
// a single DATA notification with no payload: the end-of-log marker.
// It returns the offset advanced past the written bytes.
func (w *Writer) WriteData(ref byte, offset uint32, body []byte) (uint32, error) {
	if len(body) > 2*w.limit {
		return offset, fmt.Errorf("payload of %d bytes exceeds two notifications of %d", len(body), w.limit)
	}

	first := min(len(body), w.limit)
	if err := w.notifyData(RspData, ref, offset, body[:first]); err != nil {
		return offset, err
	}
	offset += uint32(first)

	if rest := body[first:]; len(rest) > 0 {
		if err := w.notifyData(RspDataPart2, ref, offset, rest); err != nil {
			return offset, err
		}
		offset += uint32(len(rest))
	}
	return offset, nil
}

// WriteResult emits a COMMAND_RESULT notification with the given status bytes.
func (w *Writer) WriteResult(ref byte, status ...byte) error {
	w.pkt.Reset()
	if err := w.pkt.PutByte(RspCommandResult); err != nil {
		return err
	}
	if err := w.pkt.PutByte(ref); err != nil {
		return err
	}
	if err := w.pkt.PutBytes(status); err != nil {
		return err
	}

	w.logger.WithFields(logrus.Fields{
		"reference": ref,
		"status":    fmt.Sprintf("% x", status),
	}).Debug("Sending command result")
	return w.out.Notify(w.pkt.Bytes())
}

func (w *Writer) notifyData(rsp, ref byte, offset uint32, body []byte) error {
	w.pkt.Reset()
	if err := w.pkt.PutByte(rsp); err != nil {
		return err
	}
	if err := w.pkt.PutByte(ref); err != nil {
		return err
	}
	if err := w.pkt.PutUint32(offset); err != nil {
		return err
	}
	if err := w.pkt.PutBytes(body); err != nil {
		return err
	}

	w.logger.WithFields(logrus.Fields{
		"response":  rsp,
		"reference": ref,
		"offset":    offset,
		"bytes":     len(body),
	}).Debug("Sending data notification")
	return w.out.Notify(w.pkt.Bytes())
}
