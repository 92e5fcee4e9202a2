package framing

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	frameID uint16
	payload []byte
}

func collectEmits(dst *[]emitted) EmitFunc {
	return func(frameID uint16, payload []byte) error {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		*dst = append(*dst, emitted{frameID: frameID, payload: cp})
		return nil
	}
}

func buildStream(frames []emitted) []byte {
	var stream []byte
	for _, f := range frames {
		stream = AppendFrame(stream, f.frameID, f.payload)
	}
	return stream
}

func testFrames() []emitted {
	return []emitted{
		{frameID: 0x0001, payload: bytes.Repeat([]byte{0xAA}, 1)},
		{frameID: 0x0002, payload: bytes.Repeat([]byte{0xBB}, 17)},
		{frameID: 0x0010, payload: []byte{}},
		{frameID: 0x0003, payload: bytes.Repeat([]byte{0xCC}, MaxFramePayload)},
		{frameID: 0x0004, payload: bytes.Repeat([]byte{0xDD}, 5)},
	}
}

func TestReassemblerWholeStream(t *testing.T) {
	frames := testFrames()
	var got []emitted
	r := NewReassembler(collectEmits(&got), nil)

	require.NoError(t, r.Push(buildStream(frames)))
	assert.Equal(t, frames, got)
	assert.Zero(t, r.Pending(), "no leftover after complete stream")
}

func TestReassemblerSplitBoundaryInvariant(t *testing.T) {
	// The reassembled frame sequence must be identical no matter where the
	// stream is split.
	frames := testFrames()
	stream := buildStream(frames)

	for splitAt := 1; splitAt < len(stream); splitAt++ {
		var got []emitted
		r := NewReassembler(collectEmits(&got), nil)

		require.NoError(t, r.Push(stream[:splitAt]))
		require.NoError(t, r.Push(stream[splitAt:]))

		require.Equal(t, frames, got, "split at byte %d", splitAt)
		require.Zero(t, r.Pending())
	}
}

func TestReassemblerByteAtATime(t *testing.T) {
	frames := testFrames()
	stream := buildStream(frames)

	var got []emitted
	r := NewReassembler(collectEmits(&got), nil)
	for i := range stream {
		require.NoError(t, r.Push(stream[i:i+1]))
	}
	assert.Equal(t, frames, got)
}

func TestReassemblerOversizedHeader(t *testing.T) {
	var got []emitted
	r := NewReassembler(collectEmits(&got), nil)

	var hdr [HeaderSize]byte
	PutHeader(hdr[:], 0x0042, MaxFramePayload+1)

	err := r.Push(hdr[:])
	var sizeErr *FrameSizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, uint16(0x0042), sizeErr.FrameID)
	assert.Equal(t, uint32(MaxFramePayload+1), sizeErr.Length)
	assert.Zero(t, r.Pending(), "buffer reset after corrupt header")
	assert.Empty(t, got)
}

func TestReassemblerEmitError(t *testing.T) {
	emitErr := fmt.Errorf("notify failed")
	calls := 0
	r := NewReassembler(func(uint16, []byte) error {
		calls++
		return emitErr
	}, nil)

	stream := AppendFrame(nil, 1, []byte{1, 2, 3})
	stream = AppendFrame(stream, 2, []byte{4})

	err := r.Push(stream)
	assert.ErrorIs(t, err, emitErr)
	assert.Equal(t, 1, calls, "push stops at first emit error")
	// The stream ends here: the failed record and the rest of the chunk are
	// discarded, leaving the buffer clean for a fresh stream.
	assert.Zero(t, r.Pending())
}

func TestReassemblerUsableAfterEmitError(t *testing.T) {
	failNext := true
	var got []emitted
	r := NewReassembler(func(frameID uint16, payload []byte) error {
		if failNext {
			return fmt.Errorf("notify failed")
		}
		cp := make([]byte, len(payload))
		copy(cp, payload)
		got = append(got, emitted{frameID: frameID, payload: cp})
		return nil
	}, nil)

	require.Error(t, r.Push(AppendFrame(nil, 1, []byte{1, 2, 3})))
	require.Zero(t, r.Pending())

	// A new transfer on the same reassembler parses cleanly.
	failNext = false
	frames := testFrames()
	require.NoError(t, r.Push(buildStream(frames)))
	assert.Equal(t, frames, got)
	assert.Zero(t, r.Pending())
}

func TestReassemblerKeepsPartialTail(t *testing.T) {
	var got []emitted
	r := NewReassembler(collectEmits(&got), nil)

	stream := AppendFrame(nil, 7, bytes.Repeat([]byte{0xEE}, 10))
	// Feed a complete frame plus 3 bytes of the next header.
	next := AppendFrame(nil, 8, []byte{9})
	require.NoError(t, r.Push(append(stream, next[:3]...)))

	assert.Len(t, got, 1)
	assert.Equal(t, 3, r.Pending())

	require.NoError(t, r.Push(next[3:]))
	require.Len(t, got, 2)
	assert.Equal(t, uint16(8), got[1].frameID)
}
