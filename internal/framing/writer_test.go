package framing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNotifier records every notification frame it is handed.
type fakeNotifier struct {
	frames [][]byte
	err    error
}

func (f *fakeNotifier) Notify(frame []byte) error {
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, frame)
	return nil
}

func TestWriteDataSingleNotification(t *testing.T) {
	out := &fakeNotifier{}
	w := NewWriter(out, 150, nil)

	body := bytes.Repeat([]byte{0x5A}, 150)
	next, err := w.WriteData(0x07, 1000, body)
	require.NoError(t, err)
	assert.Equal(t, uint32(1150), next)

	require.Len(t, out.frames, 1, "payload of exactly the limit is one notification")
	frame := out.frames[0]
	assert.Equal(t, RspData, frame[0])
	assert.Equal(t, byte(0x07), frame[1])
	assert.Equal(t, uint32(1000), binary.LittleEndian.Uint32(frame[2:6]))
	assert.Equal(t, body, frame[6:])
}

func TestWriteDataSplitOnce(t *testing.T) {
	out := &fakeNotifier{}
	w := NewWriter(out, 150, nil)

	body := bytes.Repeat([]byte{0xA5}, 151)
	next, err := w.WriteData(0x01, 0, body)
	require.NoError(t, err)
	assert.Equal(t, uint32(151), next)

	require.Len(t, out.frames, 2)

	first, second := out.frames[0], out.frames[1]
	assert.Equal(t, RspData, first[0])
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(first[2:6]))
	assert.Len(t, first[6:], 150)

	assert.Equal(t, RspDataPart2, second[0])
	assert.Equal(t, byte(0x01), second[1])
	// offset2 = offset1 + len1
	assert.Equal(t, uint32(150), binary.LittleEndian.Uint32(second[2:6]))
	assert.Len(t, second[6:], 1)
}

func TestWriteDataEndMarker(t *testing.T) {
	out := &fakeNotifier{}
	w := NewWriter(out, 150, nil)

	next, err := w.WriteData(0x09, 4242, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(4242), next, "end marker does not advance the offset")

	require.Len(t, out.frames, 1)
	frame := out.frames[0]
	assert.Equal(t, RspData, frame[0])
	assert.Len(t, frame, DataHeaderSize, "end marker has an empty body")
}

func TestWriteDataTooLarge(t *testing.T) {
	out := &fakeNotifier{}
	w := NewWriter(out, 150, nil)

	_, err := w.WriteData(0x01, 0, make([]byte, 301))
	assert.Error(t, err)
	assert.Empty(t, out.frames, "no partial output for oversized payload")
}

func TestWriteDataNotifyError(t *testing.T) {
	out := &fakeNotifier{err: fmt.Errorf("link gone")}
	w := NewWriter(out, 150, nil)

	offset, err := w.WriteData(0x01, 77, []byte{1, 2, 3})
	assert.Error(t, err)
	assert.Equal(t, uint32(77), offset, "offset unchanged on failure")
}

func TestWriteResult(t *testing.T) {
	out := &fakeNotifier{}
	w := NewWriter(out, 150, nil)

	require.NoError(t, w.WriteResult(0x03, 0x01, 0xFB))
	require.Len(t, out.frames, 1)
	assert.Equal(t, []byte{RspCommandResult, 0x03, 0x01, 0xFB}, out.frames[0])

	// Bare completion: no status bytes at all.
	require.NoError(t, w.WriteResult(0x04))
	assert.Equal(t, []byte{RspCommandResult, 0x04}, out.frames[1])
}

func TestPacketBounds(t *testing.T) {
	p := NewPacket(4)

	require.NoError(t, p.PutByte(1))
	require.NoError(t, p.PutBytes([]byte{2, 3}))
	assert.ErrorIs(t, p.PutUint32(9), ErrPacketOverflow)
	require.NoError(t, p.PutByte(4))
	assert.ErrorIs(t, p.PutByte(5), ErrPacketOverflow)

	assert.Equal(t, []byte{1, 2, 3, 4}, p.Bytes())

	p.Reset()
	assert.Zero(t, p.Len())
	require.NoError(t, p.PutUint32(0x01020304))
	assert.Equal(t, []byte{4, 3, 2, 1}, p.Bytes())
}
