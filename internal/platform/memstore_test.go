package platform

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/sensorlog/internal/framing"
)

// captureSink records posted events for inspection.
type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Post(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *captureSink) last() Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil
	}
	return s.events[len(s.events)-1]
}

func (s *captureSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func newTestStore(t *testing.T, sink *captureSink) *MemStore {
	t.Helper()
	return NewMemStore(sink, 4096, nil)
}

func TestMemStoreSessionLifecycle(t *testing.T) {
	sink := &captureSink{}
	s := newTestStore(t, sink)

	require.NoError(t, s.StartSession([]string{"/Meas/ECG/200"}))
	assert.Error(t, s.StartSession([]string{"/Meas/ECG/200"}), "double start is rejected")

	s.AppendRecord(1, []byte{1, 2, 3, 4})
	s.AppendRecord(2, []byte{5, 6})
	require.NoError(t, s.StopSession())
	require.NoError(t, s.StopSession(), "double stop is a no-op")

	s.RequestEntries()
	ev, ok := sink.last().(LogListEvent)
	require.True(t, ok)
	require.NoError(t, ev.Err)
	require.Len(t, ev.IDs, 1)

	// The stored bytes are the framed records in order.
	want := framing.AppendFrame(nil, 1, []byte{1, 2, 3, 4})
	want = framing.AppendFrame(want, 2, []byte{5, 6})

	sink.reset()
	s.RequestChunk(ev.IDs[0], 0)
	chunk, ok := sink.last().(LogChunkEvent)
	require.True(t, ok)
	require.NoError(t, chunk.Err)
	assert.Equal(t, want, chunk.Data)
	assert.False(t, chunk.Continues)
}

func TestMemStoreChunkedRead(t *testing.T) {
	sink := &captureSink{}
	s := newTestStore(t, sink)
	s.chunkSize = 8

	require.NoError(t, s.StartSession(nil))
	s.AppendRecord(1, make([]byte, 14)) // 20 bytes framed
	require.NoError(t, s.StopSession())

	s.RequestEntries()
	id := sink.last().(LogListEvent).IDs[0]

	var data []byte
	cursor := uint32(0)
	for {
		sink.reset()
		s.RequestChunk(id, cursor)
		ev := sink.last().(LogChunkEvent)
		require.NoError(t, ev.Err)
		assert.Equal(t, cursor, ev.Cursor)
		data = append(data, ev.Data...)
		cursor += uint32(len(ev.Data))
		if !ev.Continues {
			break
		}
	}
	assert.Len(t, data, framing.HeaderSize+14)
}

func TestMemStoreUnknownLog(t *testing.T) {
	sink := &captureSink{}
	s := newTestStore(t, sink)

	s.RequestChunk(99, 0)
	ev := sink.last().(LogChunkEvent)
	assert.ErrorIs(t, ev.Err, ErrUnknownLog)
}

func TestMemStoreClear(t *testing.T) {
	sink := &captureSink{}
	s := newTestStore(t, sink)

	require.NoError(t, s.StartSession(nil))
	s.AppendRecord(1, []byte{1})
	require.NoError(t, s.StopSession())
	require.NoError(t, s.Clear())

	s.RequestEntries()
	ev := sink.last().(LogListEvent)
	assert.Empty(t, ev.IDs)
}

func TestMemStoreDropsOldestWholeRecords(t *testing.T) {
	sink := &captureSink{}
	s := NewMemStore(sink, 64, nil)

	require.NoError(t, s.StartSession(nil))
	// Each record takes HeaderSize+10 = 16 bytes; the 5th forces eviction.
	for i := byte(0); i < 5; i++ {
		payload := make([]byte, 10)
		payload[0] = i
		s.AppendRecord(uint16(i), payload)
	}
	require.NoError(t, s.StopSession())

	s.RequestEntries()
	id := sink.last().(LogListEvent).IDs[0]
	sink.reset()
	s.RequestChunk(id, 0)
	data := sink.last().(LogChunkEvent).Data

	// The surviving stream still decodes into whole records, oldest first
	// record evicted.
	var frames []uint16
	r := framing.NewReassembler(func(frameID uint16, payload []byte) error {
		frames = append(frames, frameID)
		return nil
	}, nil)
	require.NoError(t, r.Push(data))
	assert.Zero(t, r.Pending(), "stream stays record-aligned after eviction")
	assert.Equal(t, []uint16{1, 2, 3, 4}, frames)
}
