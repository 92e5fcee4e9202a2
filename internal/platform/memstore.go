package platform

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"

	"github.com/srg/sensorlog/internal/framing"
	"github.com/srg/sensorlog/internal/groutine"
)

const (
	defaultChunkSize     = 512
	samplePeriod         = 200 * time.Millisecond
	sampleGenPayloadSize = 16
)

type memLog struct {
	id   uint32
	data []byte
}

// MemStore is an in-memory reference implementation of LogStore.
//
// An active session accumulates framed records in a fixed-capacity ring
// buffer; when the ring fills, whole oldest records are discarded so the log
// always starts at a record boundary. StopSession drains the ring into a
// finalized log entry. While a session is active a background sampler
// appends synthetic records for each configured path, standing in for the
// measurement pipeline that real hardware would provide.
type MemStore struct {
	mu        sync.Mutex
	sink      EventSink
	logger    *logrus.Logger
	bufferCap int
	chunkSize int

	nextID    uint32
	logs      []memLog
	recording *ringbuffer.RingBuffer
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewMemStore creates an in-memory log store posting async results to sink.
func NewMemStore(sink EventSink, bufferCap int, logger *logrus.Logger) *MemStore {
	if logger == nil {
		logger = logrus.New()
	}
	if bufferCap <= 0 {
		bufferCap = 64 * 1024
	}
	return &MemStore{
		sink:      sink,
		logger:    logger,
		bufferCap: bufferCap,
		chunkSize: defaultChunkSize,
		nextID:    1,
	}
}

// StartSession opens a new recording session.
func (s *MemStore) StartSession(paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recording != nil {
		return fmt.Errorf("recording session already active")
	}
	s.recording = ringbuffer.New(s.bufferCap)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	pathCount := len(paths)
	s.wg.Add(1)
	groutine.Go(ctx, "memstore-sampler", func(ctx context.Context) {
		s.sample(ctx, pathCount)
	})

	s.logger.WithField("paths", paths).Info("Recording session started")
	return nil
}

// StopSession finalizes the active session into a stored log. Stopping with
// no active session is a no-op.
func (s *MemStore) StopSession() error {
	s.mu.Lock()
	if s.recording == nil {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	// Stop the sampler before draining so no record lands mid-drain.
	cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.recording.Length()
	data := make([]byte, n)
	if n > 0 {
		if _, err := s.recording.Read(data); err != nil {
			s.recording = nil
			return fmt.Errorf("failed to drain recording buffer: %w", err)
		}
	}
	s.recording = nil

	id := s.nextID
	s.nextID++
	s.logs = append(s.logs, memLog{id: id, data: data})

	s.logger.WithFields(logrus.Fields{
		"log_id": id,
		"bytes":  n,
	}).Info("Recording session finalized")
	return nil
}

// AppendRecord appends one framed record to the active session. Records
// arriving with no active session are dropped.
func (s *MemStore) AppendRecord(frameID uint16, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recording == nil {
		return
	}
	frame := framing.AppendFrame(nil, frameID, payload)
	for s.recording.Free() < len(frame) {
		if !s.dropOldestRecord() {
			s.logger.WithField("bytes", len(frame)).Warn("Record larger than recording buffer, dropped")
			return
		}
	}
	if _, err := s.recording.Write(frame); err != nil {
		s.logger.WithError(err).Warn("Failed to append record")
	}
}

// dropOldestRecord consumes one whole record from the ring front, keeping
// the buffer aligned to a record boundary. Returns false if the ring holds
// no complete record.
func (s *MemStore) dropOldestRecord() bool {
	if s.recording.Length() < framing.HeaderSize {
		s.recording.Reset()
		return false
	}
	var hdr [framing.HeaderSize]byte
	if _, err := s.recording.Read(hdr[:]); err != nil {
		s.recording.Reset()
		return false
	}
	_, payloadLen := framing.ParseHeader(hdr[:])
	if int(payloadLen) > s.recording.Length() {
		s.recording.Reset()
		return false
	}
	scratch := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := s.recording.Read(scratch); err != nil {
			s.recording.Reset()
			return false
		}
	}
	return true
}

// RequestEntries posts the stored log ids as a LogListEvent.
func (s *MemStore) RequestEntries() {
	s.mu.Lock()
	ids := make([]uint32, 0, len(s.logs))
	for _, l := range s.logs {
		ids = append(ids, l.id)
	}
	s.mu.Unlock()

	s.sink.Post(LogListEvent{IDs: ids})
}

// RequestChunk posts up to one chunk of log bytes as a LogChunkEvent.
func (s *MemStore) RequestChunk(logID, cursor uint32) {
	s.mu.Lock()
	var found *memLog
	for i := range s.logs {
		if s.logs[i].id == logID {
			found = &s.logs[i]
			break
		}
	}
	if found == nil {
		s.mu.Unlock()
		s.sink.Post(LogChunkEvent{LogID: logID, Cursor: cursor, Err: ErrUnknownLog})
		return
	}

	total := uint32(len(found.data))
	if cursor >= total {
		s.mu.Unlock()
		s.sink.Post(LogChunkEvent{LogID: logID, Cursor: cursor})
		return
	}
	end := min(cursor+uint32(s.chunkSize), total)
	chunk := make([]byte, end-cursor)
	copy(chunk, found.data[cursor:end])
	s.mu.Unlock()

	s.sink.Post(LogChunkEvent{
		LogID:     logID,
		Cursor:    cursor,
		Data:      chunk,
		Continues: end < total,
	})
}

// Clear deletes all stored logs. Log ids stay monotonic across Clear.
func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = nil
	s.logger.Info("Log store cleared")
	return nil
}

// sample appends one synthetic record per configured path each period.
func (s *MemStore) sample(ctx context.Context, pathCount int) {
	defer s.wg.Done()

	ticker := time.NewTicker(samplePeriod)
	defer ticker.Stop()

	var seq uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq++
			for i := 0; i < pathCount; i++ {
				payload := make([]byte, sampleGenPayloadSize)
				binary.LittleEndian.PutUint32(payload, seq)
				s.AppendRecord(uint16(i+1), payload)
			}
		}
	}
}
