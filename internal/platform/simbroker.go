package platform

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/sensorlog/internal/groutine"
)

// PathSpec describes one resolvable measurement path.
type PathSpec struct {
	FrameID  uint16
	Interval time.Duration
	// RecordLen is the byte length of one emitted record.
	RecordLen int
}

// SimBroker is an in-memory reference implementation of Broker. Each active
// subscription runs a sampler goroutine emitting synthetic records as
// NotifyEvents; the subscription itself is acknowledged asynchronously with
// a SubscribeResultEvent, matching the contract real measurement brokers
// have.
type SimBroker struct {
	sink   EventSink
	logger *logrus.Logger

	paths      *orderedmap.OrderedMap[string, PathSpec]
	subs       *hashmap.Map[uint32, context.CancelFunc]
	nextHandle atomic.Uint32
	wg         sync.WaitGroup
}

// NewSimBroker creates a broker with the default measurement path registry.
func NewSimBroker(sink EventSink, logger *logrus.Logger) *SimBroker {
	if logger == nil {
		logger = logrus.New()
	}
	b := &SimBroker{
		sink:   sink,
		logger: logger,
		paths:  orderedmap.New[string, PathSpec](),
		subs:   hashmap.New[uint32, context.CancelFunc](),
	}
	// Registration order is the order KnownPaths reports.
	b.paths.Set("/Meas/ECG/200", PathSpec{FrameID: 0x0001, Interval: 5 * time.Millisecond, RecordLen: 8})
	b.paths.Set("/Meas/ECG/125", PathSpec{FrameID: 0x0002, Interval: 8 * time.Millisecond, RecordLen: 8})
	b.paths.Set("/Meas/IMU6/26", PathSpec{FrameID: 0x0003, Interval: 38 * time.Millisecond, RecordLen: 24})
	b.paths.Set("/Meas/Acc/52", PathSpec{FrameID: 0x0004, Interval: 19 * time.Millisecond, RecordLen: 12})
	b.paths.Set("/Meas/HR", PathSpec{FrameID: 0x0005, Interval: time.Second, RecordLen: 4})
	return b
}

// KnownPaths lists the resolvable paths in registration order.
func (b *SimBroker) KnownPaths() []string {
	out := make([]string, 0, b.paths.Len())
	for pair := b.paths.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Spec returns the path's registration, if any.
func (b *SimBroker) Spec(path string) (PathSpec, bool) {
	return b.paths.Get(path)
}

// Subscribe resolves path to a handle and starts delivering NotifyEvents.
// The subscription is confirmed later by a SubscribeResultEvent.
func (b *SimBroker) Subscribe(path string) (ResourceHandle, error) {
	spec, ok := b.paths.Get(path)
	if !ok {
		return InvalidHandle, fmt.Errorf("%w: %q", ErrUnknownPath, path)
	}

	handle := ResourceHandle(b.nextHandle.Add(1))
	ctx, cancel := context.WithCancel(context.Background())
	b.subs.Set(uint32(handle), cancel)

	b.wg.Add(1)
	groutine.Go(ctx, "sampler-"+path, func(ctx context.Context) {
		b.run(ctx, handle, spec)
	})

	b.logger.WithFields(logrus.Fields{
		"path":   path,
		"handle": handle,
	}).Debug("Subscription started")
	return handle, nil
}

// Unsubscribe stops delivery for a handle. Unknown handles are a no-op.
func (b *SimBroker) Unsubscribe(h ResourceHandle) error {
	cancel, ok := b.subs.Get(uint32(h))
	if !ok {
		return nil
	}
	b.subs.Del(uint32(h))
	cancel()
	b.logger.WithField("handle", h).Debug("Subscription stopped")
	return nil
}

// Close stops every active subscription and waits for the samplers to exit.
func (b *SimBroker) Close() {
	b.subs.Range(func(h uint32, cancel context.CancelFunc) bool {
		b.subs.Del(h)
		cancel()
		return true
	})
	b.wg.Wait()
}

func (b *SimBroker) run(ctx context.Context, handle ResourceHandle, spec PathSpec) {
	defer b.wg.Done()

	// Acknowledge on the event queue, never synchronously from Subscribe.
	b.sink.Post(SubscribeResultEvent{Handle: handle, OK: true})

	ticker := time.NewTicker(spec.Interval)
	defer ticker.Stop()

	var seq uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq++
			record := make([]byte, spec.RecordLen)
			binary.LittleEndian.PutUint16(record, spec.FrameID)
			if spec.RecordLen >= 6 {
				binary.LittleEndian.PutUint32(record[2:], seq)
			}
			b.sink.Post(NotifyEvent{Handle: handle, Data: record})
		}
	}
}
