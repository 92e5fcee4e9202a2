// Package gatt exposes the control channel over a BLE GATT service: a
// write-only command characteristic feeding the agent, and a notify-only
// data characteristic carrying results and measurement data back to the
// client.
package gatt

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"

	"github.com/srg/sensorlog/internal/platform"
)

// Service and characteristic UUIDs of the control channel.
var (
	ServiceUUID     = ble.MustParse("34802252-7185-4d5d-b431-630e7050e8f0")
	CommandCharUUID = ble.MustParse("34800001-7185-4d5d-b431-630e7050e8f0")
	DataCharUUID    = ble.MustParse("34800002-7185-4d5d-b431-630e7050e8f0")
)

// DefaultQueueCap bounds the outbound notification queue.
const DefaultQueueCap uint32 = 64

// Server advertises the control service and bridges it to the agent: writes
// to the command characteristic become CommandEvents, and frames handed to
// Notify are delivered as data-characteristic notifications.
//
// Notify is safe to call from any goroutine. Frames queued while no client
// has enabled notifications are dropped, matching a radio with nobody
// listening.
type Server struct {
	sink   platform.EventSink
	name   string
	logger *logrus.Logger

	out     mpmc.RichOverlappedRingBuffer[[]byte]
	wake    chan struct{}
	enabled atomic.Bool
}

func NewServer(sink platform.EventSink, name string, queueCap uint32, logger *logrus.Logger) *Server {
	if queueCap == 0 {
		queueCap = DefaultQueueCap
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		sink:   sink,
		name:   name,
		logger: logger,
		out:    mpmc.NewOverlappedRingBuffer[[]byte](queueCap),
		wake:   make(chan struct{}, 1),
	}
}

// Notify queues one frame for the data characteristic. The oldest queued
// frame is overwritten when the client cannot drain fast enough.
func (s *Server) Notify(frame []byte) error {
	if !s.enabled.Load() {
		s.logger.WithField("bytes", len(frame)).Debug("Notifications disabled, frame dropped")
		return nil
	}

	buf := append([]byte(nil), frame...)
	overwrites, err := s.out.EnqueueM(buf)
	if err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	if overwrites > 0 {
		s.logger.WithField("overwritten", overwrites).Warn("Notification queue overflow")
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Serve sets up the BLE device, registers the control service and
// advertises until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	dev, err := linux.NewDevice()
	if err != nil {
		return fmt.Errorf("failed to open BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)
	defer func() {
		if err := dev.Stop(); err != nil {
			s.logger.WithError(err).Warn("Failed to stop BLE device")
		}
	}()

	svc := ble.NewService(ServiceUUID)

	cmd := svc.NewCharacteristic(CommandCharUUID)
	cmd.HandleWrite(ble.WriteHandlerFunc(s.handleCommandWrite))

	data := svc.NewCharacteristic(DataCharUUID)
	data.HandleNotify(ble.NotifyHandlerFunc(s.session))

	if err := ble.AddService(svc); err != nil {
		return fmt.Errorf("failed to register control service: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"name":    s.name,
		"service": ServiceUUID.String(),
	}).Info("Advertising control service")

	err = ble.AdvertiseNameAndServices(ctx, s.name, ServiceUUID)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Server) handleCommandWrite(req ble.Request, rsp ble.ResponseWriter) {
	frame := append([]byte(nil), req.Data()...)
	s.logger.WithField("bytes", len(frame)).Debug("Command frame received")
	s.sink.Post(platform.CommandEvent{Frame: frame})
}

// session runs for as long as the client keeps notifications enabled on the
// data characteristic. Enabling notifications is what marks the link up for
// the agent; the session ending marks it down.
func (s *Server) session(req ble.Request, n ble.Notifier) {
	s.drainStale()
	s.enabled.Store(true)
	s.sink.Post(platform.LinkStateEvent{Connected: true})
	s.logger.Info("Client enabled notifications, link up")

	defer func() {
		s.enabled.Store(false)
		s.sink.Post(platform.LinkStateEvent{Connected: false})
		s.logger.Info("Client gone, link down")
	}()

	for {
		select {
		case <-n.Context().Done():
			return
		case <-s.wake:
			if !s.pump(n) {
				return
			}
		}
	}
}

// pump drains the outbound queue into the notifier. It reports false when
// the transport write fails, which ends the session.
func (s *Server) pump(n ble.Notifier) bool {
	for !s.out.IsEmpty() {
		frame, err := s.out.Dequeue()
		if err != nil {
			s.logger.WithError(err).Warn("Notification dequeue failed")
			return true
		}
		if _, err := n.Write(frame); err != nil {
			s.logger.WithError(err).Warn("Notification write failed, closing session")
			return false
		}
	}
	return true
}

// drainStale discards frames queued for a client that is no longer there.
func (s *Server) drainStale() {
	dropped := 0
	for !s.out.IsEmpty() {
		if _, err := s.out.Dequeue(); err != nil {
			break
		}
		dropped++
	}
	if dropped > 0 {
		s.logger.WithField("frames", dropped).Debug("Dropped stale notifications from previous session")
	}
}
