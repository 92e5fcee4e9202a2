package protocol

import (
	"encoding/binary"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/srg/sensorlog/internal/framing"
	"github.com/srg/sensorlog/internal/lifecycle"
	"github.com/srg/sensorlog/internal/platform"
	"github.com/srg/sensorlog/internal/power"
	"github.com/srg/sensorlog/internal/ringchan"
	"github.com/srg/sensorlog/internal/subpool"
)

// fetchQueueCap bounds the ids queued by a fetch-all; ids past the cap are
// dropped rather than stalling the loop.
const fetchQueueCap = 10

// enumPurpose records why a log enumeration is in flight: to answer
// GET_LOG_COUNT, or to seed the fetch-all queue.
type enumPurpose int

const (
	enumNone enumPurpose = iota
	enumCount
	enumFetchAll
)

// pendingFetch is the state of the one log transfer that can be in flight.
// cursor tracks the read position in the store; offset tracks the byte
// position of the outbound payload stream, which excludes record headers.
type pendingFetch struct {
	logID  uint32
	cursor uint32
	ref    byte
	offset uint32
	reasm  *framing.Reassembler
}

// Engine executes control-channel commands and the completions of the
// asynchronous operations they start. All methods must be called from the
// agent loop.
type Engine struct {
	writer *framing.Writer
	pool   *subpool.Pool
	store  platform.LogStore
	broker platform.Broker
	ctrl   *lifecycle.Controller
	seq    *power.Sequencer
	logger *logrus.Logger

	fetch       *pendingFetch
	queue       *ringchan.Ring[uint32]
	fetchAll    bool
	fetchAllRef byte
	enum        enumPurpose
	enumRef     byte
}

func NewEngine(
	writer *framing.Writer,
	pool *subpool.Pool,
	store platform.LogStore,
	broker platform.Broker,
	ctrl *lifecycle.Controller,
	seq *power.Sequencer,
	logger *logrus.Logger,
) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		writer: writer,
		pool:   pool,
		store:  store,
		broker: broker,
		ctrl:   ctrl,
		seq:    seq,
		logger: logger,
		queue:  ringchan.New[uint32](fetchQueueCap),
	}
}

// Fetching reports whether a log transfer is in flight.
func (e *Engine) Fetching() bool {
	return e.fetch != nil
}

// HandleCommand executes one raw command frame. Frames too short to carry a
// command and reference are dropped.
func (e *Engine) HandleCommand(frame []byte) {
	if len(frame) < 2 {
		e.logger.WithField("bytes", len(frame)).Warn("Dropping short command frame")
		return
	}
	cmd, ref, payload := Command(frame[0]), frame[1], frame[2:]
	e.logger.WithFields(logrus.Fields{
		"command":   cmd.String(),
		"reference": ref,
	}).Info("Command received")

	switch cmd {
	case CmdHello:
		e.handleHello(ref)
	case CmdSubscribe:
		e.handleSubscribe(ref, payload)
	case CmdUnsubscribe:
		e.handleUnsubscribe(ref)
	case CmdFetchLog:
		e.handleFetchLog(ref, payload)
	case CmdInitOffline:
		e.handleInitOffline(ref)
	case CmdGetLogCount:
		e.handleGetLogCount(ref)
	case CmdStopLogging:
		e.handleStopLogging(ref)
	case CmdFetchAll:
		e.handleFetchAll(ref)
	default:
		e.logger.WithField("command", byte(cmd)).Warn("Unknown command, no response")
	}
}

// handleHello runs the power-down sequence: abandon any transfer, release
// every live subscription, wipe stored logs, acknowledge, then stop the
// recording and let the power sequencer take over.
func (e *Engine) handleHello(ref byte) {
	e.abortFetchAll()
	e.clearFetch()
	e.ReleaseAllSubscriptions()

	if err := e.store.Clear(); err != nil {
		e.logger.WithError(err).Error("Failed to clear log storage on power-down")
	}

	e.reply(ref, helloReply...)
	e.ctrl.Stop(true)
	e.seq.Poll(e.ctrl.PowerDownRequested(), e.ctrl.IsLogging())
}

// handleSubscribe starts a live subscription for the path in the payload.
// Success is acknowledged implicitly by the first data notification; only
// failures get a COMMAND_RESULT.
func (e *Engine) handleSubscribe(ref byte, payload []byte) {
	path := string(payload)
	if len(path) == 0 || ref == 0 {
		e.reply(ref, statusBadRequest...)
		return
	}
	if e.pool.FindByRef(ref) != nil {
		e.reply(ref, statusBadRequest...)
		return
	}
	if !e.pool.HasFree() {
		e.reply(ref, statusInsufficientStorage...)
		return
	}

	handle, err := e.broker.Subscribe(path)
	if err != nil {
		e.logger.WithError(err).WithField("path", path).Warn("Subscribe rejected")
		e.reply(ref, statusBadRequest...)
		return
	}
	if _, err := e.pool.Allocate(ref, handle); err != nil {
		// The handle is live but cannot be tracked; undo the subscription.
		e.logger.WithError(err).Warn("Subscription slot allocation failed")
		if uerr := e.broker.Unsubscribe(handle); uerr != nil {
			e.logger.WithError(uerr).Warn("Failed to roll back subscription")
		}
		e.reply(ref, statusBadRequest...)
	}
}

// handleUnsubscribe releases the subscription held by ref. An unknown
// reference is acknowledged all the same so the client can retry blindly.
func (e *Engine) handleUnsubscribe(ref byte) {
	if slot := e.pool.FindByRef(ref); slot != nil {
		handle := slot.Resource
		e.pool.Release(ref)
		if err := e.broker.Unsubscribe(handle); err != nil {
			e.logger.WithError(err).WithField("handle", handle).Warn("Unsubscribe failed")
		}
	}
	e.reply(ref, StatusOK)
}

// handleFetchLog starts streaming one stored log. The payload is the log id
// as 4 bytes little-endian. Only one transfer can be in flight.
func (e *Engine) handleFetchLog(ref byte, payload []byte) {
	if e.fetch != nil || e.fetchAll {
		e.reply(ref, statusTooManyRequests...)
		return
	}
	if len(payload) != 4 {
		e.reply(ref, statusBadRequest...)
		return
	}
	logID := binary.LittleEndian.Uint32(payload)
	e.startFetch(logID, ref)
}

// handleInitOffline wipes stored logs so a fresh offline recording starts
// from empty storage.
func (e *Engine) handleInitOffline(ref byte) {
	if err := e.store.Clear(); err != nil {
		e.logger.WithError(err).Error("Failed to clear log storage")
		e.reply(ref, statusInternalError...)
		return
	}
	e.reply(ref, StatusCreated)
}

// handleGetLogCount enumerates stored logs and replies with the count.
func (e *Engine) handleGetLogCount(ref byte) {
	if e.enum != enumNone {
		e.reply(ref, statusTooManyRequests...)
		return
	}
	e.enum = enumCount
	e.enumRef = ref
	e.store.RequestEntries()
}

// handleStopLogging stops the recording session without powering down.
func (e *Engine) handleStopLogging(ref byte) {
	e.ctrl.Stop(false)
	e.reply(ref, StatusOK)
}

// handleFetchAll enumerates stored logs and streams each in turn under the
// one reference. Completion is signalled by a bare COMMAND_RESULT.
func (e *Engine) handleFetchAll(ref byte) {
	if e.fetch != nil || e.fetchAll || e.enum != enumNone {
		e.reply(ref, statusTooManyRequests...)
		return
	}
	e.fetchAll = true
	e.fetchAllRef = ref
	e.enum = enumFetchAll
	e.enumRef = ref
	e.store.RequestEntries()
}

// OnSubscribeResult settles a pending subscription. A failed subscription
// frees its slot; the client learns of the failure by the absence of data.
func (e *Engine) OnSubscribeResult(ev platform.SubscribeResultEvent) {
	slot := e.pool.FindByResource(ev.Handle)
	if slot == nil {
		e.logger.WithField("handle", ev.Handle).Debug("Subscribe result for released slot")
		return
	}
	if !ev.OK {
		e.logger.WithFields(logrus.Fields{
			"reference": slot.Ref,
			"handle":    ev.Handle,
		}).Warn("Subscription failed, releasing slot")
		e.pool.Release(slot.Ref)
		return
	}
	slot.Activate()
}

// OnNotify forwards one live measurement record to the client. Records from
// unknown or not-yet-active handles are dropped.
func (e *Engine) OnNotify(ev platform.NotifyEvent) {
	slot := e.pool.FindByResource(ev.Handle)
	if slot == nil || slot.State() != subpool.Active {
		return
	}
	if _, err := e.writer.WriteData(slot.Ref, 0, ev.Data); err != nil {
		e.logger.WithError(err).WithField("reference", slot.Ref).Warn("Dropping live record")
	}
}

// OnLogChunk feeds one chunk of stored log bytes through the record
// reassembler and requests the next chunk until the log is exhausted.
func (e *Engine) OnLogChunk(ev platform.LogChunkEvent) {
	f := e.fetch
	if f == nil || ev.LogID != f.logID || ev.Cursor != f.cursor {
		e.logger.WithFields(logrus.Fields{
			"log":    ev.LogID,
			"cursor": ev.Cursor,
		}).Debug("Ignoring stale log chunk")
		return
	}

	if ev.Err != nil {
		e.logger.WithError(ev.Err).WithField("log", f.logID).Error("Log read failed, aborting transfer")
		e.finishFetch()
		return
	}

	if err := f.reasm.Push(ev.Data); err != nil {
		var fse *framing.FrameSizeError
		if errors.As(err, &fse) {
			e.logger.WithError(err).WithField("log", f.logID).Error("Corrupt record stream, aborting transfer")
		} else {
			e.logger.WithError(err).WithField("log", f.logID).Warn("Transfer interrupted")
		}
		e.finishFetch()
		return
	}

	if ev.Continues {
		f.cursor += uint32(len(ev.Data))
		e.store.RequestChunk(f.logID, f.cursor)
		return
	}

	if f.reasm.Pending() > 0 {
		e.logger.WithFields(logrus.Fields{
			"log":   f.logID,
			"bytes": f.reasm.Pending(),
		}).Warn("Log ended mid-record, trailing bytes dropped")
	}
	e.finishFetch()
}

// OnLogList settles a pending enumeration.
func (e *Engine) OnLogList(ev platform.LogListEvent) {
	purpose, ref := e.enum, e.enumRef
	e.enum = enumNone
	if purpose == enumNone {
		e.logger.Debug("Ignoring unsolicited log list")
		return
	}

	if ev.Err != nil {
		e.logger.WithError(ev.Err).Error("Log enumeration failed")
		if purpose == enumFetchAll {
			e.fetchAll = false
		}
		e.reply(ref, statusInternalError...)
		return
	}

	switch purpose {
	case enumCount:
		var count [4]byte
		binary.LittleEndian.PutUint32(count[:], uint32(len(ev.IDs)))
		e.reply(ref, count[:]...)

	case enumFetchAll:
		for _, id := range ev.IDs {
			if !e.queue.TrySend(id) {
				e.logger.WithField("log", id).Warn("Fetch queue full, log skipped")
			}
		}
		e.startNextQueuedLog()
	}
}

// OnLinkDown abandons everything the lost client was owed: queued and
// in-flight log transfers and every live subscription.
func (e *Engine) OnLinkDown() {
	e.abortFetchAll()
	e.clearFetch()
	e.ReleaseAllSubscriptions()
}

// ReleaseAllSubscriptions drops every live subscription, as on link loss.
func (e *Engine) ReleaseAllSubscriptions() {
	e.pool.ReleaseAll(func(ref byte, resource platform.ResourceHandle) {
		if err := e.broker.Unsubscribe(resource); err != nil {
			e.logger.WithError(err).WithField("handle", resource).Warn("Unsubscribe failed during release")
		}
	})
}

// startFetch begins streaming logID to the client under ref.
func (e *Engine) startFetch(logID uint32, ref byte) {
	f := &pendingFetch{logID: logID, ref: ref}
	// Records surface on the data channel as they complete; the outbound
	// offset excludes the record headers consumed here.
	f.reasm = framing.NewReassembler(func(frameID uint16, payload []byte) error {
		next, err := e.writer.WriteData(f.ref, f.offset, payload)
		if err != nil {
			return err
		}
		f.offset = next
		return nil
	}, e.logger)
	e.fetch = f

	e.logger.WithFields(logrus.Fields{
		"log":       logID,
		"reference": ref,
	}).Info("Starting log transfer")
	e.store.RequestChunk(logID, 0)
}

// finishFetch emits the end-of-log marker, clears the transfer state and,
// in a fetch-all, moves on to the next queued log.
func (e *Engine) finishFetch() {
	f := e.fetch
	e.fetch = nil
	if f == nil {
		return
	}
	if _, err := e.writer.WriteData(f.ref, f.offset, nil); err != nil {
		e.logger.WithError(err).WithField("log", f.logID).Warn("Failed to send end-of-log marker")
	}
	e.logger.WithFields(logrus.Fields{
		"log":   f.logID,
		"bytes": f.offset,
	}).Info("Log transfer finished")

	if e.fetchAll {
		e.startNextQueuedLog()
	}
}

// startNextQueuedLog pops the fetch-all queue. An empty queue completes the
// fetch-all with a bare COMMAND_RESULT carrying no status.
func (e *Engine) startNextQueuedLog() {
	id, ok := e.queue.TryReceive()
	if !ok {
		e.fetchAll = false
		e.reply(e.fetchAllRef)
		return
	}
	e.startFetch(id, e.fetchAllRef)
}

func (e *Engine) clearFetch() {
	e.fetch = nil
}

func (e *Engine) abortFetchAll() {
	e.fetchAll = false
	e.enum = enumNone
	if n := e.queue.Drain(); n > 0 {
		e.logger.WithField("queued", n).Info("Abandoning queued log transfers")
	}
}

func (e *Engine) reply(ref byte, status ...byte) {
	if err := e.writer.WriteResult(ref, status...); err != nil {
		e.logger.WithError(err).WithField("reference", ref).Warn("Failed to send command result")
	}
}
