// Package platform defines the interfaces through which the agent reaches
// its external collaborators: the persistent log store, the measurement
// broker, the lead sensor, the visual indicator, and the power drivers.
// Reference in-memory implementations live alongside the interfaces so the
// agent can run and be tested without sensor hardware.
package platform

import "errors"

// ResourceHandle identifies a subscribed measurement resource.
type ResourceHandle uint32

// InvalidHandle marks an unresolved or released resource.
const InvalidHandle ResourceHandle = 0

// IndicationMode selects the device's visual indication.
type IndicationMode int

const (
	IndicationNone IndicationMode = iota
	IndicationContinuous
	IndicationShort
)

func (m IndicationMode) String() string {
	switch m {
	case IndicationNone:
		return "none"
	case IndicationContinuous:
		return "continuous"
	case IndicationShort:
		return "short"
	default:
		return "unknown"
	}
}

// ErrUnknownPath reports a subscribe request for a path the broker cannot
// resolve.
var ErrUnknownPath = errors.New("unknown measurement path")

// ErrUnknownLog reports a chunk request for a log id the store does not hold.
var ErrUnknownLog = errors.New("unknown log id")

// EventSink accepts events for the agent loop. Post never blocks.
type EventSink interface {
	Post(Event)
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(Event)

func (f SinkFunc) Post(ev Event) { f(ev) }

// LogStore is the device's append-only recording storage.
//
// StartSession, StopSession and Clear complete synchronously. RequestEntries
// and RequestChunk are asynchronous: they return immediately and deliver
// their result later as a LogListEvent or LogChunkEvent on the sink the
// store was bound to.
type LogStore interface {
	// StartSession opens a new log recording the given measurement paths.
	StartSession(paths []string) error
	// StopSession finalizes and flushes the active log.
	StopSession() error
	// RequestEntries asks for the ids of all stored logs.
	RequestEntries()
	// RequestChunk asks for the bytes of a log starting at cursor. The
	// resulting LogChunkEvent reports whether more bytes remain.
	RequestChunk(logID, cursor uint32)
	// Clear deletes all stored logs.
	Clear() error
}

// Broker resolves measurement paths and manages live data subscriptions.
// Subscribe resolves the path synchronously but acknowledges the
// subscription later with a SubscribeResultEvent; notifications then arrive
// as NotifyEvents until Unsubscribe.
type Broker interface {
	Subscribe(path string) (ResourceHandle, error)
	Unsubscribe(h ResourceHandle) error
}

// Indicator drives the device's visual indication.
type Indicator interface {
	SetVisualIndication(mode IndicationMode) error
}

// PowerControl drives the power-down sequence: arm the wake source, then
// enter low-power mode.
type PowerControl interface {
	ArmWakeSource() error
	EnterLowPower() error
}
