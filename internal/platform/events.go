package platform

// Event is the closed union of everything the outside world can tell the
// agent. Handlers dispatch with a type switch over the variants below; the
// isEvent marker keeps the set closed to this package.
type Event interface {
	isEvent()
}

// LeadStateEvent reports a change of the physical electrode contact.
type LeadStateEvent struct {
	Connected bool
}

// LinkStateEvent reports the wireless link to the companion app going up or
// down.
type LinkStateEvent struct {
	Connected bool
}

// CommandEvent carries one raw command frame written to the command
// characteristic: [cmd:1][reference:1][payload...].
type CommandEvent struct {
	Frame []byte
}

// SubscribeResultEvent acknowledges an asynchronous Broker.Subscribe.
type SubscribeResultEvent struct {
	Handle ResourceHandle
	OK     bool
}

// NotifyEvent carries one live measurement record from a subscribed resource.
type NotifyEvent struct {
	Handle ResourceHandle
	Data   []byte
}

// LogChunkEvent carries one chunk of stored log bytes. Continues reports
// that more bytes remain past Cursor+len(Data). A failed read sets Err and
// no data.
type LogChunkEvent struct {
	LogID     uint32
	Cursor    uint32
	Data      []byte
	Continues bool
	Err       error
}

// LogListEvent carries the result of a LogStore.RequestEntries.
type LogListEvent struct {
	IDs []uint32
	Err error
}

// TickEvent is the periodic lifecycle tick.
type TickEvent struct{}

func (LeadStateEvent) isEvent()       {}
func (LinkStateEvent) isEvent()       {}
func (CommandEvent) isEvent()         {}
func (SubscribeResultEvent) isEvent() {}
func (NotifyEvent) isEvent()          {}
func (LogChunkEvent) isEvent()        {}
func (LogListEvent) isEvent()         {}
func (TickEvent) isEvent()            {}
