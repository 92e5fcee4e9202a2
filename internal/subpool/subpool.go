// Package subpool holds the fixed pool of live data subscription slots
// multiplexed over the control channel.
package subpool

import (
	"errors"
	"fmt"

	"github.com/srg/sensorlog/internal/platform"
)

// DefaultCapacity is the number of subscription slots a control channel
// offers.
const DefaultCapacity = 4

// State is the lifecycle state of a slot.
type State int

const (
	// Idle marks a free slot.
	Idle State = iota
	// Requested marks a slot whose subscribe has been issued but not yet
	// acknowledged.
	Requested
	// Active marks a slot with a confirmed subscription.
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Pool errors.
var (
	ErrExhausted          = errors.New("subscription pool exhausted")
	ErrReferenceInUse     = errors.New("client reference already in use")
	ErrResourceSubscribed = errors.New("resource already subscribed")
)

// Slot is one subscription: a resource handle bound to the client reference
// that claimed it. A free slot has Ref==0 and Resource==InvalidHandle.
type Slot struct {
	Resource platform.ResourceHandle
	Ref      byte
	state    State
}

// State returns the slot's lifecycle state.
func (s *Slot) State() State {
	return s.state
}

// Activate marks a Requested slot Active.
func (s *Slot) Activate() {
	s.state = Active
}

func (s *Slot) free() bool {
	return s.Ref == 0 && s.Resource == platform.InvalidHandle && s.state == Idle
}

func (s *Slot) clear() {
	s.Ref = 0
	s.Resource = platform.InvalidHandle
	s.state = Idle
}

// Pool is a fixed-size set of subscription slots. Allocation is a linear
// scan returning the lowest-indexed free slot; the pool is small and only
// ever touched from the agent loop.
type Pool struct {
	slots []Slot
}

// New creates a pool with the given capacity (DefaultCapacity if <= 0).
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{slots: make([]Slot, capacity)}
}

// Capacity returns the slot count.
func (p *Pool) Capacity() int {
	return len(p.slots)
}

// Allocate claims the lowest free slot for the reference/resource pair and
// marks it Requested. A reference or resource already held by another slot
// is rejected.
func (p *Pool) Allocate(ref byte, resource platform.ResourceHandle) (*Slot, error) {
	if ref == 0 {
		return nil, fmt.Errorf("client reference 0 is reserved for free slots")
	}
	if p.FindByRef(ref) != nil {
		return nil, ErrReferenceInUse
	}
	if p.FindByResource(resource) != nil {
		return nil, ErrResourceSubscribed
	}
	for i := range p.slots {
		if p.slots[i].free() {
			p.slots[i].Ref = ref
			p.slots[i].Resource = resource
			p.slots[i].state = Requested
			return &p.slots[i], nil
		}
	}
	return nil, ErrExhausted
}

// HasFree reports whether at least one slot is free.
func (p *Pool) HasFree() bool {
	for i := range p.slots {
		if p.slots[i].free() {
			return true
		}
	}
	return false
}

// FindByRef returns the slot held by a client reference, or nil.
func (p *Pool) FindByRef(ref byte) *Slot {
	if ref == 0 {
		return nil
	}
	for i := range p.slots {
		if p.slots[i].Ref == ref {
			return &p.slots[i]
		}
	}
	return nil
}

// FindByResource returns the slot bound to a resource handle, or nil.
func (p *Pool) FindByResource(resource platform.ResourceHandle) *Slot {
	if resource == platform.InvalidHandle {
		return nil
	}
	for i := range p.slots {
		if p.slots[i].Resource == resource {
			return &p.slots[i]
		}
	}
	return nil
}

// Release frees the slot held by a reference. Releasing an unknown
// reference is a no-op; unsubscribing twice must be safe.
func (p *Pool) Release(ref byte) bool {
	s := p.FindByRef(ref)
	if s == nil {
		return false
	}
	s.clear()
	return true
}

// ReleaseAll frees every occupied slot, invoking fn (if non-nil) with each
// slot's content before it is cleared.
func (p *Pool) ReleaseAll(fn func(ref byte, resource platform.ResourceHandle)) {
	for i := range p.slots {
		if p.slots[i].free() {
			continue
		}
		if fn != nil {
			fn(p.slots[i].Ref, p.slots[i].Resource)
		}
		p.slots[i].clear()
	}
}
