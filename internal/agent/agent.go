// Package agent runs the single-threaded event loop at the core of the
// device. Every external input — command frames, lead and link changes,
// store and broker completions — is posted as an event and consumed here in
// order, so the protocol engine and the lifecycle controller never need
// locks.
package agent

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/sensorlog/internal/lifecycle"
	"github.com/srg/sensorlog/internal/platform"
	"github.com/srg/sensorlog/internal/power"
	"github.com/srg/sensorlog/internal/protocol"
	"github.com/srg/sensorlog/internal/ringchan"
)

// DefaultQueueCap bounds the event queue. The queue drops its oldest event
// when full; the producers must never block.
const DefaultQueueCap = 64

// Agent owns the event queue and the dispatch loop.
type Agent struct {
	queue  *ringchan.Ring[platform.Event]
	engine *protocol.Engine
	ctrl   *lifecycle.Controller
	seq    *power.Sequencer
	logger *logrus.Logger
	tick   time.Duration
}

func New(
	engine *protocol.Engine,
	ctrl *lifecycle.Controller,
	seq *power.Sequencer,
	tick time.Duration,
	queueCap int,
	logger *logrus.Logger,
) *Agent {
	if queueCap <= 0 {
		queueCap = DefaultQueueCap
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Agent{
		queue:  ringchan.New[platform.Event](queueCap),
		engine: engine,
		ctrl:   ctrl,
		seq:    seq,
		logger: logger,
		tick:   tick,
	}
}

// Post enqueues an event for the loop. It never blocks: when the queue is
// full the oldest event is dropped. Safe to call from any goroutine.
func (a *Agent) Post(ev platform.Event) {
	a.queue.Send(ev)
}

// Run consumes events until the context is cancelled. The periodic tick
// driving the lifecycle timers is generated here rather than posted, so a
// flooded queue cannot starve it of its time base.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.WithField("tick", a.tick).Info("Agent loop started")
	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Agent loop stopped")
			return ctx.Err()
		case <-ticker.C:
			a.dispatch(platform.TickEvent{})
		case ev, ok := <-a.queue.C():
			if !ok {
				return nil
			}
			a.dispatch(ev)
		}
	}
}

func (a *Agent) dispatch(ev platform.Event) {
	switch ev := ev.(type) {
	case platform.LeadStateEvent:
		a.ctrl.OnLeadsChanged(ev.Connected)
	case platform.LinkStateEvent:
		a.ctrl.OnLinkChanged(ev.Connected)
		if !ev.Connected {
			a.engine.OnLinkDown()
		}
	case platform.CommandEvent:
		a.engine.HandleCommand(ev.Frame)
	case platform.SubscribeResultEvent:
		a.engine.OnSubscribeResult(ev)
	case platform.NotifyEvent:
		a.engine.OnNotify(ev)
	case platform.LogChunkEvent:
		a.engine.OnLogChunk(ev)
	case platform.LogListEvent:
		a.engine.OnLogList(ev)
	case platform.TickEvent:
		a.ctrl.OnTick()
		a.seq.Poll(a.ctrl.PowerDownRequested(), a.ctrl.IsLogging())
	default:
		a.logger.WithField("event", ev).Warn("Unhandled event type")
	}
}
