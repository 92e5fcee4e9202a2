// Package lifecycle implements the logging-lifecycle state machine: it
// decides when local recording starts and stops based on electrode contact,
// explicit stop commands, and the power-down path.
package lifecycle

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/sensorlog/internal/platform"
)

// Options configures the controller's tick-derived timing.
type Options struct {
	// Paths are the measurement paths recorded in a session.
	Paths []string
	// GraceTicks is how many consecutive ticks electrode contact must stay
	// lost before an active recording is stopped.
	GraceTicks int
	// IndicationHoldTicks is how many ticks the start indication stays on.
	IndicationHoldTicks int
}

// Controller owns the recording session state. All methods must be called
// from the agent loop; the controller holds no locks.
type Controller struct {
	store  platform.LogStore
	ind    platform.Indicator
	logger *logrus.Logger
	opts   Options

	leadsConnected bool
	linkConnected  bool
	isLogging      bool
	powerDown      bool

	disconnectTicks int
	indHoldLeft     int
}

// New creates a controller. The session starts stopped; nothing persists
// across boots.
func New(store platform.LogStore, ind platform.Indicator, opts Options, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		store:  store,
		ind:    ind,
		logger: logger,
		opts:   opts,
	}
}

// IsLogging reports whether a recording session is active.
func (c *Controller) IsLogging() bool {
	return c.isLogging
}

// PowerDownRequested reports whether an explicit power-down was requested.
func (c *Controller) PowerDownRequested() bool {
	return c.powerDown
}

// LeadsConnected reports the last known electrode contact state.
func (c *Controller) LeadsConnected() bool {
	return c.leadsConnected
}

// LinkConnected reports the last known wireless link state.
func (c *Controller) LinkConnected() bool {
	return c.linkConnected
}

// OnLeadsChanged handles an electrode contact change. Contact starts a
// recording if none is active; losing contact only arms the tick-driven
// grace counter.
func (c *Controller) OnLeadsChanged(connected bool) {
	c.leadsConnected = connected
	c.logger.WithField("connected", connected).Info("Lead state changed")

	if connected {
		c.disconnectTicks = 0
		c.start()
	}
}

// OnLinkChanged tracks the wireless link state. The link does not gate
// recording; releasing subscriptions on link loss is the protocol engine's
// concern.
func (c *Controller) OnLinkChanged(connected bool) {
	c.linkConnected = connected
	c.logger.WithField("connected", connected).Info("Link state changed")
}

// Stop stops the active recording session. powerDown additionally arms the
// device power-down sequence. Stopping an already-stopped session is a
// no-op.
func (c *Controller) Stop(powerDown bool) {
	if powerDown {
		c.powerDown = true
	}
	if !c.isLogging {
		return
	}

	// Local state never gets stuck waiting on the store: a failed finalize
	// is logged and the session is marked stopped regardless.
	if err := c.store.StopSession(); err != nil {
		c.logger.WithError(err).Error("Failed to finalize recording session")
	}
	c.setIndication(platform.IndicationNone)
	c.isLogging = false
	c.disconnectTicks = 0
	c.indHoldLeft = 0
	c.logger.Info("Recording stopped")
}

// OnTick advances the tick-driven timers: the start-indication hold and the
// disconnect grace counter. A disconnect persisting for GraceTicks stops the
// recording and blinks the indicator once; reconnecting earlier resets the
// counter.
func (c *Controller) OnTick() {
	if c.indHoldLeft > 0 {
		c.indHoldLeft--
		if c.indHoldLeft == 0 {
			c.setIndication(platform.IndicationNone)
		}
	}

	if !c.leadsConnected && c.isLogging {
		c.disconnectTicks++
		if c.disconnectTicks >= c.opts.GraceTicks {
			c.logger.WithField("ticks", c.disconnectTicks).Info("Disconnect grace elapsed, stopping recording")
			c.Stop(false)
			c.setIndication(platform.IndicationShort)
		}
		return
	}
	c.disconnectTicks = 0
}

// start begins a recording session. Starting while already logging or
// without lead contact is a no-op.
func (c *Controller) start() {
	if c.isLogging || !c.leadsConnected {
		return
	}
	// Mark active before issuing the request so a re-entrant start stays a
	// no-op.
	c.isLogging = true
	c.powerDown = false

	if err := c.store.StartSession(c.opts.Paths); err != nil {
		c.logger.WithError(err).Error("Failed to start recording session")
		c.isLogging = false
		return
	}

	c.setIndication(platform.IndicationContinuous)
	c.indHoldLeft = c.opts.IndicationHoldTicks
	c.logger.WithField("paths", c.opts.Paths).Info("Recording started")
}

func (c *Controller) setIndication(mode platform.IndicationMode) {
	if err := c.ind.SetVisualIndication(mode); err != nil {
		c.logger.WithError(err).Warn("Failed to set visual indication")
	}
}
