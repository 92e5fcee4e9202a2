// Package power runs the staged device power-down: arm the wake source,
// then drop into low-power mode. The sequence only fires once the recording
// session has fully stopped.
package power

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/sensorlog/internal/platform"
)

// Sequencer drives PowerControl through the power-down stages. It is polled
// from the agent loop and holds no locks.
type Sequencer struct {
	pc     platform.PowerControl
	logger *logrus.Logger
	done   bool
}

func New(pc platform.PowerControl, logger *logrus.Logger) *Sequencer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Sequencer{pc: pc, logger: logger}
}

// Poll fires the power-down sequence when it has been requested and logging
// has stopped. The sequence runs at most once; a failure to arm the wake
// source is retried on the next poll so the device never powers off without
// a way back up.
func (s *Sequencer) Poll(requested, logging bool) {
	if s.done || !requested || logging {
		return
	}

	if err := s.pc.ArmWakeSource(); err != nil {
		s.logger.WithError(err).Error("Failed to arm wake source, retrying")
		return
	}
	s.done = true

	s.logger.Info("Entering low-power mode")
	if err := s.pc.EnterLowPower(); err != nil {
		s.logger.WithError(err).Error("Failed to enter low-power mode")
	}
}

// Fired reports whether the power-down sequence has already run.
func (s *Sequencer) Fired() bool {
	return s.done
}
