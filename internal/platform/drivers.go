package platform

import (
	"github.com/sirupsen/logrus"
)

// LogIndicator is an Indicator that reports transitions through the logger,
// standing in for the LED driver.
type LogIndicator struct {
	logger *logrus.Logger
}

// NewLogIndicator creates the logging indicator driver.
func NewLogIndicator(logger *logrus.Logger) *LogIndicator {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogIndicator{logger: logger}
}

// SetVisualIndication implements Indicator.
func (i *LogIndicator) SetVisualIndication(mode IndicationMode) error {
	i.logger.WithField("mode", mode.String()).Info("Visual indication changed")
	return nil
}

// HostPower implements PowerControl for a hosted process: arming the wake
// source is a log line, entering low power invokes the shutdown callback
// (typically cancelling the agent context).
type HostPower struct {
	logger   *logrus.Logger
	shutdown func()
}

// NewHostPower creates the hosted power driver. shutdown may be nil.
func NewHostPower(logger *logrus.Logger, shutdown func()) *HostPower {
	if logger == nil {
		logger = logrus.New()
	}
	return &HostPower{logger: logger, shutdown: shutdown}
}

// ArmWakeSource implements PowerControl.
func (p *HostPower) ArmWakeSource() error {
	p.logger.Info("Wake source armed")
	return nil
}

// EnterLowPower implements PowerControl.
func (p *HostPower) EnterLowPower() error {
	p.logger.Info("Entering low-power mode")
	if p.shutdown != nil {
		p.shutdown()
	}
	return nil
}
