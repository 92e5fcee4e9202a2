package lifecycle

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/sensorlog/internal/platform"
)

type fakeStore struct {
	startCalls [][]string
	stopCalls  int
	startErr   error
	stopErr    error
}

func (s *fakeStore) StartSession(paths []string) error {
	s.startCalls = append(s.startCalls, paths)
	return s.startErr
}

func (s *fakeStore) StopSession() error {
	s.stopCalls++
	return s.stopErr
}

func (s *fakeStore) RequestEntries()                   {}
func (s *fakeStore) RequestChunk(logID, cursor uint32) {}
func (s *fakeStore) Clear() error                      { return nil }

type fakeIndicator struct {
	modes []platform.IndicationMode
	err   error
}

func (i *fakeIndicator) SetVisualIndication(mode platform.IndicationMode) error {
	i.modes = append(i.modes, mode)
	return i.err
}

func (i *fakeIndicator) last() platform.IndicationMode {
	if len(i.modes) == 0 {
		return platform.IndicationNone
	}
	return i.modes[len(i.modes)-1]
}

func newTestController(store *fakeStore, ind *fakeIndicator) *Controller {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(store, ind, Options{
		Paths:               []string{"/Meas/ECG/200"},
		GraceTicks:          4,
		IndicationHoldTicks: 2,
	}, logger)
}

func TestLeadContactStartsRecording(t *testing.T) {
	store := &fakeStore{}
	ind := &fakeIndicator{}
	c := newTestController(store, ind)

	require.False(t, c.IsLogging())
	c.OnLeadsChanged(true)

	assert.True(t, c.IsLogging())
	require.Len(t, store.startCalls, 1)
	assert.Equal(t, []string{"/Meas/ECG/200"}, store.startCalls[0])
	assert.Equal(t, platform.IndicationContinuous, ind.last())
}

func TestRepeatedContactDoesNotRestart(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, &fakeIndicator{})

	c.OnLeadsChanged(true)
	c.OnLeadsChanged(true)
	c.OnLeadsChanged(false)
	c.OnLeadsChanged(true)

	assert.True(t, c.IsLogging())
	assert.Len(t, store.startCalls, 1)
}

func TestStartFailureLeavesStopped(t *testing.T) {
	store := &fakeStore{startErr: errors.New("no storage")}
	c := newTestController(store, &fakeIndicator{})

	c.OnLeadsChanged(true)

	assert.False(t, c.IsLogging())
	// Contact again retries the start.
	store.startErr = nil
	c.OnLeadsChanged(true)
	assert.True(t, c.IsLogging())
}

func TestIndicationHoldExpires(t *testing.T) {
	ind := &fakeIndicator{}
	c := newTestController(&fakeStore{}, ind)

	c.OnLeadsChanged(true)
	require.Equal(t, platform.IndicationContinuous, ind.last())

	c.OnTick()
	assert.Equal(t, platform.IndicationContinuous, ind.last())
	c.OnTick()
	assert.Equal(t, platform.IndicationNone, ind.last())
}

func TestDisconnectGraceStopsRecording(t *testing.T) {
	store := &fakeStore{}
	ind := &fakeIndicator{}
	c := newTestController(store, ind)

	c.OnLeadsChanged(true)
	c.OnLeadsChanged(false)

	for i := 0; i < 3; i++ {
		c.OnTick()
	}
	assert.True(t, c.IsLogging(), "still within grace")

	c.OnTick()
	assert.False(t, c.IsLogging())
	assert.Equal(t, 1, store.stopCalls)
	assert.Equal(t, platform.IndicationShort, ind.last())

	// Further ticks do not stop again.
	c.OnTick()
	c.OnTick()
	assert.Equal(t, 1, store.stopCalls)
}

func TestReconnectResetsGraceCounter(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, &fakeIndicator{})

	c.OnLeadsChanged(true)
	c.OnLeadsChanged(false)
	c.OnTick()
	c.OnTick()
	c.OnTick()

	c.OnLeadsChanged(true)
	c.OnLeadsChanged(false)
	c.OnTick()
	c.OnTick()
	c.OnTick()

	assert.True(t, c.IsLogging())
	assert.Zero(t, store.stopCalls)

	c.OnTick()
	assert.False(t, c.IsLogging())
}

func TestStopIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, &fakeIndicator{})

	c.OnLeadsChanged(true)
	c.Stop(false)
	c.Stop(false)

	assert.False(t, c.IsLogging())
	assert.Equal(t, 1, store.stopCalls)
}

func TestStopFailureStillClearsState(t *testing.T) {
	store := &fakeStore{stopErr: errors.New("flash write failed")}
	ind := &fakeIndicator{}
	c := newTestController(store, ind)

	c.OnLeadsChanged(true)
	c.Stop(false)

	assert.False(t, c.IsLogging())
	assert.Equal(t, platform.IndicationNone, ind.last())
}

func TestPowerDownRequest(t *testing.T) {
	c := newTestController(&fakeStore{}, &fakeIndicator{})

	c.OnLeadsChanged(true)
	c.Stop(true)

	assert.True(t, c.PowerDownRequested())
	assert.False(t, c.IsLogging())

	// A new contact clears the pending power-down.
	c.OnLeadsChanged(true)
	assert.False(t, c.PowerDownRequested())
}

func TestPowerDownWhileStopped(t *testing.T) {
	store := &fakeStore{}
	c := newTestController(store, &fakeIndicator{})

	c.Stop(true)

	assert.True(t, c.PowerDownRequested())
	assert.Zero(t, store.stopCalls)
}

func TestLinkStateTracked(t *testing.T) {
	c := newTestController(&fakeStore{}, &fakeIndicator{})

	c.OnLinkChanged(true)
	assert.True(t, c.LinkConnected())
	assert.False(t, c.IsLogging(), "link state does not gate recording")

	c.OnLinkChanged(false)
	assert.False(t, c.LinkConnected())
}
