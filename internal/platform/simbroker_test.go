package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimBrokerSubscribeDeliversNotifications(t *testing.T) {
	sink := &captureSink{}
	b := NewSimBroker(sink, nil)
	defer b.Close()

	handle, err := b.Subscribe("/Meas/HR")
	require.NoError(t, err)
	require.NotEqual(t, InvalidHandle, handle)

	// The ack must arrive as an event, followed by notifications.
	require.Eventually(t, func() bool {
		for _, ev := range sink.all() {
			if ack, ok := ev.(SubscribeResultEvent); ok {
				return ack.Handle == handle && ack.OK
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		for _, ev := range sink.all() {
			if n, ok := ev.(NotifyEvent); ok && n.Handle == handle {
				return len(n.Data) == 4
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Unsubscribe(handle))
}

func TestSimBrokerUnknownPath(t *testing.T) {
	sink := &captureSink{}
	b := NewSimBroker(sink, nil)
	defer b.Close()

	handle, err := b.Subscribe("/Meas/Nope")
	assert.ErrorIs(t, err, ErrUnknownPath)
	assert.Equal(t, InvalidHandle, handle)
}

func TestSimBrokerUnsubscribeUnknownHandle(t *testing.T) {
	sink := &captureSink{}
	b := NewSimBroker(sink, nil)
	defer b.Close()

	assert.NoError(t, b.Unsubscribe(ResourceHandle(1234)))
}

func TestSimBrokerKnownPathsOrdered(t *testing.T) {
	b := NewSimBroker(&captureSink{}, nil)
	defer b.Close()

	paths := b.KnownPaths()
	require.NotEmpty(t, paths)
	assert.Equal(t, "/Meas/ECG/200", paths[0], "registration order preserved")
	assert.Contains(t, paths, "/Meas/IMU6/26")
}
