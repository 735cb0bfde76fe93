package z21

import (
	"sync"
	"testing"
	"time"

	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestKernel(t *testing.T, cb hwkernel.Callbacks) *Kernel {
	t.Helper()
	return New("z21-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, cb)
}

func TestKernel_PowerOnOffScenario(t *testing.T) {
	var powered, stopped bool
	k := newTestKernel(t, hwkernel.Callbacks{
		OnPowerChanged:  func(on bool) { powered = on },
		OnEmergencyStop: func() { stopped = true },
	})
	k.Start()
	defer k.Stop()

	require.Eventually(t, func() bool { return k.State() == hwkernel.StateRunning }, time.Second, time.Millisecond)

	k.PowerOn()
	require.Eventually(t, func() bool { return powered }, time.Second, time.Millisecond)

	k.EmergencyStop()
	require.Eventually(t, func() bool { return stopped }, time.Second, time.Millisecond)
}

func TestRescaleSpeedStep(t *testing.T) {
	require.InDelta(t, 0.5, RescaleSpeedStep(63, 127), 0.01)
}

func TestRetryPolicyTable(t *testing.T) {
	require.Equal(t, 1, retryPolicy[hwkernel.PriorityLow])
	require.Equal(t, 2, retryPolicy[hwkernel.PriorityNormal])
	require.Equal(t, 5, retryPolicy[hwkernel.PriorityHigh])
}

// A High-priority enqueue while a Normal-priority frame is in flight must
// not be transmitted before the in-flight frame's response window closes.
func TestSendPipeline_HighPriorityWaitsForInflightWindow(t *testing.T) {
	k := newTestKernel(t, hwkernel.Callbacks{})

	var mu sync.Mutex
	var sent [][]byte
	k.transmit = func(b []byte) {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, b)
	}

	normal := SystemStateGetData()
	high := SetStop()

	k.send(normal, hwkernel.PriorityNormal, uint16(headerSystemStateChanged))
	k.send(high, hwkernel.PriorityHigh, 0)

	mu.Lock()
	require.Equal(t, [][]byte{normal}, sent, "high priority must wait behind the open reply window")
	mu.Unlock()

	// The reply closes the window; only now may the high-priority frame go.
	k.handleFrame(Frame{Header: headerSystemStateChanged})

	mu.Lock()
	require.Equal(t, [][]byte{normal, high}, sent)
	mu.Unlock()
}

// Without a reply window open, a High-priority enqueue overtakes queued
// Normal-priority messages at the next drain.
func TestSendPipeline_HighPriorityDrainsFirstWhenIdle(t *testing.T) {
	k := newTestKernel(t, hwkernel.Callbacks{})

	var sent [][]byte
	k.transmit = func(b []byte) { sent = append(sent, b) }

	normal := SystemStateGetData()
	high := SetStop()
	require.True(t, k.sendQueue.Push(hwkernel.Message{Priority: hwkernel.PriorityNormal, Data: normal}))
	require.True(t, k.sendQueue.Push(hwkernel.Message{Priority: hwkernel.PriorityHigh, Data: high}))

	k.trySendNext()
	require.Equal(t, [][]byte{high, normal}, sent)
}

func TestSendPipeline_ResponseTimeoutRetriesThenAdvances(t *testing.T) {
	k := newTestKernel(t, hwkernel.Callbacks{})
	k.pending = hwkernel.NewPendingRequests(5*time.Millisecond, 5*time.Millisecond)

	var mu sync.Mutex
	var sent [][]byte
	k.transmit = func(b []byte) {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, b)
	}

	req := SystemStateGetData()
	next := SetTrackPowerOn()
	k.send(req, hwkernel.PriorityNormal, uint16(headerSystemStateChanged))
	k.send(next, hwkernel.PriorityNormal, 0)

	// Initial transmission plus retryPolicy[normal]=2 retries, then the
	// request is dropped and the queue advances to the next message.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sent) == 4
	}, time.Second, time.Millisecond)

	mu.Lock()
	require.Equal(t, [][]byte{req, req, req, next}, sent)
	mu.Unlock()
}
