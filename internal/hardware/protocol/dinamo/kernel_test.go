package dinamo

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
)

func TestKernel_VersionNegotiationOnStart(t *testing.T) {
	k := New("dinamo-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{})
	k.Start()
	defer k.Stop()
	require.Eventually(t, func() bool { return k.State() == hwkernel.StateRunning }, time.Second, time.Millisecond)
	require.Eventually(t, k.Negotiated, time.Second, time.Millisecond)
}

func TestCRC_DetectsCorruption(t *testing.T) {
	frame := []byte{0x01, 0x00}
	good := crc(frame)
	require.NotEqual(t, good, crc([]byte{0x01, 0x01}))
}

func TestHoldAndFaultHeaderBits(t *testing.T) {
	var stops int
	var powerOff bool
	k := New("dinamo-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{
		OnEmergencyStop: func() { stops++ },
		OnPowerChanged:  func(on bool) { powerOff = !on },
	})

	hold := byte(0x10 | flagHold)
	k.receive([]byte{hold, 0x05, crc([]byte{hold, 0x05})})
	require.True(t, k.HoldActive())
	require.Equal(t, 1, stops)

	// A repeated hold frame is not a new assertion.
	k.receive([]byte{hold, 0x06, crc([]byte{hold, 0x06})})
	require.Equal(t, 1, stops)

	// Hold released, then asserted again: a second stop.
	k.receive([]byte{0x10, 0x05, crc([]byte{0x10, 0x05})})
	require.False(t, k.HoldActive())
	k.receive([]byte{hold, 0x05, crc([]byte{hold, 0x05})})
	require.Equal(t, 2, stops)

	fault := byte(0x10 | flagFault)
	k.receive([]byte{fault, 0x00, crc([]byte{fault, 0x00})})
	require.True(t, powerOff)
}

func TestVersionRequestRetriesThenHandshakeFails(t *testing.T) {
	k := New("dinamo-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{})
	k.pending = hwkernel.NewPendingRequests(5*time.Millisecond, 5*time.Millisecond)

	var mu sync.Mutex
	var sent [][]byte
	k.transmit = func(b []byte) {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, b)
	}

	k.negotiateVersion()

	// Initial transmission plus versionRequestRetries retransmissions of
	// the identical bytes (same toggle), then the handshake is abandoned.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sent) == 1+versionRequestRetries
	}, time.Second, time.Millisecond)

	mu.Lock()
	require.Equal(t, sent[0], sent[1])
	require.Equal(t, sent[0], sent[2])
	mu.Unlock()
	require.False(t, k.Negotiated())
	require.Eventually(t, func() bool {
		k.mu.Lock()
		defer k.mu.Unlock()
		return k.lastRequest == nil
	}, time.Second, time.Millisecond)
}

func TestOutboundToggleAlternates(t *testing.T) {
	k := New("dinamo-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{})
	a := k.encode(0x01, 0x00)
	b := k.encode(0x01, 0x00)
	require.Zero(t, a[0]&flagToggle)
	require.NotZero(t, b[0]&flagToggle)
}
