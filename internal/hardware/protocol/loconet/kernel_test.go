package loconet

import (
	"sync"
	"testing"
	"time"

	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/value"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKernel_SlotAllocationScenario(t *testing.T) {
	k := New("loconet-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{})
	k.Start()
	defer k.Stop()
	require.Eventually(t, func() bool { return k.State() == hwkernel.StateRunning }, time.Second, time.Millisecond)

	k.DecoderChanged(3, 0.5, value.DirectionForward, false)

	require.Eventually(t, func() bool {
		k.mu.Lock()
		defer k.mu.Unlock()
		_, ok := k.slots[3]
		return ok
	}, time.Second, time.Millisecond)

	k.mu.Lock()
	s := k.slots[3]
	speedAfterFirst := s.speedStep
	k.mu.Unlock()
	require.NotZero(t, speedAfterFirst)

	// A second identical call must not retransmit OPC_LOCO_SPD.
	k.DecoderChanged(3, 0.5, value.DirectionForward, false)
	k.mu.Lock()
	require.Equal(t, speedAfterFirst, k.slots[3].speedStep)
	k.mu.Unlock()
}

// A second frame queued while the first one's echo is still outstanding
// must not hit the bus until the echo returns.
func TestEchoWindowGatesQueue(t *testing.T) {
	k := New("loconet-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{})

	var sent [][]byte
	k.transmit = func(b []byte) { sent = append(sent, b) }

	first := EncodeLocoAdr(3)
	second := EncodeLocoAdr(4)
	k.write(first)
	k.write(second)
	require.Equal(t, [][]byte{first}, sent, "second frame must wait for the first frame's echo")

	// The echo of the first frame comes back off the bus: it is consumed
	// by the echo window (not handled as remote traffic) and the queue
	// advances.
	k.receive(first)
	require.Equal(t, [][]byte{first, second}, sent)

	k.mu.Lock()
	awaiting := len(k.awaitingSlot)
	k.mu.Unlock()
	require.Zero(t, awaiting, "an echoed OPC_LOCO_ADR must not be processed as a remote request")
}

// A lost echo logs a warning and the queue continues.
func TestEchoTimeoutAdvancesQueue(t *testing.T) {
	k := New("loconet-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{})
	k.pending = hwkernel.NewPendingRequests(5*time.Millisecond, time.Second)

	var mu sync.Mutex
	var sent [][]byte
	k.transmit = func(b []byte) {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, b)
	}

	k.write(EncodeLocoAdr(3))
	k.write(EncodeLocoAdr(4))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sent) == 2
	}, time.Second, time.Millisecond)
}
