package marklincan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
)

func TestKernel_PowerRoundTrip(t *testing.T) {
	var powered bool
	k := New("marklincan-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{
		OnPowerChanged: func(on bool) { powered = on },
	})
	k.Start()
	defer k.Stop()
	require.Eventually(t, func() bool { return k.State() == hwkernel.StateRunning }, time.Second, time.Millisecond)

	k.PowerOn()
	require.Eventually(t, func() bool { return powered }, time.Second, time.Millisecond)
}

func TestFrame_RoundTripsThroughEncodeDecode(t *testing.T) {
	var powered bool
	k := New("marklincan-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{
		OnPowerChanged: func(on bool) { powered = on },
	})
	f := k.frame(cmdSystem, false, 0, 0, 0, 0, 0x01)
	require.Len(t, f, 13)
	require.Equal(t, byte(5), f[4])

	k.handleFrame(f)
	require.True(t, powered, "decoding the encoded system-go frame reports power on")
}
