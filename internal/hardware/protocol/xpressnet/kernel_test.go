package xpressnet

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
	k := New("xpressnet-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{
		OnPowerChanged: func(on bool) { powered = on },
	})
	k.Start()
	defer k.Stop()
	require.Eventually(t, func() bool { return k.State() == hwkernel.StateRunning }, time.Second, time.Millisecond)

	k.PowerOn()
	require.Eventually(t, func() bool { return powered }, time.Second, time.Millisecond)

	k.PowerOff()
	require.Eventually(t, func() bool { return !powered }, time.Second, time.Millisecond)
}

func TestChecksum_DetectsCorruption(t *testing.T) {
	f := frame(0x21, 0x81)
	require.Len(t, f, 3)
	require.Equal(t, checksum(f[:2]), f[2])

	f[1] ^= 0x01 // flip one data bit
	require.NotEqual(t, checksum(f[:2]), f[2])
}
