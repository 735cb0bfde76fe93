package ecos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/value"
)

func TestKernel_PowerRoundTrip(t *testing.T) {
	var powered bool
	k := New("ecos-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{
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

func TestKernel_FeedbackReport(t *testing.T) {
	k := New("ecos-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{})
	k.Start()
	defer k.Stop()
	require.Eventually(t, func() bool { return k.State() == hwkernel.StateRunning }, time.Second, time.Millisecond)

	k.handleFrame("<EVENT 26>\n1 state[1]\n<END 0 (OK)>\n")
	require.True(t, k.inputs.Update(inputChannelS88, 1, value.TriStateFalse))
}
