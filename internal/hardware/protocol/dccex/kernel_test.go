package dccex

import (
	"testing"
	"time"

	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKernel_PowerRoundTrip(t *testing.T) {
	var powered bool
	k := New("dccex-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{
		OnPowerChanged: func(on bool) { powered = on },
	})
	k.Start()
	defer k.Stop()
	require.Eventually(t, func() bool { return k.State() == hwkernel.StateRunning }, time.Second, time.Millisecond)

	k.SetPower(true)
	require.Eventually(t, func() bool { return powered }, time.Second, time.Millisecond)
}
