package cbus

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
	k := New("cbus-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{
		OnPowerChanged: func(on bool) { powered = on },
	})
	k.Start()
	defer k.Stop()
	require.Eventually(t, func() bool { return k.State() == hwkernel.StateRunning }, time.Second, time.Millisecond)

	k.PowerOn()
	require.Eventually(t, func() bool { return powered }, time.Second, time.Millisecond)
}

func TestKernel_SetOutputSendsASONASOF(t *testing.T) {
	k := New("cbus-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{})
	var sent [][]byte
	k.sim.Respond = func(written []byte, _ func([]byte)) { sent = append(sent, append([]byte(nil), written...)) }
	k.Start()
	defer k.Stop()
	require.Eventually(t, func() bool { return k.State() == hwkernel.StateRunning }, time.Second, time.Millisecond)
	k.SetOutput(260, true)
	k.SetOutput(260, false)
	require.Equal(t, [][]byte{{opASON, 0, 0, 1, 4}, {opASOF, 0, 0, 1, 4}}, sent)
}
