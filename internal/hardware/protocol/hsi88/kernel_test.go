package hsi88

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/value"
)

func TestNew_RejectsTooManyModules(t *testing.T) {
	_, err := New("hsi88-test", log.NewRegistry(zap.NewNop().Sugar()), Config{ModulesLeft: 20, ModulesMiddle: 20}, hwkernel.Callbacks{})
	require.Error(t, err)
}

func TestKernel_DecodesStatusWord(t *testing.T) {
	// The first report moves all 16 inputs of the module out of Undefined,
	// so every bit fires; record the state per address.
	var channel string
	got := map[int64]value.TriState{}
	k, err := New("hsi88-test", log.NewRegistry(zap.NewNop().Sugar()), Config{ModulesLeft: 1, Simulate: true}, hwkernel.Callbacks{
		OnInputValueChanged: func(ch string, address int64, state value.TriState) {
			channel = ch
			got[address] = state
		},
	})
	require.NoError(t, err)
	k.Start()
	defer k.Stop()
	require.Eventually(t, func() bool { return k.State() == hwkernel.StateRunning }, time.Second, time.Millisecond)

	k.handleLine("L1:0001")
	require.Equal(t, ChannelLeft, channel)
	require.Equal(t, value.TriStateTrue, got[0])
	require.Equal(t, value.TriStateFalse, got[15])
}
