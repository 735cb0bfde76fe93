package z21server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
)

func TestSubscribeLoco_CapsAt16PerClient(t *testing.T) {
	k := New("z21server-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{})
	k.Start()
	defer k.Stop()
	require.Eventually(t, func() bool { return k.State() == hwkernel.StateRunning }, time.Second, time.Millisecond)

	k.Subscribe("peer:1", BroadcastFlagSystemStatusChanges)
	for i := int64(0); i < maxSubscriptionsPerClient; i++ {
		require.True(t, k.SubscribeLoco("peer:1", i, false))
	}
	require.False(t, k.SubscribeLoco("peer:1", 999, false))
}

func TestOnWorldPowerChanged_TargetsSubscribedClientsOnly(t *testing.T) {
	k := New("z21server-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{})
	k.Start()
	defer k.Stop()
	require.Eventually(t, func() bool { return k.State() == hwkernel.StateRunning }, time.Second, time.Millisecond)

	k.Subscribe("peer:1", BroadcastFlagSystemStatusChanges)
	k.Subscribe("peer:2", 0)

	targets := k.OnWorldPowerChanged(true, true)
	require.Equal(t, []string{"peer:1"}, targets)
}

func TestPurgeInactive_RemovesStaleClients(t *testing.T) {
	k := New("z21server-test", log.NewRegistry(zap.NewNop().Sugar()), Config{Simulate: true}, hwkernel.Callbacks{})
	k.Start()
	defer k.Stop()
	require.Eventually(t, func() bool { return k.State() == hwkernel.StateRunning }, time.Second, time.Millisecond)

	k.Subscribe("peer:1", 0)
	require.Equal(t, 1, k.SubscriberCount())
	k.purgeInactive(time.Now().Add(2 * inactivityThreshold))
	require.Equal(t, 0, k.SubscriberCount())
}
