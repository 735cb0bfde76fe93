package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
)

type fakeParent struct {
	object.IdObjectBase
}

func newFakeParent() *fakeParent {
	p := &fakeParent{IdObjectBase: object.NewIdObjectBase("world", "world")}
	return p
}

func TestClockStaysFrozenOutsideRunState(t *testing.T) {
	parent := newFakeParent()
	state := value.NewSet(int64(value.WorldStateEdit | value.WorldStatePower))
	c := New(parent, "clock", func() value.Value { return state }, nil, 10, 30, 60, false)
	c.Loaded()

	running, err := value.ToBool(mustItem(t, c, "running").(*object.Property).Value())
	require.NoError(t, err)
	assert.False(t, running)
}

func TestClockRunsWhenWorldStateRun(t *testing.T) {
	parent := newFakeParent()
	state := value.NewSet(int64(value.WorldStateEdit | value.WorldStatePower | value.WorldStateRun))
	c := New(parent, "clock", func() value.Value { return state }, nil, 10, 30, 3600, false)
	c.Loaded()

	running, err := value.ToBool(mustItem(t, c, "running").(*object.Property).Value())
	require.NoError(t, err)
	assert.True(t, running)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("clock never ticked")
		default:
		}
		if c.Ticks() != 10*60+30 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClockFreezeStopsRunning(t *testing.T) {
	parent := newFakeParent()
	state := value.NewSet(int64(value.WorldStateEdit | value.WorldStatePower | value.WorldStateRun))
	c := New(parent, "clock", func() value.Value { return state }, nil, 0, 0, 60, false)
	c.Loaded()

	require.NoError(t, mustItem(t, c, "freeze").(*object.Property).Set(value.NewBool(true)))
	running, err := value.ToBool(mustItem(t, c, "running").(*object.Property).Value())
	require.NoError(t, err)
	assert.False(t, running)
}

func mustItem(t *testing.T, c *Clock, name string) object.InterfaceItem {
	t.Helper()
	item, ok := c.Item(name)
	require.True(t, ok)
	return item
}
