package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/traintastic/traintastic-go/internal/value"
)

func TestSendQueue_PriorityOrdering(t *testing.T) {
	q := NewSendQueue(0)
	require.True(t, q.Push(Message{Priority: PriorityNormal, Data: []byte("n1")}))
	require.True(t, q.Push(Message{Priority: PriorityHigh, Data: []byte("h1")}))
	require.True(t, q.Push(Message{Priority: PriorityNormal, Data: []byte("n2")}))

	m, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, "h1", string(m.Data))

	m, ok = q.Pop()
	require.True(t, ok)
	require.Equal(t, "n1", string(m.Data))

	m, ok = q.Pop()
	require.True(t, ok)
	require.Equal(t, "n2", string(m.Data))

	_, ok = q.Pop()
	require.False(t, ok)
}

func TestSendQueue_BoundedPerBand(t *testing.T) {
	q := NewSendQueue(1)
	require.True(t, q.Push(Message{Priority: PriorityNormal}))
	require.False(t, q.Push(Message{Priority: PriorityNormal}))
	require.True(t, q.Push(Message{Priority: PriorityHigh}))
}

func TestInputChannels_OnlyFiresOnTransition(t *testing.T) {
	c := NewInputChannels()
	require.True(t, c.Update("ch", 1, value.TriStateTrue))
	require.False(t, c.Update("ch", 1, value.TriStateTrue))
	require.True(t, c.Update("ch", 1, value.TriStateFalse))
}

func TestInputChannels_SimulateSetTrueThenFalse(t *testing.T) {
	c := NewInputChannels()
	s1 := c.SimulateAction("ch", 1, value.SimulateInputSetTrue)
	require.Equal(t, value.TriStateTrue, s1)
	require.True(t, c.Update("ch", 1, s1))

	s2 := c.SimulateAction("ch", 1, value.SimulateInputSetFalse)
	require.Equal(t, value.TriStateFalse, s2)
	require.True(t, c.Update("ch", 1, s2))
}

func TestPendingRequests_ReadyWhenBothClear(t *testing.T) {
	p := NewPendingRequests(0, 0)
	require.True(t, p.Ready())
	p.ArmEcho(func() {})
	require.False(t, p.Ready())
	require.True(t, p.EchoReceived())
	require.True(t, p.Ready())
}
