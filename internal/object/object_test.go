package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traintastic/traintastic-go/internal/value"
)

// clockLike is a minimal domain entity embedding IdObjectBase, standing in
// for Clock/Decoder/Train-style objects built in later packages.
type clockLike struct {
	IdObjectBase
	loadedCalls int
}

func newClockLike(id string) *clockLike {
	c := &clockLike{IdObjectBase: NewIdObjectBase("clock", id)}
	c.AddItem(NewProperty("minute", value.Integer, value.NewInt(0), FlagReadWrite|FlagStore))
	return c
}

func (c *clockLike) Loaded() { c.loadedCalls++ }

func TestIdObjectBaseEmbedding(t *testing.T) {
	c := newClockLike("clock1")
	var o Object = c // compiles only if promoted methods satisfy Object
	require.Equal(t, ClassID("clock"), o.ClassID())
	require.Equal(t, "clock1", c.ID())

	_, ok := c.Item("id")
	assert.True(t, ok)
	_, ok = c.Item("minute")
	assert.True(t, ok)

	o.Loaded()
	assert.Equal(t, 1, c.loadedCalls)
}

func TestAddItemDuplicateNamePanics(t *testing.T) {
	c := newClockLike("clock1")
	assert.Panics(t, func() {
		c.AddItem(NewProperty("minute", value.Integer, value.NewInt(0), FlagReadWrite|FlagStore))
	})
}

func TestDestroyIsIdempotentAndTransitive(t *testing.T) {
	parent := newClockLike("parent")
	child := &stateLike{StateObjectBase: NewStateObjectBase("child")}
	parent.AddSubObject(child)

	var destroyingFired int
	parent.OnDestroying().Subscribe(func(args []any) { destroyingFired++ })

	var childDestroyed bool
	child.OnDestroying().Subscribe(func(args []any) { childDestroyed = true })

	parent.Destroy()
	assert.True(t, parent.IsDestroying())
	assert.True(t, childDestroyed)
	assert.Equal(t, 1, destroyingFired)

	// second call is a no-op: listener does not fire again.
	parent.Destroy()
	assert.Equal(t, 1, destroyingFired)
}

type stateLike struct {
	StateObjectBase
}

func TestPropertyChangedFiresOnObject(t *testing.T) {
	c := newClockLike("clock1")
	var fired int
	c.PropertyChanged().Subscribe(func(args []any) { fired++ })

	item, ok := c.Item("minute")
	require.True(t, ok)
	prop, ok := AsProperty(item)
	require.True(t, ok)

	require.NoError(t, prop.Set(value.NewInt(5)))
	assert.Equal(t, 1, fired)

	// setting the same value again must not notify.
	require.NoError(t, prop.Set(value.NewInt(5)))
	assert.Equal(t, 1, fired)
}

func TestAttributeChangedFiresOnObject(t *testing.T) {
	c := newClockLike("clock1")
	item, ok := c.Item("minute")
	require.True(t, ok)

	var fired int
	c.AttributeChanged().Subscribe(func(args []any) { fired++ })

	attr, err := item.Attributes().Add(AttrMin, value.NewInt(0))
	require.NoError(t, err)
	require.NotNil(t, attr)

	require.NoError(t, item.Attributes().Set(AttrMin, value.NewInt(1)))
	assert.Equal(t, 1, fired)

	// no-op set must not notify.
	require.NoError(t, item.Attributes().Set(AttrMin, value.NewInt(1)))
	assert.Equal(t, 1, fired)
}

type subLike struct {
	SubObjectBase
}

func TestSubObjectBaseIdentity(t *testing.T) {
	parent := newClockLike("parent")
	child := &subLike{SubObjectBase: NewSubObjectBase("settings", parent, "settings")}
	parent.AddSubObject(child)
	assert.False(t, child.IsDestroying())
	assert.True(t, child.Parent() == Object(parent))
	assert.Equal(t, "settings", child.PropertyName())
}
