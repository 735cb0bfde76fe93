package traintastic

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/traintastic/traintastic-go/internal/log"
)

func newRoot(t *testing.T) *Root {
	t.Helper()
	logger := log.NewRegistry(zap.NewNop().Sugar())
	root, err := New(t.TempDir(), nil, logger)
	require.NoError(t, err)
	return root
}

func TestNewWorldReplacesOld(t *testing.T) {
	root := newRoot(t)
	w1 := root.NewWorld()
	w2 := root.NewWorld()
	assert.NotEqual(t, w1.ID(), w2.ID())
	assert.Same(t, w2, root.World())
	assert.True(t, w1.IsDestroying(), "replaced world is destroyed")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	root := newRoot(t)
	w := root.NewWorld()
	id := w.ID()
	_, err := w.CreateTrain("train")
	require.NoError(t, err)
	require.NoError(t, root.SaveWorld())

	// The archive landed in the data directory and the list knows it.
	_, err = os.Stat(filepath.Join(root.DataDir(), id+".ctw"))
	require.NoError(t, err)
	found := false
	for _, v := range root.worldList.All() {
		if v.StrVal == id {
			found = true
		}
	}
	assert.True(t, found, "world_list contains the saved world")

	root.CloseWorld()
	require.Nil(t, root.World())

	loaded, err := root.LoadWorld(id)
	require.NoError(t, err)
	assert.Equal(t, id, loaded.ID())
	trains := loaded.Trains()
	require.Len(t, trains, 1)
	assert.Equal(t, "train", trains[0].ID())
}

func TestLoadUnknownWorldFails(t *testing.T) {
	root := newRoot(t)
	_, err := root.LoadWorld("no-such-world")
	require.Error(t, err)
}

func TestObjectByIDResolvesRootAndSettings(t *testing.T) {
	root := newRoot(t)
	o, ok := root.ObjectByID("traintastic")
	require.True(t, ok)
	assert.Same(t, any(root), any(o))

	s, ok := root.ObjectByID("traintastic.settings")
	require.True(t, ok)
	assert.Same(t, any(root.Settings()), any(s))

	_, ok = root.ObjectByID("nothing")
	assert.False(t, ok)

	w := root.NewWorld()
	got, ok := root.ObjectByID(w.ID())
	require.True(t, ok)
	assert.Same(t, any(w), any(got))
}

func TestSaveWithoutWorldFails(t *testing.T) {
	root := newRoot(t)
	require.Error(t, root.SaveWorld())
}
