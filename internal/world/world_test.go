package world

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
)

func propOf(t *testing.T, o object.Object, name string) *object.Property {
	t.Helper()
	item, ok := o.Item(name)
	require.True(t, ok, "missing property %q", name)
	p, ok := item.(*object.Property)
	require.True(t, ok, "property %q is not a scalar Property", name)
	return p
}

func TestPowerRunStopStateMachine(t *testing.T) {
	w := New("test", nil, nil)

	require.Error(t, w.Run(), "running an unpowered world must fail")

	w.PowerOn()
	assert.NotZero(t, w.powerState()&value.WorldStatePower)

	require.NoError(t, w.Run())
	assert.NotZero(t, w.powerState()&value.WorldStateRun)

	w.Stop()
	assert.Zero(t, w.powerState()&value.WorldStateRun)
	assert.NotZero(t, w.powerState()&value.WorldStatePower, "stop must not clear power")

	w.PowerOff()
	assert.Zero(t, w.powerState()&value.WorldStatePower)
}

func TestEditEnableDisable(t *testing.T) {
	w := New("test", nil, nil)
	w.EditEnable()
	assert.NotZero(t, w.powerState()&value.WorldStateEdit)
	w.EditDisable()
	assert.Zero(t, w.powerState()&value.WorldStateEdit)
}

func TestSaveLoadRoundTripDirectory(t *testing.T) {
	w := New("myworld", nil, nil)
	require.NoError(t, propOf(t, w, "name").Set(value.NewString("My Layout")))
	require.NoError(t, w.settings.SetAutoSaveWorldOnExit(false))
	require.NoError(t, w.clock.SetHourMinute(7, 15))

	dir := filepath.Join(t.TempDir(), "myworld")
	require.NoError(t, w.Save(dir))

	loaded, err := Load(dir, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "myworld", loaded.ID())

	name, err := value.ToString(propOf(t, loaded, "name").Value())
	require.NoError(t, err)
	assert.Equal(t, "My Layout", name)

	assert.False(t, loaded.Settings().AutoSaveWorldOnExit())

	clockObj, ok := loaded.Object(SubObjectID(loaded, "clock"))
	require.True(t, ok)

	hour, err := value.ToInt(propOf(t, clockObj, "hour").Value())
	require.NoError(t, err)
	minute, err := value.ToInt(propOf(t, clockObj, "minute").Value())
	require.NoError(t, err)
	assert.Equal(t, int64(7), hour)
	assert.Equal(t, int64(15), minute)
}

func TestSaveLoadRoundTripArchive(t *testing.T) {
	w := New("archived", nil, nil)
	require.NoError(t, propOf(t, w, "name").Set(value.NewString("Archive Layout")))

	path := filepath.Join(t.TempDir(), "archived.ctw")
	require.NoError(t, w.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	loaded, err := Load(path, nil, nil)
	require.NoError(t, err)

	name, err := value.ToString(propOf(t, loaded, "name").Value())
	require.NoError(t, err)
	assert.Equal(t, "Archive Layout", name)
}

func TestLoadUnknownKeysAreIgnored(t *testing.T) {
	w := New("tolerant", nil, nil)
	dir := filepath.Join(t.TempDir(), "tolerant")
	require.NoError(t, w.Save(dir))

	raw, err := os.ReadFile(filepath.Join(dir, fileWorldData))
	require.NoError(t, err)

	var byID map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &byID))
	byID["tolerant"]["some_future_field"] = 42
	patched, err := json.Marshal(byID)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileWorldData), patched, 0o644))

	_, err = Load(dir, nil, nil)
	require.NoError(t, err)
}
