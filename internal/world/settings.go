package world

import (
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
)

// Settings is the World's own configuration SubObject: an Object rather
// than a plain struct, so its fields participate in the ordinary
// property/attribute/session machinery instead of being read only at
// process startup.
type Settings struct {
	object.SubObjectBase

	autoSave      *object.Property
	localization  *object.Property
}

func newSettings(parent object.Object) *Settings {
	s := &Settings{SubObjectBase: object.NewSubObjectBase("world_settings", parent, "settings")}
	s.autoSave = object.NewProperty("auto_save_world_on_exit", value.Boolean, value.NewBool(true), object.FlagReadWrite|object.FlagStore)
	s.localization = object.NewProperty("localization", value.String, value.NewString("en-us"), object.FlagReadWrite|object.FlagStore)
	s.AddItem(s.autoSave)
	s.AddItem(s.localization)
	return s
}

func (s *Settings) AutoSaveWorldOnExit() bool {
	v, _ := value.ToBool(s.autoSave.Value())
	return v
}

func (s *Settings) SetAutoSaveWorldOnExit(v bool) error {
	return s.autoSave.SetInternal(value.NewBool(v))
}
