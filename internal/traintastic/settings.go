package traintastic

import (
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
)

// Settings is the server-level configuration SubObject, distinct from the
// per-world Settings: it covers the listener ports and exit behavior the
// CLI flags map onto.
type Settings struct {
	object.SubObjectBase

	port          *object.Property
	discoveryPort *object.Property
	discovery     *object.Property
	autoSaveExit  *object.Property
	lastWorld     *object.Property
}

func newSettings(parent object.Object) *Settings {
	s := &Settings{SubObjectBase: object.NewSubObjectBase("traintastic_settings", parent, "settings")}
	s.port = object.NewProperty("port", value.Integer, value.NewInt(5740), object.FlagReadWrite|object.FlagStore)
	s.port.SetOnSet(func(v value.Value) bool { return v.IntVal > 0 && v.IntVal <= 65535 })
	s.discoveryPort = object.NewProperty("discovery_port", value.Integer, value.NewInt(5740), object.FlagReadWrite|object.FlagStore)
	s.discoveryPort.SetOnSet(func(v value.Value) bool { return v.IntVal > 0 && v.IntVal <= 65535 })
	s.discovery = object.NewProperty("discovery_enabled", value.Boolean, value.NewBool(true), object.FlagReadWrite|object.FlagStore)
	s.autoSaveExit = object.NewProperty("auto_save_world_on_exit", value.Boolean, value.NewBool(false), object.FlagReadWrite|object.FlagStore)
	s.lastWorld = object.NewProperty("last_world", value.String, value.NewString(""), object.FlagReadWrite|object.FlagStore)
	s.AddItem(s.port)
	s.AddItem(s.discoveryPort)
	s.AddItem(s.discovery)
	s.AddItem(s.autoSaveExit)
	s.AddItem(s.lastWorld)
	return s
}

func (s *Settings) Port() int {
	v, _ := value.ToInt(s.port.Value())
	return int(v)
}

func (s *Settings) DiscoveryPort() int {
	v, _ := value.ToInt(s.discoveryPort.Value())
	return int(v)
}

func (s *Settings) DiscoveryEnabled() bool {
	v, _ := value.ToBool(s.discovery.Value())
	return v
}

func (s *Settings) AutoSaveWorldOnExit() bool {
	v, _ := value.ToBool(s.autoSaveExit.Value())
	return v
}

func (s *Settings) SetAutoSaveWorldOnExit(v bool) error {
	return s.autoSaveExit.SetInternal(value.NewBool(v))
}

func (s *Settings) SetLastWorld(id string) error {
	return s.lastWorld.SetInternal(value.NewString(id))
}
