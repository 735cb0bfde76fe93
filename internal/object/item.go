// Package object implements the reflective object/property/event kernel:
// InterfaceItem, Property, Method, Event, Attribute, and the Object variants
// IdObject/SubObject/StateObject.
package object

// InterfaceItem is the common base for every discoverable member of an
// Object: properties (scalar, vector, object, unit), methods and events.
type InterfaceItem interface {
	Name() string
	IsInternal() bool
	Attributes() *AttributeMap
	Flags() PropertyFlags
}

// itemBase is embedded by every concrete item kind.
type itemBase struct {
	name  string
	flags PropertyFlags
	attrs *AttributeMap
}

func newItemBase(name string, flags PropertyFlags) itemBase {
	b := itemBase{name: name, flags: flags}
	b.attrs = NewAttributeMap(nil)
	return b
}

func (b *itemBase) Name() string              { return b.name }
func (b *itemBase) IsInternal() bool          { return b.flags.Internal() }
func (b *itemBase) Attributes() *AttributeMap { return b.attrs }
func (b *itemBase) Flags() PropertyFlags      { return b.flags }
