package world

import (
	"fmt"
	"sync"

	"github.com/traintastic/traintastic-go/internal/object"
)

// Factory constructs a fresh, empty top-level IdObject of one class_id,
// ready for the loader to replay JSON into.
type Factory func(w *World, id string) object.Object

var (
	factoryMu sync.RWMutex
	factories = make(map[object.ClassID]Factory)
)

// RegisterClass adds a class_id to the world-wide factory table. Called
// from package init() by every package that defines a loadable top-level
// entity (hardware interfaces, boards, decoders, trains, …); each entity's
// file self-registers from init().
func RegisterClass(class object.ClassID, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, exists := factories[class]; exists {
		panic(fmt.Sprintf("world: class_id %q already registered", class))
	}
	factories[class] = f
}

func lookupFactory(class object.ClassID) (Factory, error) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	f, ok := factories[class]
	if !ok {
		return nil, fmt.Errorf("unknown class_id %q", class)
	}
	return f, nil
}
