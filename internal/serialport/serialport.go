// Package serialport enumerates the host's serial ports and watches for
// live add/remove events, with a distinct implementation per platform:
// inotify on /dev for Linux, device-tree polling for macOS and Windows.
package serialport

import (
	"sort"
	"sync"

	"go.bug.st/serial"
)

// List returns the device names of every serial port currently present,
// sorted for stable ordering.
func List() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	sort.Strings(ports)
	return ports, nil
}

// EventType discriminates a watcher notification.
type EventType int

const (
	Added EventType = iota
	Removed
)

// Event is one hot-plug notification.
type Event struct {
	Type   EventType
	Device string
}

// Watcher delivers serial-port add/remove events. Construct with Start,
// consume Events, then Stop.
type Watcher struct {
	events chan Event
	stop   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	known map[string]struct{}
}

// Events is the notification stream. Closed after Stop.
func (w *Watcher) Events() <-chan Event { return w.events }

// Stop ends the watch and closes the event channel.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stop) })
}

func newWatcher() (*Watcher, error) {
	w := &Watcher{
		events: make(chan Event, 16),
		stop:   make(chan struct{}),
		known:  make(map[string]struct{}),
	}
	ports, err := List()
	if err != nil {
		return nil, err
	}
	for _, p := range ports {
		w.known[p] = struct{}{}
	}
	return w, nil
}

// diff compares a fresh enumeration against the known set and emits one
// event per transition.
func (w *Watcher) diff(current []string) {
	cur := make(map[string]struct{}, len(current))
	for _, p := range current {
		cur[p] = struct{}{}
	}
	w.mu.Lock()
	var added, removed []string
	for p := range cur {
		if _, ok := w.known[p]; !ok {
			added = append(added, p)
		}
	}
	for p := range w.known {
		if _, ok := cur[p]; !ok {
			removed = append(removed, p)
		}
	}
	w.known = cur
	w.mu.Unlock()

	sort.Strings(added)
	sort.Strings(removed)
	for _, p := range added {
		w.emit(Event{Type: Added, Device: p})
	}
	for _, p := range removed {
		w.emit(Event{Type: Removed, Device: p})
	}
}

func (w *Watcher) emit(e Event) {
	select {
	case w.events <- e:
	case <-w.stop:
	}
}
