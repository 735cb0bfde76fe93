package serialport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWatcher(known ...string) *Watcher {
	w := &Watcher{
		events: make(chan Event, 16),
		stop:   make(chan struct{}),
		known:  make(map[string]struct{}),
	}
	for _, k := range known {
		w.known[k] = struct{}{}
	}
	return w
}

func drain(w *Watcher) []Event {
	var out []Event
	for {
		select {
		case e := <-w.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestDiffEmitsAddAndRemove(t *testing.T) {
	w := testWatcher("/dev/ttyUSB0", "/dev/ttyS0")
	w.diff([]string{"/dev/ttyS0", "/dev/ttyACM0"})

	events := drain(w)
	require.Len(t, events, 2)
	assert.Equal(t, Event{Type: Added, Device: "/dev/ttyACM0"}, events[0])
	assert.Equal(t, Event{Type: Removed, Device: "/dev/ttyUSB0"}, events[1])
}

func TestDiffNoChangeNoEvents(t *testing.T) {
	w := testWatcher("/dev/ttyS0")
	w.diff([]string{"/dev/ttyS0"})
	assert.Empty(t, drain(w))
}
