//go:build windows

package serialport

import "time"

// Start polls the COM-port list once a second. The registry's SERIALCOMM
// key has no cheap change notification from Go, and a 1 s poll is well
// inside the latency a user plugging in an adapter perceives.
func Start() (*Watcher, error) {
	w, err := newWatcher()
	if err != nil {
		return nil, err
	}
	go func() {
		defer close(w.events)
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if ports, err := List(); err == nil {
					w.diff(ports)
				}
			case <-w.stop:
				return
			}
		}
	}()
	return w, nil
}
