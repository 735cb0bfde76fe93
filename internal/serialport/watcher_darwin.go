//go:build darwin

package serialport

import "time"

// Start polls the IOKit-backed port list once a second; macOS exposes no
// portable change notification for /dev/cu.* nodes usable without a
// dedicated IOKit run loop.
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
