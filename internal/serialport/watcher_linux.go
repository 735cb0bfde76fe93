//go:build linux

package serialport

import (
	"strings"

	"github.com/fsnotify/fsnotify"
)

// isSerialDevice matches the device-name prefixes udev creates for serial
// hardware.
func isSerialDevice(name string) bool {
	for _, prefix := range []string{"ttyS", "ttyUSB", "ttyACM", "ttyAMA", "rfcomm"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Start watches /dev through inotify: device-node creation and removal
// arrive as filesystem events, so add/remove notifications are immediate
// rather than polled.
func Start() (*Watcher, error) {
	w, err := newWatcher()
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add("/dev"); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	go func() {
		defer close(w.events)
		defer fsw.Close()
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				name := ev.Name[strings.LastIndexByte(ev.Name, '/')+1:]
				if !isSerialDevice(name) {
					continue
				}
				if ports, err := List(); err == nil {
					w.diff(ports)
				}
			case _, ok := <-fsw.Errors:
				if !ok {
					return
				}
			case <-w.stop:
				return
			}
		}
	}()
	return w, nil
}
