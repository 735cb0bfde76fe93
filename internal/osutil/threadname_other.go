//go:build !linux

package osutil

import "runtime"

// SetThreadName locks the calling goroutine to its OS thread. Thread
// naming has no portable API outside Linux; the lock alone still keeps
// the I/O thread identity stable for debuggers.
func SetThreadName(string) {
	runtime.LockOSThread()
}
