//go:build linux

// Package osutil holds small OS plumbing helpers: naming the OS thread a
// long-lived goroutine has locked itself to, so the event loop and each
// protocol kernel's I/O thread are identifiable in ps/top/gdb.
package osutil

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SetThreadName locks the calling goroutine to its OS thread and names it.
// Linux caps thread names at 15 bytes plus the terminator.
func SetThreadName(name string) {
	runtime.LockOSThread()
	if len(name) > 15 {
		name = name[:15]
	}
	buf := append([]byte(name), 0)
	_, _, _ = unix.Syscall6(unix.SYS_PRCTL, unix.PR_SET_NAME, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0, 0)
}
