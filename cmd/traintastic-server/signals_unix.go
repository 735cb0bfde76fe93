//go:build !windows

package main

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

func notifyShutdown(ch chan<- os.Signal) {
	signal.Notify(ch, unix.SIGINT, unix.SIGTERM)
}
