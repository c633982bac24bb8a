//go:build windows

package main

import (
	"os"
	"os/signal"
)

// notifySignals delivers Ctrl+C. Windows has no SIGTERM.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
