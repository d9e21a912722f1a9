//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package ioplatform

import "github.com/fsnotify/fsnotify"

// On BSD-family kernels (including Darwin) the native watch mechanism is kqueue, which
// fsnotify's kqueue build wraps directly. Availability is a real probe, not a label: a
// fsnotify.NewWatcher() failure here (e.g. a sandboxed environment with kqueue denied) falls
// selection back to the portable backend.
func init() {
	probe = probeKqueue
}

func probeKqueue() (Backend, bool) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return BackendKqueue, false
	}
	w.Close()
	return BackendKqueue, true
}
