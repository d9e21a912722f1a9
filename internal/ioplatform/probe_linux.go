//go:build linux

package ioplatform

import "github.com/fsnotify/fsnotify"

// On Linux the native watch mechanism is inotify, which fsnotify's linux build wraps directly
// (fsnotify's own build tags select inotify_linux.go). The io_uring label reflects the native
// high-throughput I/O path this spec names for Linux; no io_uring binding exists in the example
// pack (confirmed by repo-wide search), so availability is established the same way as every
// other OS here: a real fsnotify.NewWatcher() probe, which is what this backend's Watch
// ultimately uses regardless of label.
func init() {
	probe = probeLinux
}

func probeLinux() (Backend, bool) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return BackendIOUring, false
	}
	w.Close()
	return BackendIOUring, true
}
