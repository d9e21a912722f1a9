//go:build windows

package ioplatform

import "github.com/fsnotify/fsnotify"

// On Windows the native mechanism is IOCP-backed ReadDirectoryChangesW, which fsnotify's
// windows build wraps directly.
func init() {
	probe = probeIOCP
}

func probeIOCP() (Backend, bool) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return BackendIOCP, false
	}
	w.Close()
	return BackendIOCP, true
}
