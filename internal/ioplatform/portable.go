package ioplatform

import (
	"context"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"github.com/pkg/errors"

	"github.com/cyraxred/reactor/internal/governor"
)

// portableBackend implements Platform with plain os.* syscalls bounded by a Governor ticket per
// operation, and fsnotify for Watch. It backs every selected Backend value: the native/portable
// distinction is the probe result and the reported BackendName, not a different I/O mechanism,
// since fsnotify already dispatches through the OS's real native watch mechanism per platform
// and Go's os package already issues the platform's native read/write syscalls directly.
type portableBackend struct {
	name Backend
	gov  *governor.Governor
}

func newPortable(name Backend, gov *governor.Governor) *portableBackend {
	return &portableBackend{name: name, gov: gov}
}

func (p *portableBackend) BackendName() Backend { return p.name }

func (p *portableBackend) IsAvailable() bool { return true }

func (p *portableBackend) withTicket(ctx context.Context, fn func() error) error {
	if p.gov == nil {
		return fn()
	}
	t, err := p.gov.Acquire(ctx)
	if err != nil {
		return classifyErr(err)
	}
	defer t.Release()
	return fn()
}

func (p *portableBackend) Read(ctx context.Context, path string, buf []byte) (n int, err error) {
	err = p.withTicket(ctx, func() error {
		f, openErr := os.Open(path)
		if openErr != nil {
			return classifyErr(openErr)
		}
		defer f.Close()
		n, err = f.Read(buf)
		if err != nil {
			return classifyErr(err)
		}
		return nil
	})
	return n, err
}

func (p *portableBackend) Write(ctx context.Context, path string, buf []byte) (n int, err error) {
	err = p.withTicket(ctx, func() error {
		f, openErr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
		if openErr != nil {
			return classifyErr(openErr)
		}
		defer f.Close()
		n, err = f.Write(buf)
		if err != nil {
			return classifyErr(err)
		}
		return f.Sync()
	})
	return n, err
}

func (p *portableBackend) ReadAll(ctx context.Context, path string) (data []byte, err error) {
	err = p.withTicket(ctx, func() error {
		data, err = os.ReadFile(path)
		if err != nil {
			return classifyErr(err)
		}
		return nil
	})
	return data, err
}

func (p *portableBackend) WriteAll(ctx context.Context, path string, buf []byte) error {
	return p.withTicket(ctx, func() error {
		if err := renameio.WriteFile(path, buf, 0o644); err != nil {
			return classifyErr(err)
		}
		return nil
	})
}

// BatchRead reads every path concurrently (bounded by the Governor) and returns results in the
// same order as paths, per spec §4.1's "N results in input order with a per-index error map".
// If any read failed, the error of the first failed index is also returned for the batch.
func (p *portableBackend) BatchRead(ctx context.Context, paths []string) ([]ReadResult, error) {
	results := make([]ReadResult, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			data, err := p.ReadAll(ctx, path)
			results[i] = ReadResult{Data: data, Err: err}
		}(i, path)
	}
	wg.Wait()
	for i, r := range results {
		if r.Err != nil {
			return results, errors.Wrapf(r.Err, "ioplatform: batch read failed at index %d", i)
		}
	}
	return results, nil
}

// BatchWrite writes every request concurrently. Each write is atomic per path (via renameio),
// but the batch as a whole is not atomic across paths: a failure on one path never rolls back
// another, matching spec §4.1's "batch_write is atomic per path, not across paths".
func (p *portableBackend) BatchWrite(ctx context.Context, reqs []WriteRequest) ([]WriteResult, error) {
	results := make([]WriteResult, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req WriteRequest) {
			defer wg.Done()
			err := p.WriteAll(ctx, req.Path, req.Data)
			n := 0
			if err == nil {
				n = len(req.Data)
			}
			results[i] = WriteResult{BytesWritten: n, Err: err}
		}(i, req)
	}
	wg.Wait()
	return results, nil
}

// fsWatcher adapts fsnotify.Watcher to the Watcher interface, translating fsnotify's Op bitmask
// into EventKind and running until ctx is cancelled or Close is called.
type fsWatcher struct {
	w      *fsnotify.Watcher
	events chan Event
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

func (w *fsWatcher) Events() <-chan Event { return w.events }
func (w *fsWatcher) Errors() <-chan error { return w.errs }

func (w *fsWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.w.Close()
	})
	return err
}

func translateOp(op fsnotify.Op) EventKind {
	switch {
	case op&fsnotify.Create != 0:
		return EvCreated
	case op&fsnotify.Remove != 0:
		return EvDeleted
	case op&fsnotify.Rename != 0:
		return EvRenamed
	case op&fsnotify.Chmod != 0:
		return EvMetadata
	default:
		return EvModified
	}
}

// Watch returns a lazy, infinite, non-restartable event stream for path, per spec §4.1. Once
// ctx is cancelled or Close is called the stream ends; a new Watch call is required to resume.
func (p *portableBackend) Watch(ctx context.Context, path string) (Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, classifyErr(err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, classifyErr(err)
	}
	fw := &fsWatcher{w: w, events: make(chan Event, 64), errs: make(chan error, 8), done: make(chan struct{})}
	go func() {
		defer close(fw.events)
		defer close(fw.errs)
		for {
			select {
			case <-ctx.Done():
				w.Close()
				return
			case <-fw.done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				select {
				case fw.events <- Event{Path: ev.Name, Kind: translateOp(ev.Op)}:
				case <-fw.done:
					return
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				select {
				case fw.errs <- werr:
				case <-fw.done:
					return
				}
			}
		}
	}()
	return fw, nil
}

// classifyErr maps a raw os/fsnotify error into the taxonomy spec §4.1 requires: callers branch
// on NotFound/PermissionDenied to decide whether a retry is worthwhile.
func classifyErr(err error) error {
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return &NotFoundError{Cause: err}
	case os.IsPermission(err):
		return &PermissionDeniedError{Cause: err}
	default:
		return &BackendFatalError{Cause: err}
	}
}

// NotFoundError wraps a missing-path failure.
type NotFoundError struct{ Cause error }

func (e *NotFoundError) Error() string { return errors.Wrap(e.Cause, "path not found").Error() }
func (e *NotFoundError) Unwrap() error { return e.Cause }

// PermissionDeniedError wraps an access-denied failure.
type PermissionDeniedError struct{ Cause error }

func (e *PermissionDeniedError) Error() string {
	return errors.Wrap(e.Cause, "permission denied").Error()
}
func (e *PermissionDeniedError) Unwrap() error { return e.Cause }

// InterruptedError signals a transient interruption (e.g. EINTR) that the spec says callers
// should retry exactly once before giving up.
type InterruptedError struct{ Cause error }

func (e *InterruptedError) Error() string { return errors.Wrap(e.Cause, "interrupted").Error() }
func (e *InterruptedError) Unwrap() error { return e.Cause }

// BackendTransientError signals a recoverable backend-level failure a caller should retry
// according to its own retry policy (see core.RetryPolicy).
type BackendTransientError struct{ Cause error }

func (e *BackendTransientError) Error() string {
	return errors.Wrap(e.Cause, "transient backend error").Error()
}
func (e *BackendTransientError) Unwrap() error { return e.Cause }

// BackendFatalError signals a failure the backend cannot recover from; callers should bubble it
// up rather than retry.
type BackendFatalError struct{ Cause error }

func (e *BackendFatalError) Error() string {
	return errors.Wrap(e.Cause, "fatal backend error").Error()
}
func (e *BackendFatalError) Unwrap() error { return e.Cause }
