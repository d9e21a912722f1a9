package ioplatform

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyraxred/reactor/internal/governor"
)

func newTestPlatform(t *testing.T) Platform {
	t.Helper()
	gov := governor.NewGovernor(8)
	return Select(gov, nil)
}

func TestSelectReturnsUsablePlatform(t *testing.T) {
	p := newTestPlatform(t)
	require.NotEmpty(t, p.BackendName())
	assert.True(t, p.IsAvailable())
}

func TestWriteAllThenReadAllRoundTrips(t *testing.T) {
	p := newTestPlatform(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")

	require.NoError(t, p.WriteAll(context.Background(), path, []byte("hello")))
	data, err := p.ReadAll(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestReadAllMissingFileIsNotFound(t *testing.T) {
	p := newTestPlatform(t)
	_, err := p.ReadAll(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestBatchWritePreservesOrderAndIsolatesFailures(t *testing.T) {
	p := newTestPlatform(t)
	dir := t.TempDir()
	// dir itself as a "path" makes WriteAll (via renameio rename into it) fail for that entry
	// without affecting the others.
	reqs := []WriteRequest{
		{Path: filepath.Join(dir, "a.txt"), Data: []byte("a")},
		{Path: dir, Data: []byte("bad")},
		{Path: filepath.Join(dir, "c.txt"), Data: []byte("c")},
	}
	results, err := p.BatchWrite(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)

	data, err := p.ReadAll(context.Background(), filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestBatchReadReturnsResultsInInputOrder(t *testing.T) {
	p := newTestPlatform(t)
	dir := t.TempDir()
	paths := make([]string, 5)
	for i := range paths {
		paths[i] = filepath.Join(dir, string(rune('a'+i))+".txt")
		require.NoError(t, os.WriteFile(paths[i], []byte{byte('a' + i)}, 0o644))
	}
	results, err := p.BatchRead(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, []byte{byte('a' + i)}, r.Data)
	}
}

func TestWatchObservesFileCreation(t *testing.T) {
	p := newTestPlatform(t)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := p.Watch(ctx, dir)
	require.NoError(t, err)
	defer w.Close()

	target := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	select {
	case ev := <-w.Events():
		assert.Equal(t, target, ev.Path)
	case err := <-w.Errors():
		t.Fatalf("unexpected watcher error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for create event")
	}
}

func TestWatchStopsAfterClose(t *testing.T) {
	p := newTestPlatform(t)
	dir := t.TempDir()
	w, err := p.Watch(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, open := <-w.Events()
	assert.False(t, open, "events channel should close after Close")
}

func TestWatchStopsWhenContextCancelled(t *testing.T) {
	p := newTestPlatform(t)
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	w, err := p.Watch(ctx, dir)
	require.NoError(t, err)
	cancel()

	select {
	case _, open := <-w.Events():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after context cancellation")
	}
}
