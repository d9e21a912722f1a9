package detector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyraxred/reactor/internal/core"
)

func collect(t *testing.T, out <-chan core.FileChange, timeout time.Duration) []core.FileChange {
	t.Helper()
	var changes []core.FileChange
	deadline := time.After(timeout)
	for {
		select {
		case c, ok := <-out:
			if !ok {
				return changes
			}
			changes = append(changes, c)
		case <-deadline:
			return changes
		}
	}
}

func TestThreeRapidEventsCoalesceToOneChangeWithLatestContent(t *testing.T) {
	d := NewDetector(100*time.Millisecond, nil, nil)
	fs := make(chan RawEvent, 8)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx, fs, nil)

	now := time.Now()
	fs <- RawEvent{Path: "/x", Kind: core.Modified, Source: core.SourceFilesystem, ArrivalTime: now, Content: []byte("v1")}
	fs <- RawEvent{Path: "/x", Kind: core.Modified, Source: core.SourceFilesystem, ArrivalTime: now.Add(10 * time.Millisecond), Content: []byte("v2")}
	fs <- RawEvent{Path: "/x", Kind: core.Modified, Source: core.SourceFilesystem, ArrivalTime: now.Add(30 * time.Millisecond), Content: []byte("v3")}

	changes := collect(t, d.Output(), 500*time.Millisecond)
	require.Len(t, changes, 1)
	assert.Equal(t, "v3", string(changes[0].Content))
	assert.Equal(t, core.Modified, changes[0].Kind)
}

func TestCreateThenDeleteCancelsOut(t *testing.T) {
	d := NewDetector(50*time.Millisecond, nil, nil)
	fs := make(chan RawEvent, 8)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx, fs, nil)

	now := time.Now()
	fs <- RawEvent{Path: "/y", Kind: core.Created, Source: core.SourceFilesystem, ArrivalTime: now, Content: []byte("new")}
	fs <- RawEvent{Path: "/y", Kind: core.Deleted, Source: core.SourceFilesystem, ArrivalTime: now.Add(5 * time.Millisecond)}

	changes := collect(t, d.Output(), 300*time.Millisecond)
	assert.Empty(t, changes)
}

func TestDeleteThenCreateBecomesModify(t *testing.T) {
	d := NewDetector(50*time.Millisecond, nil, nil)
	fs := make(chan RawEvent, 8)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx, fs, nil)

	now := time.Now()
	fs <- RawEvent{Path: "/z", Kind: core.Deleted, Source: core.SourceFilesystem, ArrivalTime: now}
	fs <- RawEvent{Path: "/z", Kind: core.Created, Source: core.SourceFilesystem, ArrivalTime: now.Add(5 * time.Millisecond), Content: []byte("replaced")}

	changes := collect(t, d.Output(), 300*time.Millisecond)
	require.Len(t, changes, 1)
	assert.Equal(t, core.Modified, changes[0].Kind)
}

func TestEditorEventIsAuthoritativeOverFilesystem(t *testing.T) {
	d := NewDetector(80*time.Millisecond, nil, nil)
	fs := make(chan RawEvent, 8)
	editor := make(chan RawEvent, 8)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx, fs, editor)

	now := time.Now()
	editor <- RawEvent{Path: "/e", Kind: core.Modified, Source: core.SourceEditor, ArrivalTime: now, Content: []byte("from-editor")}
	fs <- RawEvent{Path: "/e", Kind: core.Modified, Source: core.SourceFilesystem, ArrivalTime: now.Add(5 * time.Millisecond), Content: []byte("from-fs")}

	changes := collect(t, d.Output(), 400*time.Millisecond)
	require.Len(t, changes, 1)
	assert.Equal(t, "from-editor", string(changes[0].Content))
	assert.Equal(t, core.SourceEditor, changes[0].Source)
}

func TestTenThousandDistinctPathsEachEmitExactlyOneChange(t *testing.T) {
	const n = 10000
	d := NewDetector(100*time.Millisecond, nil, nil)
	fs := make(chan RawEvent, n)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go d.Run(ctx, fs, nil)

	now := time.Now()
	for i := 0; i < n; i++ {
		fs <- RawEvent{Path: fmt.Sprintf("/p/%d", i), Kind: core.Modified, Source: core.SourceFilesystem, ArrivalTime: now, Content: []byte("x")}
	}

	changes := collect(t, d.Output(), 4*time.Second)
	assert.Len(t, changes, n)
}

func TestContentReaderUsedWhenRawEventHasNoInlineContent(t *testing.T) {
	reads := 0
	read := func(path string) ([]byte, error) {
		reads++
		return []byte("read:" + path), nil
	}
	d := NewDetector(30*time.Millisecond, read, nil)
	fs := make(chan RawEvent, 4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx, fs, nil)

	fs <- RawEvent{Path: "/r", Kind: core.Created, Source: core.SourceFilesystem, ArrivalTime: time.Now()}

	changes := collect(t, d.Output(), 300*time.Millisecond)
	require.Len(t, changes, 1)
	assert.Equal(t, "read:/r", string(changes[0].Content))
	assert.Equal(t, 1, reads)
}

func TestRenamedChangeCarriesOldPath(t *testing.T) {
	d := NewDetector(30*time.Millisecond, nil, nil)
	fs := make(chan RawEvent, 4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx, fs, nil)

	fs <- RawEvent{Path: "/new-name", Kind: core.Renamed, Source: core.SourceFilesystem, ArrivalTime: time.Now(), RenamedFrom: "/old-name"}

	changes := collect(t, d.Output(), 300*time.Millisecond)
	require.Len(t, changes, 1)
	assert.Equal(t, "/old-name", changes[0].RenamedFrom)
}
