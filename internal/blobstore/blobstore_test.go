package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	data := []byte("hello, forge")
	hash, err := s.Put(data)
	require.NoError(t, err)

	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), hash)

	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPutIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	data := []byte("same content")
	h1, err := s.Put(data)
	require.NoError(t, err)
	h2, err := s.Put(data)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestGetDetectsCorruption(t *testing.T) {
	s := newTestStore(t)
	hash, err := s.Put([]byte("abc"))
	require.NoError(t, err)

	path := s.pathFor(hash)
	require.NoError(t, os.Chmod(path, 0o644))
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))

	_, err = s.Get(hash)
	require.Error(t, err)
}

func TestExistsAndDelete(t *testing.T) {
	s := newTestStore(t)
	hash, err := s.Put([]byte("to delete"))
	require.NoError(t, err)
	assert.True(t, s.Exists(hash))
	require.NoError(t, s.Delete(hash))
	assert.False(t, s.Exists(hash))
}

func TestConcurrentPutSameContentYieldsOneBlob(t *testing.T) {
	s := newTestStore(t)
	data := []byte("concurrent content")
	const n = 16
	hashes := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := s.Put(data)
			require.NoError(t, err)
			hashes[i] = h
		}()
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		assert.Equal(t, hashes[0], hashes[i])
	}
	count := 0
	_ = filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			count++
		}
		return nil
	})
	assert.Equal(t, 1, count)
}

func TestGetLargeBlobViaMmapPath(t *testing.T) {
	s := newTestStore(t)
	s.SetMmapThreshold(16)
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}
	hash, err := s.Put(data)
	require.NoError(t, err)
	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
