// Package blobstore implements the content-addressed (SHA-256) persistent store described in
// spec §4.3: writes are atomic (temp file + rename, via github.com/google/renameio/v2), reads
// verify the hash before returning bytes, and large reads may be served through a memory map
// (golang.org/x/exp/mmap) instead of a full read into a byte slice.
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"

	"github.com/cyraxred/reactor/internal/core"
)

// DefaultMmapThreshold is the size above which Get serves a blob through a memory map rather
// than a full read, per spec §4.3 ("reads > threshold may memory-map").
const DefaultMmapThreshold = 1 << 20 // 1 MiB

// Meta carries a blob's non-content attributes.
type Meta struct {
	CreatedAt   time.Time
	ContentType string
}

// Store is a content-addressed blob store rooted at a directory, laid out as
// blobs/<first-2-hex>/<rest-hex> per spec §6.
type Store struct {
	root           string
	mmapThreshold  int64
	mu             sync.Mutex // not used; per-hash write locks live in pendingWrites below
	pendingWrites  map[string]*sync.Mutex
	pendingWritesL sync.Mutex
}

// NewStore constructs a Store rooted at root (typically "<forge_root>/blobs"). The directory
// is created if absent.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "blobstore: creating root")
	}
	return &Store{root: root, mmapThreshold: DefaultMmapThreshold, pendingWrites: map[string]*sync.Mutex{}}, nil
}

// SetMmapThreshold overrides DefaultMmapThreshold.
func (s *Store) SetMmapThreshold(n int64) { s.mmapThreshold = n }

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *Store) pathFor(hash string) string {
	if len(hash) < 2 {
		return filepath.Join(s.root, hash)
	}
	return filepath.Join(s.root, hash[:2], hash[2:])
}

func (s *Store) lockFor(hash string) *sync.Mutex {
	s.pendingWritesL.Lock()
	defer s.pendingWritesL.Unlock()
	l, ok := s.pendingWrites[hash]
	if !ok {
		l = &sync.Mutex{}
		s.pendingWrites[hash] = l
	}
	return l
}

// Put stores bytes content-addressed by their SHA-256 hash and returns the hex digest. Put is
// idempotent: storing the same content twice performs at most one disk write (concurrent
// writers of the same content are coalesced by a per-hash lock; P8).
func (s *Store) Put(data []byte) (string, error) {
	hash := hashHex(data)
	lock := s.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	target := s.pathFor(hash)
	if _, err := os.Stat(target); err == nil {
		return hash, nil // already present; same content, same blob
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", errors.Wrap(err, "blobstore: creating shard directory")
	}
	if err := renameio.WriteFile(target, data, 0o444); err != nil {
		return "", errors.Wrapf(err, "blobstore: writing blob %s", hash)
	}
	return hash, nil
}

// Exists reports whether a blob with the given hash is present.
func (s *Store) Exists(hash string) bool {
	_, err := os.Stat(s.pathFor(hash))
	return err == nil
}

// Get returns the bytes for hash, verifying the content still hashes to the requested digest.
// Reads at or above the configured mmap threshold are served via golang.org/x/exp/mmap instead
// of a full ioutil-style read.
func (s *Store) Get(hash string) ([]byte, error) {
	path := s.pathFor(hash)
	info, err := os.Stat(path)
	if err != nil {
		return nil, core.NewEngineError(core.CategoryFilesystem, "blobstore.get", err)
	}
	var data []byte
	if info.Size() >= s.mmapThreshold {
		data, err = s.readMmap(path, info.Size())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, core.NewEngineError(core.CategoryFilesystem, "blobstore.get", err)
	}
	if hashHex(data) != hash {
		return nil, core.NewEngineError(core.CategoryIntegrity, "blobstore.get", nil,
			"blob content does not match its filename hash; the file may be corrupted on disk")
	}
	return data, nil
}

func (s *Store) readMmap(path string, size int64) ([]byte, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

// Delete removes the blob for hash. The caller (the Apply Gate / GC pass) is responsible for
// confirming the blob is orphaned (referenced by no Operation) before calling this, per
// spec §4.3's "only permitted when orphaned".
func (s *Store) Delete(hash string) error {
	if err := os.Remove(s.pathFor(hash)); err != nil && !os.IsNotExist(err) {
		return core.NewEngineError(core.CategoryFilesystem, "blobstore.delete", err)
	}
	return nil
}

// Len returns len(bytes) for a stored hash without reading the content, or -1 if absent.
func (s *Store) Len(hash string) int64 {
	info, err := os.Stat(s.pathFor(hash))
	if err != nil {
		return -1
	}
	return info.Size()
}
