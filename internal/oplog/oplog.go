// Package oplog implements the append-only Operation Log of spec §4.3: a durable, strictly
// ordered record of fine-grained edit operations, plus the auxiliary state needed for
// checkpoint/checkout time travel. The log's binary framing lives in operation.go; the
// sequence counter, id-based idempotency index, current path->blob-hash index, and named
// checkpoints ("refs") are kept in a go.etcd.io/bbolt database (grounded on
// evalgo.org/eve's db/bolt wrapper): the framed stream is log/operations.log, while the
// checkpoints and the path index are the "refs" and "index" buckets of meta.bolt.
package oplog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/cyraxred/reactor/internal/core"
)

var (
	bucketSeq   = []byte("seq")
	bucketIDs   = []byte("ids")   // operation id -> seq (idempotency)
	bucketIndex = []byte("index") // path -> blob hash (current head)
	bucketRefs  = []byte("refs")  // checkpoint name -> Checkpoint (json)
)

const seqKey = "n"

// Checkpoint is a labeled snapshot of the path->blob-hash mapping at some point in time.
type Checkpoint struct {
	ID        string            `json:"id"`
	Message   string            `json:"message"`
	Time      time.Time         `json:"time"`
	PathToHead map[string]string `json:"path_to_head"`
	Seq       uint64            `json:"seq"`
}

type appendRequest struct {
	op     core.Operation
	result chan appendResult
}

type appendResult struct {
	seq  uint64
	isNew bool
	err  error
}

// Log is the durable, totally ordered append-only record of Operations for one forge
// directory.
type Log struct {
	meta    *bolt.DB
	logPath string

	mu       sync.Mutex // protects file handle used by iterate/checkout readers
	writeCh  chan appendRequest
	closeCh  chan struct{}
	closedWG sync.WaitGroup
}

// Open opens (creating if absent) the operation log rooted at dir (typically
// "<forge_root>/"). dir/meta.bolt holds the auxiliary indexes; dir/log/operations.log holds
// the framed operation stream.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(filepath.Join(dir, "log"), 0o755); err != nil {
		return nil, errors.Wrap(err, "oplog: creating log directory")
	}
	meta, err := bolt.Open(filepath.Join(dir, "meta.bolt"), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "oplog: opening metadata store")
	}
	err = meta.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSeq, bucketIDs, bucketIndex, bucketRefs} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		meta.Close()
		return nil, errors.Wrap(err, "oplog: initializing buckets")
	}
	l := &Log{
		meta:    meta,
		logPath: filepath.Join(dir, "log", "operations.log"),
		writeCh: make(chan appendRequest, 256), // bounded queue; Append blocks (back-pressure) once full
		closeCh: make(chan struct{}),
	}
	l.closedWG.Add(1)
	go l.writerLoop()
	return l, nil
}

// Close stops the single writer goroutine and closes the metadata store. Idempotent.
func (l *Log) Close() error {
	select {
	case <-l.closeCh:
	default:
		close(l.closeCh)
	}
	l.closedWG.Wait()
	return l.meta.Close()
}

func (l *Log) writerLoop() {
	defer l.closedWG.Done()
	for {
		select {
		case req := <-l.writeCh:
			seq, isNew, err := l.doAppend(req.op)
			req.result <- appendResult{seq: seq, isNew: isNew, err: err}
		case <-l.closeCh:
			return
		}
	}
}

// Append durably persists op before returning, assigning it a monotonic sequence number.
// Idempotent on op.ID: appending an operation whose ID was already recorded is a no-op and
// returns isNew=false with the original sequence number (P2).
func (l *Log) Append(ctx context.Context, op core.Operation) (seq uint64, isNew bool, err error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	result := make(chan appendResult, 1)
	select {
	case l.writeCh <- appendRequest{op: op, result: result}:
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
	select {
	case r := <-result:
		return r.seq, r.isNew, r.err
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
}

func (l *Log) doAppend(op core.Operation) (uint64, bool, error) {
	var existingSeq uint64
	var alreadyPresent bool
	err := l.meta.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketIDs).Get([]byte(op.ID))
		if v != nil {
			existingSeq = binary.BigEndian.Uint64(v)
			alreadyPresent = true
		}
		return nil
	})
	if err != nil {
		return 0, false, core.NewEngineError(core.CategoryFilesystem, "oplog.append", err)
	}
	if alreadyPresent {
		return existingSeq, false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var seq uint64
	err = l.meta.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSeq)
		next := uint64(1)
		if v := b.Get([]byte(seqKey)); v != nil {
			next = binary.BigEndian.Uint64(v) + 1
		}
		seq = next
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, next)
		if err := b.Put([]byte(seqKey), buf); err != nil {
			return err
		}
		if err := tx.Bucket(bucketIDs).Put([]byte(op.ID), buf); err != nil {
			return err
		}
		if op.BlobHash != "" && op.Kind != core.OpFileDelete {
			if err := tx.Bucket(bucketIndex).Put([]byte(op.FilePath), []byte(op.BlobHash)); err != nil {
				return err
			}
		}
		if op.Kind == core.OpFileDelete {
			_ = tx.Bucket(bucketIndex).Delete([]byte(op.FilePath))
		}
		if op.Kind == core.OpFileRename && op.RenameTo != "" {
			if v := tx.Bucket(bucketIndex).Get([]byte(op.FilePath)); v != nil {
				if err := tx.Bucket(bucketIndex).Put([]byte(op.RenameTo), v); err != nil {
					return err
				}
				_ = tx.Bucket(bucketIndex).Delete([]byte(op.FilePath))
			}
		}
		return nil
	})
	if err != nil {
		return 0, false, core.NewEngineError(core.CategoryFilesystem, "oplog.append", err)
	}
	op.Seq = seq

	f, err := os.OpenFile(l.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, false, core.NewEngineError(core.CategoryFilesystem, "oplog.append", err)
	}
	defer f.Close()
	payload := Encode(op)
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	if _, err := f.Write(frame); err != nil {
		return 0, false, core.NewEngineError(core.CategoryFilesystem, "oplog.append", err)
	}
	if err := f.Sync(); err != nil {
		return 0, false, core.NewEngineError(core.CategoryFilesystem, "oplog.append", err)
	}
	return seq, true, nil
}

// IterateFrom returns, in commit order, every operation with sequence number >= fromSeq,
// optionally restricted to one path.
func (l *Log) IterateFrom(fromSeq uint64, pathFilter string) ([]core.Operation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.NewEngineError(core.CategoryFilesystem, "oplog.iterate_from", err)
	}
	defer f.Close()

	var result []core.Operation
	lenBuf := make([]byte, 4)
	for {
		if _, err := readFull(f, lenBuf); err != nil {
			break
		}
		n := binary.BigEndian.Uint32(lenBuf)
		payload := make([]byte, n)
		if _, err := readFull(f, payload); err != nil {
			return nil, core.NewEngineError(core.CategoryIntegrity, "oplog.iterate_from", err,
				"the operation log appears truncated")
		}
		op, err := Decode(payload)
		if err != nil {
			return nil, core.NewEngineError(core.CategoryIntegrity, "oplog.iterate_from", err)
		}
		if op.Seq < fromSeq {
			continue
		}
		if pathFilter != "" && op.FilePath != pathFilter {
			continue
		}
		result = append(result, op)
	}
	return result, nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// PathToHead returns the current path->blob-hash mapping.
func (l *Log) PathToHead() (map[string]string, error) {
	result := map[string]string{}
	err := l.meta.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIndex).ForEach(func(k, v []byte) error {
			result[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, core.NewEngineError(core.CategoryFilesystem, "oplog.path_to_head", err)
	}
	return result, nil
}

// Checkpoint records a labeled snapshot of the current path->blob-hash mapping and returns its
// commit id.
func (l *Log) Checkpoint(message string) (string, error) {
	pathToHead, err := l.PathToHead()
	if err != nil {
		return "", err
	}
	var seq uint64
	err = l.meta.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSeq).Get([]byte(seqKey)); v != nil {
			seq = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	if err != nil {
		return "", core.NewEngineError(core.CategoryFilesystem, "oplog.checkpoint", err)
	}
	cp := Checkpoint{ID: uuid.NewString(), Message: message, Time: time.Now(), PathToHead: pathToHead, Seq: seq}
	data, err := json.Marshal(cp)
	if err != nil {
		return "", errors.Wrap(err, "oplog: marshaling checkpoint")
	}
	err = l.meta.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRefs).Put([]byte(cp.ID), data)
	})
	if err != nil {
		return "", core.NewEngineError(core.CategoryFilesystem, "oplog.checkpoint", err)
	}
	return cp.ID, nil
}

// Checkout reconstructs the path->blob-hash mapping recorded at commitID and atomically
// replaces the current index with it (all writes staged in memory, then swapped in one
// transaction).
func (l *Log) Checkout(commitID string) (map[string]string, error) {
	var cp Checkpoint
	err := l.meta.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRefs).Get([]byte(commitID))
		if data == nil {
			return errors.Errorf("unknown checkpoint %q", commitID)
		}
		return json.Unmarshal(data, &cp)
	})
	if err != nil {
		return nil, core.NewEngineError(core.CategoryDependency, "oplog.checkout", err)
	}
	err = l.meta.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketIndex); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketIndex)
		if err != nil {
			return err
		}
		for path, hash := range cp.PathToHead {
			if err := b.Put([]byte(path), []byte(hash)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, core.NewEngineError(core.CategoryFilesystem, "oplog.checkout", err)
	}
	return cp.PathToHead, nil
}

// History returns every recorded checkpoint, most recent first.
func (l *Log) History() ([]Checkpoint, error) {
	var result []Checkpoint
	err := l.meta.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRefs).ForEach(func(k, v []byte) error {
			var cp Checkpoint
			if err := json.Unmarshal(v, &cp); err != nil {
				return err
			}
			result = append(result, cp)
			return nil
		})
	})
	if err != nil {
		return nil, core.NewEngineError(core.CategoryFilesystem, "oplog.history", err)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Time.Equal(result[j].Time) {
			return result[i].Time.After(result[j].Time)
		}
		return result[i].Seq > result[j].Seq
	})
	return result, nil
}
