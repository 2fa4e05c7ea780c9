package storage

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
)

// Space separates a node's materialized rows from its auxiliary state.
type Space byte

const (
	RowSpace Space = iota
	AuxSpace
)

var ErrClosed = errors.New("backend closed")

func GetKeyPrefix(space Space, nodeID int64) []byte {
	buf := make([]byte, 9)
	binary.BigEndian.PutUint64(buf[:8], uint64(nodeID))
	buf[8] = byte(space)
	return buf
}

func GetKey(space Space, nodeID int64, key []byte) []byte {
	// <8 bytes node ID> <1 byte space> <encoded group key>
	buf := make([]byte, 9, 9+len(key))
	binary.BigEndian.PutUint64(buf[:8], uint64(nodeID))
	buf[8] = byte(space)
	return append(buf, key...)
}

func GetNodeIDFromKey(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf[:8]))
}

func GetSpaceFromKey(buf []byte) Space {
	return Space(buf[8])
}

func GetGroupKeyFromKey(buf []byte) []byte {
	return buf[9:]
}

type writeOp struct {
	key    []byte
	value  []byte
	delete bool
}

// WriteBatch is a set of puts and deletes applied atomically by
// Backend.Write, in insertion order.
type WriteBatch struct {
	ops []writeOp
}

func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

func (batch *WriteBatch) Put(space Space, nodeID int64, key, value []byte) {
	batch.ops = append(batch.ops, writeOp{key: GetKey(space, nodeID, key), value: value})
}

func (batch *WriteBatch) Delete(space Space, nodeID int64, key []byte) {
	batch.ops = append(batch.ops, writeOp{key: GetKey(space, nodeID, key), delete: true})
}

func (batch *WriteBatch) Len() int {
	return len(batch.ops)
}

type Backend interface {
	// Get reports found=false for a missing key.
	Get(space Space, nodeID int64, key []byte) ([]byte, bool, error)
	Write(batch *WriteBatch) error
	// Iterate visits a node's entries in one space in key order, with the
	// node prefix stripped from keys.
	Iterate(space Space, nodeID int64, fn func(key, value []byte) error) error
	DropNode(nodeID int64) error
	Close() error
}

type kvItem struct {
	key   []byte
	value []byte
}

func (item kvItem) Less(than btree.Item) bool {
	return bytes.Compare(item.key, than.(kvItem).key) < 0
}

// InMemoryBackend keeps entries in an ordered btree.
type InMemoryBackend struct {
	tree *btree.BTree
	mu   sync.RWMutex
}

func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{tree: btree.New(32)}
}

func (backend *InMemoryBackend) Get(space Space, nodeID int64, key []byte) ([]byte, bool, error) {
	backend.mu.RLock()
	defer backend.mu.RUnlock()
	if backend.tree == nil {
		return nil, false, ErrClosed
	}
	item := backend.tree.Get(kvItem{key: GetKey(space, nodeID, key)})
	if item == nil {
		return nil, false, nil
	}
	return item.(kvItem).value, true, nil
}

func (backend *InMemoryBackend) Write(batch *WriteBatch) error {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.tree == nil {
		return ErrClosed
	}
	for _, op := range batch.ops {
		if op.delete {
			backend.tree.Delete(kvItem{key: op.key})
		} else {
			backend.tree.ReplaceOrInsert(kvItem{key: op.key, value: op.value})
		}
	}
	return nil
}

func (backend *InMemoryBackend) Iterate(space Space, nodeID int64, fn func(key, value []byte) error) error {
	backend.mu.RLock()
	defer backend.mu.RUnlock()
	if backend.tree == nil {
		return ErrClosed
	}
	prefix := GetKeyPrefix(space, nodeID)
	var err error
	backend.tree.AscendGreaterOrEqual(kvItem{key: prefix}, func(i btree.Item) bool {
		item := i.(kvItem)
		if !bytes.HasPrefix(item.key, prefix) {
			return false
		}
		err = fn(GetGroupKeyFromKey(item.key), item.value)
		return err == nil
	})
	return err
}

func (backend *InMemoryBackend) DropNode(nodeID int64) error {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.tree == nil {
		return ErrClosed
	}
	for _, space := range []Space{RowSpace, AuxSpace} {
		prefix := GetKeyPrefix(space, nodeID)
		var doomed []btree.Item
		backend.tree.AscendGreaterOrEqual(kvItem{key: prefix}, func(i btree.Item) bool {
			if !bytes.HasPrefix(i.(kvItem).key, prefix) {
				return false
			}
			doomed = append(doomed, i)
			return true
		})
		for _, item := range doomed {
			backend.tree.Delete(item)
		}
	}
	return nil
}

func (backend *InMemoryBackend) Close() error {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.tree = nil
	return nil
}
