package core

import "github.com/cockroachdb/errors"

// AuxEntry is the encoded auxiliary state of one group, persisted next to the
// operator's materialized rows.
type AuxEntry struct {
	Key   []byte
	Value []byte
}

// auxState is the private per-group state of an aggregation. Updates made
// while processing a batch stay staged until commit.
type auxState interface {
	pending() ([]AuxEntry, error)
	commit()
	rollback()
	restore(entry AuxEntry) error
	len() int
}

type auxEntry[T any] struct {
	key   GroupKey
	state T
}

// auxTable chains entries by key digest and compares exact key bytes within
// a chain, so colliding groups never share state.
type auxTable[T any] struct {
	buckets map[uint64][]*auxEntry[T]
	staged  map[string]*auxEntry[T]
	order   []string
	size    int
	digest  func(GroupKey) uint64

	encode func(T) []byte
	decode func([]byte) (T, error)
}

func newAuxTable[T any](encode func(T) []byte, decode func([]byte) (T, error)) *auxTable[T] {
	return &auxTable[T]{
		buckets: make(map[uint64][]*auxEntry[T]),
		digest:  GroupKey.Digest,
		encode:  encode,
		decode:  decode,
	}
}

func (table *auxTable[T]) get(key GroupKey) (T, bool) {
	if entry, ok := table.staged[key.encoded]; ok {
		return entry.state, true
	}
	return table.committed(key)
}

func (table *auxTable[T]) committed(key GroupKey) (T, bool) {
	for _, entry := range table.buckets[table.digest(key)] {
		if entry.key.Equal(key) {
			return entry.state, true
		}
	}
	var zero T
	return zero, false
}

func (table *auxTable[T]) stage(key GroupKey, state T) {
	if table.staged == nil {
		table.staged = make(map[string]*auxEntry[T])
	}
	if entry, ok := table.staged[key.encoded]; ok {
		entry.state = state
		return
	}
	table.staged[key.encoded] = &auxEntry[T]{key: key, state: state}
	table.order = append(table.order, key.encoded)
}

func (table *auxTable[T]) put(key GroupKey, state T) {
	digest := table.digest(key)
	chain := table.buckets[digest]
	for _, entry := range chain {
		if entry.key.Equal(key) {
			entry.state = state
			return
		}
	}
	table.buckets[digest] = append(chain, &auxEntry[T]{key: key, state: state})
	table.size++
}

func (table *auxTable[T]) pending() ([]AuxEntry, error) {
	entries := make([]AuxEntry, 0, len(table.order))
	for _, encoded := range table.order {
		entry := table.staged[encoded]
		entries = append(entries, AuxEntry{Key: entry.key.Bytes(), Value: table.encode(entry.state)})
	}
	return entries, nil
}

func (table *auxTable[T]) commit() {
	for _, encoded := range table.order {
		entry := table.staged[encoded]
		table.put(entry.key, entry.state)
	}
	table.rollback()
}

func (table *auxTable[T]) rollback() {
	table.staged = nil
	table.order = nil
}

func (table *auxTable[T]) restore(entry AuxEntry) error {
	key, err := decodeGroupKey(entry.Key)
	if err != nil {
		return err
	}
	state, err := table.decode(entry.Value)
	if err != nil {
		return errors.Wrapf(err, "decoding auxiliary state of group %s", key)
	}
	table.put(key, state)
	return nil
}

func (table *auxTable[T]) len() int {
	return table.size
}
