package core

import (
	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/ristretto"

	"viewdb/storage"
)

// BackingStore holds the materialized rows and auxiliary state of every
// node over a storage.Backend. The optional cache maps encoded rows to
// their decoded form; it is keyed by content, so it never serves a row
// that has since been overwritten. Cached rows are private copies.
type BackingStore struct {
	backend      storage.Backend
	cacheEnabled bool
	rowCache     *ristretto.Cache
}

func NewBackingStore(backend storage.Backend, cacheEnabled bool, cacheMaxCost int64) (*BackingStore, error) {
	store := &BackingStore{
		backend:      backend,
		cacheEnabled: cacheEnabled,
	}
	if cacheEnabled {
		if cacheMaxCost <= 0 {
			cacheMaxCost = 1 << 28
		}
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 1e6,
			MaxCost:     cacheMaxCost,
			BufferItems: 64,
		})
		if err != nil {
			return nil, errors.Wrap(err, "creating row cache")
		}
		store.rowCache = cache
	}
	return store, nil
}

func (store *BackingStore) decode(buf []byte) (Row, error) {
	if store.cacheEnabled {
		if row, found := store.rowCache.Get(buf); found {
			return row.(Row).Clone(), nil
		}
	}
	row, err := DecodeRow(buf)
	if err != nil {
		return nil, err
	}
	if store.cacheEnabled {
		store.rowCache.Set(buf, row.Clone(), int64(len(buf)))
	}
	return row, nil
}

func (store *BackingStore) Lookup(nodeID int64, key GroupKey) (Row, bool, error) {
	buf, found, err := store.backend.Get(storage.RowSpace, nodeID, key.Bytes())
	if err != nil || !found {
		return nil, false, err
	}
	row, err := store.decode(buf)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decoding row of group %s", key)
	}
	return row, true, nil
}

// Apply persists an operator's output and staged auxiliary state in one
// atomic write. Records are applied in order, so a retraction followed by
// an assertion for the same group leaves the assertion.
func (store *BackingStore) Apply(nodeID int64, groupWidth int, records Records, aux []AuxEntry) error {
	batch := storage.NewWriteBatch()
	for _, record := range records {
		if len(record.Row) < groupWidth {
			return errors.AssertionFailedf("row %s narrower than its %d grouping columns", record.Row, groupWidth)
		}
		key := NewGroupKey(record.Row[:groupWidth]).Bytes()
		if record.Positive {
			buf := EncodeRow(record.Row)
			batch.Put(storage.RowSpace, nodeID, key, buf)
			if store.cacheEnabled {
				store.rowCache.Set(buf, record.Row.Clone(), int64(len(buf)))
			}
		} else {
			batch.Delete(storage.RowSpace, nodeID, key)
		}
	}
	for _, entry := range aux {
		batch.Put(storage.AuxSpace, nodeID, entry.Key, entry.Value)
	}
	if batch.Len() == 0 {
		return nil
	}
	return store.backend.Write(batch)
}

// Scan visits a node's materialized rows in group key order.
func (store *BackingStore) Scan(nodeID int64, fn func(Row) error) error {
	return store.backend.Iterate(storage.RowSpace, nodeID, func(_, value []byte) error {
		row, err := store.decode(value)
		if err != nil {
			return err
		}
		return fn(row)
	})
}

func (store *BackingStore) ScanAux(nodeID int64, fn func(AuxEntry) error) error {
	return store.backend.Iterate(storage.AuxSpace, nodeID, func(key, value []byte) error {
		return fn(AuxEntry{Key: key, Value: value})
	})
}

func (store *BackingStore) DropNode(nodeID int64) error {
	return store.backend.DropNode(nodeID)
}

func (store *BackingStore) Close() error {
	if store.cacheEnabled {
		store.rowCache.Close()
	}
	return store.backend.Close()
}

// nodeView is a StateReader over one node's rows.
type nodeView struct {
	store  *BackingStore
	nodeID int64
}

func (view nodeView) Lookup(key GroupKey) (Row, bool, error) {
	return view.store.Lookup(view.nodeID, key)
}
