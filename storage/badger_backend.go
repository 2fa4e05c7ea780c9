package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v2"
)

type BadgerBackendConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

func OpenBadger(config *BadgerBackendConfig) (*badger.DB, error) {
	var options badger.Options
	if config.InMemory || config.Path == "" {
		options = badger.DefaultOptions("").WithInMemory(true)
	} else {
		options = badger.DefaultOptions(config.Path).
			WithTruncate(true).
			WithSyncWrites(config.SyncWrites)
	}
	db, err := badger.Open(options.WithLogger(nil))
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger at %q", config.Path)
	}
	return db, nil
}

func TestBadgerDB() *badger.DB {
	db, err := OpenBadger(&BadgerBackendConfig{InMemory: true})
	if err != nil {
		panic(err)
	}
	return db
}

type BadgerBackend struct {
	db *badger.DB
}

func NewBadgerBackend(db *badger.DB) *BadgerBackend {
	return &BadgerBackend{db: db}
}

func (backend *BadgerBackend) Close() error {
	return backend.db.Close()
}

func (backend *BadgerBackend) Get(space Space, nodeID int64, key []byte) ([]byte, bool, error) {
	var value []byte
	err := backend.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(GetKey(space, nodeID, key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Write applies the whole batch in one transaction.
func (backend *BadgerBackend) Write(batch *WriteBatch) error {
	err := backend.db.Update(func(txn *badger.Txn) error {
		for _, op := range batch.ops {
			var err error
			if op.delete {
				err = txn.Delete(op.key)
			} else {
				err = txn.Set(op.key, op.value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrapf(err, "writing batch of %d entries", batch.Len())
}

func (backend *BadgerBackend) Iterate(space Space, nodeID int64, fn func(key, value []byte) error) error {
	prefix := GetKeyPrefix(space, nodeID)
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = prefix
	return backend.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(iterOpts)
		defer iter.Close()

		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			item := iter.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(GetGroupKeyFromKey(item.KeyCopy(nil)), value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (backend *BadgerBackend) DropNode(nodeID int64) error {
	for _, space := range []Space{RowSpace, AuxSpace} {
		if err := backend.db.DropPrefix(GetKeyPrefix(space, nodeID)); err != nil {
			return errors.Wrapf(err, "dropping node %d", nodeID)
		}
	}
	return nil
}
