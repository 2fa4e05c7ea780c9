package storage

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v2"
)

// Metadata keys live under a prefix no node key can start with, so the
// metadata store can share a badger instance with BadgerBackend.
const metadataPrefix = "\xffmeta/"

var dbKey = []byte(metadataPrefix + "db")

type BadgerMetadataStore struct {
	db *badger.DB
}

func NewBadgerMetadataStore(db *badger.DB) *BadgerMetadataStore {
	return &BadgerMetadataStore{db: db}
}

func GetNodeMetadataKey(nodeID int64) []byte {
	key := make([]byte, len(metadataPrefix)+5, len(metadataPrefix)+13)
	copy(key, metadataPrefix+"node/")
	return binary.BigEndian.AppendUint64(key, uint64(nodeID))
}

func (bms *BadgerMetadataStore) get(key []byte) ([]byte, bool, error) {
	var buf []byte
	err := bms.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		buf, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return buf, true, nil
}

func (bms *BadgerMetadataStore) put(key, buf []byte) error {
	return bms.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	})
}

func (bms *BadgerMetadataStore) PutDB(buf []byte) error {
	return bms.put(dbKey, buf)
}

func (bms *BadgerMetadataStore) GetDB() ([]byte, bool, error) {
	return bms.get(dbKey)
}

func (bms *BadgerMetadataStore) PutNode(nodeID int64, buf []byte) error {
	return bms.put(GetNodeMetadataKey(nodeID), buf)
}

func (bms *BadgerMetadataStore) GetNode(nodeID int64) ([]byte, bool, error) {
	return bms.get(GetNodeMetadataKey(nodeID))
}

func (bms *BadgerMetadataStore) DeleteNode(nodeID int64) error {
	return bms.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(GetNodeMetadataKey(nodeID))
	})
}

func (bms *BadgerMetadataStore) PutDBAndNode(dbBuf []byte, nodeID int64, nodeBuf []byte) error {
	return bms.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(dbKey, dbBuf); err != nil {
			return err
		}
		return txn.Set(GetNodeMetadataKey(nodeID), nodeBuf)
	})
}
