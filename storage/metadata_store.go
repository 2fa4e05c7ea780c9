package storage

import "sync"

type MetadataStore interface {
	PutDB([]byte) error
	GetDB() ([]byte, bool, error)

	PutNode(int64, []byte) error
	GetNode(int64) ([]byte, bool, error)
	DeleteNode(int64) error

	// PutDBAndNode writes both records atomically.
	PutDBAndNode(dbBuf []byte, nodeID int64, nodeBuf []byte) error
}

type SimpleMetadataStore struct {
	db    []byte
	nodes map[int64][]byte
	mu    sync.Mutex
}

func NewSimpleMetadataStore() *SimpleMetadataStore {
	return &SimpleMetadataStore{
		nodes: make(map[int64][]byte),
	}
}

func (sms *SimpleMetadataStore) PutDB(db []byte) error {
	sms.mu.Lock()
	defer sms.mu.Unlock()
	sms.db = db
	return nil
}

func (sms *SimpleMetadataStore) GetDB() ([]byte, bool, error) {
	sms.mu.Lock()
	defer sms.mu.Unlock()
	return sms.db, sms.db != nil, nil
}

func (sms *SimpleMetadataStore) PutNode(id int64, buf []byte) error {
	sms.mu.Lock()
	defer sms.mu.Unlock()
	sms.nodes[id] = buf
	return nil
}

func (sms *SimpleMetadataStore) GetNode(id int64) ([]byte, bool, error) {
	sms.mu.Lock()
	defer sms.mu.Unlock()
	buf, ok := sms.nodes[id]
	return buf, ok, nil
}

func (sms *SimpleMetadataStore) DeleteNode(id int64) error {
	sms.mu.Lock()
	defer sms.mu.Unlock()
	delete(sms.nodes, id)
	return nil
}

func (sms *SimpleMetadataStore) PutDBAndNode(dbBuf []byte, nodeID int64, nodeBuf []byte) error {
	sms.mu.Lock()
	defer sms.mu.Unlock()
	sms.db = dbBuf
	sms.nodes[nodeID] = nodeBuf
	return nil
}
