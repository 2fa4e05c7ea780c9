package core

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"viewdb/storage"
)

type dbMetadata struct {
	NextID  int64   `yaml:"next_id"`
	NodeIDs []int64 `yaml:"node_ids,flow"`
}

// DB owns a set of aggregate nodes and the store holding their state.
type DB struct {
	config    *StoreConfig
	store     *BackingStore
	mds       storage.MetadataStore
	nodes     map[int64]*Node
	pipelines map[int64]*Pipeline
	nextID    int64
	metrics   *Metrics
	log       logr.Logger
	customLog bool
	reg       prometheus.Registerer
	sink      Sink
	onError   ErrorHandler
	mu        sync.Mutex
	closed    bool
}

type Option func(*DB)

// WithLogger replaces the zap logger built from StoreConfig.LogLevel.
func WithLogger(log logr.Logger) Option {
	return func(db *DB) { db.log, db.customLog = log, true }
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(db *DB) { db.reg = reg }
}

// WithSink sets where pipelines deliver node output.
func WithSink(sink Sink) Option {
	return func(db *DB) { db.sink = sink }
}

func WithErrorHandler(onError ErrorHandler) Option {
	return func(db *DB) { db.onError = onError }
}

// New creates a DB on a badger instance described by config. Existing
// nodes are not loaded; use Open for that.
func New(config *StoreConfig, opts ...Option) (*DB, error) {
	if config == nil {
		config = DefaultStoreConfig()
	}
	badgerDB, err := storage.OpenBadger(config.badgerConfig())
	if err != nil {
		return nil, err
	}
	db, err := NewWithBackend(
		storage.NewBadgerBackend(badgerDB), storage.NewBadgerMetadataStore(badgerDB), config, opts...)
	if err != nil {
		_ = badgerDB.Close()
		return nil, err
	}
	return db, nil
}

func NewWithBackend(
	backend storage.Backend,
	mds storage.MetadataStore,
	config *StoreConfig,
	opts ...Option) (*DB, error) {

	if config == nil {
		config = DefaultStoreConfig()
	}
	db := &DB{
		config:    config,
		mds:       mds,
		nodes:     make(map[int64]*Node),
		pipelines: make(map[int64]*Pipeline),
	}
	for _, opt := range opts {
		opt(db)
	}
	if !db.customLog {
		log, err := NewLogger(config.LogLevel)
		if err != nil {
			return nil, errors.Wrap(err, "building logger")
		}
		db.log = log
	}
	store, err := NewBackingStore(backend, config.CacheEnabled, config.CacheMaxCost)
	if err != nil {
		return nil, err
	}
	db.store = store
	if db.metrics, err = NewMetrics(db.reg); err != nil {
		return nil, errors.Wrap(err, "registering metrics")
	}
	return db, nil
}

// Open creates a DB and restores the nodes recorded in its metadata. A store
// without metadata gets the nodes listed in config.
func Open(config *StoreConfig, opts ...Option) (*DB, error) {
	db, err := New(config, opts...)
	if err != nil {
		return nil, err
	}
	if err := db.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) load() error {
	fresh, err := db.ReadDB()
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}
	for _, spec := range db.config.Nodes {
		if _, err := db.NewAggregate(*spec); err != nil {
			return err
		}
	}
	return nil
}

// NewAggregate validates spec, records it and materializes the node's
// initial state.
func (db *DB) NewAggregate(spec OperatorSpec) (*Node, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}

	id := db.nextID
	node, err := newNode(id, spec, db.store, db.metrics, db.log)
	if err != nil {
		return nil, err
	}
	db.nextID++
	db.nodes[id] = node
	if err := db.writeDBAndNode(node); err != nil {
		delete(db.nodes, id)
		return nil, err
	}
	if _, err := node.Process(nil); err != nil {
		if forgetErr := db.forget(node); forgetErr != nil {
			node.log.Error(forgetErr, "unregistering node after failed initialization")
		}
		return nil, err
	}
	db.pipelines[id] = NewPipeline(node, db.config.QueueSize, db.sink, db.onError)
	node.log.Info("created node")
	return node, nil
}

func (db *DB) GetNode(id int64) (*Node, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	node, ok := db.nodes[id]
	if !ok {
		return nil, errors.Wrapf(ErrNodeNotFound, "node %d", id)
	}
	return node, nil
}

// Nodes returns the nodes ordered by id.
func (db *DB) Nodes() []*Node {
	db.mu.Lock()
	defer db.mu.Unlock()
	nodes := make([]*Node, 0, len(db.nodes))
	for _, node := range db.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].id < nodes[j].id })
	return nodes
}

func (db *DB) pipeline(id int64) (*Pipeline, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, ok := db.pipelines[id]
	if !ok {
		return nil, errors.Wrapf(ErrNodeNotFound, "node %d", id)
	}
	return p, nil
}

// Run serves every node's pipeline until ctx is done or one of them fails.
// Nodes created after Run started are not served by it.
func (db *DB) Run(ctx context.Context) error {
	db.mu.Lock()
	pipelines := make([]*Pipeline, 0, len(db.pipelines))
	for _, p := range db.pipelines {
		pipelines = append(pipelines, p)
	}
	db.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range pipelines {
		p := p
		g.Go(func() error { return p.Run(ctx) })
	}
	return g.Wait()
}

// Submit queues a batch for a node's pipeline.
func (db *DB) Submit(ctx context.Context, id int64, batch Records) error {
	p, err := db.pipeline(id)
	if err != nil {
		return err
	}
	return p.Submit(ctx, batch)
}

// Flush waits for every pipeline to drain.
func (db *DB) Flush(ctx context.Context) error {
	for _, node := range db.Nodes() {
		p, err := db.pipeline(node.id)
		if err != nil {
			return err
		}
		if err := p.Flush(ctx); err != nil {
			return errors.Wrapf(err, "flushing node %d", node.id)
		}
	}
	return nil
}

// DropNode stops the node's pipeline, then deletes the node and its state.
func (db *DB) DropNode(id int64) error {
	p, err := db.pipeline(id)
	if err != nil {
		return err
	}
	if err := p.Close(context.Background()); err != nil {
		return errors.Wrapf(err, "closing pipeline of node %d", id)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	node, ok := db.nodes[id]
	if !ok {
		return errors.Wrapf(ErrNodeNotFound, "node %d", id)
	}
	if err := db.forget(node); err != nil {
		return err
	}
	node.log.Info("dropped node")
	return nil
}

// forget removes a node from the registry, its metadata and its state. It
// must be called with db.mu held.
func (db *DB) forget(node *Node) error {
	delete(db.nodes, node.id)
	delete(db.pipelines, node.id)
	if err := db.mds.DeleteNode(node.id); err != nil {
		return err
	}
	buf, err := db.serialize()
	if err != nil {
		return err
	}
	if err := db.mds.PutDB(buf); err != nil {
		return err
	}
	node.metrics.delete()
	return db.store.DropNode(node.id)
}

// Close stops every pipeline, draining the batches already queued, and then
// closes the store. Submit and Flush fail with ErrClosed afterwards.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	pipelines := make([]*Pipeline, 0, len(db.pipelines))
	for _, p := range db.pipelines {
		pipelines = append(pipelines, p)
	}
	db.mu.Unlock()

	var closeErr error
	for _, p := range pipelines {
		if err := p.Close(context.Background()); err != nil {
			closeErr = errors.CombineErrors(closeErr, errors.Wrapf(err, "closing pipeline of node %d", p.node.id))
		}
	}
	return errors.CombineErrors(closeErr, db.store.Close())
}

func (db *DB) writeDBAndNode(node *Node) error {
	dbBuf, err := db.serialize()
	if err != nil {
		return err
	}
	nodeBuf, err := yaml.Marshal(node.spec)
	if err != nil {
		return errors.Wrapf(err, "encoding node %d", node.id)
	}
	return db.mds.PutDBAndNode(dbBuf, node.id, nodeBuf)
}

// serialize must be called with db.mu held.
func (db *DB) serialize() ([]byte, error) {
	meta := dbMetadata{NextID: db.nextID}
	for id := range db.nodes {
		meta.NodeIDs = append(meta.NodeIDs, id)
	}
	sort.Slice(meta.NodeIDs, func(i, j int) bool { return meta.NodeIDs[i] < meta.NodeIDs[j] })
	buf, err := yaml.Marshal(&meta)
	return buf, errors.Wrap(err, "encoding db metadata")
}

// ReadDB restores nodes from metadata. It reports fresh=true when the store
// has no metadata yet.
func (db *DB) ReadDB() (fresh bool, err error) {
	buf, found, err := db.mds.GetDB()
	if err != nil {
		return false, errors.Wrap(err, "reading db metadata")
	}
	if !found {
		return true, nil
	}
	var meta dbMetadata
	if err := yaml.Unmarshal(buf, &meta); err != nil {
		return false, errors.Wrap(err, "decoding db metadata")
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextID = meta.NextID
	for _, id := range meta.NodeIDs {
		nodeBuf, found, err := db.mds.GetNode(id)
		if err != nil {
			return false, err
		}
		if !found {
			return false, errors.Newf("metadata for node %d missing", id)
		}
		var spec OperatorSpec
		if err := yaml.Unmarshal(nodeBuf, &spec); err != nil {
			return false, errors.Wrapf(err, "decoding node %d", id)
		}
		node, err := newNode(id, spec, db.store, db.metrics, db.log)
		if err != nil {
			return false, errors.Wrapf(err, "rebuilding node %d", id)
		}
		if err := node.restore(); err != nil {
			return false, err
		}
		db.nodes[id] = node
		db.pipelines[id] = NewPipeline(node, db.config.QueueSize, db.sink, db.onError)
	}
	return false, nil
}
