package core

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-logr/logr"

	"viewdb/stats"
)

// Node is one aggregate operator bound to its materialized state. Process
// calls are serialized.
type Node struct {
	id      int64
	spec    OperatorSpec
	agg     Aggregation
	op      Operator
	store   *BackingStore
	log     logr.Logger
	metrics *nodeMetrics
	stats   *stats.BatchStatistics
	mu      sync.Mutex
}

func newNode(id int64, spec OperatorSpec, store *BackingStore, metrics *Metrics, log logr.Logger) (*Node, error) {
	op, err := spec.Build()
	if err != nil {
		return nil, err
	}
	agg, _ := spec.Aggregation()
	return &Node{
		id:      id,
		spec:    spec,
		agg:     agg,
		op:      op,
		store:   store,
		log:     log.WithValues("node", id, "op", op.Description(true)),
		metrics: metrics.forNode(id, agg),
		stats:   stats.NewBatchStatistics(),
	}, nil
}

func (node *Node) ID() int64 {
	return node.id
}

func (node *Node) Spec() OperatorSpec {
	return node.spec
}

func (node *Node) Operator() Operator {
	return node.op
}

func (node *Node) Description(detailed bool) string {
	return node.op.Description(detailed)
}

// Process runs one batch through the operator and persists its output and
// auxiliary state atomically. On error nothing is persisted and the
// operator's auxiliary state is left as it was.
func (node *Node) Process(batch Records) (Records, error) {
	node.mu.Lock()
	defer node.mu.Unlock()
	stop := node.metrics.startTimer()
	defer stop()

	out, err := node.op.Process(batch, nodeView{store: node.store, nodeID: node.id})
	if err == nil {
		var aux []AuxEntry
		aux, err = node.op.PendingAux()
		if err == nil {
			err = node.store.Apply(node.id, len(node.op.GroupBy()), out, aux)
		}
	}
	if err != nil {
		node.op.Rollback()
		node.metrics.batchFailed(err)
		node.stats.Fail(time.Now())
		node.log.Error(err, "batch rejected", "records", len(batch), "class", errorClass(err))
		return nil, errors.Wrapf(err, "node %d", node.id)
	}
	node.op.Commit()

	touched := node.groupsTouched(out)
	node.metrics.recordsIn.Add(float64(len(batch)))
	node.metrics.recordsOut.Add(float64(len(out)))
	node.metrics.groups.Add(float64(touched))
	node.stats.Append(time.Now(), len(batch), len(out))
	node.log.V(1).Info("processed batch", "records", len(batch), "emitted", len(out), "groups", touched)
	if v := node.log.V(2); v.Enabled() {
		for _, record := range out {
			v.Info("emit", "record", record.String())
		}
	}
	return out, nil
}

func (node *Node) groupsTouched(out Records) int {
	width := len(node.op.GroupBy())
	touched := 0
	for i, record := range out {
		if i > 0 && record.Positive && !out[i-1].Positive &&
			record.Row[:width].Equal(out[i-1].Row[:width]) {
			continue
		}
		touched++
	}
	return touched
}

// Lookup returns the visible row (grouping values ++ aggregate) of a group.
func (node *Node) Lookup(groupValues ...Value) (Row, bool, error) {
	row, found, err := node.store.Lookup(node.id, NewGroupKey(groupValues))
	if err != nil || !found {
		return nil, false, err
	}
	return visible(row), true, nil
}

// Rows returns every visible row in group key order.
func (node *Node) Rows() ([]Row, error) {
	var rows []Row
	err := node.store.Scan(node.id, func(row Row) error {
		rows = append(rows, visible(row))
		return nil
	})
	return rows, err
}

func (node *Node) Stats() stats.BatchSummary {
	return node.stats.Summary()
}

func (node *Node) restore() error {
	restored := 0
	err := node.store.ScanAux(node.id, func(entry AuxEntry) error {
		restored++
		return node.op.RestoreAux(entry)
	})
	if err != nil {
		return errors.Wrapf(err, "restoring node %d", node.id)
	}
	node.log.Info("restored node", "groups", restored)
	return nil
}

func visible(row Row) Row {
	return row[:len(row)-1].Clone()
}
