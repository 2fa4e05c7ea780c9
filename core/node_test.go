package core

import (
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewdb/storage"
)

func newTestDB(t *testing.T, opts ...Option) *DB {
	opts = append([]Option{WithLogger(testr.New(t))}, opts...)
	db, err := NewWithBackend(storage.NewInMemoryBackend(), storage.NewSimpleMetadataStore(), nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNode_ProcessPersists(t *testing.T) {
	db := newTestDB(t)
	node, err := db.NewAggregate(OperatorSpec{
		Function: "sum", Over: 1, GroupBy: []int{0}, OverType: TypeBigInt, ParentWidth: 2,
	})
	require.NoError(t, err)

	out, err := node.Process(Records{Positive(Text("a"), Int(3)), Positive(Text("b"), Int(4))})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = node.Process(Records{Positive(Text("a"), Int(5))})
	require.NoError(t, err)
	assertRecords(t, Records{
		Negative(Text("a"), num(t, "3"), Int(1)),
		Positive(Text("a"), num(t, "8"), Int(2)),
	}, out)

	row, found, err := node.Lookup(Text("a"))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, Row{Text("a"), num(t, "8")}.Equal(row), "got %s", row)

	rows, err := node.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, Row{Text("b"), num(t, "4")}.Equal(rows[1]))

	summary := node.Stats()
	assert.Equal(t, uint64(3), summary.Batches)
	assert.Equal(t, uint64(0), summary.Failures)
}

func TestNode_FailedBatchPersistsNothing(t *testing.T) {
	db := newTestDB(t)
	node, err := db.NewAggregate(OperatorSpec{
		Function: "avg", Over: 1, GroupBy: []int{0}, OverType: TypeBigInt, ParentWidth: 2,
	})
	require.NoError(t, err)
	_, err = node.Process(Records{Positive(Int(1), Int(2))})
	require.NoError(t, err)

	_, err = node.Process(Records{Positive(Int(1), Int(4)), Positive(Int(2), Text("x"))})
	require.Error(t, err)
	assert.True(t, IsComputationError(err))

	row, found, err := node.Lookup(Int(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, Row{Int(1), num(t, "2")}.Equal(row))

	out, err := node.Process(Records{Positive(Int(1), Int(6))})
	require.NoError(t, err)
	assertRecords(t, Records{
		Negative(Int(1), num(t, "2"), Int(1)),
		Positive(Int(1), num(t, "4"), Int(2)),
	}, out)
	assert.Equal(t, uint64(1), node.Stats().Failures)
}

func TestNode_Metrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	db := newTestDB(t, WithRegisterer(reg))
	node, err := db.NewAggregate(OperatorSpec{
		Function: "count", Over: 0, GroupBy: []int{0}, OverType: TypeText, ParentWidth: 1,
	})
	require.NoError(t, err)

	_, err = node.Process(Records{Positive(Text("a")), Positive(Text("a")), Positive(Text("b"))})
	require.NoError(t, err)
	_, err = node.Process(Records{Positive(Text("a"))})
	require.NoError(t, err)
	_, err = node.Process(Records{Negative(Text("z"))})
	require.Error(t, err)

	assert.Equal(t, float64(4), testutil.ToFloat64(db.metrics.recordsIn.WithLabelValues("0", "count")))
	assert.Equal(t, float64(4), testutil.ToFloat64(db.metrics.recordsOut.WithLabelValues("0", "count")))
	assert.Equal(t, float64(3), testutil.ToFloat64(db.metrics.groupsTouched.WithLabelValues("0", "count")))
	assert.Equal(t, float64(1), testutil.ToFloat64(db.metrics.batchErrors.WithLabelValues("0", "count", "internal")))

	count, err := testutil.GatherAndCount(reg, "viewdb_aggregate_process_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, db.DropNode(node.ID()))
	count, err = testutil.GatherAndCount(reg, "viewdb_aggregate_records_in_total")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestNode_GroupsTouched(t *testing.T) {
	db := newTestDB(t)
	node, err := db.NewAggregate(OperatorSpec{
		Function: "count", Over: 0, GroupBy: []int{0}, OverType: TypeBigInt, ParentWidth: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, node.groupsTouched(Records{
		Negative(Int(1), Int(1), Int(1)),
		Positive(Int(1), Int(2), Int(2)),
		Positive(Int(2), Int(1), Int(1)),
		Negative(Int(3), Int(1), Int(1)),
	}))
}
