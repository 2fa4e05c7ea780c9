package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var valueComparer = cmp.Comparer(func(a, b Value) bool { return a.Equal(b) })

func assertRecords(t *testing.T, want, got Records) {
	t.Helper()
	if diff := cmp.Diff(want, got, valueComparer); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func num(t *testing.T, s string) Value {
	t.Helper()
	v, err := NumericFromString(s)
	require.NoError(t, err)
	return v
}

// testGraph drives one operator against an in-memory materialization of its
// own output, committing after every successful batch.
type testGraph struct {
	t         *testing.T
	op        Operator
	rows      map[string]Row
	lookupErr error
}

func newTestGraph(t *testing.T, agg Aggregation, over int, groupBy []int, overType DataType, parentWidth int) *testGraph {
	op := agg.Over(over, groupBy, overType)
	require.NoError(t, op.Setup(parentWidth))
	return &testGraph{t: t, op: op, rows: make(map[string]Row)}
}

func (g *testGraph) Lookup(key GroupKey) (Row, bool, error) {
	if g.lookupErr != nil {
		return nil, false, g.lookupErr
	}
	r, ok := g.rows[key.encoded]
	return r, ok, nil
}

func (g *testGraph) process(batch ...Record) (Records, error) {
	out, err := g.op.Process(batch, g)
	if err != nil {
		return nil, err
	}
	width := len(g.op.GroupBy())
	for _, record := range out {
		key := NewGroupKey(record.Row[:width]).encoded
		if record.Positive {
			g.rows[key] = record.Row
		} else {
			delete(g.rows, key)
		}
	}
	g.op.Commit()
	return out, nil
}

func (g *testGraph) narrow(batch ...Record) Records {
	g.t.Helper()
	out, err := g.process(batch...)
	require.NoError(g.t, err)
	return out
}

func (g *testGraph) row(groupValues ...Value) (Row, bool) {
	r, ok := g.rows[NewGroupKey(groupValues).encoded]
	return r, ok
}
