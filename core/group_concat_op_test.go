package core

import (
	"testing"

	"github.com/google/btree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupConcatOp_Forwards(t *testing.T) {
	g := newTestGraph(t, GroupConcat(","), 1, []int{0}, TypeText, 2)

	out := g.narrow(Positive(Int(1), Text("b")), Positive(Int(1), Text("a")))
	assertRecords(t, Records{Positive(Int(1), Text("a,b"), Int(2))}, out)

	out = g.narrow(Positive(Int(1), Text("c")), Positive(Int(2), Text("z")))
	assertRecords(t, Records{
		Negative(Int(1), Text("a,b"), Int(2)),
		Positive(Int(1), Text("a,b,c"), Int(3)),
		Positive(Int(2), Text("z"), Int(1)),
	}, out)
}

func TestGroupConcatOp_RetractsAnyMember(t *testing.T) {
	g := newTestGraph(t, GroupConcat(", "), 1, []int{0}, TypeText, 2)
	g.narrow(
		Positive(Text("k"), Text("x")),
		Positive(Text("k"), Text("y")),
		Positive(Text("k"), Text("x")),
	)
	r, found := g.row(Text("k"))
	require.True(t, found)
	assert.True(t, Text("x, x, y").Equal(r[1]), "got %s", r[1])

	out := g.narrow(Negative(Text("k"), Text("x")))
	assertRecords(t, Records{
		Negative(Text("k"), Text("x, x, y"), Int(3)),
		Positive(Text("k"), Text("x, y"), Int(2)),
	}, out)

	out = g.narrow(Negative(Text("k"), Text("y")), Negative(Text("k"), Text("x")))
	assertRecords(t, Records{Negative(Text("k"), Text("x, y"), Int(2))}, out)
}

func TestGroupConcatOp_NonTextValues(t *testing.T) {
	g := newTestGraph(t, GroupConcat("|"), 1, []int{0}, TypeBigInt, 2)
	out := g.narrow(Positive(Int(1), Int(20)), Positive(Int(1), Int(3)))
	assertRecords(t, Records{Positive(Int(1), Text("20|3"), Int(2))}, out)
}

func TestGroupConcatOp_NullsSkipped(t *testing.T) {
	g := newTestGraph(t, GroupConcat(","), 1, []int{0}, TypeText, 2)
	out := g.narrow(Positive(Int(1), Null()), Positive(Int(1), Text("a")))
	assertRecords(t, Records{Positive(Int(1), Text("a"), Int(2))}, out)

	out = g.narrow(Negative(Int(1), Text("a")))
	assertRecords(t, Records{
		Negative(Int(1), Text("a"), Int(2)),
		Positive(Int(1), Text(""), Int(1)),
	}, out)
}

func TestGroupConcatOp_NoGroupEmitsEmptyRow(t *testing.T) {
	g := newTestGraph(t, GroupConcat(","), 0, nil, TypeText, 1)

	out := g.narrow()
	assertRecords(t, Records{Positive(Text(""), Int(0))}, out)

	out = g.narrow(Positive(Text("q")))
	assertRecords(t, Records{
		Negative(Text(""), Int(0)),
		Positive(Text("q"), Int(1)),
	}, out)

	out = g.narrow(Negative(Text("q")))
	assertRecords(t, Records{
		Negative(Text("q"), Int(1)),
		Positive(Text(""), Int(0)),
	}, out)
}

func TestGroupConcatOp_RetractingAbsentMember(t *testing.T) {
	g := newTestGraph(t, GroupConcat(","), 1, []int{0}, TypeText, 2)
	g.narrow(Positive(Int(1), Text("a")), Positive(Int(1), Text("b")))

	_, err := g.process(Negative(Int(1), Text("c")))
	require.Error(t, err)
	assert.True(t, IsInternalError(err), "%+v", err)

	var groupErr *GroupError
	require.ErrorAs(t, err, &groupErr)
	assert.True(t, Row{Int(1)}.Equal(groupErr.Key))

	// The failed batch left the multiset untouched.
	out := g.narrow(Negative(Int(1), Text("a")))
	assertRecords(t, Records{
		Negative(Int(1), Text("a,b"), Int(2)),
		Positive(Int(1), Text("b"), Int(1)),
	}, out)
}

func TestGroupConcatOp_NumericFoldRejects(t *testing.T) {
	agg := newAggregator(GroupConcat(","), 1, []int{0}, TypeText)
	_, err := agg.Apply(NewGroupKey(Row{Int(1)}), nil, []NumericDiff{{Value: Text("a"), Positive: true}})
	require.Error(t, err)
	assert.True(t, IsInternalError(err))
}

func TestMultiset_EncodeDecode(t *testing.T) {
	members := btree.New(concatTreeDegree)
	members.ReplaceOrInsert(concatItem{text: "b", count: 2})
	members.ReplaceOrInsert(concatItem{text: "a", count: 1})

	decoded, err := decodeMultiset(encodeMultiset(members))
	require.NoError(t, err)
	require.Equal(t, 2, decoded.Len())
	assert.Equal(t, concatItem{text: "a", count: 1}, decoded.Min())
	assert.Equal(t, concatItem{text: "b", count: 2}, decoded.Max())

	_, err = decodeMultiset(EncodeRow(Row{Text("a")}))
	assert.Error(t, err)
	_, err = decodeMultiset(EncodeRow(Row{Text("a"), Int(0)}))
	assert.Error(t, err)
}
