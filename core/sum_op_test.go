package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumOp_Forwards(t *testing.T) {
	g := newTestGraph(t, Sum, 1, []int{0}, TypeDouble, 2)

	out := g.narrow(Positive(Int(1), Int(2)))
	assertRecords(t, Records{Positive(Int(1), Double(2), Int(1))}, out)

	out = g.narrow(Positive(Int(2), Int(5)))
	assertRecords(t, Records{Positive(Int(2), Double(5), Int(1))}, out)

	out = g.narrow(Positive(Int(1), Int(3)))
	assertRecords(t, Records{
		Negative(Int(1), Double(2), Int(1)),
		Positive(Int(1), Double(5), Int(2)),
	}, out)

	out = g.narrow(Negative(Int(1), Int(2)))
	assertRecords(t, Records{
		Negative(Int(1), Double(5), Int(2)),
		Positive(Int(1), Double(3), Int(1)),
	}, out)

	out = g.narrow(
		Positive(Int(1), Int(2)),
		Positive(Int(1), Int(3)),
		Negative(Int(1), Int(2)),
		Positive(Int(1), Int(5)),
		Negative(Int(1), Int(3)), // group 1 gains 5
		Positive(Int(2), Int(5)),
		Negative(Int(2), Int(5)),
		Positive(Int(2), Int(2)),
		Negative(Int(2), Int(2)),
		Negative(Int(2), Int(5)), // group 2 loses its last row and disappears
		Positive(Int(3), Int(3)), // group 3 is new
	)
	assertRecords(t, Records{
		Negative(Int(1), Double(3), Int(1)),
		Positive(Int(1), Double(8), Int(2)),
		Negative(Int(2), Double(5), Int(1)),
		Positive(Int(3), Double(3), Int(1)),
	}, out)
}

func TestSumOp_AddZero(t *testing.T) {
	g := newTestGraph(t, Sum, 1, []int{0}, TypeDouble, 2)

	out := g.narrow(Positive(Text("grp"), Int(1)))
	assertRecords(t, Records{Positive(Text("grp"), Double(1), Int(1))}, out)

	out = g.narrow(Positive(Text("grp"), Int(0)))
	assertRecords(t, Records{
		Negative(Text("grp"), Double(1), Int(1)),
		Positive(Text("grp"), Double(1), Int(2)),
	}, out)
}

func TestSumOp_NumericIsExact(t *testing.T) {
	g := newTestGraph(t, Sum, 1, []int{0}, TypeNumeric, 2)
	assert.Equal(t, TypeNumeric, g.op.OutputType())

	for i := 0; i < 10; i++ {
		g.narrow(Positive(Int(1), num(t, "0.1")))
	}
	r, found := g.row(Int(1))
	require.True(t, found)
	assert.Equal(t, KindNumeric, r[1].Kind())
	assert.True(t, num(t, "1").Equal(r[1]), "got %s", r[1])

	for i := 0; i < 10; i++ {
		g.narrow(Negative(Int(1), num(t, "0.1")), Positive(Int(1), num(t, "0.1")))
	}
	r, _ = g.row(Int(1))
	assert.True(t, num(t, "1").Equal(r[1]), "got %s", r[1])
}

func TestSumOp_IntegerInputIsNumeric(t *testing.T) {
	g := newTestGraph(t, Sum, 1, []int{0}, TypeBigInt, 2)

	out := g.narrow(Positive(Int(1), Int(2)), Positive(Int(1), Int(3)))
	assertRecords(t, Records{Positive(Int(1), num(t, "5"), Int(2))}, out)
}

func TestSumOp_NoGroupEmitsNothingWhenEmpty(t *testing.T) {
	g := newTestGraph(t, Sum, 0, nil, TypeDouble, 1)
	assert.Empty(t, g.narrow())

	out := g.narrow(Positive(Double(1.5)))
	assertRecords(t, Records{Positive(Double(1.5), Int(1))}, out)

	out = g.narrow(Negative(Double(1.5)))
	assertRecords(t, Records{Negative(Double(1.5), Int(1))}, out)
	assert.Empty(t, g.narrow())
}

func TestSumOp_NetZeroBatch(t *testing.T) {
	g := newTestGraph(t, Sum, 1, []int{0}, TypeDouble, 2)
	g.narrow(Positive(Int(1), Int(4)))

	out := g.narrow(Positive(Int(1), Int(9)), Negative(Int(1), Int(9)))
	assert.Empty(t, out)

	out = g.narrow(Positive(Int(2), Int(9)), Negative(Int(2), Int(9)))
	assert.Empty(t, out)
	_, found := g.row(Int(2))
	assert.False(t, found)
}

func TestSumOp_TypeErrorLeavesStateUntouched(t *testing.T) {
	g := newTestGraph(t, Sum, 1, []int{0}, TypeDouble, 2)
	g.narrow(Positive(Int(1), Int(4)))

	_, err := g.process(Positive(Int(2), Int(1)), Positive(Int(1), Text("four")))
	require.Error(t, err)
	assert.True(t, IsComputationError(err))
	var groupErr *GroupError
	require.ErrorAs(t, err, &groupErr)
	assert.True(t, Row{Int(1)}.Equal(groupErr.Key))

	r, _ := g.row(Int(1))
	assert.True(t, Row{Int(1), Double(4), Int(1)}.Equal(r))
	_, found := g.row(Int(2))
	assert.False(t, found)
}

func TestSumOp_NumericKeepsEveryDigit(t *testing.T) {
	g := newTestGraph(t, Sum, 1, []int{0}, TypeNumeric, 2)

	g.narrow(Positive(Int(1), num(t, "1e40")))
	out := g.narrow(Positive(Int(1), Int(1)))
	assertRecords(t, Records{
		Negative(Int(1), num(t, "1e40"), Int(1)),
		Positive(Int(1), num(t, "10000000000000000000000000000000000000001"), Int(2)),
	}, out)

	out = g.narrow(Negative(Int(1), num(t, "1e40")))
	assertRecords(t, Records{
		Negative(Int(1), num(t, "10000000000000000000000000000000000000001"), Int(2)),
		Positive(Int(1), num(t, "1"), Int(1)),
	}, out)
	assert.Equal(t, "1", out[1].Row[1].String())
}

func TestSumOp_NumericBeyondExactDigitsRejected(t *testing.T) {
	g := newTestGraph(t, Sum, 1, []int{0}, TypeNumeric, 2)
	g.narrow(Positive(Int(1), num(t, "1e5000")))

	_, err := g.process(Positive(Int(1), num(t, "1e-5000")))
	require.Error(t, err)
	assert.True(t, IsComputationError(err), "%+v", err)

	r, found := g.row(Int(1))
	require.True(t, found)
	assert.True(t, num(t, "1e5000").Equal(r[1]))
}

func TestSumOp_NumericZeroRendering(t *testing.T) {
	g := newTestGraph(t, Sum, 1, []int{0}, TypeNumeric, 2)
	g.narrow(Positive(Int(1), num(t, "1e8")), Positive(Int(1), num(t, "-1e8")))

	r, found := g.row(Int(1))
	require.True(t, found)
	assert.Equal(t, "0", r[1].String())
}
