package core

import (
	"strconv"

	"github.com/cockroachdb/errors"
)

// NumericDiff is one input row's contribution to a numeric aggregate. A NULL
// Value contributes nothing.
type NumericDiff struct {
	Value    Value
	Positive bool
}

// Aggregator folds NumericDiffs for COUNT, SUM and AVG.
type Aggregator struct {
	agg      Aggregation
	over     int
	groupBy  []int
	overType DataType
	outType  DataType
	averages *auxTable[avgState]
}

func newAggregator(agg Aggregation, over int, groupBy []int, overType DataType) *Aggregator {
	aggregator := &Aggregator{
		agg:      agg,
		over:     over,
		groupBy:  groupBy,
		overType: overType,
		outType:  agg.OutputType(overType),
	}
	if agg.Kind == AggAvg {
		aggregator.averages = newAuxTable[avgState](encodeAvgState, decodeAvgState)
	}
	return aggregator
}

func (agg *Aggregator) Setup(parentWidth int) error {
	return checkColumns(agg.over, agg.groupBy, parentWidth)
}

func (agg *Aggregator) GroupBy() []int {
	return agg.groupBy
}

func (agg *Aggregator) ToDiff(row Row, positive bool) (NumericDiff, error) {
	if agg.over >= len(row) {
		return NumericDiff{}, errors.AssertionFailedf(
			"aggregated column %d missing from row of width %d", agg.over, len(row))
	}
	return NumericDiff{Value: row[agg.over], Positive: positive}, nil
}

func (agg *Aggregator) Apply(key GroupKey, current *Value, diffs []NumericDiff) (Value, error) {
	switch agg.agg.Kind {
	case AggCount:
		return applyCount(current, diffs)
	case AggSum:
		return applySum(current, diffs, agg.outType)
	case AggAvg:
		return agg.applyAvg(key, diffs)
	case AggGroupConcat:
		return Null(), errors.AssertionFailedf("group_concat cannot be computed by the numeric fold")
	}
	return Null(), errors.AssertionFailedf("unknown aggregation %s", agg.agg)
}

func (agg *Aggregator) Description(detailed bool) string {
	if !detailed {
		switch agg.agg.Kind {
		case AggCount:
			return "+"
		case AggSum:
			return "𝛴"
		case AggAvg:
			return "Avg"
		}
		return agg.agg.String()
	}
	switch agg.agg.Kind {
	case AggCount:
		return "|*| γ" + formatColumns(agg.groupBy)
	case AggSum:
		return "𝛴(" + strconv.Itoa(agg.over) + ") γ" + formatColumns(agg.groupBy)
	case AggAvg:
		return "Avg(" + strconv.Itoa(agg.over) + ") γ" + formatColumns(agg.groupBy)
	}
	return agg.agg.String() + "(" + strconv.Itoa(agg.over) + ") γ" + formatColumns(agg.groupBy)
}

func (agg *Aggregator) OutputType() DataType {
	return agg.outType
}

// EmitEmpty holds for a COUNT without grouping columns, which has a row even
// over an empty input.
func (agg *Aggregator) EmitEmpty() bool {
	return agg.agg.Kind == AggCount && len(agg.groupBy) == 0
}

func (agg *Aggregator) EmptyValue() Value {
	return Zero(agg.outType)
}

func (agg *Aggregator) auxState() auxState {
	if agg.averages == nil {
		return nil
	}
	return agg.averages
}
