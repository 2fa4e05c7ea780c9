package core

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

type AggregationKind uint8

const (
	AggCount AggregationKind = iota
	AggSum
	AggAvg
	AggGroupConcat
)

// Aggregation is the closed set of supported aggregate functions.
type Aggregation struct {
	Kind      AggregationKind
	Separator string
}

var (
	Count = Aggregation{Kind: AggCount}
	Sum   = Aggregation{Kind: AggSum}
	Avg   = Aggregation{Kind: AggAvg}
)

func GroupConcat(separator string) Aggregation {
	return Aggregation{Kind: AggGroupConcat, Separator: separator}
}

func ParseAggregation(name, separator string) (Aggregation, error) {
	switch strings.ToLower(name) {
	case "count":
		return Count, nil
	case "sum":
		return Sum, nil
	case "avg":
		return Avg, nil
	case "group_concat":
		return GroupConcat(separator), nil
	}
	return Aggregation{}, errors.Newf("unknown aggregation %q", name)
}

func (agg Aggregation) String() string {
	switch agg.Kind {
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggGroupConcat:
		return "group_concat"
	}
	return "aggregation(" + strconv.Itoa(int(agg.Kind)) + ")"
}

// OutputType is fixed at construction: COUNT is BigInt, SUM and AVG are
// Double over floating point input and Numeric otherwise, GROUP_CONCAT is
// Text.
func (agg Aggregation) OutputType(overType DataType) DataType {
	switch agg.Kind {
	case AggCount:
		return TypeBigInt
	case AggSum, AggAvg:
		if overType.IsAnyFloat() {
			return TypeDouble
		}
		return TypeNumeric
	default:
		return TypeText
	}
}

// Over builds the grouped operator computing agg over column over, grouped
// by groupBy. The operator must be Setup against its parent before use.
func (agg Aggregation) Over(over int, groupBy []int, overType DataType) Operator {
	groupBy = append([]int(nil), groupBy...)
	if agg.Kind == AggGroupConcat {
		return NewGroupedOperator[ConcatDiff](newConcatenator(agg.Separator, over, groupBy))
	}
	return NewGroupedOperator[NumericDiff](newAggregator(agg, over, groupBy, overType))
}

// Operator is a grouped incremental operator. Process reads prior output
// through state and stages auxiliary updates; the caller persists the
// returned records and PendingAux, then calls Commit, or Rollback on
// failure.
type Operator interface {
	Setup(parentWidth int) error
	Process(batch Records, state StateReader) (Records, error)
	PendingAux() ([]AuxEntry, error)
	Commit()
	Rollback()
	RestoreAux(entry AuxEntry) error

	Description(detailed bool) string
	SuggestIndexes() []int
	Resolve(col int) (int, bool)
	GroupBy() []int
	OutputWidth() int
	OutputType() DataType
}

// StateReader looks up an operator's own materialized output row for a group.
type StateReader interface {
	Lookup(key GroupKey) (Row, bool, error)
}

func checkColumns(over int, groupBy []int, parentWidth int) error {
	if over < 0 || over >= parentWidth {
		return errors.Wrapf(ErrColumnOutOfRange,
			"aggregated column %d, parent has %d columns", over, parentWidth)
	}
	for _, col := range groupBy {
		if col < 0 || col >= parentWidth {
			return errors.Wrapf(ErrColumnOutOfRange,
				"grouping column %d, parent has %d columns", col, parentWidth)
		}
	}
	return nil
}

func formatColumns(cols []int) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = strconv.Itoa(col)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
