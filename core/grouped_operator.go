package core

import (
	"github.com/cockroachdb/errors"
)

// GroupedOperation is one aggregation plugged into GroupedOperator. D is the
// per-row contribution extracted from an input record.
type GroupedOperation[D any] interface {
	Setup(parentWidth int) error
	GroupBy() []int
	ToDiff(row Row, positive bool) (D, error)
	// Apply folds diffs, in order, onto current (nil if the group has no
	// materialized row) and returns the group's new value.
	Apply(key GroupKey, current *Value, diffs []D) (Value, error)
	Description(detailed bool) string
	OutputType() DataType
	EmitEmpty() bool
	EmptyValue() Value

	auxState() auxState
}

// GroupedOperator maintains one output row per group:
// grouping values ++ aggregate value ++ row count. The row count is the
// number of input rows currently in the group; a group whose count drops to
// zero is retracted unless the operation emits empty groups.
type GroupedOperator[D any] struct {
	inner   GroupedOperation[D]
	groupBy []int
	ready   bool
}

func NewGroupedOperator[D any](inner GroupedOperation[D]) *GroupedOperator[D] {
	return &GroupedOperator[D]{
		inner:   inner,
		groupBy: inner.GroupBy(),
	}
}

func (op *GroupedOperator[D]) Setup(parentWidth int) error {
	if err := op.inner.Setup(parentWidth); err != nil {
		return err
	}
	op.ready = true
	return nil
}

type pendingGroup struct {
	key     GroupKey
	records []Record
}

func (op *GroupedOperator[D]) Process(batch Records, state StateReader) (Records, error) {
	if !op.ready {
		return nil, errors.AssertionFailedf("operator %s processed before setup", op.Description(true))
	}
	op.Rollback()

	out, err := op.process(batch, state)
	if err != nil {
		op.Rollback()
		return nil, err
	}
	return out, nil
}

func (op *GroupedOperator[D]) process(batch Records, state StateReader) (Records, error) {
	var groups []*pendingGroup
	index := make(map[string]int)
	for _, record := range batch {
		key, err := projectGroupKey(record.Row, op.groupBy)
		if err != nil {
			return nil, err
		}
		i, ok := index[key.encoded]
		if !ok {
			i = len(groups)
			index[key.encoded] = i
			groups = append(groups, &pendingGroup{key: key})
		}
		groups[i].records = append(groups[i].records, record)
	}
	if len(op.groupBy) == 0 && len(groups) == 0 && op.inner.EmitEmpty() {
		groups = append(groups, &pendingGroup{key: NewGroupKey(Row{})})
	}

	var out Records
	for _, group := range groups {
		emitted, err := op.processGroup(group, state)
		if err != nil {
			return nil, newGroupError(group.key, err)
		}
		out = append(out, emitted...)
	}
	return out, nil
}

func (op *GroupedOperator[D]) processGroup(group *pendingGroup, state StateReader) (Records, error) {
	old, found, err := state.Lookup(group.key)
	if err != nil {
		return nil, errors.Wrap(err, "looking up materialized row")
	}

	var current *Value
	var count int64
	if found {
		if len(old) != op.OutputWidth() {
			return nil, errors.AssertionFailedf(
				"materialized row %s has %d columns, want %d", old, len(old), op.OutputWidth())
		}
		value := old[len(old)-2]
		current = &value
		var ok bool
		if count, ok = old[len(old)-1].AsInt(); !ok {
			return nil, errors.AssertionFailedf("materialized row %s has no row count", old)
		}
	}

	diffs := make([]D, 0, len(group.records))
	for _, record := range group.records {
		diff, err := op.inner.ToDiff(record.Row, record.Positive)
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, diff)
		if record.Positive {
			count++
		} else {
			count--
		}
	}
	if count < 0 {
		return nil, errors.AssertionFailedf("retraction of %d more rows than the group holds", -count)
	}

	value, err := op.inner.Apply(group.key, current, diffs)
	if err != nil {
		return nil, err
	}
	if value, err = value.Cast(op.inner.OutputType()); err != nil {
		return nil, err
	}

	var next Row
	if count > 0 || op.inner.EmitEmpty() {
		next = make(Row, 0, op.OutputWidth())
		next = append(next, group.key.Values()...)
		next = append(next, value, Int(count))
	}

	switch {
	case !found && next == nil:
		return nil, nil
	case !found:
		return Records{{Row: next, Positive: true}}, nil
	case next == nil:
		return Records{{Row: old, Positive: false}}, nil
	case old.Equal(next):
		return nil, nil
	default:
		return Records{{Row: old, Positive: false}, {Row: next, Positive: true}}, nil
	}
}

func (op *GroupedOperator[D]) PendingAux() ([]AuxEntry, error) {
	if aux := op.inner.auxState(); aux != nil {
		return aux.pending()
	}
	return nil, nil
}

func (op *GroupedOperator[D]) Commit() {
	if aux := op.inner.auxState(); aux != nil {
		aux.commit()
	}
}

func (op *GroupedOperator[D]) Rollback() {
	if aux := op.inner.auxState(); aux != nil {
		aux.rollback()
	}
}

func (op *GroupedOperator[D]) RestoreAux(entry AuxEntry) error {
	aux := op.inner.auxState()
	if aux == nil {
		return errors.AssertionFailedf("%s keeps no auxiliary state", op.Description(false))
	}
	return aux.restore(entry)
}

func (op *GroupedOperator[D]) Description(detailed bool) string {
	return op.inner.Description(detailed)
}

// SuggestIndexes returns the output columns lookups are keyed on.
func (op *GroupedOperator[D]) SuggestIndexes() []int {
	cols := make([]int, len(op.groupBy))
	for i := range cols {
		cols[i] = i
	}
	return cols
}

// Resolve maps an output column to the input column it is copied from.
func (op *GroupedOperator[D]) Resolve(col int) (int, bool) {
	if col < 0 || col >= len(op.groupBy) {
		return -1, false
	}
	return op.groupBy[col], true
}

func (op *GroupedOperator[D]) GroupBy() []int {
	return append([]int(nil), op.groupBy...)
}

func (op *GroupedOperator[D]) OutputWidth() int {
	return len(op.groupBy) + 2
}

func (op *GroupedOperator[D]) OutputType() DataType {
	return op.inner.OutputType()
}
