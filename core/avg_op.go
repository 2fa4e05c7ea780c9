package core

import "github.com/cockroachdb/errors"

// avgState is the running sum and count behind one group's average.
type avgState struct {
	sum   Value
	count int64
}

func encodeAvgState(state avgState) []byte {
	return EncodeRow(Row{state.sum, Int(state.count)})
}

func decodeAvgState(buf []byte) (avgState, error) {
	row, err := DecodeRow(buf)
	if err != nil {
		return avgState{}, err
	}
	if len(row) != 2 {
		return avgState{}, errors.Newf("average state has %d fields", len(row))
	}
	count, ok := row[1].AsInt()
	if !ok {
		return avgState{}, errors.Newf("average count is %s", row[1].Kind())
	}
	return avgState{sum: row[0], count: count}, nil
}

// applyAvg ignores the materialized average and derives the result from the
// group's running sum and count.
func (agg *Aggregator) applyAvg(key GroupKey, diffs []NumericDiff) (Value, error) {
	state, ok := agg.averages.get(key)
	if !ok {
		state = avgState{sum: Zero(agg.outType)}
	}
	var err error
	for _, diff := range diffs {
		if diff.Value.IsNull() {
			continue
		}
		if diff.Positive {
			state.sum, err = Add(state.sum, diff.Value)
			state.count++
		} else {
			state.sum, err = Sub(state.sum, diff.Value)
			state.count--
		}
		if err != nil {
			return Null(), err
		}
	}
	agg.averages.stage(key, state)

	if state.count <= 0 {
		return Double(0), nil
	}
	return Div(state.sum, Int(state.count))
}
