package core

func applySum(current *Value, diffs []NumericDiff, outType DataType) (Value, error) {
	sum := Zero(outType)
	if current != nil {
		sum = *current
	}
	var err error
	for _, diff := range diffs {
		if diff.Value.IsNull() {
			continue
		}
		if diff.Positive {
			sum, err = Add(sum, diff.Value)
		} else {
			sum, err = Sub(sum, diff.Value)
		}
		if err != nil {
			return Null(), err
		}
	}
	return sum, nil
}
