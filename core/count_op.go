package core

func applyCount(current *Value, diffs []NumericDiff) (Value, error) {
	count := Int(0)
	if current != nil {
		count = *current
	}
	var err error
	for _, diff := range diffs {
		if diff.Value.IsNull() {
			continue
		}
		if diff.Positive {
			count, err = Add(count, Int(1))
		} else {
			count, err = Sub(count, Int(1))
		}
		if err != nil {
			return Null(), err
		}
	}
	return count, nil
}
