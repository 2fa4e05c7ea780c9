package core

import (
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// GroupKey is the projection of a row onto the grouping columns, together
// with its exact byte encoding.
type GroupKey struct {
	values  Row
	encoded string
}

func NewGroupKey(values Row) GroupKey {
	var buf []byte
	for _, v := range values {
		buf = appendValue(buf, v)
	}
	return GroupKey{values: values, encoded: string(buf)}
}

func decodeGroupKey(buf []byte) (GroupKey, error) {
	encoded := string(buf)
	var values Row
	for len(buf) > 0 {
		var v Value
		var err error
		v, buf, err = decodeValue(buf)
		if err != nil {
			return GroupKey{}, err
		}
		values = append(values, v)
	}
	return GroupKey{values: values, encoded: encoded}, nil
}

func projectGroupKey(row Row, columns []int) (GroupKey, error) {
	values := make(Row, len(columns))
	for i, col := range columns {
		if col >= len(row) {
			return GroupKey{}, errors.AssertionFailedf(
				"grouping column %d missing from row of width %d", col, len(row))
		}
		values[i] = row[col]
	}
	return NewGroupKey(values), nil
}

func (key GroupKey) Values() Row {
	return key.values
}

func (key GroupKey) Len() int {
	return len(key.values)
}

func (key GroupKey) Bytes() []byte {
	return []byte(key.encoded)
}

func (key GroupKey) String() string {
	return key.values.String()
}

// Digest is a fixed-width hash of the key. Distinct keys may share a digest.
func (key GroupKey) Digest() uint64 {
	return xxhash.Sum64String(key.encoded)
}

func (key GroupKey) Equal(other GroupKey) bool {
	return key.encoded == other.encoded
}
