package core

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
)

const concatTreeDegree = 8

// ConcatDiff is one input row's contribution to a GROUP_CONCAT.
type ConcatDiff struct {
	Text     string
	Absent   bool
	Positive bool
}

// concatItem is a distinct contributing string and its multiplicity.
type concatItem struct {
	text  string
	count int64
}

func (item concatItem) Less(than btree.Item) bool {
	return item.text < than.(concatItem).text
}

// Concatenator keeps, per group, the multiset of contributing strings and
// rebuilds the concatenation from it, so any contribution can be retracted.
type Concatenator struct {
	separator string
	over      int
	groupBy   []int
	groups    *auxTable[*btree.BTree]
}

func newConcatenator(separator string, over int, groupBy []int) *Concatenator {
	return &Concatenator{
		separator: separator,
		over:      over,
		groupBy:   groupBy,
		groups:    newAuxTable[*btree.BTree](encodeMultiset, decodeMultiset),
	}
}

func (concat *Concatenator) Setup(parentWidth int) error {
	return checkColumns(concat.over, concat.groupBy, parentWidth)
}

func (concat *Concatenator) GroupBy() []int {
	return concat.groupBy
}

func (concat *Concatenator) ToDiff(row Row, positive bool) (ConcatDiff, error) {
	if concat.over >= len(row) {
		return ConcatDiff{}, errors.AssertionFailedf(
			"aggregated column %d missing from row of width %d", concat.over, len(row))
	}
	value := row[concat.over]
	if value.IsNull() {
		return ConcatDiff{Absent: true, Positive: positive}, nil
	}
	return ConcatDiff{Text: value.String(), Positive: positive}, nil
}

// Apply works on a copy of the group's multiset; the copy replaces the
// original only on commit.
func (concat *Concatenator) Apply(key GroupKey, _ *Value, diffs []ConcatDiff) (Value, error) {
	members, ok := concat.groups.get(key)
	if ok {
		members = members.Clone()
	} else {
		members = btree.New(concatTreeDegree)
	}

	for _, diff := range diffs {
		if diff.Absent {
			continue
		}
		item := concatItem{text: diff.Text}
		if existing := members.Get(item); existing != nil {
			item = existing.(concatItem)
		}
		if diff.Positive {
			item.count++
		} else {
			item.count--
		}
		switch {
		case item.count > 0:
			members.ReplaceOrInsert(item)
		case item.count == 0:
			members.Delete(item)
		default:
			return Null(), errors.AssertionFailedf("retracting %q, which group %s does not hold", diff.Text, key)
		}
	}
	concat.groups.stage(key, members)
	return Text(concat.join(members)), nil
}

func (concat *Concatenator) join(members *btree.BTree) string {
	var b strings.Builder
	first := true
	members.Ascend(func(i btree.Item) bool {
		item := i.(concatItem)
		for n := int64(0); n < item.count; n++ {
			if !first {
				b.WriteString(concat.separator)
			}
			b.WriteString(item.text)
			first = false
		}
		return true
	})
	return b.String()
}

func (concat *Concatenator) Description(detailed bool) string {
	if !detailed {
		return "||(" + concat.separator + ")"
	}
	return "||(" + concat.separator + ", " + strconv.Itoa(concat.over) + ") γ" + formatColumns(concat.groupBy)
}

func (concat *Concatenator) OutputType() DataType {
	return TypeText
}

func (concat *Concatenator) EmitEmpty() bool {
	return len(concat.groupBy) == 0
}

func (concat *Concatenator) EmptyValue() Value {
	return Text("")
}

func (concat *Concatenator) auxState() auxState {
	return concat.groups
}

func encodeMultiset(members *btree.BTree) []byte {
	row := make(Row, 0, 2*members.Len())
	members.Ascend(func(i btree.Item) bool {
		item := i.(concatItem)
		row = append(row, Text(item.text), Int(item.count))
		return true
	})
	return EncodeRow(row)
}

func decodeMultiset(buf []byte) (*btree.BTree, error) {
	row, err := DecodeRow(buf)
	if err != nil {
		return nil, err
	}
	if len(row)%2 != 0 {
		return nil, errors.Newf("multiset has odd field count %d", len(row))
	}
	members := btree.New(concatTreeDegree)
	for i := 0; i < len(row); i += 2 {
		text, ok := row[i].AsText()
		count, ok2 := row[i+1].AsInt()
		if !ok || !ok2 || count <= 0 {
			return nil, errors.Newf("malformed multiset member %s", row[i:i+2])
		}
		members.ReplaceOrInsert(concatItem{text: text, count: count})
	}
	return members, nil
}
