package core

import "strings"

// Record is a row tagged with the sign of its contribution to a multiset.
type Record struct {
	Row      Row
	Positive bool
}

func Positive(row ...Value) Record {
	return Record{Row: row, Positive: true}
}

func Negative(row ...Value) Record {
	return Record{Row: row, Positive: false}
}

func (r Record) String() string {
	if r.Positive {
		return "+" + r.Row.String()
	}
	return "-" + r.Row.String()
}

func (r Record) Equal(other Record) bool {
	return r.Positive == other.Positive && r.Row.Equal(other.Row)
}

type Records []Record

func (rs Records) String() string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = r.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (rs Records) Equal(other Records) bool {
	if len(rs) != len(other) {
		return false
	}
	for i := range rs {
		if !rs[i].Equal(other[i]) {
			return false
		}
	}
	return true
}
