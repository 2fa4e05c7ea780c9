package utils

import (
	"math"
	"math/rand"
	"testing"
)

func AssertClose(t *testing.T, want, got, tolerance float64) {
	t.Helper()
	if math.Abs(want-got) > tolerance {
		t.Fatalf("Expected %v within %v of %v", got, tolerance, want)
	}
}

// AssertWithinRelative checks |want-got| <= rel*|want|, falling back to an
// absolute bound of rel when want is 0.
func AssertWithinRelative(t *testing.T, want, got, rel float64) {
	t.Helper()
	bound := rel * math.Abs(want)
	if want == 0 {
		bound = rel
	}
	if math.Abs(want-got) > bound {
		t.Fatalf("Expected %v within %v relative of %v", got, rel, want)
	}
}

// CompensatingSequence returns n values to insert and, for the first m of
// them in shuffled order, the matching values to delete. Values have two
// decimal places and are non-negative.
func CompensatingSequence(seed int64, n, m int) (inserts []float64, deletes []float64) {
	rng := rand.New(rand.NewSource(seed))
	inserts = make([]float64, n)
	for i := range inserts {
		inserts[i] = float64(rng.Intn(2_000_000)) / 100
	}
	order := rng.Perm(n)
	if m > n {
		m = n
	}
	deletes = make([]float64, m)
	for i := 0; i < m; i++ {
		deletes[i] = inserts[order[i]]
	}
	return inserts, deletes
}
