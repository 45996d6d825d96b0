package match

import (
	"cmp"
	"slices"
)

// DefaultK is the number of results returned when the caller does not ask for a specific count.
const DefaultK = 5

// Compare orders two scores: higher score first, then lower item id,
// then Lost before Found. It is a total order over distinct items.
func Compare(a, b CandidateScore) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ItemID, b.ItemID); c != 0 {
		return c
	}
	return cmp.Compare(a.Kind.Order(), b.Kind.Order())
}

// Rank returns the top k scores in Compare order. The input is not modified.
// k <= 0 yields an empty slice.
func Rank(scores []CandidateScore, k int) []CandidateScore {
	if k <= 0 || len(scores) == 0 {
		return []CandidateScore{}
	}
	sorted := slices.Clone(scores)
	slices.SortFunc(sorted, Compare)
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}
