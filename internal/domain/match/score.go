package match

import (
	"math"

	"github.com/kailas-cloud/lostmatch/internal/domain/item"
)

// CandidateScore is the relevance of one stored item to a query.
type CandidateScore struct {
	ItemID int64     `json:"item_id"`
	Kind   item.Kind `json:"kind"`
	Name   string    `json:"name"`
	Score  float64   `json:"score"`
}

// NewCandidateScore builds a score for a record, clamping the value into [0,1].
func NewCandidateScore(r item.Record, score float64) CandidateScore {
	return CandidateScore{
		ItemID: r.ID,
		Kind:   r.Kind,
		Name:   r.Name,
		Score:  Clamp(score),
	}
}

// Key returns the identity of the scored item.
func (c CandidateScore) Key() item.Key {
	return item.Key{Kind: c.Kind, ID: c.ItemID}
}

// Clamp maps any model output into [0,1]. NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
