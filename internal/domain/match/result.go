package match

// Status tells an empty "nothing relevant" result apart from a scorer outage.
type Status string

const (
	// StatusOK means the configured scorer ran (or was not needed).
	StatusOK Status = "ok"
	// StatusDegraded means a backend failed and the result was emptied.
	StatusDegraded Status = "degraded"
)

// Result is the ranked top-K answer to one query.
type Result struct {
	Items  []CandidateScore
	Status Status
}

// Empty returns a result with no items and the given status.
func Empty(status Status) Result {
	return Result{Items: []CandidateScore{}, Status: status}
}

// Degraded reports whether a backend failure emptied the result.
func (r Result) Degraded() bool {
	return r.Status == StatusDegraded
}
