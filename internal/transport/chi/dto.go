package chi

import (
	dommatch "github.com/kailas-cloud/lostmatch/internal/domain/match"
)

// ErrorCode is the machine-readable error kind in ErrorResponse.
type ErrorCode string

// Error codes returned by the API.
const (
	ErrorCodeBadRequest    ErrorCode = "bad_request"
	ErrorCodeInvalidInput  ErrorCode = "invalid_input"
	ErrorCodeUnauthorized  ErrorCode = "unauthorized"
	ErrorCodeInternalError ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// MatchRequest is the body of POST /match. A missing k selects the server default.
type MatchRequest struct {
	Text string `json:"text"`
	K    *int   `json:"k,omitempty"`
}

// MatchItem is one ranked item in MatchResponse.
type MatchItem struct {
	ItemID int64   `json:"item_id"`
	Kind   string  `json:"kind"`
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
}

// MatchResponse is the body of a successful match call.
type MatchResponse struct {
	Items  []MatchItem `json:"items"`
	Status string      `json:"status"`
	Total  int         `json:"total"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func matchResultToResponse(res dommatch.Result) MatchResponse {
	items := make([]MatchItem, len(res.Items))
	for i, c := range res.Items {
		items[i] = MatchItem{
			ItemID: c.ItemID,
			Kind:   string(c.Kind),
			Name:   c.Name,
			Score:  c.Score,
		}
	}
	status := res.Status
	if status == "" {
		status = dommatch.StatusOK
	}
	return MatchResponse{Items: items, Status: string(status), Total: len(items)}
}
