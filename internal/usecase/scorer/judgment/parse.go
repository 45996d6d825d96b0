package judgment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/kailas-cloud/lostmatch/internal/domain"
	"github.com/kailas-cloud/lostmatch/internal/domain/item"
)

// Entry is one judged item as returned by the model.
type Entry struct {
	Kind  item.Kind
	ID    *int64
	Name  string
	Score float64
}

type wireEntry struct {
	Type  *string  `json:"type"`
	ID    *float64 `json:"id"`
	Name  *string  `json:"name"`
	Score *float64 `json:"score"`
}

var entrySchema = &jsonschema.Schema{
	Type: "array",
	Items: &jsonschema.Schema{
		Type:     "object",
		Required: []string{"type", "name", "score"},
		Properties: map[string]*jsonschema.Schema{
			"type":  {Type: "string", Enum: []any{string(item.Lost), string(item.Found)}},
			"id":    {Types: []string{"number", "null"}},
			"name":  {Type: "string"},
			"score": {Type: "number"},
		},
	},
}

var resolvedSchema = mustResolve(entrySchema)

func mustResolve(s *jsonschema.Schema) *jsonschema.Resolved {
	r, err := s.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("resolve judgment schema: %v", err))
	}
	return r
}

// Parse decodes a completion into entries. Any deviation from the expected
// array shape fails the whole completion with domain.ErrMalformedJudgment.
func Parse(completion string) ([]Entry, error) {
	body := stripFence(completion)
	if body == "" {
		return nil, fmt.Errorf("empty completion: %w", domain.ErrMalformedJudgment)
	}

	var instance any
	if err := json.Unmarshal([]byte(body), &instance); err != nil {
		return nil, fmt.Errorf("decode completion: %w: %w", domain.ErrMalformedJudgment, err)
	}
	if err := resolvedSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("validate completion: %w: %w", domain.ErrMalformedJudgment, err)
	}

	var wire []wireEntry
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode entries: %w: %w", domain.ErrMalformedJudgment, err)
	}

	entries := make([]Entry, 0, len(wire))
	for i, w := range wire {
		e, err := w.toEntry()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w: %w", i, domain.ErrMalformedJudgment, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (w wireEntry) toEntry() (Entry, error) {
	if w.Type == nil || w.Name == nil || w.Score == nil {
		return Entry{}, errors.New("missing required key")
	}
	kind := item.Kind(*w.Type)
	if !kind.IsValid() {
		return Entry{}, fmt.Errorf("unknown type %q", *w.Type)
	}
	e := Entry{Kind: kind, Name: *w.Name, Score: *w.Score}
	if w.ID != nil {
		id := *w.ID
		if id != math.Trunc(id) || math.Abs(id) > 1<<53 {
			return Entry{}, fmt.Errorf("id %v is not an integer", id)
		}
		v := int64(id)
		e.ID = &v
	}
	return e, nil
}

// stripFence removes one surrounding markdown code fence, if present.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
