package match

// Strategy selects the scorer used by the match service.
type Strategy string

const (
	// Embedding scores candidates by cosine similarity of text embeddings.
	Embedding Strategy = "embedding"
	// LLM asks a generative model to judge the whole corpus at once.
	LLM Strategy = "llm"
)

// IsValid checks if the strategy is one of the supported values.
func (s Strategy) IsValid() bool {
	return s == Embedding || s == LLM
}
