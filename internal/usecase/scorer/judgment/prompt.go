package judgment

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/lostmatch/internal/domain/item"
	"github.com/kailas-cloud/lostmatch/internal/domain/normalize"
)

// DefaultSystemPrompt is sent as the system message by chat drivers.
const DefaultSystemPrompt = "You are an expert at matching lost and found item reports."

const instructions = `Compare the user's description with every item listed below and rate how likely each item is the one described.

Respond with a JSON array and nothing else. Each element must be an object with exactly these keys:
  "type":  "lost" or "found", copied from the item tag
  "id":    the integer after # in the item tag
  "name":  the item name, copied verbatim
  "score": a number between 0 and 1, where 1 means certainly the same item

Only include items that could plausibly match. Return [] when nothing matches.`

// BuildPrompt renders the instruction block, the query and one tagged line per candidate.
func BuildPrompt(query string, candidates []item.Record) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nDescription: ")
	b.WriteString(strings.Join(strings.Fields(query), " "))
	b.WriteString("\n\nItems:\n")
	for _, r := range candidates {
		b.WriteString(Line(r))
		b.WriteByte('\n')
	}
	return b.String()
}

// Line renders one candidate as "[lost #1] name | category | place | date | description".
func Line(r item.Record) string {
	return fmt.Sprintf("[%s #%d] %s", r.Kind, r.ID, normalize.Record(r))
}
