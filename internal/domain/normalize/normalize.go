// Package normalize builds the canonical text form of items and queries.
//
// A record renders as exactly five segments in the order
// name, category, place, date, description joined by Delimiter.
// Absent fields keep their (empty) segment so positions never shift.
package normalize

import (
	"strings"

	"github.com/kailas-cloud/lostmatch/internal/domain/item"
)

// Delimiter separates record segments.
const Delimiter = " | "

// Segments is the number of segments in a normalized record.
const Segments = 5

var fieldCleaner = strings.NewReplacer(
	"|", "/",
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
	"\t", " ",
)

// Record returns the single-line canonical text of a record.
func Record(r item.Record) string {
	fields := [Segments]string{r.Name, r.Category, r.Place, r.Date, r.Description}
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString(Delimiter)
		}
		b.WriteString(field(f))
	}
	return b.String()
}

// Records normalizes a slice of records, preserving order.
func Records(rs []item.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = Record(r)
	}
	return out
}

// Query trims the caller's free text. An empty result means a blank query.
func Query(q string) string {
	return strings.TrimSpace(q)
}

func field(s string) string {
	s = fieldCleaner.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
