package item

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/kailas-cloud/lostmatch/internal/domain"
	domitem "github.com/kailas-cloud/lostmatch/internal/domain/item"
)

var keyPrefix = domain.KeyPrefix + "item:"

func itemKey(k domitem.Key) string {
	return keyPrefix + string(k.Kind) + ":" + strconv.FormatInt(k.ID, 10)
}

// recordToHash converts a record to a map for HSET. Every field is written,
// empty ones included, because HSET merges into an existing hash.
func recordToHash(r domitem.Record) map[string]string {
	return map[string]string{
		"id":          strconv.FormatInt(r.ID, 10),
		"kind":        string(r.Kind),
		"name":        r.Name,
		"category":    r.Category,
		"place":       r.Place,
		"date":        r.Date,
		"description": r.Description,
	}
}

// recordFromHash hydrates a record from an HGETALL result map.
func recordFromHash(m map[string]string) (domitem.Record, error) {
	id, err := strconv.ParseInt(m["id"], 10, 64)
	if err != nil {
		return domitem.Record{}, fmt.Errorf("invalid id %q: %w", m["id"], err)
	}
	kind, err := domitem.ParseKind(m["kind"])
	if err != nil {
		return domitem.Record{}, err
	}
	return domitem.Record{
		ID:          id,
		Kind:        kind,
		Name:        m["name"],
		Category:    m["category"],
		Place:       m["place"],
		Date:        m["date"],
		Description: m["description"],
	}, nil
}

// sortRecords orders records Lost before Found, then by id.
func sortRecords(rs []domitem.Record) {
	slices.SortFunc(rs, func(a, b domitem.Record) int {
		if c := a.Kind.Order() - b.Kind.Order(); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
}
