package item

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/lostmatch/internal/domain"
)

// Kind tags a record as a lost or a found report.
type Kind string

const (
	// Lost is a report filed by the owner of a missing item.
	Lost Kind = "lost"
	// Found is a report filed by someone who picked an item up.
	Found Kind = "found"
)

// IsValid checks if the kind is one of the supported values.
func (k Kind) IsValid() bool {
	return k == Lost || k == Found
}

// ParseKind converts a case-insensitive string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidItem, s)
	}
	return k, nil
}

// Order places Lost before Found.
func (k Kind) Order() int {
	if k == Lost {
		return 0
	}
	return 1
}

// Key identifies a record across both kinds.
type Key struct {
	Kind Kind
	ID   int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Kind, k.ID)
}

// Record is the read-only view of a lost or found report used for matching.
// Optional fields are empty strings when absent.
type Record struct {
	ID          int64  `json:"id" yaml:"id"`
	Kind        Kind   `json:"kind" yaml:"kind"`
	Name        string `json:"name" yaml:"name"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
	Place       string `json:"place,omitempty" yaml:"place,omitempty"`
	Date        string `json:"date,omitempty" yaml:"date,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Key returns the record identity.
func (r Record) Key() Key {
	return Key{Kind: r.Kind, ID: r.ID}
}

// Validate checks the fields the store requires.
func (r Record) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: id must be positive, got %d", domain.ErrInvalidItem, r.ID)
	}
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidItem, r.Kind)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidItem)
	}
	return nil
}
