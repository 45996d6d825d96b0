package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/lostmatch/internal/domain/item"
)

// seedFile is the YAML layout accepted by `lostmatch seed`.
type seedFile struct {
	Items []seedItem `yaml:"items"`
}

type seedItem struct {
	ID          int64  `yaml:"id"`
	Kind        string `yaml:"kind"`
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Place       string `yaml:"place"`
	Date        string `yaml:"date"`
	Description string `yaml:"description"`
}

// readSeedFile parses and validates every record before anything is written.
func readSeedFile(path string) ([]item.Record, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	recs := make([]item.Record, 0, len(f.Items))
	for i, it := range f.Items {
		kind, err := item.ParseKind(it.Kind)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		rec := item.Record{
			ID:          it.ID,
			Kind:        kind,
			Name:        it.Name,
			Category:    it.Category,
			Place:       it.Place,
			Date:        it.Date,
			Description: it.Description,
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func seedStore(ctx context.Context, store itemStore, path string) (int, error) {
	recs, err := readSeedFile(path)
	if err != nil {
		return 0, err
	}
	if err := store.PutMany(ctx, recs); err != nil {
		return 0, fmt.Errorf("store seed items: %w", err)
	}
	return len(recs), nil
}
