// Package item stores lost and found records for the match service.
package item

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lostmatch/internal/db"
	"github.com/kailas-cloud/lostmatch/internal/domain"
	domitem "github.com/kailas-cloud/lostmatch/internal/domain/item"
)

// store is the consumer interface for item hashes (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo keeps one hash per record in Valkey.
type Repo struct {
	store  store
	logger *zap.Logger
}

// New creates a Valkey-backed item repository.
func New(s store, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{store: s, logger: logger}
}

// Put validates and stores a record, replacing any record with the same kind and id.
func (r *Repo) Put(ctx context.Context, rec domitem.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	key := itemKey(rec.Key())
	if err := r.store.HSet(ctx, key, recordToHash(rec)); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// PutMany validates every record first, then stores them in one round-trip.
func (r *Repo) PutMany(ctx context.Context, recs []domitem.Record) error {
	items := make([]db.HashSetItem, len(recs))
	for i, rec := range recs {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		items[i] = db.HashSetItem{Key: itemKey(rec.Key()), Fields: recordToHash(rec)}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("hset multi: %w", err)
	}
	return nil
}

// Get returns one record or domain.ErrItemNotFound.
func (r *Repo) Get(ctx context.Context, key domitem.Key) (domitem.Record, error) {
	m, err := r.store.HGetAll(ctx, itemKey(key))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domitem.Record{}, domain.ErrItemNotFound
		}
		return domitem.Record{}, fmt.Errorf("hgetall %s: %w", itemKey(key), err)
	}
	return recordFromHash(m)
}

// ListAll returns every stored record. Records removed mid-scan are skipped;
// unreadable hashes are logged and skipped.
func (r *Repo) ListAll(ctx context.Context) ([]domitem.Record, error) {
	keys, err := r.store.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan items: %w", err)
	}
	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	out := make([]domitem.Record, 0, len(hashes))
	for i, m := range hashes {
		if len(m) == 0 {
			continue
		}
		rec, err := recordFromHash(m)
		if err != nil {
			r.logger.Warn("Skipping unreadable item", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}
