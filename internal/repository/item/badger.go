package item

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lostmatch/internal/db"
	"github.com/kailas-cloud/lostmatch/internal/domain"
	domitem "github.com/kailas-cloud/lostmatch/internal/domain/item"
)

// kvStore is the consumer interface for the embedded store (ISP).
type kvStore interface {
	Put(ctx context.Context, kvs map[string][]byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	ScanPrefix(ctx context.Context, prefix string, fn func(key string, value []byte) error) error
}

// BadgerRepo keeps one JSON value per record in an embedded Badger database.
// ListAll reads inside a single transaction, so it sees one consistent snapshot.
type BadgerRepo struct {
	store  kvStore
	logger *zap.Logger
}

// NewBadger creates a Badger-backed item repository.
func NewBadger(s kvStore, logger *zap.Logger) *BadgerRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BadgerRepo{store: s, logger: logger}
}

// Put validates and stores a record.
func (b *BadgerRepo) Put(ctx context.Context, rec domitem.Record) error {
	return b.PutMany(ctx, []domitem.Record{rec})
}

// PutMany validates every record and writes them in one transaction.
func (b *BadgerRepo) PutMany(ctx context.Context, recs []domitem.Record) error {
	kvs := make(map[string][]byte, len(recs))
	for i, rec := range recs {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record %d: %w", i, err)
		}
		kvs[itemKey(rec.Key())] = data
	}
	if err := b.store.Put(ctx, kvs); err != nil {
		return fmt.Errorf("put items: %w", err)
	}
	return nil
}

// Get returns one record or domain.ErrItemNotFound.
func (b *BadgerRepo) Get(ctx context.Context, key domitem.Key) (domitem.Record, error) {
	data, err := b.store.Get(ctx, itemKey(key))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domitem.Record{}, domain.ErrItemNotFound
		}
		return domitem.Record{}, fmt.Errorf("get %s: %w", itemKey(key), err)
	}
	var rec domitem.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domitem.Record{}, fmt.Errorf("unmarshal %s: %w", itemKey(key), err)
	}
	return rec, nil
}

// ListAll returns every stored record from one read snapshot.
func (b *BadgerRepo) ListAll(ctx context.Context) ([]domitem.Record, error) {
	var out []domitem.Record
	err := b.store.ScanPrefix(ctx, keyPrefix, func(key string, value []byte) error {
		var rec domitem.Record
		if err := json.Unmarshal(value, &rec); err != nil {
			b.logger.Warn("Skipping unreadable item", zap.String("key", key), zap.Error(err))
			return nil
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan items: %w", err)
	}
	if out == nil {
		out = []domitem.Record{}
	}
	sortRecords(out)
	return out, nil
}
