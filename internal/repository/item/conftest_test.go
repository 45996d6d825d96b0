package item

import (
	"context"

	"github.com/kailas-cloud/lostmatch/internal/db"
)

type mockStore struct {
	hsetFn         func(ctx context.Context, key string, fields map[string]string) error
	hsetMultiFn    func(ctx context.Context, items []db.HashSetItem) error
	hgetAllFn      func(ctx context.Context, key string) (map[string]string, error)
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
	scanFn         func(ctx context.Context, pattern string) ([]string, error)
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return make([]map[string]string, len(keys)), nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

// hashBackedStore is a minimal in-process hash store for round-trip tests.
// Like HSET it merges fields into an existing hash.
type hashBackedStore struct {
	mockStore
	data map[string]map[string]string
}

func newHashBackedStore() *hashBackedStore {
	s := &hashBackedStore{data: map[string]map[string]string{}}
	s.hsetFn = func(_ context.Context, key string, fields map[string]string) error {
		s.merge(key, fields)
		return nil
	}
	s.hsetMultiFn = func(_ context.Context, items []db.HashSetItem) error {
		for _, it := range items {
			s.merge(it.Key, it.Fields)
		}
		return nil
	}
	s.hgetAllFn = func(_ context.Context, key string) (map[string]string, error) {
		m, ok := s.data[key]
		if !ok {
			return nil, db.ErrKeyNotFound
		}
		return m, nil
	}
	s.hgetAllMultiFn = func(_ context.Context, keys []string) ([]map[string]string, error) {
		out := make([]map[string]string, len(keys))
		for i, k := range keys {
			out[i] = s.data[k]
		}
		return out, nil
	}
	s.scanFn = func(_ context.Context, _ string) ([]string, error) {
		keys := make([]string, 0, len(s.data))
		for k := range s.data {
			keys = append(keys, k)
		}
		return keys, nil
	}
	return s
}

func (s *hashBackedStore) merge(key string, fields map[string]string) {
	h, ok := s.data[key]
	if !ok {
		h = map[string]string{}
		s.data[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
}
