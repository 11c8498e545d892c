package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore はプロセス内メモリのStore実装。
// 開発用のmemoryバックエンドとテストで使用する。
// カーソルは直前のページで返した最後のキーで、続きはそれより大きいキーから返す。
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get は指定キーの値のコピーを返す。
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put は値のコピーを保存する。
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	s.data[key] = v
	s.mu.Unlock()
	return nil
}

// PutIfAbsent はキーが無い場合のみ値のコピーを保存する。
func (s *MemoryStore) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; ok {
		return false, nil
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.data[key] = v
	return true, nil
}

// Delete は指定キーを削除する。
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// List はプレフィックスに一致するキーをキー順に最大Limit件返す。
// ページ間にPutやDeleteがあっても、既に返したキーを再び返すことはない。
func (s *MemoryStore) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, opts.Prefix) && k > opts.Cursor {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)

	if len(keys) <= limit {
		return &ListResult{Keys: keys, Complete: true}, nil
	}

	page := keys[:limit]
	return &ListResult{
		Keys:   page,
		Cursor: page[len(page)-1],
	}, nil
}

// Len は保存されているキー数を返す。テスト用。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ Store = (*MemoryStore)(nil)
