package store

import (
	"context"
	"sync"
	"time"
)

type MapStoreOptions struct {
	// 默认过期时间，0 表示不过期
	DefaultTTL time.Duration `cfg:"defaultTTL"`
}

type mapEntry[V any] struct {
	value    V
	expireAt time.Time
}

// MapStore 进程内缓存，并发安全，过期的键在读取时惰性删除
type MapStore[K comparable, V any] struct {
	mu         sync.RWMutex
	m          map[K]mapEntry[V]
	defaultTTL time.Duration
	now        func() time.Time
}

func NewMapStoreWithOptions[K comparable, V any](options *MapStoreOptions) (*MapStore[K, V], error) {
	if options == nil {
		options = &MapStoreOptions{}
	}
	return &MapStore[K, V]{
		m:          make(map[K]mapEntry[V]),
		defaultTTL: options.DefaultTTL,
		now:        time.Now,
	}, nil
}

func (s *MapStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	options := applySetOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if options.IfNotExist {
		if _, ok := s.load(key); ok {
			return ErrConditionFailed
		}
	}

	expiration := options.Expiration
	if expiration == 0 {
		expiration = s.defaultTTL
	}
	entry := mapEntry[V]{value: value}
	if expiration > 0 {
		entry.expireAt = s.now().Add(expiration)
	}
	s.m[key] = entry
	return nil
}

func (s *MapStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	s.mu.RLock()
	entry, ok := s.load(key)
	s.mu.RUnlock()
	if !ok {
		var zero V
		return zero, ErrKeyNotFound
	}
	return entry.value, nil
}

// load 调用方需持有锁
func (s *MapStore[K, V]) load(key K) (mapEntry[V], bool) {
	entry, ok := s.m[key]
	if !ok {
		return entry, false
	}
	if !entry.expireAt.IsZero() && !s.now().Before(entry.expireAt) {
		return entry, false
	}
	return entry, true
}

func (s *MapStore[K, V]) Del(ctx context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *MapStore[K, V]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[K]mapEntry[V])
	return nil
}
