package store

import (
	"context"
	"sync"
	"time"

	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
)

const (
	WriteThrough = "writeThrough"
	WriteBack    = "writeBack"
)

type TieredStoreOptions struct {
	// 按读取顺序排列，通常第一层是进程内缓存，最后一层是 redis
	Tiers []*ref.TypeOptions `cfg:"tiers" validate:"required,min=1,dive,required"`

	// writeThrough 同步写所有层；writeBack 只同步写第一层，其余层在后台写入
	WritePolicy string `cfg:"writePolicy" def:"writeThrough" validate:"oneof=writeThrough writeBack"`

	// 下层命中时是否回填上层
	Promote bool `cfg:"promote" def:"true"`
	// 回填上层时使用的过期时间
	PromoteTTL time.Duration `cfg:"promoteTTL" def:"1m"`
}

// TieredStore 多级缓存，例如 FreeCacheStore 在前、RedisStore 在后，多个进程共享第二层
type TieredStore[K comparable, V any] struct {
	tiers       []Store[K, V]
	writePolicy string
	promote     bool
	promoteTTL  time.Duration

	wg sync.WaitGroup
}

func NewTieredStoreWithOptions[K comparable, V any](options *TieredStoreOptions) (*TieredStore[K, V], error) {
	if options == nil || len(options.Tiers) == 0 {
		return nil, errors.New("at least one tier is required")
	}
	if options.WritePolicy != WriteThrough && options.WritePolicy != WriteBack {
		return nil, errors.Errorf("invalid write policy: %s", options.WritePolicy)
	}

	tiers := make([]Store[K, V], 0, len(options.Tiers))
	for i, tierOptions := range options.Tiers {
		tier, err := NewStoreWithOptions[K, V](tierOptions)
		if err != nil {
			for _, created := range tiers {
				_ = created.Close()
			}
			return nil, errors.WithMessagef(err, "create tier %d failed", i)
		}
		tiers = append(tiers, tier)
	}
	return newTieredStore(tiers, options), nil
}

func newTieredStore[K comparable, V any](tiers []Store[K, V], options *TieredStoreOptions) *TieredStore[K, V] {
	return &TieredStore[K, V]{
		tiers:       tiers,
		writePolicy: options.WritePolicy,
		promote:     options.Promote,
		promoteTTL:  options.PromoteTTL,
	}
}

// Set WithIfNotExist 的条件只在最后一层判断，最后一层是所有进程共享的
func (s *TieredStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	options := applySetOptions(opts)
	last := len(s.tiers) - 1

	if options.IfNotExist {
		if err := s.tiers[last].Set(ctx, key, value, opts...); err != nil {
			return err
		}
		plain := []SetOption{WithExpiration(options.Expiration)}
		return s.write(ctx, s.tiers[:last], key, value, plain)
	}
	return s.write(ctx, s.tiers, key, value, opts)
}

func (s *TieredStore[K, V]) write(ctx context.Context, tiers []Store[K, V], key K, value V, opts []SetOption) error {
	if len(tiers) == 0 {
		return nil
	}
	if s.writePolicy == WriteBack {
		if err := tiers[0].Set(ctx, key, value, opts...); err != nil {
			return err
		}
		rest := tiers[1:]
		if len(rest) == 0 {
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			bg := context.WithoutCancel(ctx)
			for _, tier := range rest {
				_ = tier.Set(bg, key, value, opts...)
			}
		}()
		return nil
	}

	for i, tier := range tiers {
		if err := tier.Set(ctx, key, value, opts...); err != nil {
			return errors.WithMessagef(err, "set tier %d failed", i)
		}
	}
	return nil
}

// Get 依次读取每一层，某一层出错时继续读下一层
func (s *TieredStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V
	var lastErr error
	for i, tier := range s.tiers {
		value, err := tier.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrKeyNotFound) {
				lastErr = err
			}
			continue
		}
		if s.promote {
			for j := i - 1; j >= 0; j-- {
				_ = s.tiers[j].Set(ctx, key, value, WithExpiration(s.promoteTTL))
			}
		}
		return value, nil
	}
	if lastErr != nil {
		return zero, lastErr
	}
	return zero, ErrKeyNotFound
}

func (s *TieredStore[K, V]) Del(ctx context.Context, key K) error {
	var firstErr error
	for i, tier := range s.tiers {
		if err := tier.Del(ctx, key); err != nil && firstErr == nil {
			firstErr = errors.WithMessagef(err, "del tier %d failed", i)
		}
	}
	return firstErr
}

// Close 等待后台写入结束后关闭所有层
func (s *TieredStore[K, V]) Close() error {
	s.wg.Wait()
	var firstErr error
	for i, tier := range s.tiers {
		if err := tier.Close(); err != nil && firstErr == nil {
			firstErr = errors.WithMessagef(err, "close tier %d failed", i)
		}
	}
	return firstErr
}
