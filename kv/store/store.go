package store

import (
	"context"
	"reflect"
	"time"

	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
)

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrConditionFailed = errors.New("condition failed")
)

// setOptions 用于设置 KV 数据时的选项
type setOptions struct {
	Expiration time.Duration
	IfNotExist bool
}

type SetOption func(*setOptions)

func WithExpiration(expiration time.Duration) SetOption {
	return func(options *setOptions) {
		options.Expiration = expiration
	}
}

func WithIfNotExist() SetOption {
	return func(options *setOptions) {
		options.IfNotExist = true
	}
}

func applySetOptions(opts []SetOption) *setOptions {
	options := &setOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// Store 缓存存储接口
type Store[K, V any] interface {
	// Set 设置键值对，WithIfNotExist 时键存在则返回 ErrConditionFailed
	Set(ctx context.Context, key K, value V, opts ...SetOption) error
	// Get 获取键对应的值，键不存在或已过期时返回 ErrKeyNotFound
	Get(ctx context.Context, key K) (V, error)
	// Del 删除键，键不存在时也返回成功
	Del(ctx context.Context, key K) error
	Close() error
}

// NewStoreWithOptions 根据配置创建存储，options.Type 取值 MapStore、FreeCacheStore、RedisStore、TieredStore
// 同一个类型在不同 K、V 下是不同的构造函数，所以注册的 namespace 带上了 K、V 的类型名
func NewStoreWithOptions[K comparable, V any](options *ref.TypeOptions) (Store[K, V], error) {
	if options == nil {
		return nil, errors.New("store options cannot be nil")
	}

	var k K
	var v V
	namespace := "github.com/hatlonely/tablex/kv/store[" + reflect.TypeOf(&k).Elem().String() + "," + reflect.TypeOf(&v).Elem().String() + "]"

	register(namespace, "MapStore", NewMapStoreWithOptions[K, V])
	register(namespace, "FreeCacheStore", NewFreeCacheStoreWithOptions[K, V])
	register(namespace, "RedisStore", NewRedisStoreWithOptions[K, V])
	register(namespace, "TieredStore", NewTieredStoreWithOptions[K, V])

	store, err := ref.New[Store[K, V]](&ref.TypeOptions{
		Namespace: namespace,
		Type:      options.Type,
		Options:   options.Options,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	return store, nil
}

func register[O any, T any](namespace string, type_ string, newFunc func(*O) (T, error)) {
	if !ref.Registered(namespace, type_) {
		_ = ref.Register(namespace, type_, newFunc)
	}
}
