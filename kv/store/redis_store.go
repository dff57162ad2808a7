package store

import (
	"context"
	"time"

	"github.com/hatlonely/tablex/kv/serializer"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisStoreOptions struct {
	// host:port 地址
	Endpoint string `cfg:"endpoint"`

	// 集群节点的 host:port 地址列表
	Endpoints []string `cfg:"endpoints"`

	// 键前缀，多个实例共用一个 redis 时用来隔离
	Prefix string `cfg:"prefix" def:"tablex:"`

	DefaultTTL time.Duration `cfg:"defaultTTL"`

	// 序列化器名称：json、msgpack、bson，string 类型的键不经过序列化
	KeySerializer string `cfg:"keySerializer" def:"msgpack"`
	ValSerializer string `cfg:"valSerializer" def:"msgpack"`

	Username string `cfg:"username"`
	Password string `cfg:"password"`
	DB       int    `cfg:"db" def:"0"`

	// 放弃前的最大重试次数，-1 禁用重试
	MaxRetries   int           `cfg:"maxRetries" def:"3"`
	DialTimeout  time.Duration `cfg:"dialTimeout" def:"5s"`
	ReadTimeout  time.Duration `cfg:"readTimeout" def:"3s"`
	WriteTimeout time.Duration `cfg:"writeTimeout" def:"3s"`
	PoolSize     int           `cfg:"poolSize" def:"100"`
	MinIdleConns int           `cfg:"minIdleConns" def:"0"`
}

type RedisStore[K, V any] struct {
	client redis.UniversalClient

	prefix        string
	keySerializer serializer.Serializer[K, []byte]
	valSerializer serializer.Serializer[V, []byte]
	defaultTTL    time.Duration
}

func NewRedisStoreWithOptions[K, V any](options *RedisStoreOptions) (*RedisStore[K, V], error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}

	keySerializer, err := serializer.New[K](options.KeySerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "create key serializer failed")
	}
	valSerializer, err := serializer.New[V](options.ValSerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "create value serializer failed")
	}

	var client redis.UniversalClient
	if options.Endpoint != "" {
		client = redis.NewClient(&redis.Options{
			Addr:         options.Endpoint,
			Username:     options.Username,
			Password:     options.Password,
			DB:           options.DB,
			MaxRetries:   options.MaxRetries,
			DialTimeout:  options.DialTimeout,
			ReadTimeout:  options.ReadTimeout,
			WriteTimeout: options.WriteTimeout,
			PoolSize:     options.PoolSize,
			MinIdleConns: options.MinIdleConns,
		})
	} else if len(options.Endpoints) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        options.Endpoints,
			Username:     options.Username,
			Password:     options.Password,
			MaxRetries:   options.MaxRetries,
			DialTimeout:  options.DialTimeout,
			ReadTimeout:  options.ReadTimeout,
			WriteTimeout: options.WriteTimeout,
			PoolSize:     options.PoolSize,
			MinIdleConns: options.MinIdleConns,
		})
	} else {
		return nil, errors.New("endpoint or endpoints must be set")
	}

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, errors.WithMessage(err, "redis.client.Ping failed")
	}

	return &RedisStore[K, V]{
		client:        client,
		prefix:        options.Prefix,
		keySerializer: keySerializer,
		valSerializer: valSerializer,
		defaultTTL:    options.DefaultTTL,
	}, nil
}

func (s *RedisStore[K, V]) key(key K) (string, error) {
	if str, ok := any(key).(string); ok {
		return s.prefix + str, nil
	}
	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return "", errors.Wrap(err, "serialize key failed")
	}
	return s.prefix + string(keyBytes), nil
}

func (s *RedisStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	options := applySetOptions(opts)

	redisKey, err := s.key(key)
	if err != nil {
		return err
	}
	valueBytes, err := s.valSerializer.Serialize(value)
	if err != nil {
		return errors.Wrap(err, "serialize value failed")
	}

	expiration := options.Expiration
	if expiration == 0 {
		expiration = s.defaultTTL
	}

	if options.IfNotExist {
		ok, err := s.client.SetNX(ctx, redisKey, valueBytes, expiration).Result()
		if err != nil {
			return errors.Wrap(err, "redis.SetNX failed")
		}
		if !ok {
			return ErrConditionFailed
		}
		return nil
	}

	if err := s.client.Set(ctx, redisKey, valueBytes, expiration).Err(); err != nil {
		return errors.Wrap(err, "redis.Set failed")
	}
	return nil
}

func (s *RedisStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	redisKey, err := s.key(key)
	if err != nil {
		return zero, err
	}

	valueBytes, err := s.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, ErrKeyNotFound
		}
		return zero, errors.Wrap(err, "redis.Get failed")
	}

	value, err := s.valSerializer.Deserialize(valueBytes)
	if err != nil {
		return zero, errors.Wrap(err, "deserialize value failed")
	}
	return value, nil
}

func (s *RedisStore[K, V]) Del(ctx context.Context, key K) error {
	redisKey, err := s.key(key)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, redisKey).Err(); err != nil {
		return errors.Wrap(err, "redis.Del failed")
	}
	return nil
}

func (s *RedisStore[K, V]) Close() error {
	return s.client.Close()
}
