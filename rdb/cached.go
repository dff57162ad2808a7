package rdb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hatlonely/tablex/kv/serializer"
	"github.com/hatlonely/tablex/kv/store"
	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/rdb/database"
	"github.com/hatlonely/tablex/rdb/query"
	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"
)

type CachedOptions struct {
	// kv/store 配置，类型为 MapStore、FreeCacheStore 或 RedisStore
	Store *ref.TypeOptions `cfg:"store" validate:"required"`
	TTL   time.Duration    `cfg:"ttl" def:"1m"`
	// 缓存值的编码
	Serializer string `cfg:"serializer" def:"msgpack" validate:"oneof=msgpack json"`
	// 指标名前缀
	Name string `cfg:"name" def:"tablex_rdb_cache"`
}

type CacheMetrics struct {
	requests *prometheus.CounterVec
}

func NewCacheMetrics(name string, registerer prometheus.Registerer) (*CacheMetrics, error) {
	requests, err := register(registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name + "_requests_total",
			Help: "Total number of cache lookups",
		},
		[]string{"connection", "result"},
	))
	if err != nil {
		return nil, err
	}
	return &CacheMetrics{requests: requests}, nil
}

func (m *CacheMetrics) observe(connection string, result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(connection, result).Inc()
}

// Cached 缓存表结构和记录列表的驱动装饰器
// 写操作之后递增表的版本号，旧版本的缓存不再被读取，等待过期
type Cached struct {
	driver     database.Driver
	connection string
	store      store.Store[string, []byte]
	ttl        time.Duration
	tables     serializer.Serializer[[]database.TableInfo, []byte]
	records    serializer.Serializer[[]database.Record, []byte]
	metrics    *CacheMetrics
	log        logger.Logger

	group    singleflight.Group
	mu       sync.Mutex
	versions map[string]uint64
}

func NewCached(driver database.Driver, connection string, cache store.Store[string, []byte], options *CachedOptions, metrics *CacheMetrics, l logger.Logger) *Cached {
	if options == nil {
		options = &CachedOptions{TTL: time.Minute}
	}
	if l == nil {
		l = logger.Nop{}
	}
	c := &Cached{
		driver:     driver,
		connection: connection,
		store:      cache,
		ttl:        options.TTL,
		metrics:    metrics,
		log:        l.With("connection", connection),
		versions:   map[string]uint64{},
	}
	if strings.EqualFold(options.Serializer, "json") {
		c.tables = serializer.NewJSONSerializer[[]database.TableInfo]()
		c.records = serializer.NewJSONSerializer[[]database.Record]()
	} else {
		c.tables = serializer.NewMsgPackSerializer[[]database.TableInfo]()
		c.records = serializer.NewMsgPackSerializer[[]database.Record]()
	}
	return c
}

func (c *Cached) version(table string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[table]
}

func (c *Cached) invalidate(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[table]++
}

// key 连接和表名明文保留，便于在 redis 中按前缀排查，其余部分取 xxh3
func (c *Cached) key(table string, parts ...string) string {
	payload := fmt.Sprintf("%d\x00%s", c.version(table), strings.Join(parts, "\x00"))
	return fmt.Sprintf("%s:%s:%016x", c.connection, table, xxh3.HashString(payload))
}

// load 先读缓存，未命中时通过 singleflight 合并并发请求，每个调用方各自解码得到独立的副本
func load[T any](ctx context.Context, c *Cached, key string, codec serializer.Serializer[T, []byte], fetch func() (T, error)) (T, error) {
	var zero T

	data, err := c.store.Get(ctx, key)
	if err == nil {
		if value, err := codec.Deserialize(data); err == nil {
			c.metrics.observe(c.connection, "hit")
			return value, nil
		}
		c.log.WarnContext(ctx, "decode cached value failed", "key", key)
	} else if !errors.Is(err, store.ErrKeyNotFound) {
		c.log.WarnContext(ctx, "read cache failed", "key", key, "error", err)
	}
	c.metrics.observe(c.connection, "miss")

	shared, err, _ := c.group.Do(key, func() (any, error) {
		value, err := fetch()
		if err != nil {
			return nil, err
		}
		data, err := codec.Serialize(value)
		if err != nil {
			return nil, errors.Wrap(err, "encode cache value failed")
		}
		if err := c.store.Set(ctx, key, data, store.WithExpiration(c.ttl)); err != nil {
			c.log.WarnContext(ctx, "write cache failed", "key", key, "error", err)
		}
		return data, nil
	})
	if err != nil {
		return zero, err
	}
	value, err := codec.Deserialize(shared.([]byte))
	if err != nil {
		return zero, errors.Wrap(err, "decode cache value failed")
	}
	return value, nil
}

func (c *Cached) ListTables(ctx context.Context) ([]database.TableInfo, error) {
	return load(ctx, c, c.key("", "tables"), c.tables, func() ([]database.TableInfo, error) {
		return c.driver.ListTables(ctx)
	})
}

func queryKey(opts []database.QueryOption) string {
	options := &database.QueryOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return fmt.Sprintf("%d:%d", options.Offset, options.Limit)
}

var conditionJSON = serializer.NewJSONSerializer[query.Query]()

func (c *Cached) Find(ctx context.Context, table string, q query.Query, opts ...database.QueryOption) ([]database.Record, error) {
	condition := "null"
	if q != nil {
		data, err := conditionJSON.Serialize(q)
		if err != nil {
			return c.driver.Find(ctx, table, q, opts...)
		}
		condition = string(q.Type()) + string(data)
	}
	return load(ctx, c, c.key(table, "find", condition, queryKey(opts)), c.records, func() ([]database.Record, error) {
		return c.driver.Find(ctx, table, q, opts...)
	})
}

func (c *Cached) Search(ctx context.Context, table string, term string, opts ...database.QueryOption) ([]database.Record, error) {
	return load(ctx, c, c.key(table, "search", term, queryKey(opts)), c.records, func() ([]database.Record, error) {
		return c.driver.Search(ctx, table, term, opts...)
	})
}

// 写操作无论成功与否都使缓存失效，失败的批量写可能已经部分生效

func (c *Cached) Create(ctx context.Context, table string, record database.Record) error {
	defer c.invalidate(table)
	return c.driver.Create(ctx, table, record)
}

func (c *Cached) Update(ctx context.Context, table string, pk database.Record, fields database.Record) error {
	defer c.invalidate(table)
	return c.driver.Update(ctx, table, pk, fields)
}

func (c *Cached) Delete(ctx context.Context, table string, pk database.Record) error {
	defer c.invalidate(table)
	return c.driver.Delete(ctx, table, pk)
}

func (c *Cached) BatchUpdate(ctx context.Context, table string, pks []database.Record, fields database.Record) error {
	defer c.invalidate(table)
	return c.driver.BatchUpdate(ctx, table, pks, fields)
}

func (c *Cached) BatchDelete(ctx context.Context, table string, pks []database.Record) error {
	defer c.invalidate(table)
	return c.driver.BatchDelete(ctx, table, pks)
}

// Close 只关闭底层驱动，缓存由 Manager 关闭
func (c *Cached) Close() error {
	return c.driver.Close()
}

// register 注册指标，已经注册过同名指标时复用已有的
func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) (C, error) {
	if registerer == nil {
		return collector, nil
	}
	if err := registerer.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return collector, errors.Wrap(err, "register metrics failed")
	}
	return collector, nil
}
