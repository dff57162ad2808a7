package rdb

import (
	"context"
	"sort"
	"sync"

	"github.com/hatlonely/tablex/cfg"
	"github.com/hatlonely/tablex/kv/store"
	"github.com/hatlonely/tablex/log"
	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/rdb/database"
	"github.com/hatlonely/tablex/ref"
	"github.com/hatlonely/tablex/workset"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var ErrConnectionNotFound = errors.New("connection not found")

type ManagerOptions struct {
	// 连接 ID 到驱动配置，例如 {type: SQL, options: {driver: sqlite3, database: ./app.db}}
	Connections map[string]*ref.TypeOptions `cfg:"connections"`
	// 加载连接时每张表拉取的最大记录数
	FetchLimit int `cfg:"fetchLimit" def:"100" validate:"min=1"`
	// 为空时不缓存
	Cache *CachedOptions `cfg:"cache"`
	// 为空时不做观测
	Observe *ObservableOptions `cfg:"observe"`
}

type ManagerOption func(*Manager)

func WithLogger(l logger.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithRegisterer 指标注册位置，默认为 prometheus.DefaultRegisterer
func WithRegisterer(registerer prometheus.Registerer) ManagerOption {
	return func(m *Manager) { m.registerer = registerer }
}

// WithDriver 直接使用已经创建好的驱动，不经过装饰
func WithDriver(connectionID string, driver database.Driver) ManagerOption {
	return func(m *Manager) { m.drivers[connectionID] = driver }
}

// Manager 按连接 ID 管理驱动，驱动在第一次使用时创建
// 同时实现 workset.DataSource 和 workset.Persister
type Manager struct {
	options    *ManagerOptions
	log        logger.Logger
	registerer prometheus.Registerer

	cache        store.Store[string, []byte]
	cacheMetrics *CacheMetrics
	metrics      *ObservableMetrics

	mu      sync.Mutex
	drivers map[string]database.Driver
}

var (
	_ workset.DataSource = (*Manager)(nil)
	_ workset.Persister  = (*Manager)(nil)
)

func NewManagerWithOptions(options *ManagerOptions, opts ...ManagerOption) (*Manager, error) {
	if options == nil {
		options = &ManagerOptions{}
		if err := cfg.SetDefaults(options); err != nil {
			return nil, errors.WithMessage(err, "set manager defaults failed")
		}
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.WithMessage(err, "invalid manager options")
	}

	m := &Manager{
		options:    options,
		registerer: prometheus.DefaultRegisterer,
		drivers:    map[string]database.Driver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = log.OrDefault(m.log).WithGroup("rdb")

	if options.Cache != nil {
		cache, err := store.NewStoreWithOptions[string, []byte](options.Cache.Store)
		if err != nil {
			return nil, errors.WithMessage(err, "create cache store failed")
		}
		m.cache = cache
		if m.cacheMetrics, err = NewCacheMetrics(options.Cache.Name, m.registerer); err != nil {
			return nil, err
		}
	}
	if options.Observe != nil && options.Observe.EnableMetrics {
		metrics, err := NewObservableMetrics(options.Observe.Name, m.registerer)
		if err != nil {
			return nil, err
		}
		m.metrics = metrics
	}
	return m, nil
}

// Connections 配置的和直接注入的连接 ID，按字典序
func (m *Manager) Connections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := map[string]struct{}{}
	for id := range m.options.Connections {
		seen[id] = struct{}{}
	}
	for id := range m.drivers {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Driver 返回连接对应的驱动，按配置依次套上缓存和观测
func (m *Manager) Driver(connectionID string) (database.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if driver, ok := m.drivers[connectionID]; ok {
		return driver, nil
	}
	options, ok := m.options.Connections[connectionID]
	if !ok || options == nil {
		return nil, errors.WithMessagef(ErrConnectionNotFound, "connection %s", connectionID)
	}

	driver, err := database.NewDriverWithOptions(options)
	if err != nil {
		return nil, errors.WithMessagef(err, "open connection %s", connectionID)
	}
	if m.cache != nil {
		driver = NewCached(driver, connectionID, m.cache, m.options.Cache, m.cacheMetrics, m.log)
	}
	if m.options.Observe != nil {
		driver = NewObservable(driver, connectionID, m.options.Observe, m.metrics, m.log)
	}
	m.drivers[connectionID] = driver
	m.log.Info("connection opened", "connection", connectionID, "type", options.Type)
	return driver, nil
}

func (m *Manager) ListTables(ctx context.Context, connectionID string) ([]workset.TableInfo, error) {
	driver, err := m.Driver(connectionID)
	if err != nil {
		return nil, err
	}
	infos, err := driver.ListTables(ctx)
	if err != nil {
		return nil, translate(err)
	}
	tables := make([]workset.TableInfo, 0, len(infos))
	for _, info := range infos {
		tables = append(tables, workset.TableInfo{
			Name:    info.Name,
			Kind:    info.Kind,
			Columns: toColumns(info.Columns),
		})
	}
	return tables, nil
}

func (m *Manager) ListRecords(ctx context.Context, connectionID string, table string) ([]workset.Record, error) {
	return m.SearchRecords(ctx, connectionID, table, "", 0, m.options.FetchLimit)
}

// SearchRecords 把搜索下推到数据库，term 为空时按顺序分页读取
func (m *Manager) SearchRecords(ctx context.Context, connectionID string, table string, term string, offset int, limit int) ([]workset.Record, error) {
	driver, err := m.Driver(connectionID)
	if err != nil {
		return nil, err
	}
	opts := []database.QueryOption{database.WithOffset(offset)}
	if limit > 0 {
		opts = append(opts, database.WithLimit(limit))
	}

	var records []database.Record
	if term == "" {
		records, err = driver.Find(ctx, table, nil, opts...)
	} else {
		records, err = driver.Search(ctx, table, term, opts...)
	}
	if err != nil {
		return nil, translate(err)
	}
	return toRecords(records), nil
}

func (m *Manager) CreateRecord(ctx context.Context, connectionID string, table string, record workset.Record) error {
	driver, err := m.Driver(connectionID)
	if err != nil {
		return err
	}
	return translate(driver.Create(ctx, table, record))
}

func (m *Manager) UpdateRecord(ctx context.Context, connectionID string, table string, pk workset.Record, fields workset.Record) error {
	driver, err := m.Driver(connectionID)
	if err != nil {
		return err
	}
	return translate(driver.Update(ctx, table, pk, fields))
}

func (m *Manager) DeleteRecord(ctx context.Context, connectionID string, table string, pk workset.Record) error {
	driver, err := m.Driver(connectionID)
	if err != nil {
		return err
	}
	return translate(driver.Delete(ctx, table, pk))
}

func (m *Manager) BulkUpdate(ctx context.Context, connectionID string, table string, pks []workset.Record, patch workset.Record) error {
	driver, err := m.Driver(connectionID)
	if err != nil {
		return err
	}
	return translate(driver.BatchUpdate(ctx, table, toRecords(pks), patch))
}

func (m *Manager) BulkDelete(ctx context.Context, connectionID string, table string, pks []workset.Record) error {
	driver, err := m.Driver(connectionID)
	if err != nil {
		return err
	}
	return translate(driver.BatchDelete(ctx, table, toRecords(pks)))
}

// Close 关闭所有已经打开的驱动和缓存
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, driver := range m.drivers {
		if err := driver.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "close connection %s", id))
		}
		delete(m.drivers, id)
	}
	if m.cache != nil {
		if err := m.cache.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close cache"))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// translate 把驱动错误映射为 workset 的错误，原始信息保留在消息中
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrDuplicateKey):
		return errors.WithMessage(workset.ErrUniqueConstraint, err.Error())
	case errors.Is(err, database.ErrRecordNotFound):
		return errors.WithMessage(workset.ErrRecordNotFound, err.Error())
	case errors.Is(err, database.ErrTableNotFound):
		return errors.WithMessage(workset.ErrTableNotFound, err.Error())
	case errors.Is(err, database.ErrEmptyPrimary):
		return errors.WithMessage(workset.ErrNoPrimaryKey, err.Error())
	}
	return err
}

func toColumns(columns []database.Column) []workset.Column {
	if columns == nil {
		return nil
	}
	result := make([]workset.Column, len(columns))
	for i, c := range columns {
		result[i] = workset.Column{
			Name:         c.Name,
			Type:         c.Type,
			Nullable:     c.Nullable,
			PrimaryKey:   c.PrimaryKey,
			Unique:       c.Unique,
			ForeignKey:   c.ForeignKey,
			DefaultValue: c.DefaultValue,
		}
	}
	return result
}

// toRecords 复制切片，记录本身的 map 不复制
func toRecords(records []map[string]any) []map[string]any {
	result := make([]map[string]any, len(records))
	copy(result, records)
	return result
}
