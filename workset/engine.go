package workset

import (
	"context"
	"sync"
	"time"

	"github.com/hatlonely/tablex/cfg"
	"github.com/hatlonely/tablex/log"
	"github.com/hatlonely/tablex/log/logger"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type EngineOptions struct {
	// 每页条数
	PageSize int `cfg:"pageSize" def:"10" validate:"min=1"`
	// 加载连接时并发拉取记录的表数
	FetchConcurrency int `cfg:"fetchConcurrency" def:"4" validate:"min=1"`
	// 日期时间列的显示格式
	TimeLayout string `cfg:"timeLayout" def:"2006-01-02 15:04:05"`

	Bulk BulkOptions `cfg:"bulk"`
}

type EngineOption func(*Engine)

func WithDataSource(source DataSource) EngineOption {
	return func(e *Engine) { e.source = source }
}

func WithPersister(persister Persister) EngineOption {
	return func(e *Engine) { e.persister = persister }
}

func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(metrics *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = metrics }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func WithLocation(location *time.Location) EngineOption {
	return func(e *Engine) { e.location = location }
}

// Engine 持有工作集和界面状态（当前表、搜索词、页码、选择、编辑），所有修改串行执行
type Engine struct {
	mu sync.Mutex

	options   *EngineOptions
	store     *Store
	lifecycle *Lifecycle
	bulk      *Bulk
	formatter *Formatter
	source    DataSource
	persister Persister
	log       logger.Logger
	metrics   *Metrics
	now       func() time.Time
	location  *time.Location

	connectionID string
	active       string
	term         string
	page         int
	selection    *SelectionSet
	edit         *EditSession
	task         *Task

	subMu       sync.Mutex
	subscribers map[int]func(Event)
	nextSub     int
}

func NewEngineWithOptions(options *EngineOptions, opts ...EngineOption) (*Engine, error) {
	if options == nil {
		options = &EngineOptions{}
		if err := cfg.SetDefaults(options); err != nil {
			return nil, errors.WithMessage(err, "set engine defaults failed")
		}
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.WithMessage(err, "invalid engine options")
	}

	e := &Engine{
		options:     options,
		store:       NewStore(),
		bulk:        NewBulk(&options.Bulk),
		now:         time.Now,
		page:        1,
		selection:   NewSelectionSet(),
		edit:        NewEditSession(),
		subscribers: map[int]func(Event){},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = log.OrDefault(e.log).WithGroup("engine")
	e.lifecycle = NewLifecycle(e.store, e.now)
	e.formatter = NewFormatter(options.TimeLayout, e.location)
	return e, nil
}

// Subscribe 注册事件回调，返回取消注册的函数，回调在锁外执行
func (e *Engine) Subscribe(fn func(Event)) func() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = fn
	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subscribers, id)
	}
}

func (e *Engine) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	e.subMu.Lock()
	subscribers := make([]func(Event), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		subscribers = append(subscribers, fn)
	}
	e.subMu.Unlock()

	for _, event := range events {
		if event.Time.IsZero() {
			event.Time = e.now()
		}
		for _, fn := range subscribers {
			fn(event)
		}
	}
}

// mutate 在锁内执行修改，批量任务运行期间返回 ErrBusy
func (e *Engine) mutate(fn func() ([]Event, error)) error {
	e.mu.Lock()
	if e.task != nil {
		e.mu.Unlock()
		return ErrBusy
	}
	events, err := fn()
	if err == nil {
		e.reconcile()
	}
	e.mu.Unlock()

	if err != nil {
		return err
	}
	e.emit(events...)
	return nil
}

// reconcile 修改之后保持选择和编辑状态与工作集一致
func (e *Engine) reconcile() {
	t, err := e.store.Table(e.active)
	if err != nil {
		e.active = ""
		e.selection.Clear()
		e.edit.Reset()
		e.metrics.observeRows(e.store.tables)
		return
	}

	if e.selection.Len() > 0 {
		present := make(map[string]struct{}, len(t.Records))
		for _, key := range t.Keys() {
			present[key] = struct{}{}
		}
		e.selection.Retain(func(key string) bool {
			_, ok := present[key]
			return ok
		})
	}

	if cell, ok := e.edit.Cell(); ok {
		if _, ok := t.Column(cell.ColumnName); !ok || cell.Table != t.Name || t.IndexOf(cell.RecordKey) < 0 {
			e.edit.Reset()
		}
	}
	e.metrics.observeRows(e.store.tables)
}

func (e *Engine) activeTable() (*Table, error) {
	if e.active == "" {
		return nil, ErrNoActiveTable
	}
	return e.store.Table(e.active)
}

// TableSummary 表的概要信息
type TableSummary struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	RowCount int      `json:"rowCount"`
	Columns  []Column `json:"columns"`
}

func (e *Engine) Tables() []TableSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	summaries := make([]TableSummary, 0, e.store.Len())
	for _, t := range e.store.tables {
		summaries = append(summaries, TableSummary{
			Name:     t.Name,
			Kind:     t.Kind,
			RowCount: t.RowCount(),
			Columns:  append([]Column(nil), t.Columns...),
		})
	}
	return summaries
}

// Table 返回表的深拷贝
func (e *Engine) Table(name string) (*Table, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, err := e.store.Table(name)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func (e *Engine) Snapshot() []*Table {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Snapshot()
}

// ActiveTable 当前表名，没有当前表时为空
func (e *Engine) ActiveTable() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) ConnectionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connectionID
}

// Busy 是否有批量任务正在运行
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task != nil
}

// SelectTable 切换当前表，选择和编辑状态被清空，页码不做修正
func (e *Engine) SelectTable(name string) error {
	return e.mutate(func() ([]Event, error) {
		if _, err := e.store.Table(name); err != nil {
			return nil, err
		}
		if e.active == name {
			return nil, nil
		}
		e.active = name
		e.selection.Clear()
		e.edit.Reset()
		return []Event{{Type: EventTableSelected, Table: name}}, nil
	})
}

// SetSearch 修改搜索词，页码和选择都不变
func (e *Engine) SetSearch(term string) {
	e.mu.Lock()
	e.term = term
	table := e.active
	e.mu.Unlock()
	e.emit(Event{Type: EventPageChanged, Table: table})
}

func (e *Engine) Search() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.term
}

func (e *Engine) SetPage(page int) {
	e.mu.Lock()
	e.page = page
	table := e.active
	e.mu.Unlock()
	e.emit(Event{Type: EventPageChanged, Table: table})
}

// ClampPage 把页码修正到当前过滤结果的页数范围内
func (e *Engine) ClampPage() int {
	e.mu.Lock()
	total := 0
	if t, err := e.activeTable(); err == nil {
		total = TotalPages(len(Filter(t.Records, e.term)), e.options.PageSize)
	}
	e.page = ClampPage(e.page, total)
	page := e.page
	table := e.active
	e.mu.Unlock()

	e.emit(Event{Type: EventPageChanged, Table: table})
	return page
}

func (e *Engine) visiblePage() (Page, error) {
	t, err := e.activeTable()
	if err != nil {
		return Page{}, err
	}
	return Paginate(Filter(t.Records, e.term), e.page, e.options.PageSize), nil
}

// VisiblePage 当前页的记录副本
func (e *Engine) VisiblePage() (Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	page, err := e.visiblePage()
	if err != nil {
		return Page{}, err
	}
	page.Records = copyRecords(page.Records)
	return page, nil
}

// PageKeys 当前页记录的 key
func (e *Engine) PageKeys() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pageKeys()
}

func (e *Engine) pageKeys() ([]string, error) {
	page, err := e.visiblePage()
	if err != nil {
		return nil, err
	}
	t, _ := e.activeTable()
	keys := make([]string, len(page.Records))
	for i, record := range page.Records {
		keys[i] = t.Key(record)
	}
	return keys, nil
}

// FormatCell 当前表中某一列的显示文本
func (e *Engine) FormatCell(record Record, columnName string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	column := Column{Name: columnName}
	if t, err := e.activeTable(); err == nil {
		if c, ok := t.Column(columnName); ok {
			column = c
		}
	}
	return e.formatter.Format(record[columnName], column)
}

func (e *Engine) Formatter() *Formatter {
	return e.formatter
}

func (e *Engine) Selection() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection.Keys()
}

// ToggleSelection 只能选择当前表中存在的记录
func (e *Engine) ToggleSelection(key string) (bool, error) {
	var selected bool
	err := e.mutate(func() ([]Event, error) {
		t, err := e.activeTable()
		if err != nil {
			return nil, err
		}
		if t.IndexOf(key) < 0 {
			return nil, errors.WithMessagef(ErrRecordNotFound, "%s[%s]", t.Name, key)
		}
		selected = e.selection.Toggle(key)
		return []Event{{Type: EventSelectionChanged, Table: t.Name, Key: key}}, nil
	})
	return selected, err
}

func (e *Engine) ToggleAllOnPage() error {
	return e.mutate(func() ([]Event, error) {
		keys, err := e.pageKeys()
		if err != nil {
			return nil, err
		}
		e.selection.ToggleAllOnPage(keys)
		return []Event{{Type: EventSelectionChanged, Table: e.active}}, nil
	})
}

func (e *Engine) ClearSelection() error {
	return e.mutate(func() ([]Event, error) {
		e.selection.Clear()
		return []Event{{Type: EventSelectionChanged, Table: e.active}}, nil
	})
}

func (e *Engine) Editing() (EditingCell, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.edit.Cell()
}

func (e *Engine) EditOutcome() EditOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.edit.Outcome()
}

func (e *Engine) StartEdit(key string, column string, value any) error {
	return e.mutate(func() ([]Event, error) {
		t, err := e.activeTable()
		if err != nil {
			return nil, err
		}
		if err := e.edit.Start(t, key, column, value); err != nil {
			return nil, err
		}
		return []Event{{Type: EventEditChanged, Table: t.Name, Key: key}}, nil
	})
}

func (e *Engine) UpdateDraft(value any) error {
	return e.mutate(func() ([]Event, error) {
		if err := e.edit.UpdateDraft(value); err != nil {
			return nil, err
		}
		return []Event{{Type: EventEditChanged, Table: e.active}}, nil
	})
}

// CommitEdit 写入草稿，违反唯一约束时保持编辑状态，返回记录提交后的 key
func (e *Engine) CommitEdit(ctx context.Context) (string, error) {
	var newKey string
	err := e.mutate(func() ([]Event, error) {
		t, err := e.activeTable()
		if err != nil {
			return nil, err
		}
		i, err := e.edit.Prepare(t)
		if err != nil {
			return nil, err
		}
		if e.persister != nil {
			cell, _ := e.edit.Cell()
			pk := primaryKeyOf(t.Records[i], t.Columns)
			if err := e.persister.UpdateRecord(ctx, e.connectionID, t.Name, pk, Record{cell.ColumnName: cell.Value}); err != nil {
				return nil, errors.WithMessagef(err, "persist edit of %s", t.Name)
			}
		}
		oldKey, key, err := e.edit.apply(t, i)
		if err != nil {
			return nil, err
		}
		e.selection.Rename(oldKey, key)
		newKey = key
		return []Event{
			{Type: EventEditChanged, Table: t.Name, Key: key},
			{Type: EventRecordsChanged, Table: t.Name, Key: key},
		}, nil
	})
	if err != nil {
		e.log.WarnContext(ctx, "commit edit failed", "error", err)
	}
	return newKey, err
}

func (e *Engine) CancelEdit() error {
	return e.mutate(func() ([]Event, error) {
		if err := e.edit.Cancel(); err != nil {
			return nil, err
		}
		return []Event{{Type: EventEditChanged, Table: e.active}}, nil
	})
}

// CreateTable 新建表，没有当前表时新表成为当前表
func (e *Engine) CreateTable(name string, kind string, columns []Column) error {
	return e.mutate(func() ([]Event, error) {
		t, err := e.lifecycle.CreateTable(name, kind, columns)
		if err != nil {
			return nil, err
		}
		events := []Event{{Type: EventTablesChanged, Table: t.Name}}
		if e.active == "" {
			e.active = t.Name
			events = append(events, Event{Type: EventTableSelected, Table: t.Name})
		}
		return events, nil
	})
}

// DeleteTable 删除当前表时切换到第一张剩余的表，没有剩余的表时当前表为空
func (e *Engine) DeleteTable(name string) error {
	return e.mutate(func() ([]Event, error) {
		if err := e.lifecycle.DeleteTable(name); err != nil {
			return nil, err
		}
		events := []Event{{Type: EventTablesChanged, Table: name}}
		if e.active == name {
			e.active = ""
			if first, ok := e.store.First(); ok {
				e.active = first.Name
			}
			e.selection.Clear()
			e.edit.Reset()
			events = append(events, Event{Type: EventTableSelected, Table: e.active})
		}
		return events, nil
	})
}

func (e *Engine) AddColumn(table string, column Column) error {
	return e.mutate(func() ([]Event, error) {
		if err := e.lifecycle.AddColumn(table, column); err != nil {
			return nil, err
		}
		return []Event{{Type: EventTablesChanged, Table: table}}, nil
	})
}

func (e *Engine) UpdateColumn(table string, index int, column Column) error {
	return e.mutate(func() ([]Event, error) {
		if err := e.lifecycle.UpdateColumn(table, index, column); err != nil {
			return nil, err
		}
		return []Event{{Type: EventTablesChanged, Table: table}}, nil
	})
}

func (e *Engine) RemoveColumn(table string, index int) error {
	return e.mutate(func() ([]Event, error) {
		if err := e.lifecycle.RemoveColumn(table, index); err != nil {
			return nil, err
		}
		return []Event{{Type: EventTablesChanged, Table: table}}, nil
	})
}

func (e *Engine) CreateRecord(ctx context.Context, table string, fields Record) (Record, error) {
	var created Record
	err := e.mutate(func() ([]Event, error) {
		t, record, err := e.lifecycle.PrepareRecord(table, fields)
		if err != nil {
			return nil, err
		}
		if e.persister != nil {
			if err := e.persister.CreateRecord(ctx, e.connectionID, t.Name, record); err != nil {
				return nil, errors.WithMessagef(err, "persist record of %s", t.Name)
			}
		}
		t.Records = append(t.Records, record)
		created = copyRecord(record)
		return []Event{{Type: EventRecordsChanged, Table: t.Name, Key: t.Key(record)}}, nil
	})
	return created, err
}

func (e *Engine) UpdateRecord(ctx context.Context, table string, key string, fields Record) (Record, error) {
	var updated Record
	err := e.mutate(func() ([]Event, error) {
		t, i, merged, err := e.lifecycle.PrepareUpdate(table, key, fields)
		if err != nil {
			return nil, err
		}
		if e.persister != nil {
			pk := primaryKeyOf(t.Records[i], t.Columns)
			if err := e.persister.UpdateRecord(ctx, e.connectionID, t.Name, pk, fields); err != nil {
				return nil, errors.WithMessagef(err, "persist update of %s", t.Name)
			}
		}
		t.Records[i] = merged
		newKey := t.Key(merged)
		if t.Name == e.active {
			e.selection.Rename(key, newKey)
		}
		updated = copyRecord(merged)
		return []Event{{Type: EventRecordsChanged, Table: t.Name, Key: newKey}}, nil
	})
	return updated, err
}

func (e *Engine) DeleteRecord(ctx context.Context, table string, key string) error {
	return e.mutate(func() ([]Event, error) {
		t, i, err := e.lifecycle.PrepareDelete(table, key)
		if err != nil {
			return nil, err
		}
		if e.persister != nil {
			pk := primaryKeyOf(t.Records[i], t.Columns)
			if err := e.persister.DeleteRecord(ctx, e.connectionID, t.Name, pk); err != nil {
				return nil, errors.WithMessagef(err, "persist delete of %s", t.Name)
			}
		}
		t.Records = append(t.Records[:i], t.Records[i+1:]...)
		return []Event{{Type: EventRecordsChanged, Table: t.Name, Key: key}}, nil
	})
}

// Export 导出当前选择，不修改工作集，批量任务运行期间也可以执行
func (e *Engine) Export(format string) (*Artifact, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.activeTable()
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = e.options.Bulk.ExportFormat
	}
	return Export(t, e.selection.Keys(), format, e.now())
}

// LoadConnection 从 DataSource 拉取全部表和记录并替换工作集
// 单张表拉取失败时记录告警并保留为空表
func (e *Engine) LoadConnection(ctx context.Context, connectionID string) error {
	if e.source == nil {
		return ErrNoDataSource
	}
	if e.Busy() {
		return ErrBusy
	}

	infos, err := e.source.ListTables(ctx, connectionID)
	if err != nil {
		return errors.WithMessagef(err, "list tables of %s", connectionID)
	}

	tables := make([]*Table, len(infos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.options.FetchConcurrency)
	for i, info := range infos {
		i, info := i, info
		g.Go(func() error {
			records, err := e.source.ListRecords(gctx, connectionID, info.Name)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.log.WarnContext(ctx, "fetch records failed", "connection", connectionID, "table", info.Name, "error", err)
				records = nil
			}
			tables[i] = &Table{
				Name:    info.Name,
				Kind:    info.Kind,
				Columns: append([]Column(nil), info.Columns...),
				Records: records,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.WithMessagef(err, "load connection %s", connectionID)
	}

	err = e.mutate(func() ([]Event, error) {
		if err := e.lifecycle.Materialize(tables); err != nil {
			return nil, err
		}
		e.connectionID = connectionID
		e.active = ""
		if first, ok := e.store.First(); ok {
			e.active = first.Name
		}
		e.term = ""
		e.page = 1
		e.selection.Clear()
		e.edit.Reset()
		return []Event{
			{Type: EventTablesChanged},
			{Type: EventTableSelected, Table: e.active},
		}, nil
	})
	if err != nil {
		return err
	}
	e.log.InfoContext(ctx, "connection loaded", "connection", connectionID, "tables", len(tables))
	return nil
}
