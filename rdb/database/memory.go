package database

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/hatlonely/tablex/kv/serializer"
	"github.com/hatlonely/tablex/rdb/query"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

type MemoryTableOptions struct {
	Name    string           `cfg:"name" json:"name" validate:"required"`
	Kind    string           `cfg:"kind" json:"kind" def:"table"`
	Columns []Column         `cfg:"columns" json:"columns"`
	Records []map[string]any `cfg:"records" json:"records"`
}

type MemoryOptions struct {
	// 直接在配置中声明的表
	Tables []MemoryTableOptions `cfg:"tables"`
	// JSON 格式的种子文件，内容为 MemoryTableOptions 数组
	SeedFile string `cfg:"seedFile"`
}

// Memory 进程内驱动，用于测试和 CLI 演示
// 查询条件只支持 Search，Find 的 query 参数只支持 TermQuery 及其 AND 组合，其他类型返回错误
type Memory struct {
	mu     sync.RWMutex
	order  []string
	tables map[string]*memoryTable
}

type memoryTable struct {
	info    TableInfo
	records []Record
}

func NewMemoryWithOptions(options *MemoryOptions) (*Memory, error) {
	tables := options.Tables
	if options.SeedFile != "" {
		data, err := os.ReadFile(options.SeedFile)
		if err != nil {
			return nil, errors.Wrapf(err, "read seed file %s failed", options.SeedFile)
		}
		seeds, err := serializer.NewJSONSerializer[[]MemoryTableOptions]().Deserialize(data)
		if err != nil {
			return nil, errors.Wrapf(err, "decode seed file %s failed", options.SeedFile)
		}
		tables = append(tables, seeds...)
	}

	m := &Memory{tables: map[string]*memoryTable{}}
	for _, t := range tables {
		if _, ok := m.tables[t.Name]; ok {
			return nil, errors.Errorf("duplicate table %s", t.Name)
		}
		kind := t.Kind
		if kind == "" {
			kind = KindTable
		}
		records := make([]Record, 0, len(t.Records))
		for _, r := range t.Records {
			records = append(records, copyRecord(r))
		}
		m.order = append(m.order, t.Name)
		m.tables[t.Name] = &memoryTable{
			info:    TableInfo{Name: t.Name, Kind: kind, Columns: append([]Column(nil), t.Columns...)},
			records: records,
		}
	}
	return m, nil
}

func copyRecord(record Record) Record {
	result := make(Record, len(record))
	for k, v := range record {
		result[k] = v
	}
	return result
}

func (m *Memory) table(name string) (*memoryTable, error) {
	t, ok := m.tables[name]
	if !ok {
		return nil, errors.WithMessagef(ErrTableNotFound, "table %s", name)
	}
	return t, nil
}

func (m *Memory) ListTables(ctx context.Context) ([]TableInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tables := make([]TableInfo, 0, len(m.order))
	for _, name := range m.order {
		info := m.tables[name].info
		info.Columns = append([]Column(nil), info.Columns...)
		tables = append(tables, info)
	}
	return tables, nil
}

func (m *Memory) find(table string, match func(Record) bool, opts []QueryOption) ([]Record, error) {
	options := applyQueryOptions(0, opts)

	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.table(table)
	if err != nil {
		return nil, err
	}

	var records []Record
	skipped := 0
	for _, record := range t.records {
		if match != nil && !match(record) {
			continue
		}
		if skipped < options.Offset {
			skipped++
			continue
		}
		if options.Limit > 0 && len(records) >= options.Limit {
			break
		}
		records = append(records, copyRecord(record))
	}
	return records, nil
}

func (m *Memory) Find(ctx context.Context, table string, q query.Query, opts ...QueryOption) ([]Record, error) {
	var match func(Record) bool
	if q != nil {
		pk, err := termsOf(q)
		if err != nil {
			return nil, err
		}
		match = func(record Record) bool { return matchPK(record, pk) }
	}
	return m.find(table, match, opts)
}

// termsOf 把 TermQuery 或只包含 TermQuery 的 Must 组合展开为字段到值的映射
func termsOf(q query.Query) (Record, error) {
	switch v := q.(type) {
	case *query.TermQuery:
		return Record{v.Field: v.Value}, nil
	case *query.BoolQuery:
		if len(v.Should) == 0 && len(v.MustNot) == 0 {
			terms := Record{}
			for _, must := range v.Must {
				sub, err := termsOf(must)
				if err != nil {
					return nil, err
				}
				for field, value := range sub {
					terms[field] = value
				}
			}
			return terms, nil
		}
	}
	return nil, errors.Errorf("memory driver does not support %s query", q.Type())
}

func (m *Memory) Search(ctx context.Context, table string, term string, opts ...QueryOption) ([]Record, error) {
	if term == "" {
		return m.find(table, nil, opts)
	}
	lowerTerm := strings.ToLower(term)
	return m.find(table, func(record Record) bool { return matchRecord(record, lowerTerm) }, opts)
}

func containsLower(s string, lowerTerm string) bool {
	return strings.Contains(strings.ToLower(s), lowerTerm)
}

func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, errA := cast.ToFloat64E(a)
	fb, errB := cast.ToFloat64E(b)
	if errA == nil && errB == nil {
		return fa == fb
	}
	return cast.ToString(a) == cast.ToString(b)
}

func matchPK(record Record, pk Record) bool {
	for k, v := range pk {
		if !valueEqual(record[k], v) {
			return false
		}
	}
	return true
}

func (t *memoryTable) index(pk Record) int {
	for i, record := range t.records {
		if matchPK(record, pk) {
			return i
		}
	}
	return -1
}

func (t *memoryTable) primaryKey() []string {
	var keys []string
	for _, column := range t.info.Columns {
		if column.PrimaryKey {
			keys = append(keys, column.Name)
		}
	}
	return keys
}

func (m *Memory) Create(ctx context.Context, table string, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.table(table)
	if err != nil {
		return err
	}
	if keys := t.primaryKey(); len(keys) > 0 {
		pk := Record{}
		for _, key := range keys {
			pk[key] = record[key]
		}
		if t.index(pk) >= 0 {
			return errors.WithMessagef(ErrDuplicateKey, "table %s", table)
		}
	}
	t.records = append(t.records, copyRecord(record))
	return nil
}

func (m *Memory) Update(ctx context.Context, table string, pk Record, fields Record) error {
	return m.BatchUpdate(ctx, table, []Record{pk}, fields)
}

func (m *Memory) Delete(ctx context.Context, table string, pk Record) error {
	return m.BatchDelete(ctx, table, []Record{pk})
}

// BatchUpdate 全部主键都存在才会写入
func (m *Memory) BatchUpdate(ctx context.Context, table string, pks []Record, fields Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.table(table)
	if err != nil {
		return err
	}
	indexes, err := t.indexes(pks)
	if err != nil {
		return err
	}
	for _, i := range indexes {
		for k, v := range fields {
			t.records[i][k] = v
		}
	}
	return nil
}

func (m *Memory) BatchDelete(ctx context.Context, table string, pks []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.table(table)
	if err != nil {
		return err
	}
	indexes, err := t.indexes(pks)
	if err != nil {
		return err
	}
	remove := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		remove[i] = true
	}
	records := t.records[:0]
	for i, record := range t.records {
		if !remove[i] {
			records = append(records, record)
		}
	}
	t.records = records
	return nil
}

func (t *memoryTable) indexes(pks []Record) ([]int, error) {
	indexes := make([]int, 0, len(pks))
	for _, pk := range pks {
		if len(pk) == 0 {
			return nil, ErrEmptyPrimary
		}
		i := t.index(pk)
		if i < 0 {
			return nil, ErrRecordNotFound
		}
		indexes = append(indexes, i)
	}
	return indexes, nil
}

func (m *Memory) Close() error {
	return nil
}
