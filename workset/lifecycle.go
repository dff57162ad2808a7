package workset

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// CreatedAtField 新建记录时写入的创建时间字段
const CreatedAtField = "created_at"

// Lifecycle 表和单条记录的增删改，所有校验在修改之前完成
type Lifecycle struct {
	store *Store
	now   func() time.Time
}

func NewLifecycle(store *Store, now func() time.Time) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{store: store, now: now}
}

func (l *Lifecycle) CreateTable(name string, kind string, columns []Column) (*Table, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.WithMessage(ErrInvalidName, "table name is empty")
	}
	if l.store.Has(name) {
		return nil, errors.WithMessagef(ErrDuplicateTableName, "table %s", name)
	}
	if kind == "" {
		kind = KindTable
	}
	columns = append([]Column(nil), columns...)
	if err := ValidateColumns(columns); err != nil {
		return nil, err
	}

	t := &Table{Name: name, Kind: kind, Columns: columns, Records: []Record{}}
	if err := l.store.Add(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (l *Lifecycle) DeleteTable(name string) error {
	return l.store.Remove(name)
}

func (l *Lifecycle) AddColumn(table string, column Column) error {
	t, err := l.store.Table(table)
	if err != nil {
		return err
	}
	columns := append(append([]Column(nil), t.Columns...), column)
	if err := ValidateColumns(columns); err != nil {
		return err
	}
	t.Columns = columns
	return nil
}

// UpdateColumn 只修改列定义，不改动已有记录中的值
func (l *Lifecycle) UpdateColumn(table string, index int, column Column) error {
	t, err := l.store.Table(table)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(t.Columns) {
		return errors.WithMessagef(ErrColumnIndex, "index %d of %d", index, len(t.Columns))
	}
	columns := append([]Column(nil), t.Columns...)
	columns[index] = column
	if err := ValidateColumns(columns); err != nil {
		return err
	}
	t.Columns = columns
	return nil
}

func (l *Lifecycle) RemoveColumn(table string, index int) error {
	t, err := l.store.Table(table)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(t.Columns) {
		return errors.WithMessagef(ErrColumnIndex, "index %d of %d", index, len(t.Columns))
	}
	columns := append([]Column(nil), t.Columns[:index]...)
	t.Columns = append(columns, t.Columns[index+1:]...)
	return nil
}

// PrepareRecord 生成要插入的记录但不写入：合成 id，写入创建时间，检查主键和唯一约束
func (l *Lifecycle) PrepareRecord(table string, fields Record) (*Table, Record, error) {
	t, err := l.store.Table(table)
	if err != nil {
		return nil, nil, err
	}

	record := Record{IdentifierColumn(t.Columns): t.nextID()}
	for k, v := range fields {
		record[k] = v
	}
	record[CreatedAtField] = l.now().UTC().Format(time.RFC3339)

	if err := checkUnique(t.Name, t.Columns, t.Records, []Record{record}, nil); err != nil {
		return nil, nil, err
	}
	return t, record, nil
}

func (l *Lifecycle) CreateRecord(table string, fields Record) (Record, error) {
	t, record, err := l.PrepareRecord(table, fields)
	if err != nil {
		return nil, err
	}
	t.Records = append(t.Records, record)
	return copyRecord(record), nil
}

// PrepareUpdate 校验对 key 对应记录的修改，返回记录下标和合并后的记录
func (l *Lifecycle) PrepareUpdate(table string, key string, fields Record) (*Table, int, Record, error) {
	t, err := l.store.Table(table)
	if err != nil {
		return nil, 0, nil, err
	}
	i := t.IndexOf(key)
	if i < 0 {
		return nil, 0, nil, errors.WithMessagef(ErrRecordNotFound, "%s[%s]", table, key)
	}
	current := t.Records[i]
	for _, column := range primaryKeyColumns(t.Columns) {
		if value, ok := fields[column.Name]; ok && !valueEqual(value, current[column.Name]) {
			return nil, 0, nil, errors.WithMessagef(ErrImmutableColumn, "%s.%s", table, column.Name)
		}
	}
	if err := checkUnique(t.Name, uniqueOnly(t.Columns), t.Records, []Record{fields}, map[int]bool{i: true}); err != nil {
		return nil, 0, nil, err
	}

	merged := copyRecord(current)
	for k, v := range fields {
		merged[k] = v
	}
	return t, i, merged, nil
}

func (l *Lifecycle) UpdateRecord(table string, key string, fields Record) (Record, error) {
	t, i, merged, err := l.PrepareUpdate(table, key, fields)
	if err != nil {
		return nil, err
	}
	t.Records[i] = merged
	return copyRecord(merged), nil
}

// PrepareDelete 返回待删除记录的下标，没有主键的表不允许单条删除
func (l *Lifecycle) PrepareDelete(table string, key string) (*Table, int, error) {
	t, err := l.store.Table(table)
	if err != nil {
		return nil, 0, err
	}
	if !t.HasPrimaryKey() {
		return nil, 0, errors.WithMessagef(ErrNoPrimaryKey, "table %s", table)
	}
	i := t.IndexOf(key)
	if i < 0 {
		return nil, 0, errors.WithMessagef(ErrRecordNotFound, "%s[%s]", table, key)
	}
	return t, i, nil
}

func (l *Lifecycle) DeleteRecord(table string, key string) error {
	t, i, err := l.PrepareDelete(table, key)
	if err != nil {
		return err
	}
	t.Records = append(t.Records[:i], t.Records[i+1:]...)
	return nil
}

// Materialize 用远端列出的表替换整个 Store，没有列定义的表根据第一条记录推断
func (l *Lifecycle) Materialize(tables []*Table) error {
	for _, t := range tables {
		if t.Kind == "" {
			t.Kind = KindTable
		}
		if len(t.Columns) == 0 {
			t.Columns = inferColumns(t.Records)
		}
		if t.Records == nil {
			t.Records = []Record{}
		}
	}
	return l.store.Replace(tables)
}

// uniqueOnly 主键列的冲突由不可变检查覆盖，这里只保留 unique 列
func uniqueOnly(columns []Column) []Column {
	var result []Column
	for _, column := range columns {
		if column.Unique && !column.PrimaryKey {
			result = append(result, column)
		}
	}
	return result
}
