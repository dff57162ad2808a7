package workset

import (
	"math"

	"github.com/pkg/errors"
)

// Table 工作集中的一张表
type Table struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Columns []Column `json:"columns"`
	Records []Record `json:"records"`
}

// RowCount 行数，始终等于 len(Records)
func (t *Table) RowCount() int {
	return len(t.Records)
}

func (t *Table) HasPrimaryKey() bool {
	return len(primaryKeyColumns(t.Columns)) > 0
}

func (t *Table) Key(record Record) string {
	return ResolveKey(record, t.Columns)
}

// Keys 按表内顺序返回所有记录的 key
func (t *Table) Keys() []string {
	keys := make([]string, len(t.Records))
	for i, record := range t.Records {
		keys[i] = t.Key(record)
	}
	return keys
}

// IndexOf 返回 key 对应记录的下标，不存在时返回 -1
func (t *Table) IndexOf(key string) int {
	for i, record := range t.Records {
		if t.Key(record) == key {
			return i
		}
	}
	return -1
}

func (t *Table) Column(name string) (Column, bool) {
	return findColumn(t.Columns, name)
}

func (t *Table) View(i int) View {
	return NewView(t.Records[i], t.Columns)
}

func (t *Table) Clone() *Table {
	return &Table{
		Name:    t.Name,
		Kind:    t.Kind,
		Columns: append([]Column(nil), t.Columns...),
		Records: copyRecords(t.Records),
	}
}

// nextID 当前最大数字 id 加一，没有数字 id 时为 1
func (t *Table) nextID() int64 {
	column := IdentifierColumn(t.Columns)
	var max float64
	for _, record := range t.Records {
		if id, ok := toNumber(record[column]); ok && id > max {
			max = id
		}
	}
	return int64(math.Floor(max)) + 1
}

// checkUnique 检查 unique 列的非空值和主键整体是否重复，skip 中的下标对应的记录不参与比较
// candidates 为将要写入的记录，多列主键只有所有列都相同才算重复
func checkUnique(table string, columns []Column, records []Record, candidates []Record, skip map[int]bool) error {
	for _, column := range columns {
		if !column.Unique {
			continue
		}
		same := func(a, b Record) bool {
			return valueEqual(a[column.Name], b[column.Name])
		}
		for i, candidate := range candidates {
			value := candidate[column.Name]
			if value == nil {
				continue
			}
			if conflicts(records, candidates[i+1:], candidate, skip, same) {
				return errors.WithMessagef(ErrUniqueConstraint, "%s.%s = %v", table, column.Name, Stringify(value))
			}
		}
	}

	pk := primaryKeyColumns(columns)
	if len(pk) == 0 {
		return nil
	}
	same := func(a, b Record) bool {
		for _, column := range pk {
			if !valueEqual(a[column.Name], b[column.Name]) {
				return false
			}
		}
		return true
	}
	for i, candidate := range candidates {
		if !hasAll(candidate, pk) {
			continue
		}
		if conflicts(records, candidates[i+1:], candidate, skip, same) {
			return errors.WithMessagef(ErrUniqueConstraint, "%s primary key %s", table, ResolveKey(candidate, pk))
		}
	}
	return nil
}

func conflicts(records []Record, rest []Record, candidate Record, skip map[int]bool, same func(a, b Record) bool) bool {
	for j, record := range records {
		if !skip[j] && same(record, candidate) {
			return true
		}
	}
	for _, other := range rest {
		if same(other, candidate) {
			return true
		}
	}
	return false
}

func hasAll(record Record, columns []Column) bool {
	for _, column := range columns {
		if record[column.Name] == nil {
			return false
		}
	}
	return true
}
