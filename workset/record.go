package workset

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/hatlonely/tablex/kv/serializer"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Record 一条记录，缺失的字段等价于 null
type Record = map[string]any

func copyRecord(record Record) Record {
	result := make(Record, len(record))
	for k, v := range record {
		result[k] = v
	}
	return result
}

func copyRecords(records []Record) []Record {
	result := make([]Record, len(records))
	for i, record := range records {
		result[i] = copyRecord(record)
	}
	return result
}

func sortedFields(record Record) []string {
	names := make([]string, 0, len(record))
	for name := range record {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var canonicalJSON = serializer.NewJSONSerializer[any]()

// Stringify 值的字符串形式，用于记录键和搜索
// nil 为空串，数字取最短形式，时间为 RFC3339Nano，嵌套文档为 JSON
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case map[string]any, []any:
		data, err := canonicalJSON.Serialize(v)
		if err != nil {
			return cast.ToString(v)
		}
		return string(data)
	}
	if s, err := cast.ToStringE(value); err == nil {
		return s
	}
	data, err := canonicalJSON.Serialize(value)
	if err != nil {
		return ""
	}
	return string(data)
}

// toNumber 数字和数字字符串转换为 float64，用于生成 id
func toNumber(value any) (float64, bool) {
	switch value.(type) {
	case nil, bool, time.Time:
		return 0, false
	}
	f, err := cast.ToFloat64E(value)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// numeric 只接受数字类型，数字字符串不算
func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		f := cast.ToFloat64(v)
		return f, !math.IsNaN(f)
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// valueEqual 唯一性比较：两边都是数字时按数值比较，其他按字符串形式精确比较
func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, okA := numeric(a)
	fb, okB := numeric(b)
	if okA && okB {
		return fa == fb
	}
	return Stringify(a) == Stringify(b)
}

// View 带列定义的记录访问器，字段缺失时返回零值，列名不存在时返回 ErrColumnNotFound
type View struct {
	record  Record
	columns []Column
}

func NewView(record Record, columns []Column) View {
	return View{record: record, columns: columns}
}

func (v View) Record() Record {
	return copyRecord(v.record)
}

func (v View) Columns() []Column {
	return v.columns
}

func (v View) Get(name string) (any, error) {
	if _, ok := findColumn(v.columns, name); !ok {
		return nil, errors.WithMessagef(ErrColumnNotFound, "column %s", name)
	}
	return v.record[name], nil
}

func (v View) IsNull(name string) (bool, error) {
	value, err := v.Get(name)
	if err != nil {
		return false, err
	}
	return value == nil, nil
}

func (v View) String(name string) (string, error) {
	value, err := v.Get(name)
	if err != nil {
		return "", err
	}
	return Stringify(value), nil
}

func (v View) Int64(name string) (int64, error) {
	value, err := v.Get(name)
	if err != nil || value == nil {
		return 0, err
	}
	if n, ok := value.(json.Number); ok {
		return n.Int64()
	}
	return cast.ToInt64E(value)
}

func (v View) Float64(name string) (float64, error) {
	value, err := v.Get(name)
	if err != nil || value == nil {
		return 0, err
	}
	return cast.ToFloat64E(value)
}

func (v View) Bool(name string) (bool, error) {
	value, err := v.Get(name)
	if err != nil || value == nil {
		return false, err
	}
	return cast.ToBoolE(value)
}

func (v View) Time(name string) (time.Time, error) {
	value, err := v.Get(name)
	if err != nil || value == nil {
		return time.Time{}, err
	}
	return cast.ToTimeE(value)
}
