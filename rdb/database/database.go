package database

import (
	"context"
	"sort"
	"time"

	"github.com/hatlonely/tablex/rdb/query"
	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrTableNotFound  = errors.New("table not found")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrEmptyPrimary   = errors.New("primary key is empty")
)

// Namespace 驱动在 ref 中注册的命名空间
const Namespace = "github.com/hatlonely/tablex/rdb/database"

// Kind 表的种类
const (
	KindTable      = "table"
	KindView       = "view"
	KindCollection = "collection"
)

// Record 一条记录，字段缺失等价于 null
type Record = map[string]any

// Column 列定义，由驱动从数据库元数据中读取
type Column struct {
	Name         string  `cfg:"name" json:"name"`
	Type         string  `cfg:"type" json:"type"`
	Nullable     bool    `cfg:"nullable" json:"nullable"`
	PrimaryKey   bool    `cfg:"primaryKey" json:"primaryKey"`
	Unique       bool    `cfg:"unique" json:"unique"`
	ForeignKey   bool    `cfg:"foreignKey" json:"foreignKey"`
	DefaultValue *string `cfg:"defaultValue" json:"defaultValue,omitempty"`
}

// TableInfo 表的描述，Columns 可能为空（例如没有 schema 的集合）
type TableInfo struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Columns []Column `json:"columns"`
}

// QueryOptions 查询选项
type QueryOptions struct {
	Limit  int
	Offset int
}

type QueryOption func(*QueryOptions)

func WithLimit(limit int) QueryOption {
	return func(options *QueryOptions) {
		options.Limit = limit
	}
}

func WithOffset(offset int) QueryOption {
	return func(options *QueryOptions) {
		options.Offset = offset
	}
}

func applyQueryOptions(defaultLimit int, opts []QueryOption) *QueryOptions {
	options := &QueryOptions{Limit: defaultLimit}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// Driver 数据库驱动接口，关系型和文档型数据库都通过它暴露为表和记录
type Driver interface {
	// ListTables 列出所有表及其列定义
	ListTables(ctx context.Context) ([]TableInfo, error)
	// Find 查询记录，q 为 nil 时返回全部（受 Limit 限制）
	Find(ctx context.Context, table string, q query.Query, opts ...QueryOption) ([]Record, error)
	// Search 在表的所有可搜索字段上做不区分大小写的子串匹配
	Search(ctx context.Context, table string, term string, opts ...QueryOption) ([]Record, error)
	Create(ctx context.Context, table string, record Record) error
	// Update 按主键更新字段
	Update(ctx context.Context, table string, pk Record, fields Record) error
	// Delete 按主键删除，记录不存在时返回 ErrRecordNotFound
	Delete(ctx context.Context, table string, pk Record) error
	// BatchUpdate 把同一组字段写入多条记录
	BatchUpdate(ctx context.Context, table string, pks []Record, fields Record) error
	BatchDelete(ctx context.Context, table string, pks []Record) error
	Close() error
}

func init() {
	ref.MustRegister(Namespace, "SQL", NewSQLWithOptions)
	ref.MustRegister(Namespace, "Mongo", NewMongoWithOptions)
	ref.MustRegister(Namespace, "ES", NewESWithOptions)
	ref.MustRegister(Namespace, "Memory", NewMemoryWithOptions)
}

// NewDriverWithOptions 根据配置创建驱动，Namespace 为空时使用本包的命名空间
func NewDriverWithOptions(options *ref.TypeOptions) (Driver, error) {
	if options == nil {
		return nil, errors.New("driver options cannot be nil")
	}
	actual := *options
	if actual.Namespace == "" {
		actual.Namespace = Namespace
	}
	driver, err := ref.New[Driver](&actual)
	if err != nil {
		return nil, errors.WithMessagef(err, "create driver %s failed", actual.Type)
	}
	return driver, nil
}

// sortedKeys 主键条件按字段名排序，保证生成的语句稳定
func sortedKeys(m Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalizeValue 把驱动返回的值统一为 engine 能处理的标量
func normalizeValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v
	case map[string]any:
		for k, item := range v {
			v[k] = normalizeValue(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = normalizeValue(item)
		}
		return v
	}
	return value
}

func normalizeRecord(record Record) Record {
	for k, v := range record {
		record[k] = normalizeValue(v)
	}
	return record
}

// inferColumns 从第一条记录推断列，全部视为可空的 TEXT
func inferColumns(records []Record, primaryKey string) []Column {
	var columns []Column
	if primaryKey != "" {
		columns = append(columns, Column{Name: primaryKey, Type: "TEXT", PrimaryKey: true})
	}
	if len(records) == 0 {
		return columns
	}
	for _, key := range sortedKeys(records[0]) {
		if key == primaryKey {
			continue
		}
		columns = append(columns, Column{Name: key, Type: "TEXT", Nullable: true})
	}
	return columns
}

// matchRecord 内存中的搜索：任意字段的字符串形式包含 term
func matchRecord(record Record, lowerTerm string) bool {
	for _, value := range record {
		if value == nil {
			continue
		}
		if containsLower(cast.ToString(value), lowerTerm) {
			return true
		}
	}
	return false
}
