package workset

import (
	"strings"

	"github.com/hatlonely/tablex/cfg"
	"github.com/pkg/errors"
)

const (
	KindTable      = "table"
	KindView       = "view"
	KindCollection = "collection"
)

// Column 列定义
type Column struct {
	Name         string  `cfg:"name" json:"name" validate:"required"`
	Type         string  `cfg:"type" json:"type" def:"TEXT"`
	Nullable     bool    `cfg:"nullable" json:"nullable"`
	PrimaryKey   bool    `cfg:"primaryKey" json:"primaryKey"`
	Unique       bool    `cfg:"unique" json:"unique"`
	ForeignKey   bool    `cfg:"foreignKey" json:"foreignKey"`
	DefaultValue *string `cfg:"defaultValue" json:"defaultValue,omitempty"`
}

// ValidateColumns 校验列定义，列名必须非空且在表内唯一
func ValidateColumns(columns []Column) error {
	seen := make(map[string]struct{}, len(columns))
	for i := range columns {
		if err := validateColumn(&columns[i]); err != nil {
			return errors.WithMessagef(err, "column %d", i)
		}
		if _, ok := seen[columns[i].Name]; ok {
			return errors.WithMessagef(ErrDuplicateColumnName, "column %s", columns[i].Name)
		}
		seen[columns[i].Name] = struct{}{}
	}
	return nil
}

func validateColumn(column *Column) error {
	if strings.TrimSpace(column.Name) == "" {
		return errors.WithMessage(ErrInvalidName, "column name is empty")
	}
	if column.Type == "" {
		column.Type = "TEXT"
	}
	column.Type = strings.ToUpper(column.Type)
	return cfg.Validate(column)
}

func primaryKeyColumns(columns []Column) []Column {
	var keys []Column
	for _, column := range columns {
		if column.PrimaryKey {
			keys = append(keys, column)
		}
	}
	return keys
}

// IdentifierColumn 合成 id 写入的列：唯一主键列的列名，否则为 "id"
func IdentifierColumn(columns []Column) string {
	keys := primaryKeyColumns(columns)
	if len(keys) == 1 {
		return keys[0].Name
	}
	return "id"
}

func findColumn(columns []Column, name string) (Column, bool) {
	for _, column := range columns {
		if column.Name == name {
			return column, true
		}
	}
	return Column{}, false
}

// inferColumns 没有列定义时根据第一条记录的字段推断，全部视为可空 TEXT
func inferColumns(records []Record) []Column {
	if len(records) == 0 {
		return nil
	}
	names := sortedFields(records[0])
	columns := make([]Column, 0, len(names))
	for _, name := range names {
		columns = append(columns, Column{Name: name, Type: "TEXT", Nullable: true})
	}
	return columns
}
