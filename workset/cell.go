package workset

import (
	"strings"
	"time"

	"github.com/spf13/cast"
)

type EditorKind string

const (
	EditorToggle    EditorKind = "toggle"
	EditorMultiline EditorKind = "multiline"
	EditorLine      EditorKind = "line"
)

type InputMode string

const (
	InputText     InputMode = "text"
	InputNumeric  InputMode = "numeric"
	InputDate     InputMode = "date"
	InputDateTime InputMode = "datetime"
)

var (
	textTypes     = []string{"TEXT", "CLOB"}
	numericTypes  = []string{"INT", "DECIMAL", "NUMERIC", "FLOAT", "DOUBLE", "REAL", "SERIAL", "LONG"}
	dateTimeTypes = []string{"TIMESTAMP", "DATETIME"}
)

func typeContains(typ string, tags ...string) bool {
	typ = strings.ToUpper(typ)
	for _, tag := range tags {
		if strings.Contains(typ, tag) {
			return true
		}
	}
	return false
}

func isBoolType(typ string) bool {
	return typeContains(typ, "BOOL")
}

// EditorFor 根据列的逻辑类型选择编辑器
func EditorFor(column Column) (EditorKind, InputMode) {
	switch {
	case isBoolType(column.Type):
		return EditorToggle, ""
	case typeContains(column.Type, textTypes...):
		return EditorMultiline, InputText
	case typeContains(column.Type, numericTypes...):
		return EditorLine, InputNumeric
	case typeContains(column.Type, dateTimeTypes...):
		return EditorLine, InputDateTime
	case typeContains(column.Type, "DATE"):
		return EditorLine, InputDate
	}
	return EditorLine, InputText
}

// DefaultTimeLayout 日期时间列的默认显示格式
const DefaultTimeLayout = "2006-01-02 15:04:05"

// Formatter 单元格的显示格式化
type Formatter struct {
	Layout   string
	Location *time.Location
}

func NewFormatter(layout string, location *time.Location) *Formatter {
	if layout == "" {
		layout = DefaultTimeLayout
	}
	if location == nil {
		location = time.Local
	}
	return &Formatter{Layout: layout, Location: location}
}

// Format null 为空串，布尔为 Yes/No，DATE/TIMESTAMP 列按本地时间格式化，无法解析时原样输出
func (f *Formatter) Format(value any, column Column) string {
	if value == nil {
		return ""
	}
	if b, ok := value.(bool); ok {
		if b {
			return "Yes"
		}
		return "No"
	}
	if typeContains(column.Type, "TIMESTAMP", "DATE") {
		if t, err := cast.ToTimeInDefaultLocationE(value, f.Location); err == nil {
			return t.In(f.Location).Format(f.Layout)
		}
	}
	return Stringify(value)
}
