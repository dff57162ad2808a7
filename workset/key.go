package workset

import (
	"strings"
)

// KeySeparator 复合主键各列值之间的分隔符
const KeySeparator = "__"

// ResolveKey 计算记录的身份标识
// 有主键时为主键列按声明顺序的值用 "__" 连接；没有主键时为整条记录按字段名排序的 JSON，
// 内容完全相同的两条记录会得到同一个 key
func ResolveKey(record Record, columns []Column) string {
	keys := primaryKeyColumns(columns)
	if len(keys) == 0 {
		data, err := canonicalJSON.Serialize(map[string]any(record))
		if err != nil {
			return Stringify(map[string]any(record))
		}
		return string(data)
	}

	parts := make([]string, len(keys))
	for i, column := range keys {
		parts[i] = Stringify(record[column.Name])
	}
	return strings.Join(parts, KeySeparator)
}

// primaryKeyOf 提取记录的主键字段，用于远端持久化
func primaryKeyOf(record Record, columns []Column) Record {
	pk := Record{}
	for _, column := range primaryKeyColumns(columns) {
		pk[column.Name] = record[column.Name]
	}
	return pk
}
