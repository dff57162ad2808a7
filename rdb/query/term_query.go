package query

import (
	"sort"

	"github.com/pkg/errors"
)

// TermQuery 字段等值匹配，Value 为 nil 时匹配空值
type TermQuery struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Key 把主键转换为查询，多列主键按列名排序后用 AND 组合
func Key(pk map[string]any) Query {
	fields := make([]string, 0, len(pk))
	for field := range pk {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	terms := make([]Query, 0, len(fields))
	for _, field := range fields {
		terms = append(terms, &TermQuery{Field: field, Value: pk[field]})
	}
	return And(terms...)
}

func (q *TermQuery) Type() QueryType {
	return QueryTypeTerm
}

func (q *TermQuery) ToES() map[string]any {
	if q.Value == nil {
		return map[string]any{
			"bool": map[string]any{
				"must_not": map[string]any{"exists": map[string]any{"field": q.Field}},
			},
		}
	}
	return map[string]any{"term": map[string]any{q.Field: q.Value}}
}

func (q *TermQuery) ToSQL() (string, []any, error) {
	if q.Field == "" {
		return "", nil, errors.New("term query field is empty")
	}
	if q.Value == nil {
		return q.Field + " IS NULL", nil, nil
	}
	return q.Field + " = ?", []any{q.Value}, nil
}

// ToMongo nil 值同时匹配字段缺失和值为 null 的文档
func (q *TermQuery) ToMongo() (map[string]any, error) {
	if q.Field == "" {
		return nil, errors.New("term query field is empty")
	}
	return map[string]any{q.Field: q.Value}, nil
}
