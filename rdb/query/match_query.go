package query

import (
	"fmt"
	"regexp"
	"strings"
)

// MatchQuery 不区分大小写的子串匹配
// Field 在 SQL 中按原样输出，调用方负责引用或类型转换，例如 CAST("age" AS TEXT)
type MatchQuery struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (q *MatchQuery) Type() QueryType {
	return QueryTypeMatch
}

func (q *MatchQuery) ToES() map[string]any {
	return map[string]any{
		"wildcard": map[string]any{
			q.Field: map[string]any{
				"value":            "*" + escapeWildcard(q.Value) + "*",
				"case_insensitive": true,
			},
		},
	}
}

// ToSQL 使用 ! 作为 LIKE 的转义字符，mysql、sqlite、postgres、sqlserver 都支持
func (q *MatchQuery) ToSQL() (string, []any, error) {
	if q.Field == "" {
		return "", nil, fmt.Errorf("match query field is empty")
	}
	return fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '!'", q.Field), []any{"%" + escapeLike(strings.ToLower(q.Value)) + "%"}, nil
}

func (q *MatchQuery) ToMongo() (map[string]any, error) {
	if q.Field == "" {
		return nil, fmt.Errorf("match query field is empty")
	}
	return map[string]any{
		q.Field: map[string]any{
			"$regex":   regexp.QuoteMeta(q.Value),
			"$options": "i",
		},
	}, nil
}

var likeReplacer = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(value string) string {
	return likeReplacer.Replace(value)
}

var wildcardReplacer = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`)

func escapeWildcard(value string) string {
	return wildcardReplacer.Replace(value)
}
