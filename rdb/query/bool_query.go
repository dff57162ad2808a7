package query

import (
	"strings"
)

// BoolQuery 布尔查询
type BoolQuery struct {
	Must    []Query `json:"must,omitempty"`
	Should  []Query `json:"should,omitempty"`
	MustNot []Query `json:"must_not,omitempty"`
}

func (q *BoolQuery) Type() QueryType {
	return QueryTypeBool
}

func toESList(queries []Query) []any {
	result := make([]any, len(queries))
	for i, query := range queries {
		result[i] = query.ToES()
	}
	return result
}

func (q *BoolQuery) ToES() map[string]any {
	boolQuery := make(map[string]any)
	if len(q.Must) > 0 {
		boolQuery["must"] = toESList(q.Must)
	}
	if len(q.Should) > 0 {
		boolQuery["should"] = toESList(q.Should)
		boolQuery["minimum_should_match"] = 1
	}
	if len(q.MustNot) > 0 {
		boolQuery["must_not"] = toESList(q.MustNot)
	}
	return map[string]any{"bool": boolQuery}
}

func toSQLList(queries []Query, wrap string) ([]string, []any, error) {
	conditions := make([]string, 0, len(queries))
	var args []any
	for _, query := range queries {
		sql, queryArgs, err := query.ToSQL()
		if err != nil {
			return nil, nil, err
		}
		if wrap != "" {
			sql = wrap + " (" + sql + ")"
		}
		conditions = append(conditions, sql)
		args = append(args, queryArgs...)
	}
	return conditions, args, nil
}

func (q *BoolQuery) ToSQL() (string, []any, error) {
	var conditions []string
	var args []any

	must, mustArgs, err := toSQLList(q.Must, "")
	if err != nil {
		return "", nil, err
	}
	if len(must) > 0 {
		conditions = append(conditions, "("+strings.Join(must, " AND ")+")")
		args = append(args, mustArgs...)
	}

	should, shouldArgs, err := toSQLList(q.Should, "")
	if err != nil {
		return "", nil, err
	}
	if len(should) > 0 {
		conditions = append(conditions, "("+strings.Join(should, " OR ")+")")
		args = append(args, shouldArgs...)
	}

	mustNot, mustNotArgs, err := toSQLList(q.MustNot, "NOT")
	if err != nil {
		return "", nil, err
	}
	if len(mustNot) > 0 {
		conditions = append(conditions, "("+strings.Join(mustNot, " AND ")+")")
		args = append(args, mustNotArgs...)
	}

	if len(conditions) == 0 {
		return "1=1", nil, nil
	}
	return strings.Join(conditions, " AND "), args, nil
}

func toMongoList(queries []Query) ([]any, error) {
	result := make([]any, 0, len(queries))
	for _, query := range queries {
		condition, err := query.ToMongo()
		if err != nil {
			return nil, err
		}
		result = append(result, condition)
	}
	return result, nil
}

func (q *BoolQuery) ToMongo() (map[string]any, error) {
	andConditions, err := toMongoList(q.Must)
	if err != nil {
		return nil, err
	}

	if len(q.Should) > 0 {
		orConditions, err := toMongoList(q.Should)
		if err != nil {
			return nil, err
		}
		andConditions = append(andConditions, map[string]any{"$or": orConditions})
	}

	if len(q.MustNot) > 0 {
		norConditions, err := toMongoList(q.MustNot)
		if err != nil {
			return nil, err
		}
		andConditions = append(andConditions, map[string]any{"$nor": norConditions})
	}

	switch len(andConditions) {
	case 0:
		return map[string]any{}, nil
	case 1:
		return andConditions[0].(map[string]any), nil
	}
	return map[string]any{"$and": andConditions}, nil
}
