package query

// Search 构造自由文本搜索：任意一个字段包含 term 即命中
// term 为空或没有字段时返回 nil，表示不过滤
func Search(term string, fields []string) Query {
	if term == "" || len(fields) == 0 {
		return nil
	}
	if len(fields) == 1 {
		return &MatchQuery{Field: fields[0], Value: term}
	}

	should := make([]Query, 0, len(fields))
	for _, field := range fields {
		should = append(should, &MatchQuery{Field: field, Value: term})
	}
	return &BoolQuery{Should: should}
}

// And 组合多个查询，忽略 nil
func And(queries ...Query) Query {
	must := make([]Query, 0, len(queries))
	for _, q := range queries {
		if q != nil {
			must = append(must, q)
		}
	}
	switch len(must) {
	case 0:
		return nil
	case 1:
		return must[0]
	}
	return &BoolQuery{Must: must}
}
