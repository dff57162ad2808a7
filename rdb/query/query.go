package query

// QueryType 查询类型
type QueryType string

const (
	QueryTypeBool  QueryType = "bool"
	QueryTypeTerm  QueryType = "term"
	QueryTypeMatch QueryType = "match"
)

// Query 查询节点接口，同一个查询可以渲染到不同的后端
type Query interface {
	Type() QueryType
	ToES() map[string]any
	// ToSQL 返回 WHERE 子句和参数，占位符统一为 ?
	ToSQL() (string, []any, error)
	ToMongo() (map[string]any, error)
}
