package workset

import (
	"context"
)

// TableInfo 远端列出的表，Columns 可能为空，Kind 在 JSON 中为 type
type TableInfo struct {
	Name    string   `json:"name"`
	Kind    string   `json:"type"`
	Columns []Column `json:"columns"`
}

// DataSource 远端数据读取
type DataSource interface {
	ListTables(ctx context.Context, connectionID string) ([]TableInfo, error)
	ListRecords(ctx context.Context, connectionID string, table string) ([]Record, error)
}

// Persister 远端数据写入，pk 为记录的主键字段
type Persister interface {
	CreateRecord(ctx context.Context, connectionID string, table string, record Record) error
	UpdateRecord(ctx context.Context, connectionID string, table string, pk Record, fields Record) error
	DeleteRecord(ctx context.Context, connectionID string, table string, pk Record) error
	BulkUpdate(ctx context.Context, connectionID string, table string, pks []Record, patch Record) error
	BulkDelete(ctx context.Context, connectionID string, table string, pks []Record) error
}
