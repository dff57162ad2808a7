package workset

import (
	"context"
	"time"

	"github.com/hatlonely/tablex/kv/serializer"
	"github.com/pkg/errors"
)

type BulkKind string

const (
	BulkDelete BulkKind = "delete"
	BulkUpdate BulkKind = "update"
	BulkImport BulkKind = "import"
	BulkExport BulkKind = "export"
)

type BulkOptions struct {
	// 每个进度节点之间的等待时间，模拟远端写入
	StepDelay time.Duration `cfg:"stepDelay" def:"0s"`
	// 导入时是否检查主键和 unique 列，默认不检查
	ImportUniqueCheck bool `cfg:"importUniqueCheck"`
	// 默认导出格式
	ExportFormat string `cfg:"exportFormat" def:"json" validate:"omitempty,oneof=json msgpack bson protobuf"`
}

// BulkPlan 校验通过的批量操作，apply 之前不修改工作集
type BulkPlan struct {
	Kind    BulkKind
	Table   string
	Keys    []string
	PKs     []Record
	Patch   Record
	Created []Record

	records []Record
}

type BulkResult struct {
	Kind     BulkKind `json:"kind"`
	Table    string   `json:"table"`
	Affected int      `json:"affected"`
	Created  []Record `json:"created,omitempty"`
}

// Bulk 批量删除、更新、导入的校验和执行
type Bulk struct {
	options *BulkOptions
	patches *serializer.JSONSerializer[map[string]any]
	imports *serializer.JSONSerializer[[]any]
}

func NewBulk(options *BulkOptions) *Bulk {
	if options == nil {
		options = &BulkOptions{}
	}
	return &Bulk{
		options: options,
		patches: serializer.NewJSONSerializer[map[string]any](),
		imports: serializer.NewJSONSerializer[[]any](),
	}
}

// selected 按表内顺序返回被选中记录的下标
func selected(t *Table, keys []string) map[int]bool {
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	indexes := map[int]bool{}
	for i, record := range t.Records {
		if _, ok := set[t.Key(record)]; ok {
			indexes[i] = true
		}
	}
	return indexes
}

func (b *Bulk) PlanDelete(t *Table, keys []string) (*BulkPlan, error) {
	if !t.HasPrimaryKey() {
		return nil, errors.WithMessagef(ErrNoPrimaryKey, "table %s", t.Name)
	}

	indexes := selected(t, keys)
	plan := &BulkPlan{Kind: BulkDelete, Table: t.Name, records: make([]Record, 0, len(t.Records)-len(indexes))}
	for i, record := range t.Records {
		if indexes[i] {
			plan.Keys = append(plan.Keys, t.Key(record))
			plan.PKs = append(plan.PKs, primaryKeyOf(record, t.Columns))
			continue
		}
		plan.records = append(plan.records, record)
	}
	return plan, nil
}

func (b *Bulk) PlanUpdate(t *Table, keys []string, data []byte) (*BulkPlan, error) {
	if !t.HasPrimaryKey() {
		return nil, errors.WithMessagef(ErrNoPrimaryKey, "table %s", t.Name)
	}
	patch, err := b.patches.Deserialize(data)
	if err != nil {
		return nil, errors.WithMessage(ErrMalformedPatch, err.Error())
	}
	if patch == nil {
		return nil, errors.WithMessage(ErrMalformedPatch, "patch must be a JSON object")
	}
	for _, column := range primaryKeyColumns(t.Columns) {
		if _, ok := patch[column.Name]; ok {
			return nil, errors.WithMessagef(ErrImmutableColumn, "%s.%s", t.Name, column.Name)
		}
	}

	indexes := selected(t, keys)
	candidates := make([]Record, 0, len(indexes))
	for range indexes {
		candidates = append(candidates, patch)
	}
	if err := checkUnique(t.Name, uniqueOnly(t.Columns), t.Records, candidates, indexes); err != nil {
		return nil, err
	}

	plan := &BulkPlan{Kind: BulkUpdate, Table: t.Name, Patch: patch, records: make([]Record, len(t.Records))}
	for i, record := range t.Records {
		if !indexes[i] {
			plan.records[i] = record
			continue
		}
		plan.Keys = append(plan.Keys, t.Key(record))
		plan.PKs = append(plan.PKs, primaryKeyOf(record, t.Columns))
		merged := copyRecord(record)
		for k, v := range patch {
			merged[k] = v
		}
		plan.records[i] = merged
	}
	return plan, nil
}

// PlanImport 第 i 条记录的 id 为当前最大数字 id + 1 + i，记录中自带的字段优先
func (b *Bulk) PlanImport(t *Table, data []byte) (*BulkPlan, error) {
	items, err := b.imports.Deserialize(data)
	if err != nil {
		return nil, errors.WithMessage(ErrMalformedImport, err.Error())
	}
	if items == nil {
		return nil, errors.WithMessage(ErrMalformedImport, "import data must be a JSON array")
	}

	idColumn := IdentifierColumn(t.Columns)
	next := t.nextID()
	created := make([]Record, 0, len(items))
	for i, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, errors.WithMessagef(ErrMalformedImport, "item %d is not an object", i)
		}
		record := Record{idColumn: next + int64(i)}
		for k, v := range fields {
			record[k] = v
		}
		created = append(created, record)
	}

	if b.options.ImportUniqueCheck {
		if err := checkUnique(t.Name, t.Columns, t.Records, created, nil); err != nil {
			return nil, err
		}
	}

	records := make([]Record, 0, len(t.Records)+len(created))
	records = append(records, t.Records...)
	records = append(records, created...)
	return &BulkPlan{Kind: BulkImport, Table: t.Name, Created: created, records: records}, nil
}

// persist 把计划写入远端，persister 为空时跳过
func (p *BulkPlan) persist(ctx context.Context, persister Persister, connectionID string) error {
	if persister == nil {
		return nil
	}
	var err error
	switch p.Kind {
	case BulkDelete:
		if len(p.PKs) > 0 {
			err = persister.BulkDelete(ctx, connectionID, p.Table, p.PKs)
		}
	case BulkUpdate:
		if len(p.PKs) > 0 {
			err = persister.BulkUpdate(ctx, connectionID, p.Table, p.PKs, p.Patch)
		}
	case BulkImport:
		for _, record := range p.Created {
			if err = persister.CreateRecord(ctx, connectionID, p.Table, record); err != nil {
				break
			}
		}
	}
	return errors.WithMessagef(err, "persist bulk %s on %s", p.Kind, p.Table)
}

func (p *BulkPlan) apply(t *Table) *BulkResult {
	t.Records = p.records
	affected := len(p.Keys)
	if p.Kind == BulkImport {
		affected = len(p.Created)
	}
	return &BulkResult{Kind: p.Kind, Table: p.Table, Affected: affected, Created: copyRecords(p.Created)}
}
