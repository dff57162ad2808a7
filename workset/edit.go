package workset

import (
	"github.com/pkg/errors"
)

type EditState int

const (
	EditIdle EditState = iota
	EditEditing
)

func (s EditState) String() string {
	if s == EditEditing {
		return "editing"
	}
	return "idle"
}

// EditOutcome 上一次编辑的结束方式
type EditOutcome string

const (
	OutcomeNone      EditOutcome = ""
	OutcomeSaved     EditOutcome = "saved"
	OutcomeRejected  EditOutcome = "rejected"
	OutcomeCancelled EditOutcome = "cancelled"
)

// EditingCell 正在编辑的单元格
type EditingCell struct {
	Table         string `json:"table"`
	RecordKey     string `json:"recordKey"`
	ColumnName    string `json:"columnName"`
	Value         any    `json:"value"`
	OriginalValue any    `json:"originalValue"`
}

// EditSession 单元格编辑的状态机：Idle -> Editing -> {Saved | Rejected | Cancelled} -> Idle
// Rejected 之后仍然停留在 Editing，草稿保留以便修正
type EditSession struct {
	cell    *EditingCell
	outcome EditOutcome
}

func NewEditSession() *EditSession {
	return &EditSession{}
}

func (s *EditSession) State() EditState {
	if s.cell != nil {
		return EditEditing
	}
	return EditIdle
}

func (s *EditSession) Outcome() EditOutcome {
	return s.outcome
}

// Cell 返回当前编辑单元格的副本
func (s *EditSession) Cell() (EditingCell, bool) {
	if s.cell == nil {
		return EditingCell{}, false
	}
	return *s.cell, true
}

// Start 开始编辑，已有的草稿被丢弃
func (s *EditSession) Start(t *Table, key string, columnName string, currentValue any) error {
	column, ok := t.Column(columnName)
	if !ok {
		return errors.WithMessagef(ErrColumnNotFound, "%s.%s", t.Name, columnName)
	}
	if column.PrimaryKey {
		return errors.WithMessagef(ErrImmutableColumn, "%s.%s", t.Name, columnName)
	}
	if t.IndexOf(key) < 0 {
		return errors.WithMessagef(ErrRecordNotFound, "%s[%s]", t.Name, key)
	}

	if s.cell != nil {
		s.outcome = OutcomeCancelled
	}
	s.cell = &EditingCell{
		Table:         t.Name,
		RecordKey:     key,
		ColumnName:    columnName,
		Value:         currentValue,
		OriginalValue: currentValue,
	}
	return nil
}

func (s *EditSession) UpdateDraft(value any) error {
	if s.cell == nil {
		return ErrNotEditing
	}
	s.cell.Value = value
	return nil
}

// Prepare 校验草稿能否写入，返回目标记录下标
func (s *EditSession) Prepare(t *Table) (int, error) {
	if s.cell == nil {
		return 0, ErrNotEditing
	}
	i := t.IndexOf(s.cell.RecordKey)
	if i < 0 {
		return 0, errors.WithMessagef(ErrRecordNotFound, "%s[%s]", t.Name, s.cell.RecordKey)
	}
	column, ok := t.Column(s.cell.ColumnName)
	if !ok {
		return 0, errors.WithMessagef(ErrColumnNotFound, "%s.%s", t.Name, s.cell.ColumnName)
	}
	if column.Unique {
		candidate := Record{column.Name: s.cell.Value}
		if err := checkUnique(t.Name, []Column{column}, t.Records, []Record{candidate}, map[int]bool{i: true}); err != nil {
			s.outcome = OutcomeRejected
			return 0, err
		}
	}
	return i, nil
}

// Commit 写入草稿并回到 Idle，返回记录提交后的 key
// 没有主键的表 key 由记录内容决定，提交后会变化
func (s *EditSession) Commit(t *Table) (oldKey string, newKey string, err error) {
	i, err := s.Prepare(t)
	if err != nil {
		return "", "", err
	}
	return s.apply(t, i)
}

func (s *EditSession) apply(t *Table, i int) (string, string, error) {
	oldKey := s.cell.RecordKey
	record := copyRecord(t.Records[i])
	record[s.cell.ColumnName] = s.cell.Value
	t.Records[i] = record

	s.cell = nil
	s.outcome = OutcomeSaved
	return oldKey, t.Key(record), nil
}

func (s *EditSession) Cancel() error {
	if s.cell == nil {
		return ErrNotEditing
	}
	s.cell = nil
	s.outcome = OutcomeCancelled
	return nil
}

// Reset 丢弃编辑状态，用于表被删除或切换
func (s *EditSession) Reset() {
	s.cell = nil
	s.outcome = OutcomeNone
}
