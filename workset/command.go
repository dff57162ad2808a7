package workset

import (
	"context"

	"github.com/pkg/errors"
)

// Command 一次用户操作，由 Engine.Dispatch 执行
type Command interface {
	Name() string
}

type (
	SelectTable     struct{ Table string }
	SetSearch       struct{ Term string }
	SetPage         struct{ Page int }
	ClampPageCmd    struct{}
	ToggleSelection struct{ Key string }
	ToggleAllOnPage struct{}
	ClearSelection  struct{}

	StartEdit struct {
		Key    string
		Column string
		Value  any
	}
	UpdateDraft struct{ Value any }
	CommitEdit  struct{}
	CancelEdit  struct{}

	CreateTable struct {
		Table   string
		Kind    string
		Columns []Column
	}
	DeleteTable struct{ Table string }
	AddColumn   struct {
		Table  string
		Column Column
	}
	UpdateColumn struct {
		Table  string
		Index  int
		Column Column
	}
	RemoveColumn struct {
		Table string
		Index int
	}

	CreateRecord struct {
		Table  string
		Fields Record
	}
	UpdateRecord struct {
		Table  string
		Key    string
		Fields Record
	}
	DeleteRecord struct {
		Table string
		Key   string
	}

	RunBulkDelete struct{}
	RunBulkUpdate struct{ Patch []byte }
	RunImport     struct{ Data []byte }
	RunExport     struct{ Format string }

	LoadConnection struct{ ConnectionID string }
)

func (SelectTable) Name() string     { return "SelectTable" }
func (SetSearch) Name() string       { return "SetSearch" }
func (SetPage) Name() string         { return "SetPage" }
func (ClampPageCmd) Name() string    { return "ClampPage" }
func (ToggleSelection) Name() string { return "ToggleSelection" }
func (ToggleAllOnPage) Name() string { return "ToggleAllOnPage" }
func (ClearSelection) Name() string  { return "ClearSelection" }
func (StartEdit) Name() string       { return "StartEdit" }
func (UpdateDraft) Name() string     { return "UpdateDraft" }
func (CommitEdit) Name() string      { return "CommitEdit" }
func (CancelEdit) Name() string      { return "CancelEdit" }
func (CreateTable) Name() string     { return "CreateTable" }
func (DeleteTable) Name() string     { return "DeleteTable" }
func (AddColumn) Name() string       { return "AddColumn" }
func (UpdateColumn) Name() string    { return "UpdateColumn" }
func (RemoveColumn) Name() string    { return "RemoveColumn" }
func (CreateRecord) Name() string    { return "CreateRecord" }
func (UpdateRecord) Name() string    { return "UpdateRecord" }
func (DeleteRecord) Name() string    { return "DeleteRecord" }
func (RunBulkDelete) Name() string   { return "RunBulkDelete" }
func (RunBulkUpdate) Name() string   { return "RunBulkUpdate" }
func (RunImport) Name() string       { return "RunImport" }
func (RunExport) Name() string       { return "RunExport" }
func (LoadConnection) Name() string  { return "LoadConnection" }

// Result 命令的返回值，按命令类型填充对应字段
type Result struct {
	Record   Record
	Key      string
	Page     int
	Selected bool
	Task     *Task
	Artifact *Artifact
}

// Dispatch 执行命令，所有状态修改都经过这里或对应的类型化方法
func (e *Engine) Dispatch(ctx context.Context, cmd Command) (*Result, error) {
	result, err := e.dispatch(ctx, cmd)
	if cmd != nil {
		e.metrics.observeCommand(cmd.Name(), err)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) dispatch(ctx context.Context, cmd Command) (*Result, error) {
	result := &Result{}
	var err error

	switch c := cmd.(type) {
	case SelectTable:
		err = e.SelectTable(c.Table)
	case SetSearch:
		e.SetSearch(c.Term)
	case SetPage:
		e.SetPage(c.Page)
		result.Page = c.Page
	case ClampPageCmd:
		result.Page = e.ClampPage()
	case ToggleSelection:
		result.Selected, err = e.ToggleSelection(c.Key)
	case ToggleAllOnPage:
		err = e.ToggleAllOnPage()
	case ClearSelection:
		err = e.ClearSelection()
	case StartEdit:
		err = e.StartEdit(c.Key, c.Column, c.Value)
	case UpdateDraft:
		err = e.UpdateDraft(c.Value)
	case CommitEdit:
		result.Key, err = e.CommitEdit(ctx)
	case CancelEdit:
		err = e.CancelEdit()
	case CreateTable:
		err = e.CreateTable(c.Table, c.Kind, c.Columns)
	case DeleteTable:
		err = e.DeleteTable(c.Table)
	case AddColumn:
		err = e.AddColumn(c.Table, c.Column)
	case UpdateColumn:
		err = e.UpdateColumn(c.Table, c.Index, c.Column)
	case RemoveColumn:
		err = e.RemoveColumn(c.Table, c.Index)
	case CreateRecord:
		result.Record, err = e.CreateRecord(ctx, c.Table, c.Fields)
	case UpdateRecord:
		result.Record, err = e.UpdateRecord(ctx, c.Table, c.Key, c.Fields)
	case DeleteRecord:
		err = e.DeleteRecord(ctx, c.Table, c.Key)
	case RunBulkDelete:
		result.Task, err = e.BulkDelete(ctx)
	case RunBulkUpdate:
		result.Task, err = e.BulkUpdate(ctx, c.Patch)
	case RunImport:
		result.Task, err = e.Import(ctx, c.Data)
	case RunExport:
		result.Artifact, err = e.Export(c.Format)
	case LoadConnection:
		err = e.LoadConnection(ctx, c.ConnectionID)
	case nil:
		err = errors.New("command is nil")
	default:
		err = errors.Errorf("unknown command %s", cmd.Name())
	}
	return result, err
}
