package workset

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrImmutableColumn     = errors.New("primary key column is immutable")
	ErrUniqueConstraint    = errors.New("unique constraint violated")
	ErrNoPrimaryKey        = errors.New("table has no primary key")
	ErrMalformedPatch      = errors.New("malformed patch")
	ErrMalformedImport     = errors.New("malformed import")
	ErrDuplicateTableName  = errors.New("duplicate table name")
	ErrTableNotFound       = errors.New("table not found")
	ErrColumnNotFound      = errors.New("column not found")
	ErrRecordNotFound      = errors.New("record not found")
	ErrNotEditing          = errors.New("no cell is being edited")
	ErrNoActiveTable       = errors.New("no active table")
	ErrBusy                = errors.New("a bulk operation is running")
	ErrInvalidName         = errors.New("invalid name")
	ErrDuplicateColumnName = errors.New("duplicate column name")
	ErrColumnIndex         = errors.New("column index out of range")
	ErrNoDataSource        = errors.New("no data source configured")
)

// Describe 把错误转换为面向用户的提示标题和描述
func Describe(err error) (title string, description string) {
	switch {
	case err == nil:
		return "Success", ""
	case errors.Is(err, ErrImmutableColumn):
		return "Cannot edit", "Primary key columns cannot be edited."
	case errors.Is(err, ErrUniqueConstraint):
		return "Duplicate value", "This value must be unique in its column."
	case errors.Is(err, ErrNoPrimaryKey):
		return "Error", "No primary key defined for this table."
	case errors.Is(err, ErrMalformedPatch):
		return "Error", "Invalid JSON for update data."
	case errors.Is(err, ErrMalformedImport):
		return "Error", "Invalid JSON for import data."
	case errors.Is(err, ErrDuplicateTableName):
		return "Error", "A table with this name already exists."
	case errors.Is(err, ErrDuplicateColumnName):
		return "Error", "A column with this name already exists."
	case errors.Is(err, ErrBusy):
		return "Busy", "Another operation is still running."
	case errors.Is(err, ErrNoActiveTable):
		return "Error", "Select a table first."
	case errors.Is(err, context.Canceled):
		return "Cancelled", "The operation was cancelled."
	}
	return "Error", err.Error()
}
