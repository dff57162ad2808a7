package workset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEditorFor(t *testing.T) {
	for _, c := range []struct {
		typ    string
		editor EditorKind
		mode   InputMode
	}{
		{"BOOLEAN", EditorToggle, ""},
		{"bool", EditorToggle, ""},
		{"TEXT", EditorMultiline, InputText},
		{"LONGTEXT", EditorMultiline, InputText},
		{"CLOB", EditorMultiline, InputText},
		{"INTEGER", EditorLine, InputNumeric},
		{"BIGINT", EditorLine, InputNumeric},
		{"DECIMAL(10,2)", EditorLine, InputNumeric},
		{"DOUBLE PRECISION", EditorLine, InputNumeric},
		{"SERIAL", EditorLine, InputNumeric},
		{"TIMESTAMP", EditorLine, InputDateTime},
		{"DATETIME", EditorLine, InputDateTime},
		{"DATE", EditorLine, InputDate},
		{"VARCHAR(255)", EditorLine, InputText},
		{"KEYWORD", EditorLine, InputText},
	} {
		editor, mode := EditorFor(Column{Name: "c", Type: c.typ})
		assert.Equal(t, c.editor, editor, c.typ)
		assert.Equal(t, c.mode, mode, c.typ)
	}
}

func TestFormatter(t *testing.T) {
	f := NewFormatter("", time.UTC)
	text := Column{Name: "name", Type: "TEXT"}
	ts := Column{Name: "created_at", Type: "TIMESTAMP"}
	date := Column{Name: "birthday", Type: "DATE"}

	assert.Equal(t, "", f.Format(nil, text))
	assert.Equal(t, "Yes", f.Format(true, text))
	assert.Equal(t, "No", f.Format(false, Column{Name: "active", Type: "BOOLEAN"}))
	assert.Equal(t, "42", f.Format(42, Column{Name: "age", Type: "INTEGER"}))
	assert.Equal(t, "alice", f.Format("alice", text))
	assert.Equal(t, "2024-05-01 10:30:00", f.Format("2024-05-01T10:30:00Z", ts))
	assert.Equal(t, "2024-05-01 10:30:00", f.Format(time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC), ts))
	assert.Equal(t, "2024-05-01 00:00:00", f.Format("2024-05-01", date))
	assert.Equal(t, "not a date", f.Format("not a date", ts))

	shanghai := time.FixedZone("CST", 8*3600)
	local := NewFormatter("2006/01/02 15:04", shanghai)
	assert.Equal(t, "2024/05/01 18:30", local.Format("2024-05-01T10:30:00Z", ts))
}
