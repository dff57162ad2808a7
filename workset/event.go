package workset

import "time"

type EventType string

const (
	EventTablesChanged    EventType = "tables_changed"
	EventTableSelected    EventType = "table_selected"
	EventRecordsChanged   EventType = "records_changed"
	EventSelectionChanged EventType = "selection_changed"
	EventEditChanged      EventType = "edit_changed"
	EventPageChanged      EventType = "page_changed"
	EventProgress         EventType = "progress"
	EventTaskDone         EventType = "task_done"
)

// Event 状态变化通知，订阅者据此重新读取需要的状态
type Event struct {
	Type     EventType
	Table    string
	Key      string
	TaskID   string
	Progress int
	Err      error
	Time     time.Time
}
