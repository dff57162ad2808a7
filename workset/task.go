package workset

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Progress 进度节点
const (
	ProgressStarted   = 0
	ProgressValidated = 30
	ProgressPersisted = 80
	ProgressDone      = 100
)

// Task 后台执行的批量操作
// Progress 按 0、30、80、100 单调递增，任务结束后关闭
type Task struct {
	ID    string
	Kind  BulkKind
	Table string

	progress chan int
	done     chan struct{}
	cancel   context.CancelFunc

	mu      sync.Mutex
	last    int
	status  TaskStatus
	result  *BulkResult
	err     error
	started time.Time
}

func newTask(kind BulkKind, table string, cancel context.CancelFunc) *Task {
	return &Task{
		ID:       uuid.NewString(),
		Kind:     kind,
		Table:    table,
		progress: make(chan int, 4),
		done:     make(chan struct{}),
		cancel:   cancel,
		status:   TaskRunning,
		last:     -1,
		started:  time.Now(),
	}
}

func (t *Task) Progress() <-chan int {
	return t.progress
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel 在写入工作集之前取消任务，之后调用无效
func (t *Task) Cancel() {
	t.cancel()
}

func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Percent 最近一次上报的进度
func (t *Task) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last < 0 {
		return 0
	}
	return t.last
}

// Wait 等待任务结束
func (t *Task) Wait(ctx context.Context) (*BulkResult, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

func (t *Task) report(percent int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if percent <= t.last {
		return false
	}
	t.last = percent
	t.progress <- percent
	return true
}

func (t *Task) finish(result *BulkResult, err error, status TaskStatus) {
	t.mu.Lock()
	t.result = result
	t.err = err
	t.status = status
	t.mu.Unlock()

	close(t.progress)
	close(t.done)
	t.cancel()
}
