package workset

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// BulkDelete 删除当前选择的记录
func (e *Engine) BulkDelete(ctx context.Context) (*Task, error) {
	return e.startBulk(ctx, func(t *Table, keys []string) (*BulkPlan, error) {
		return e.bulk.PlanDelete(t, keys)
	})
}

// BulkUpdate 把 JSON 对象 patch 合并到当前选择的每条记录
func (e *Engine) BulkUpdate(ctx context.Context, patch []byte) (*Task, error) {
	return e.startBulk(ctx, func(t *Table, keys []string) (*BulkPlan, error) {
		return e.bulk.PlanUpdate(t, keys, patch)
	})
}

// Import 把 JSON 数组中的对象追加到当前表
func (e *Engine) Import(ctx context.Context, data []byte) (*Task, error) {
	return e.startBulk(ctx, func(t *Table, keys []string) (*BulkPlan, error) {
		return e.bulk.PlanImport(t, data)
	})
}

// startBulk 同步完成校验，校验失败时直接返回错误且不修改工作集，成功后在后台执行
func (e *Engine) startBulk(ctx context.Context, plan func(*Table, []string) (*BulkPlan, error)) (*Task, error) {
	e.mu.Lock()
	if e.task != nil {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	t, err := e.activeTable()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	p, err := plan(t, e.selection.Keys())
	if err != nil {
		e.mu.Unlock()
		e.log.WarnContext(ctx, "bulk operation rejected", "table", t.Name, "error", err)
		return nil, err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	task := newTask(p.Kind, p.Table, cancel)
	e.task = task
	connectionID := e.connectionID
	e.mu.Unlock()

	e.report(task, ProgressStarted)
	go e.runBulk(taskCtx, task, p, connectionID)
	return task, nil
}

func (e *Engine) report(task *Task, percent int) {
	if task.report(percent) {
		e.emit(Event{Type: EventProgress, Table: task.Table, TaskID: task.ID, Progress: percent})
	}
}

// pause 进度节点之间的等待，被取消时返回 ctx 的错误
func (e *Engine) pause(ctx context.Context) error {
	delay := e.options.Bulk.StepDelay
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runBulk 校验 -> 30 -> 远端写入 -> 80 -> 写入工作集 -> 100
// 写入工作集之前都可以取消，写入本身在锁内一次完成
func (e *Engine) runBulk(ctx context.Context, task *Task, plan *BulkPlan, connectionID string) {
	started := time.Now()

	result, err := e.executeBulk(ctx, task, plan, connectionID)

	status := TaskSucceeded
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		status = TaskCancelled
	case err != nil:
		status = TaskFailed
	}
	e.metrics.observeBulk(plan.Kind, status, time.Since(started).Seconds())

	if err != nil {
		e.log.Warn("bulk operation failed", "kind", plan.Kind, "table", plan.Table, "task", task.ID, "status", status, "error", err)
	} else {
		e.log.Info("bulk operation finished", "kind", plan.Kind, "table", plan.Table, "task", task.ID, "affected", result.Affected)
	}

	e.mu.Lock()
	if e.task == task {
		e.task = nil
	}
	e.mu.Unlock()

	task.finish(result, err, status)
	e.emit(Event{Type: EventTaskDone, Table: plan.Table, TaskID: task.ID, Progress: task.Percent(), Err: err})
}

func (e *Engine) executeBulk(ctx context.Context, task *Task, plan *BulkPlan, connectionID string) (*BulkResult, error) {
	if err := e.pause(ctx); err != nil {
		return nil, err
	}
	e.report(task, ProgressValidated)

	if err := e.pause(ctx); err != nil {
		return nil, err
	}
	if err := plan.persist(ctx, e.persister, connectionID); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	e.report(task, ProgressPersisted)

	if err := e.pause(ctx); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if err := ctx.Err(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	t, err := e.store.Table(plan.Table)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	result := plan.apply(t)
	if plan.Kind == BulkDelete || plan.Kind == BulkUpdate {
		e.selection.Clear()
	}
	e.reconcile()
	e.mu.Unlock()

	e.report(task, ProgressDone)
	e.emit(
		Event{Type: EventRecordsChanged, Table: plan.Table},
		Event{Type: EventSelectionChanged, Table: plan.Table},
	)
	return result, nil
}
