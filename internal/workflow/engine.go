// Package workflow drives response workflows task by task, honoring
// timeouts, retries and approval gates, and leaving a complete audit trail
// in the execution log.
package workflow

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/incidra/incidra/internal/database"
	"github.com/incidra/incidra/internal/errs"
	"github.com/incidra/incidra/internal/executor"
)

// DefaultRetryDelay is the fixed pause between retry attempts of a failed
// action. A fixed delay keeps retry timing predictable for operators watching
// the execution log; actions needing backoff implement it themselves.
const DefaultRetryDelay = 2 * time.Second

// TaskSpec describes one task at workflow creation time.
type TaskSpec struct {
	Name             string         `json:"name"`
	Action           string         `json:"action"`
	Parameters       database.JSONB `json:"parameters"`
	RequiresApproval bool           `json:"requires_approval"`
	TimeoutSeconds   int            `json:"timeout_seconds"`
	MaxRetries       int            `json:"max_retries"`
}

// Engine executes workflows. Each workflow runs under exactly one driver
// goroutine at a time; distinct workflows may run concurrently.
type Engine struct {
	db         *gorm.DB
	exec       executor.ActionExecutor
	retryDelay time.Duration

	mu      sync.Mutex
	running map[string]struct{} // workflow uuid -> driver active
}

// NewEngine creates a workflow engine backed by the given database and
// action executor.
func NewEngine(db *gorm.DB, exec executor.ActionExecutor) *Engine {
	return &Engine{
		db:         db,
		exec:       exec,
		retryDelay: DefaultRetryDelay,
		running:    make(map[string]struct{}),
	}
}

// SetRetryDelay overrides the pause between retry attempts.
func (e *Engine) SetRetryDelay(d time.Duration) {
	e.retryDelay = d
}

// CreateWorkflow validates and persists a new workflow with its tasks. The
// task list must be non-empty and every task needs a name and an action key.
func (e *Engine) CreateWorkflow(name, description string, incidentID *uint, specs []TaskSpec) (*database.Workflow, error) {
	if name == "" {
		return nil, &errs.InvalidWorkflowError{Reason: "name is required"}
	}
	if len(specs) == 0 {
		return nil, &errs.InvalidWorkflowError{Reason: "task list is empty"}
	}
	for i, s := range specs {
		if s.Name == "" {
			return nil, &errs.InvalidWorkflowError{Reason: fmt.Sprintf("task %d has no name", i)}
		}
		if s.Action == "" {
			return nil, &errs.InvalidWorkflowError{Reason: fmt.Sprintf("task %d has no action", i)}
		}
	}

	wf := &database.Workflow{
		UUID:        uuid.New().String(),
		Name:        name,
		Description: description,
		IncidentID:  incidentID,
		Status:      database.WorkflowStatusPending,
	}

	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(wf).Error; err != nil {
			return err
		}
		for i, s := range specs {
			timeout := s.TimeoutSeconds
			if timeout <= 0 {
				timeout = 60
			}
			maxRetries := s.MaxRetries
			if maxRetries < 0 {
				maxRetries = 0
			}
			task := database.WorkflowTask{
				WorkflowID:       wf.ID,
				Position:         i,
				Name:             s.Name,
				Action:           s.Action,
				Parameters:       s.Parameters,
				Status:           database.TaskStatusPending,
				RequiresApproval: s.RequiresApproval,
				TimeoutSeconds:   timeout,
				MaxRetries:       maxRetries,
			}
			if err := tx.Create(&task).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	e.logEvent(wf.ID, "info", "workflow created", database.JSONB{"tasks": len(specs)})
	return e.Get(wf.UUID)
}

// Get loads a workflow with its tasks in execution order.
func (e *Engine) Get(workflowUUID string) (*database.Workflow, error) {
	var wf database.Workflow
	err := e.db.Preload("Tasks", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("uuid = ?", workflowUUID).First(&wf).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

// ListByIncident returns all workflows attached to an incident.
func (e *Engine) ListByIncident(incidentID uint) ([]database.Workflow, error) {
	var workflows []database.Workflow
	err := e.db.Preload("Tasks", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("incident_id = ?", incidentID).Order("created_at DESC").Find(&workflows).Error
	return workflows, err
}

// List returns workflows ordered newest first.
func (e *Engine) List(limit int) ([]database.Workflow, error) {
	if limit <= 0 {
		limit = 100
	}
	var workflows []database.Workflow
	err := e.db.Order("created_at DESC").Limit(limit).Find(&workflows).Error
	return workflows, err
}

// ExecutionLog returns the workflow's execution log ordered oldest first.
// Entries after sinceID only when sinceID > 0.
func (e *Engine) ExecutionLog(workflowUUID string, sinceID uint) ([]database.WorkflowLogEntry, error) {
	wf, err := e.Get(workflowUUID)
	if err != nil {
		return nil, err
	}

	query := e.db.Where("workflow_id = ?", wf.ID)
	if sinceID > 0 {
		query = query.Where("id > ?", sinceID)
	}

	var entries []database.WorkflowLogEntry
	err = query.Order("id ASC").Find(&entries).Error
	return entries, err
}

// acquire registers this goroutine as the single driver for the workflow.
func (e *Engine) acquire(workflowUUID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.running[workflowUUID]; busy {
		return false
	}
	e.running[workflowUUID] = struct{}{}
	return true
}

func (e *Engine) release(workflowUUID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, workflowUUID)
}

// Execute drives the workflow's tasks strictly in order until it completes,
// fails, suspends at an approval gate or is cancelled. A second concurrent
// call for the same workflow is rejected with ErrExecutionInProgress.
// ErrApprovalRequired signals suspension, not failure.
func (e *Engine) Execute(ctx context.Context, workflowUUID string) error {
	if !e.acquire(workflowUUID) {
		return errs.ErrExecutionInProgress
	}
	defer e.release(workflowUUID)

	wf, err := e.Get(workflowUUID)
	if err != nil {
		return err
	}

	if wf.Status.IsTerminal() {
		return errs.ErrWorkflowTerminal
	}

	switch wf.Status {
	case database.WorkflowStatusPending:
		now := time.Now()
		wf.Status = database.WorkflowStatusRunning
		wf.StartedAt = &now
		if err := e.db.Model(wf).Updates(map[string]interface{}{
			"status":     wf.Status,
			"started_at": now,
		}).Error; err != nil {
			return err
		}
		e.logEvent(wf.ID, "info", "workflow started", nil)

	case database.WorkflowStatusPaused:
		// Resuming is only legal once the gating task has been approved.
		if cur := currentTask(wf); cur != nil && cur.RequiresApproval && !cur.Approved {
			return errs.ErrApprovalRequired
		}
		wf.Status = database.WorkflowStatusRunning
		if err := e.db.Model(wf).Update("status", wf.Status).Error; err != nil {
			return err
		}
		e.logEvent(wf.ID, "info", "workflow resumed", nil)
	}

	return e.run(ctx, wf)
}

// currentTask returns the task at the workflow's cursor, or nil past the end.
func currentTask(wf *database.Workflow) *database.WorkflowTask {
	if wf.CurrentTaskIndex < 0 || wf.CurrentTaskIndex >= len(wf.Tasks) {
		return nil
	}
	return &wf.Tasks[wf.CurrentTaskIndex]
}

// run is the sequential task loop. The cursor only ever advances.
func (e *Engine) run(ctx context.Context, wf *database.Workflow) error {
	for wf.CurrentTaskIndex < len(wf.Tasks) {
		// Cancellation is cooperative and takes effect at task boundaries.
		var current database.Workflow
		if err := e.db.Select("status").Take(&current, wf.ID).Error; err != nil {
			return err
		}
		if current.Status == database.WorkflowStatusCancelled {
			return nil
		}
		if err := ctx.Err(); err != nil {
			e.logEvent(wf.ID, "warn", "execution interrupted", database.JSONB{"reason": err.Error()})
			return err
		}

		task := currentTask(wf)

		if task.RequiresApproval && !task.Approved {
			task.Status = database.TaskStatusRequiresApproval
			if err := e.db.Model(task).Update("status", task.Status).Error; err != nil {
				return err
			}
			wf.Status = database.WorkflowStatusPaused
			if err := e.db.Model(wf).Update("status", wf.Status).Error; err != nil {
				return err
			}
			e.logEvent(wf.ID, "info", fmt.Sprintf("task %q awaiting approval", task.Name),
				database.JSONB{"task_index": task.Position})
			return errs.ErrApprovalRequired
		}

		if err := e.runTask(ctx, wf, task); err != nil {
			return err
		}

		wf.CurrentTaskIndex++
		if err := e.db.Model(wf).Update("current_task_index", wf.CurrentTaskIndex).Error; err != nil {
			return err
		}
	}

	now := time.Now()
	wf.Status = database.WorkflowStatusCompleted
	wf.CompletedAt = &now
	if err := e.db.Model(wf).Updates(map[string]interface{}{
		"status":       wf.Status,
		"completed_at": now,
	}).Error; err != nil {
		return err
	}
	e.logEvent(wf.ID, "info", "workflow completed", nil)
	return nil
}

// runTask executes one task with retries. On exhaustion the task and the
// workflow both fail and no further tasks run.
func (e *Engine) runTask(ctx context.Context, wf *database.Workflow, task *database.WorkflowTask) error {
	for {
		attempt := task.RetryCount + 1
		now := time.Now()
		task.Status = database.TaskStatusRunning
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
		if err := e.db.Model(task).Updates(map[string]interface{}{
			"status":     task.Status,
			"started_at": task.StartedAt,
		}).Error; err != nil {
			return err
		}
		e.logEvent(wf.ID, "info", fmt.Sprintf("task %q running (attempt %d)", task.Name, attempt),
			database.JSONB{
				"task_index": task.Position,
				"action":     task.Action,
				"parameters": executor.RedactParams(task.Parameters),
			})

		taskCtx, cancel := context.WithTimeout(ctx, task.Timeout())
		result, execErr := e.exec.Execute(taskCtx, task.Action, task.Parameters)
		cancel()

		if execErr == nil {
			done := time.Now()
			task.Status = database.TaskStatusCompleted
			task.Result = result
			task.CompletedAt = &done
			if err := e.db.Model(task).Updates(map[string]interface{}{
				"status":       task.Status,
				"result":       result,
				"completed_at": done,
			}).Error; err != nil {
				return err
			}
			e.logEvent(wf.ID, "info", fmt.Sprintf("task %q completed", task.Name),
				database.JSONB{"task_index": task.Position})
			return nil
		}

		if task.RetryCount < task.MaxRetries {
			task.RetryCount++
			if err := e.db.Model(task).Update("retry_count", task.RetryCount).Error; err != nil {
				return err
			}
			e.logEvent(wf.ID, "warn",
				fmt.Sprintf("task %q failed, retrying (%d/%d)", task.Name, task.RetryCount, task.MaxRetries),
				database.JSONB{"task_index": task.Position, "error": execErr.Error()})

			select {
			case <-time.After(e.retryDelay):
			case <-ctx.Done():
				e.logEvent(wf.ID, "warn", "execution interrupted during retry wait", nil)
				return ctx.Err()
			}
			continue
		}

		// Retries exhausted: fail fast, no further tasks execute.
		done := time.Now()
		task.Status = database.TaskStatusFailed
		task.Error = execErr.Error()
		task.CompletedAt = &done
		if err := e.db.Model(task).Updates(map[string]interface{}{
			"status":       task.Status,
			"error":        task.Error,
			"completed_at": done,
		}).Error; err != nil {
			return err
		}

		wf.Status = database.WorkflowStatusFailed
		wf.CompletedAt = &done
		if err := e.db.Model(wf).Updates(map[string]interface{}{
			"status":       wf.Status,
			"completed_at": done,
		}).Error; err != nil {
			return err
		}
		e.logEvent(wf.ID, "error",
			fmt.Sprintf("task %q failed after %d retries, workflow failed", task.Name, task.RetryCount),
			database.JSONB{"task_index": task.Position, "error": execErr.Error()})
		return execErr
	}
}

// ApproveTask records approval for the current task of a paused workflow.
// The caller resumes the workflow with Execute afterwards.
func (e *Engine) ApproveTask(workflowUUID, approver string) error {
	wf, err := e.Get(workflowUUID)
	if err != nil {
		return err
	}
	if wf.Status.IsTerminal() {
		return errs.ErrWorkflowTerminal
	}
	if wf.Status != database.WorkflowStatusPaused {
		return errs.NewValidation("workflow", "is not awaiting approval")
	}

	task := currentTask(wf)
	if task == nil || task.Status != database.TaskStatusRequiresApproval {
		return errs.NewValidation("workflow", "current task does not require approval")
	}

	task.Approved = true
	task.ApprovedBy = approver
	task.Status = database.TaskStatusPending
	if err := e.db.Model(task).Updates(map[string]interface{}{
		"approved":    true,
		"approved_by": approver,
		"status":      task.Status,
	}).Error; err != nil {
		return err
	}

	e.logEvent(wf.ID, "info", fmt.Sprintf("task %q approved by %s", task.Name, approver),
		database.JSONB{"task_index": task.Position})
	return nil
}

// Cancel marks the workflow cancelled and skips all tasks that have not yet
// started. An in-flight action is not aborted; the driver notices the
// cancellation at the next task boundary.
func (e *Engine) Cancel(workflowUUID, actor string) error {
	wf, err := e.Get(workflowUUID)
	if err != nil {
		return err
	}
	if wf.Status.IsTerminal() {
		return errs.ErrWorkflowTerminal
	}

	now := time.Now()
	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(wf).Updates(map[string]interface{}{
			"status":       database.WorkflowStatusCancelled,
			"completed_at": now,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&database.WorkflowTask{}).
			Where("workflow_id = ? AND status IN ?", wf.ID, []database.TaskStatus{
				database.TaskStatusPending,
				database.TaskStatusRequiresApproval,
			}).
			Update("status", database.TaskStatusSkipped).Error
	})
	if err != nil {
		return err
	}

	e.logEvent(wf.ID, "warn", fmt.Sprintf("workflow cancelled by %s", actor), nil)
	return nil
}

// logEvent appends an entry to the workflow's execution log. The log is
// append-only; failures to write it are logged but never fail the workflow.
func (e *Engine) logEvent(workflowID uint, level, message string, data database.JSONB) {
	entry := database.WorkflowLogEntry{
		WorkflowID: workflowID,
		Timestamp:  time.Now(),
		Level:      level,
		Message:    message,
		Data:       data,
	}
	if err := e.db.Create(&entry).Error; err != nil {
		log.Printf("Failed to append workflow log entry: %v", err)
	}
}
