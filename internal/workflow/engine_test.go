package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/incidra/incidra/internal/database"
	"github.com/incidra/incidra/internal/errs"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// fakeExecutor scripts per-action behavior for engine tests.
type fakeExecutor struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]int // action -> remaining failures
	failAll  map[string]bool
	block    chan struct{} // when set, actions block until closed
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		failures: make(map[string]int),
		failAll:  make(map[string]bool),
	}
}

func (f *fakeExecutor) Execute(ctx context.Context, action string, params map[string]interface{}) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, action)
	block := f.block
	alwaysFails := f.failAll[action]
	remaining := f.failures[action]
	if remaining > 0 {
		f.failures[action] = remaining - 1
	}
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if alwaysFails || remaining > 0 {
		return "", &errs.ActionExecutionError{Action: action, Err: fmt.Errorf("simulated failure")}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "ok", nil
}

func (f *fakeExecutor) callCount(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == action {
			n++
		}
	}
	return n
}

func newTestEngine(t *testing.T) (*Engine, *fakeExecutor, *gorm.DB) {
	db := setupTestDB(t)
	exec := newFakeExecutor()
	engine := NewEngine(db, exec)
	engine.SetRetryDelay(0)
	return engine, exec, db
}

func specs(actions ...string) []TaskSpec {
	out := make([]TaskSpec, len(actions))
	for i, a := range actions {
		out[i] = TaskSpec{Name: "task-" + a, Action: a}
	}
	return out
}

func TestCreateWorkflow_EmptyTaskList(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.CreateWorkflow("contain", "", nil, nil)
	if !errs.IsInvalidWorkflow(err) {
		t.Fatalf("expected InvalidWorkflowError, got %v", err)
	}
}

func TestCreateWorkflow_TaskValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.CreateWorkflow("contain", "", nil, []TaskSpec{{Name: "", Action: "block_ip"}})
	if !errs.IsInvalidWorkflow(err) {
		t.Fatalf("expected InvalidWorkflowError for missing name, got %v", err)
	}

	_, err = engine.CreateWorkflow("contain", "", nil, []TaskSpec{{Name: "block", Action: ""}})
	if !errs.IsInvalidWorkflow(err) {
		t.Fatalf("expected InvalidWorkflowError for missing action, got %v", err)
	}
}

func TestCreateWorkflow_Defaults(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	wf, err := engine.CreateWorkflow("contain", "contain a host", nil, specs("block_ip"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wf.Status != database.WorkflowStatusPending {
		t.Errorf("expected pending status, got %s", wf.Status)
	}
	if len(wf.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(wf.Tasks))
	}
	task := wf.Tasks[0]
	if task.Status != database.TaskStatusPending {
		t.Errorf("expected pending task, got %s", task.Status)
	}
	if task.RetryCount != 0 {
		t.Errorf("expected retry_count 0, got %d", task.RetryCount)
	}
	if task.TimeoutSeconds != 60 {
		t.Errorf("expected default timeout 60s, got %d", task.TimeoutSeconds)
	}
}

func TestExecute_AllTasksComplete(t *testing.T) {
	engine, exec, _ := newTestEngine(t)

	wf, _ := engine.CreateWorkflow("contain", "", nil, specs("block_ip", "isolate_host"))
	if err := engine.Execute(context.Background(), wf.UUID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := engine.Get(wf.UUID)
	if got.Status != database.WorkflowStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.CompletedAt == nil || got.StartedAt == nil {
		t.Error("expected started_at and completed_at to be set")
	}
	if got.CurrentTaskIndex != 2 {
		t.Errorf("expected cursor at 2, got %d", got.CurrentTaskIndex)
	}
	for _, task := range got.Tasks {
		if task.Status != database.TaskStatusCompleted {
			t.Errorf("expected task %s completed, got %s", task.Name, task.Status)
		}
		if task.Result != "ok" {
			t.Errorf("expected task result stored, got %q", task.Result)
		}
	}
	if exec.callCount("block_ip") != 1 || exec.callCount("isolate_host") != 1 {
		t.Error("expected each action invoked exactly once")
	}
}

func TestExecute_TasksRunInOrder(t *testing.T) {
	engine, exec, _ := newTestEngine(t)

	wf, _ := engine.CreateWorkflow("contain", "", nil, specs("a", "b", "c"))
	if err := engine.Execute(context.Background(), wf.UUID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(exec.calls) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(exec.calls))
	}
	for i, a := range want {
		if exec.calls[i] != a {
			t.Errorf("expected call %d to be %s, got %s", i, a, exec.calls[i])
		}
	}
}

func TestExecute_RetryThenFail(t *testing.T) {
	engine, exec, _ := newTestEngine(t)
	exec.failAll["flaky"] = true

	wf, _ := engine.CreateWorkflow("contain", "", nil, []TaskSpec{
		{Name: "first", Action: "a"},
		{Name: "flaky", Action: "flaky", MaxRetries: 2},
		{Name: "never", Action: "z"},
	})

	err := engine.Execute(context.Background(), wf.UUID)
	if !errs.IsActionExecution(err) {
		t.Fatalf("expected ActionExecutionError, got %v", err)
	}

	got, _ := engine.Get(wf.UUID)
	if got.Status != database.WorkflowStatusFailed {
		t.Errorf("expected failed workflow, got %s", got.Status)
	}
	// max_retries=2 means one initial attempt plus two retries.
	if n := exec.callCount("flaky"); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
	// The task before the failure keeps its completed state.
	if got.Tasks[0].Status != database.TaskStatusCompleted {
		t.Errorf("expected preceding task completed, got %s", got.Tasks[0].Status)
	}
	flaky := got.Tasks[1]
	if flaky.Status != database.TaskStatusFailed {
		t.Errorf("expected failed task, got %s", flaky.Status)
	}
	if flaky.RetryCount != 2 {
		t.Errorf("expected exactly 2 retries recorded, got %d", flaky.RetryCount)
	}
	if flaky.Error == "" {
		t.Error("expected the last error to be preserved on the task")
	}
	// Fail-fast: the task after the failing one never runs.
	if exec.callCount("z") != 0 {
		t.Error("expected tasks after the failure never to execute")
	}
	if got.Tasks[2].Status != database.TaskStatusPending {
		t.Errorf("expected trailing task to stay pending, got %s", got.Tasks[2].Status)
	}
	// Cursor frozen at the failing task's index.
	if got.CurrentTaskIndex != 1 {
		t.Errorf("expected cursor frozen at 1, got %d", got.CurrentTaskIndex)
	}
}

func TestExecute_RetrySucceeds(t *testing.T) {
	engine, exec, _ := newTestEngine(t)
	exec.failures["flaky"] = 1 // fail once, then succeed

	wf, _ := engine.CreateWorkflow("contain", "", nil, []TaskSpec{
		{Name: "flaky", Action: "flaky", MaxRetries: 3},
	})

	if err := engine.Execute(context.Background(), wf.UUID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := engine.Get(wf.UUID)
	if got.Status != database.WorkflowStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.Tasks[0].RetryCount != 1 {
		t.Errorf("expected 1 retry, got %d", got.Tasks[0].RetryCount)
	}
}

func TestExecute_FailureLogIsComplete(t *testing.T) {
	engine, exec, _ := newTestEngine(t)
	exec.failAll["b"] = true

	// taskA succeeds, taskB fails with max_retries=1: the log must show the
	// completion of A, two attempts of B, one retry and the final failure.
	wf, _ := engine.CreateWorkflow("contain", "", nil, []TaskSpec{
		{Name: "taskA", Action: "a"},
		{Name: "taskB", Action: "b", MaxRetries: 1},
	})
	engine.Execute(context.Background(), wf.UUID)

	if n := exec.callCount("b"); n != 2 {
		t.Errorf("expected 2 attempts for taskB, got %d", n)
	}

	entries, err := engine.ExecutionLog(wf.UUID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawACompleted, sawRetry, sawFailed bool
	for _, e := range entries {
		switch {
		case e.Message == `task "taskA" completed`:
			sawACompleted = true
		case e.Level == "warn" && e.Message == `task "taskB" failed, retrying (1/1)`:
			sawRetry = true
		case e.Level == "error" && e.Message == `task "taskB" failed after 1 retries, workflow failed`:
			sawFailed = true
		}
	}
	if !sawACompleted || !sawRetry || !sawFailed {
		t.Errorf("execution log missing events: completed=%v retry=%v failed=%v", sawACompleted, sawRetry, sawFailed)
	}

	// The log is ordered.
	for i := 1; i < len(entries); i++ {
		if entries[i].ID <= entries[i-1].ID {
			t.Error("expected execution log ordered by id")
		}
	}
}

func TestExecute_TerminalWorkflowRejected(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	wf, _ := engine.CreateWorkflow("contain", "", nil, specs("a"))
	if err := engine.Execute(context.Background(), wf.UUID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := engine.Execute(context.Background(), wf.UUID)
	if !errors.Is(err, errs.ErrWorkflowTerminal) {
		t.Fatalf("expected ErrWorkflowTerminal, got %v", err)
	}
}

func TestExecute_ApprovalGate(t *testing.T) {
	engine, exec, _ := newTestEngine(t)

	wf, _ := engine.CreateWorkflow("contain", "", nil, []TaskSpec{
		{Name: "recon", Action: "a"},
		{Name: "destructive", Action: "b", RequiresApproval: true},
		{Name: "after", Action: "c"},
	})

	err := engine.Execute(context.Background(), wf.UUID)
	if !errors.Is(err, errs.ErrApprovalRequired) {
		t.Fatalf("expected ErrApprovalRequired, got %v", err)
	}

	got, _ := engine.Get(wf.UUID)
	if got.Status != database.WorkflowStatusPaused {
		t.Errorf("expected paused workflow, got %s", got.Status)
	}
	if got.Tasks[1].Status != database.TaskStatusRequiresApproval {
		t.Errorf("expected requires_approval task, got %s", got.Tasks[1].Status)
	}
	if exec.callCount("b") != 0 {
		t.Error("expected the gated action not to run before approval")
	}

	// Re-invoking execute without approval stays suspended.
	err = engine.Execute(context.Background(), wf.UUID)
	if !errors.Is(err, errs.ErrApprovalRequired) {
		t.Fatalf("expected ErrApprovalRequired on re-execute, got %v", err)
	}
	if exec.callCount("b") != 0 {
		t.Error("expected re-execute without approval to be a no-op")
	}

	// Approval resumes from the gated task.
	if err := engine.ApproveTask(wf.UUID, "analyst@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := engine.Execute(context.Background(), wf.UUID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ = engine.Get(wf.UUID)
	if got.Status != database.WorkflowStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.Tasks[1].ApprovedBy != "analyst@example.com" {
		t.Errorf("expected approver recorded, got %q", got.Tasks[1].ApprovedBy)
	}
	if exec.callCount("b") != 1 || exec.callCount("c") != 1 {
		t.Error("expected gated and following tasks to run after approval")
	}
}

func TestApproveTask_InvalidStates(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	wf, _ := engine.CreateWorkflow("contain", "", nil, specs("a"))

	// Not paused yet.
	if err := engine.ApproveTask(wf.UUID, "x"); !errs.IsValidation(err) {
		t.Errorf("expected validation error on pending workflow, got %v", err)
	}

	engine.Execute(context.Background(), wf.UUID)
	if err := engine.ApproveTask(wf.UUID, "x"); !errors.Is(err, errs.ErrWorkflowTerminal) {
		t.Errorf("expected ErrWorkflowTerminal on completed workflow, got %v", err)
	}
}

func TestCancel_SkipsRemainingTasks(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	wf, _ := engine.CreateWorkflow("contain", "", nil, specs("a", "b", "c"))
	if err := engine.Cancel(wf.UUID, "analyst"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := engine.Get(wf.UUID)
	if got.Status != database.WorkflowStatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
	for _, task := range got.Tasks {
		if task.Status != database.TaskStatusSkipped {
			t.Errorf("expected task %s skipped, got %s", task.Name, task.Status)
		}
	}

	// A cancelled workflow cannot be re-run or re-cancelled.
	if err := engine.Execute(context.Background(), wf.UUID); !errors.Is(err, errs.ErrWorkflowTerminal) {
		t.Errorf("expected ErrWorkflowTerminal on execute, got %v", err)
	}
	if err := engine.Cancel(wf.UUID, "analyst"); !errors.Is(err, errs.ErrWorkflowTerminal) {
		t.Errorf("expected ErrWorkflowTerminal on cancel, got %v", err)
	}
}

func TestCancel_PausedWorkflow(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	wf, _ := engine.CreateWorkflow("contain", "", nil, []TaskSpec{
		{Name: "gated", Action: "a", RequiresApproval: true},
	})
	engine.Execute(context.Background(), wf.UUID)

	if err := engine.Cancel(wf.UUID, "analyst"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := engine.Get(wf.UUID)
	if got.Tasks[0].Status != database.TaskStatusSkipped {
		t.Errorf("expected gated task skipped, got %s", got.Tasks[0].Status)
	}
}

func TestExecute_ConcurrentDriversRejected(t *testing.T) {
	engine, exec, _ := newTestEngine(t)
	exec.block = make(chan struct{})

	wf, _ := engine.CreateWorkflow("contain", "", nil, specs("a"))

	done := make(chan error, 1)
	go func() {
		done <- engine.Execute(context.Background(), wf.UUID)
	}()

	// Wait until the first driver is inside the action.
	deadline := time.After(2 * time.Second)
	for exec.callCount("a") == 0 {
		select {
		case <-deadline:
			t.Fatal("first driver never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	err := engine.Execute(context.Background(), wf.UUID)
	if !errors.Is(err, errs.ErrExecutionInProgress) {
		t.Fatalf("expected ErrExecutionInProgress, got %v", err)
	}

	close(exec.block)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error from first driver: %v", err)
	}
}

func TestExecute_UnknownWorkflow(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	err := engine.Execute(context.Background(), "no-such-uuid")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExecutionLog_Since(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	wf, _ := engine.CreateWorkflow("contain", "", nil, specs("a"))
	engine.Execute(context.Background(), wf.UUID)

	all, err := engine.ExecutionLog(wf.UUID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) < 3 {
		t.Fatalf("expected at least 3 log entries, got %d", len(all))
	}

	tail, err := engine.ExecutionLog(wf.UUID, all[0].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tail) != len(all)-1 {
		t.Errorf("expected %d entries after the first, got %d", len(all)-1, len(tail))
	}
}

func TestListByIncident(t *testing.T) {
	engine, _, db := newTestEngine(t)

	inc := database.Incident{UUID: "inc-1", Title: "t"}
	db.Create(&inc)

	engine.CreateWorkflow("one", "", &inc.ID, specs("a"))
	engine.CreateWorkflow("two", "", &inc.ID, specs("a"))
	engine.CreateWorkflow("unattached", "", nil, specs("a"))

	workflows, err := engine.ListByIncident(inc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(workflows) != 2 {
		t.Errorf("expected 2 workflows, got %d", len(workflows))
	}
}
