package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
)

// Scheduler holds at most one cron entry per workflow, keyed by workflow id:
// scheduling a workflow again replaces its earlier entry, so a workflow with
// several schedule_start nodes fires on one cron expression only. It never
// runs a workflow directly; it calls back
// into whatever executes it (normally the Workflow Manager) so the Manager
// keeps sole ownership of active_executions bookkeeping.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	entries map[model.WorkflowID]cron.EntryID
}

// RunFunc is invoked when a workflow's cron schedule fires.
type RunFunc func(ctx context.Context, workflowID model.WorkflowID)

// NewScheduler constructs a Scheduler. The cron.Cron instance runs with
// second-level precision disabled (standard 5-field expressions), matching
// the cron_expression strings a schedule_start node declares.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(),
		logger:  logger,
		entries: make(map[model.WorkflowID]cron.EntryID),
	}
}

// Start begins running scheduled entries in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Schedule registers (or replaces) a cron entry for a workflow's
// schedule_start node. Per §4.D, only the cron expression drives firing;
// the callback is responsible for actually calling Executor.Execute with
// trigger=Scheduled.
func (s *Scheduler) Schedule(workflowID model.WorkflowID, cronExpr string, run RunFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[workflowID]; ok {
		s.cron.Remove(existing)
		delete(s.entries, workflowID)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.logger.Info("scheduled trigger firing", zap.String("workflow_id", workflowID.String()))
		run(context.Background(), workflowID)
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid cron expression %q for workflow %s: %w", cronExpr, workflowID, err)
	}
	s.entries[workflowID] = entryID
	return nil
}

// Cancel removes a workflow's scheduled task, if any (cascade-cancel on
// deactivate/delete).
func (s *Scheduler) Cancel(workflowID model.WorkflowID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[workflowID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, workflowID)
	}
}

// IsScheduled reports whether workflowID currently has a live cron entry.
func (s *Scheduler) IsScheduled(workflowID model.WorkflowID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[workflowID]
	return ok
}
