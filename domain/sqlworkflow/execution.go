package sqlworkflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sqlreview/audit"
	"sqlreview/bizerror"
	"sqlreview/dispatch"
	"sqlreview/engine"
	"sqlreview/notify"
	"sqlreview/persistence"
	"sqlreview/schedule"
	"sqlreview/session"
	"sync"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

var (
	RunWorkflowFunc    = RunWorkflow
	ExecutionHookFunc  = ExecutionHook
	FireTimingTaskFunc = FireTimingTask
	OscControlFunc     = OscControl
	ExecuteCheckFunc   = ExecuteCheck
)

// runOutcome carries the engine result from the task body to its completion hook.
type runOutcome struct {
	lock   sync.Mutex
	result *engine.ReviewSet
}

func (o *runOutcome) set(r *engine.ReviewSet) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.result = r
}

func (o *runOutcome) get() *engine.ReviewSet {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.result
}

// ExecutionTask builds the unbounded dispatcher task executing a queued workflow.
func ExecutionTask(workflowID types.ID, actor session.Identity) dispatch.Task {
	outcome := &runOutcome{}
	return dispatch.Task{
		Name: schedule.TaskName(schedule.PurposeExecute, workflowID),
		Kind: TaskKindExecute,
		Run: func(ctx context.Context) error {
			result, err := RunWorkflowFunc(ctx, workflowID, actor)
			outcome.set(result)
			return err
		},
		Hook: func(name string, err error) {
			if errors.Is(err, dispatch.ErrShutdown) {
				// the engine may still be applying the statements, the outcome is unknown
				logrus.WithFields(logrus.Fields{"workflowId": workflowID, "task": name}).
					Warn("execution interrupted by shutdown, workflow left executing")
				return
			}
			if hookErr := ExecutionHookFunc(context.Background(), workflowID, actor, outcome.get(), err); hookErr != nil {
				logrus.WithFields(logrus.Fields{"workflowId": workflowID, "task": name}).
					Errorf("execution hook failed: %v", hookErr)
			}
		},
	}
}

// enqueueExecution hands a committed queuing workflow to the dispatcher.
// A workflow that cannot be queued is failed so that it does not stay queuing forever.
func enqueueExecution(wf *SqlWorkflow, actor session.Identity) {
	if ExecutionDispatcher == nil {
		logrus.WithField("workflowId", wf.ID).Error("no execution dispatcher configured")
		return
	}
	err := ExecutionDispatcher.Enqueue(ExecutionTask(wf.ID, actor))
	if err == nil || errors.Is(err, dispatch.ErrDuplicateTask) {
		return
	}
	logrus.WithField("workflowId", wf.ID).Errorf("enqueue execution failed: %v", err)
	if hookErr := ExecutionHookFunc(context.Background(), wf.ID, actor, nil, fmt.Errorf("enqueue execution: %w", err)); hookErr != nil {
		logrus.WithField("workflowId", wf.ID).Errorf("execution hook failed: %v", hookErr)
	}
}

// RunWorkflow is the body of the execution task: it marks the workflow executing and runs it on the engine.
func RunWorkflow(ctx context.Context, id types.ID, actor session.Identity) (*engine.ReviewSet, error) {
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	wf, err := DetailWorkflowFunc(db, id)
	if err != nil {
		return nil, err
	}

	ev, _, err := transition(db, wf, OpRun, &actor, func(tx *gorm.DB) (*effect, error) {
		return &effect{move: true}, nil
	})
	if err != nil {
		return nil, failTransition(wf, OpRun, err)
	}
	afterCommit(ev)

	instance, err := engine.DetailInstanceFunc(db, wf.InstanceID)
	if err != nil {
		return nil, err
	}
	e, err := engine.GetEngineFunc(instance)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, wf.DBName, wf.SqlContent)
}

// ExecutionHook completes an execution: the workflow finishes when the engine reported no error,
// otherwise it ends in exception. runErr is the failure of the task itself, if any.
func ExecutionHook(ctx context.Context, id types.ID, actor session.Identity, result *engine.ReviewSet, runErr error) error {
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	wf, err := DetailWorkflowFunc(db, id)
	if err != nil {
		return err
	}

	op, desc, info := OpComplete, "execution finished", "execution finished"
	if result != nil {
		info = fmt.Sprintf("execution finished, affected rows: %d", result.AffectedRows)
	}
	if runErr != nil || result == nil || result.Failed() {
		op, desc = OpFail, "execution failed"
		switch {
		case runErr != nil:
			info = "execution failed: " + runErr.Error()
		case result != nil && result.Error != "":
			info = "execution failed: " + result.Error
		default:
			info = "execution failed"
		}
	}
	if WorkflowStateMachine.IsTerminal(wf.Status) {
		logrus.WithFields(logrus.Fields{"workflowId": wf.ID, "status": wf.Status}).Warn("execution outcome of a completed workflow ignored")
		return bizerror.ErrStateInvalid
	}
	if _, found := WorkflowStateMachine.FindTransition(op, wf.Status); !found {
		return bizerror.ErrStateInvalid
	}

	columns := map[string]interface{}{"finish_time": Now()}
	if result != nil {
		if b, err := json.Marshal(result.Rows); err == nil {
			columns["execute_result"] = string(b)
		}
	}
	ev, status, err := transition(db, wf, op, &actor, func(tx *gorm.DB) (*effect, error) {
		entry, err := appendLog(tx, wf, audit.OperationFinish, desc, info, &actor)
		if err != nil {
			return nil, err
		}
		return &effect{move: true, columns: columns, logs: logsOf(entry)}, nil
	})
	if err != nil {
		return failTransition(wf, op, err)
	}
	afterCommit(ev)

	notifyAsync(schedule.TaskName(schedule.PurposeFinish, wf.ID), message(notify.PhaseExecute, wf, status, &actor, info))
	return nil
}

// FireTimingTask is triggered by the schedule registry once a timing task is due.
// Tasks of missing workflows, or of workflows no longer waiting for their timing, are obsolete.
// Any other failure leaves the workflow untouched, and the registry retries the task.
func FireTimingTask(ctx context.Context, task schedule.Task) error {
	if task.Purpose != schedule.PurposeTiming {
		return &schedule.ObsoleteError{Cause: fmt.Errorf("unsupported schedule purpose '%s'", task.Purpose)}
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	wf, err := DetailWorkflowFunc(db, task.WorkflowID)
	if err != nil {
		if errors.Is(err, bizerror.ErrNotFound) {
			return &schedule.ObsoleteError{Cause: err}
		}
		return err
	}
	if !waitsForTiming(wf.Status) {
		return &schedule.ObsoleteError{Cause: bizerror.ErrStateInvalid}
	}

	actor := session.Identity{Name: task.Operator}
	ev, _, err := transition(db, wf, OpFire, &actor, func(tx *gorm.DB) (*effect, error) {
		entry, err := appendLog(tx, wf, audit.OperationExecute, "timing execution",
			"timing task triggered, workflow queued for execution", &actor)
		if err != nil {
			return nil, err
		}
		return &effect{move: true, logs: logsOf(entry)}, nil
	})
	if err != nil {
		return failTransition(wf, OpFire, err)
	}
	afterCommit(ev)

	enqueueExecution(wf, actor)
	return nil
}

// OscControl forwards an online schema change command to the engine of the workflow's instance.
// Engine failures are reported in the payload.
func OscControl(id types.ID, command, sqlsha1 string, s *session.Session) (*OscResult, error) {
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	wf, err := DetailWorkflowFunc(db, id)
	if err != nil {
		return nil, err
	}

	result, err := oscControl(s.Ctx(), db, wf, command, sqlsha1)
	if err != nil {
		return &OscResult{Rows: []engine.Row{}, Msg: err.Error()}, nil
	}
	rows := result.Rows
	if rows == nil {
		rows = []engine.Row{}
	}
	return &OscResult{Total: len(rows), Rows: rows, Msg: result.Error}, nil
}

func oscControl(ctx context.Context, db *gorm.DB, wf *SqlWorkflow, command, sqlsha1 string) (*engine.ReviewSet, error) {
	instance, err := engine.DetailInstanceFunc(db, wf.InstanceID)
	if err != nil {
		return nil, err
	}
	e, err := engine.GetEngineFunc(instance)
	if err != nil {
		return nil, err
	}
	return e.OscControl(ctx, command, sqlsha1)
}

// ExecuteCheck reviews statements against an instance without executing them.
func ExecuteCheck(instanceID types.ID, dbName, fullSql string, s *session.Session) (*engine.ReviewSet, error) {
	if err := hasSubmitPermission(s); err != nil {
		return nil, err
	}
	instance, err := engine.DetailInstanceFunc(persistence.ActiveDataSourceManager.GormDB(s.Ctx()), instanceID)
	if err != nil {
		if errors.Is(err, bizerror.ErrNotFound) {
			return nil, &bizerror.ErrBadParam{Cause: fmt.Errorf("instance %s does not exist", instanceID)}
		}
		return nil, err
	}
	e, err := engine.GetEngineFunc(instance)
	if err != nil {
		return nil, &bizerror.ErrBadParam{Cause: err}
	}
	return e.ExecuteCheck(s.Ctx(), dbName, fullSql)
}

func waitsForTiming(status string) bool {
	for _, source := range WorkflowStateMachine.Sources(OpFire) {
		if source == status {
			return true
		}
	}
	return false
}
