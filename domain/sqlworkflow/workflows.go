package sqlworkflow

import (
	"errors"
	"fmt"
	"sqlreview/audit"
	"sqlreview/bizerror"
	"sqlreview/dispatch"
	"sqlreview/event"
	"sqlreview/metrics"
	"sqlreview/notify"
	"sqlreview/persistence"
	"sqlreview/schedule"
	"sqlreview/session"
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

const (
	RunDateLayout        = "2006-01-02 15:04"
	RunDateLayoutSeconds = "2006-01-02 15:04:05"
)

var (
	// ExecutionDispatcher runs queued workflows and async notifications.
	ExecutionDispatcher dispatch.Enqueuer
	// NotificationGate decides whether a phase is notified and sends it.
	NotificationGate *notify.Gate

	Now = time.Now

	DetailWorkflowFunc       = DetailWorkflow
	PassWorkflowFunc         = PassWorkflow
	ExecuteWorkflowFunc      = ExecuteWorkflow
	ScheduleWorkflowFunc     = ScheduleWorkflow
	CancelWorkflowFunc       = CancelWorkflow
	AlterRunDateFunc         = AlterRunDate
	DetailWorkflowStatusFunc = DetailWorkflowStatus
)

func DetailWorkflow(db *gorm.DB, id types.ID) (*SqlWorkflow, error) {
	wf := SqlWorkflow{}
	if err := db.Where("id = ?", id).First(&wf).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, bizerror.ErrNotFound
		}
		return nil, err
	}
	wf.Status = NormalizeStatus(wf.Status)
	return &wf, nil
}

// PassWorkflow submits an approval to the audit. The workflow moves to review pass only when
// the audit as a whole succeeds, otherwise the approval is recorded and the status stays.
func PassWorkflow(id types.ID, remark string, s *session.Session) (*TransitionResult, error) {
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	wf, err := DetailWorkflowFunc(db, id)
	if err != nil {
		return nil, err
	}
	if err := checkGuards(s, wf, transitionAllowed(OpPass), canReview(db)); err != nil {
		metrics.ObserveTransition(OpPass, err, true)
		return nil, err
	}

	ev, status, err := transition(db, wf, OpPass, &s.Identity, func(tx *gorm.DB) (*effect, error) {
		auditRecord, err := audit.DetailByWorkflowIDFunc(tx, wf.ID, audit.WorkflowTypeSqlReview)
		if err != nil {
			return nil, err
		}
		result, err := audit.AuditFunc(tx, auditRecord.AuditID, audit.StatusSuccess, &s.Identity, remark)
		if err != nil {
			return nil, err
		}
		return &effect{move: result.WorkflowStatus == audit.StatusSuccess, logs: logsOf(result.Log)}, nil
	})
	if err != nil {
		return nil, failTransition(wf, OpPass, err)
	}
	afterCommit(ev)

	taskName := schedule.TaskName(schedule.PurposePass, wf.ID)
	if len(ev.Logs) > 0 {
		taskName += "-" + ev.Logs[0].ID.String()
	}
	notifyAsync(taskName, message(notify.PhasePass, wf, status, &s.Identity, remark))
	return &TransitionResult{Status: status}, nil
}

// ExecuteWorkflow queues the workflow for execution (auto), or records it as executed by hand (manual).
func ExecuteWorkflow(id types.ID, mode string, s *session.Session) (*TransitionResult, error) {
	if mode != ModeAuto && mode != ModeManual {
		return nil, &bizerror.ErrBadParam{Cause: fmt.Errorf("invalid execute mode '%s'", mode)}
	}
	op := OpExecute
	if mode == ModeManual {
		op = OpManualFinish
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	wf, err := DetailWorkflowFunc(db, id)
	if err != nil {
		return nil, err
	}
	if err := checkGuards(s, wf, transitionAllowed(op), canExecute, inRunWindow(Now())); err != nil {
		metrics.ObserveTransition(op, err, true)
		return nil, err
	}

	timingTaskName := schedule.TaskName(schedule.PurposeTiming, wf.ID)
	var ev *event.EventRecord
	var status string
	if mode == ModeAuto {
		ev, status, err = transition(db, wf, op, &s.Identity, func(tx *gorm.DB) (*effect, error) {
			if err := schedule.RemoveFunc(tx, timingTaskName); err != nil {
				return nil, err
			}
			entry, err := appendLog(tx, wf, audit.OperationExecute, "execute workflow", "workflow queued for execution", &s.Identity)
			if err != nil {
				return nil, err
			}
			return &effect{move: true, logs: logsOf(entry)}, nil
		})
	} else {
		ev, status, err = transition(db, wf, op, &s.Identity, func(tx *gorm.DB) (*effect, error) {
			if err := schedule.RemoveFunc(tx, timingTaskName); err != nil {
				return nil, err
			}
			entry, err := appendLog(tx, wf, audit.OperationFinish, "manual execution", "workflow marked as executed manually", &s.Identity)
			if err != nil {
				return nil, err
			}
			return &effect{move: true, columns: map[string]interface{}{"finish_time": Now()}, logs: logsOf(entry)}, nil
		})
	}
	if err != nil {
		return nil, failTransition(wf, op, err)
	}
	afterCommit(ev)

	if mode == ModeAuto {
		enqueueExecution(wf, s.Identity)
	} else if NotificationGate != nil {
		msg := message(notify.PhaseExecute, wf, status, &s.Identity, "executed manually")
		if _, err := NotificationGate.NotifySync(s.Ctx(), msg); err != nil {
			logrus.WithFields(logrus.Fields{"workflowId": wf.ID, "phase": notify.PhaseExecute}).Warnf("notify failed: %v", err)
		}
	}
	return &TransitionResult{Status: status}, nil
}

// ParseRunDate accepts minute or second precision in the local time zone.
func ParseRunDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.ParseInLocation(RunDateLayout, value, time.Local); err == nil {
		return t, nil
	}
	return time.ParseInLocation(RunDateLayoutSeconds, value, time.Local)
}

// ScheduleWorkflow registers a timing task firing at runDate, which must be in the future.
func ScheduleWorkflow(id types.ID, runDate string, s *session.Session) (*TransitionResult, error) {
	if strings.TrimSpace(runDate) == "" {
		return nil, bizerror.ErrRunDateRequired
	}
	runAt, err := ParseRunDate(runDate)
	if err != nil {
		return nil, &bizerror.ErrBadParam{Cause: fmt.Errorf("invalid run date '%s'", runDate)}
	}
	if !runAt.After(Now()) {
		return nil, bizerror.ErrRunDateInPast
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	wf, err := DetailWorkflowFunc(db, id)
	if err != nil {
		return nil, err
	}
	if err := checkGuards(s, wf, transitionAllowed(OpSchedule), canExecute, inRunWindow(runAt)); err != nil {
		metrics.ObserveTransition(OpSchedule, err, true)
		return nil, err
	}

	ev, status, err := transition(db, wf, OpSchedule, &s.Identity, func(tx *gorm.DB) (*effect, error) {
		task := &schedule.Task{
			Name:        schedule.TaskName(schedule.PurposeTiming, wf.ID),
			Purpose:     schedule.PurposeTiming,
			WorkflowID:  wf.ID,
			Operator:    s.Identity.Name,
			TriggerTime: runAt,
		}
		if err := schedule.AddFunc(tx, task); err != nil {
			return nil, err
		}
		entry, err := appendLog(tx, wf, audit.OperationTiming, "timing execution",
			"scheduled to execute at "+runAt.Format(RunDateLayout), &s.Identity)
		if err != nil {
			return nil, err
		}
		return &effect{move: true, logs: logsOf(entry)}, nil
	})
	if err != nil {
		return nil, failTransition(wf, OpSchedule, err)
	}
	afterCommit(ev)
	return &TransitionResult{Status: status}, nil
}

// CancelWorkflow aborts a workflow that has not started executing.
// While reviewed, the submitter aborts the audit and a reviewer rejects it.
// Afterwards only a log entry is appended.
func CancelWorkflow(id types.ID, remark string, s *session.Session) (*TransitionResult, error) {
	if strings.TrimSpace(remark) == "" {
		return nil, bizerror.ErrCancelRemarkRequired
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	wf, err := DetailWorkflowFunc(db, id)
	if err != nil {
		return nil, err
	}
	if err := checkGuards(s, wf, transitionAllowed(OpCancel), canCancel(db)); err != nil {
		metrics.ObserveTransition(OpCancel, err, true)
		return nil, err
	}

	auditStatus := audit.StatusSuccess
	ev, status, err := transition(db, wf, OpCancel, &s.Identity, func(tx *gorm.DB) (*effect, error) {
		auditRecord, err := audit.DetailByWorkflowIDFunc(tx, wf.ID, audit.WorkflowTypeSqlReview)
		if err != nil {
			return nil, err
		}
		auditStatus = auditRecord.CurrentStatus

		var entry *audit.WorkflowLog
		if wf.Status == StatusManReviewing {
			decision := audit.StatusAbort
			if !isSubmitter(s, wf) {
				reviewer, err := audit.CanReviewFunc(tx, s, wf.ID, audit.WorkflowTypeSqlReview)
				if err != nil {
					return nil, err
				}
				if !reviewer {
					return nil, bizerror.ErrForbidden
				}
				decision = audit.StatusReject
			}
			result, err := audit.AuditFunc(tx, auditRecord.AuditID, decision, &s.Identity, remark)
			if err != nil {
				return nil, err
			}
			auditStatus = result.WorkflowStatus
			entry = result.Log
		} else {
			entry = &audit.WorkflowLog{AuditID: auditRecord.AuditID, OperationType: audit.OperationReject,
				OperationTypeDesc: "review rejected", OperationInfo: "reject reason: " + remark,
				Operator: s.Identity.Name, OperatorDisplay: s.Identity.DisplayName()}
			if isSubmitter(s, wf) {
				entry.OperationType = audit.OperationCancel
				entry.OperationTypeDesc = "cancel execution"
				entry.OperationInfo = "cancel reason: " + remark
			}
			if err := audit.AddLogFunc(tx, entry); err != nil {
				return nil, err
			}
		}

		if wf.Status == StatusTimingTask {
			if err := schedule.RemoveFunc(tx, schedule.TaskName(schedule.PurposeTiming, wf.ID)); err != nil {
				return nil, err
			}
		}
		return &effect{move: true, logs: logsOf(entry)}, nil
	})
	if err != nil {
		if errors.Is(err, bizerror.ErrForbidden) {
			metrics.ObserveTransition(OpCancel, err, true)
			return nil, err
		}
		return nil, failTransition(wf, OpCancel, err)
	}
	afterCommit(ev)

	if auditStatus == audit.StatusAbort || auditStatus == audit.StatusReject {
		notifyAsync(schedule.TaskName(schedule.PurposeCancel, wf.ID),
			message(notify.PhaseCancel, wf, status, &s.Identity, remark))
	}
	return &TransitionResult{Status: status}, nil
}

// AlterRunDate overwrites the execution window. An empty value clears that bound.
func AlterRunDate(id types.ID, start, end string, s *session.Session) (*SqlWorkflow, error) {
	startAt, err := parseOptionalRunDate(start)
	if err != nil {
		return nil, err
	}
	endAt, err := parseOptionalRunDate(end)
	if err != nil {
		return nil, err
	}
	if startAt != nil && endAt != nil && endAt.Before(*startAt) {
		return nil, &bizerror.ErrBadParam{Cause: errors.New("run date end must not be earlier than run date start")}
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	wf, err := DetailWorkflowFunc(db, id)
	if err != nil {
		return nil, err
	}
	if err := checkGuards(s, wf, hasReviewPermission); err != nil {
		metrics.ObserveTransition(OpAlterRunDate, err, true)
		return nil, err
	}

	changes := map[string]interface{}{"run_date_start": startAt, "run_date_end": endAt}
	if err := db.Model(&SqlWorkflow{}).Where("id = ?", wf.ID).Updates(changes).Error; err != nil {
		metrics.ObserveTransition(OpAlterRunDate, err, false)
		return nil, err
	}
	metrics.ObserveTransition(OpAlterRunDate, nil, false)
	wf.RunDateStart, wf.RunDateEnd = startAt, endAt
	return wf, nil
}

func parseOptionalRunDate(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := ParseRunDate(value)
	if err != nil {
		return nil, &bizerror.ErrBadParam{Cause: fmt.Errorf("invalid run date '%s'", value)}
	}
	return &t, nil
}

func DetailWorkflowStatus(id types.ID, s *session.Session) (string, error) {
	wf, err := DetailWorkflowFunc(persistence.ActiveDataSourceManager.GormDB(s.Ctx()), id)
	if err != nil {
		return "", err
	}
	return wf.Status, nil
}

// effect is what the body of a transition did, and whether the status moves along the edge.
type effect struct {
	move    bool
	columns map[string]interface{}
	logs    []audit.WorkflowLog
}

// transition runs body and the status change of op in one transaction, recording a workflow event.
func transition(db *gorm.DB, wf *SqlWorkflow, op string, actor *session.Identity,
	body func(tx *gorm.DB) (*effect, error)) (*event.EventRecord, string, error) {

	var ev *event.EventRecord
	newStatus := wf.Status
	err := db.Transaction(func(tx *gorm.DB) error {
		eff, err := body(tx)
		if err != nil {
			return err
		}
		category := event.EventCategoryAudited
		if eff.move {
			if newStatus, err = compareAndSwapStatus(tx, wf, op, eff.columns); err != nil {
				return err
			}
			category = event.EventCategoryStatusChanged
		}
		ev, err = event.CreateEvent(wf.ID, wf.WorkflowName, category, op,
			event.StatusChange(wf.Status, newStatus), actor, Now(), tx)
		if err != nil {
			return err
		}
		ev.Logs = eff.logs
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return ev, newStatus, nil
}

// compareAndSwapStatus moves the status along op only if no one else moved it since wf was loaded.
func compareAndSwapStatus(tx *gorm.DB, wf *SqlWorkflow, op string, columns map[string]interface{}) (string, error) {
	t, found := WorkflowStateMachine.FindTransition(op, wf.Status)
	if !found {
		return "", bizerror.ErrStateInvalid
	}
	changes := map[string]interface{}{}
	for k, v := range columns {
		changes[k] = v
	}
	changes["status"] = t.To.Name

	expected := []string{wf.Status}
	if wf.Status == StatusManReviewing {
		expected = append(expected, StatusPendingReview)
	}
	q := tx.Model(&SqlWorkflow{}).Where("id = ? AND status IN (?)", wf.ID, expected).Updates(changes)
	if q.Error != nil {
		return "", q.Error
	}
	if q.RowsAffected != 1 {
		return "", bizerror.ErrStatusConflict
	}
	return t.To.Name, nil
}

func appendLog(tx *gorm.DB, wf *SqlWorkflow, operationType audit.OperationType, desc, info string,
	operator *session.Identity) (*audit.WorkflowLog, error) {

	auditRecord, err := audit.DetailByWorkflowIDFunc(tx, wf.ID, audit.WorkflowTypeSqlReview)
	if err != nil {
		return nil, err
	}
	entry := &audit.WorkflowLog{AuditID: auditRecord.AuditID, OperationType: operationType,
		OperationTypeDesc: desc, OperationInfo: info,
		Operator: operator.Name, OperatorDisplay: operator.DisplayName()}
	if err := audit.AddLogFunc(tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func logsOf(entry *audit.WorkflowLog) []audit.WorkflowLog {
	if entry == nil {
		return nil
	}
	return []audit.WorkflowLog{*entry}
}

func failTransition(wf *SqlWorkflow, op string, err error) error {
	logrus.WithFields(logrus.Fields{"workflowId": wf.ID, "operation": op, "status": wf.Status}).
		Errorf("workflow transition failed: %v", err)
	metrics.ObserveTransition(op, err, false)
	return &bizerror.ErrTransaction{Operation: op, Cause: err}
}

// afterCommit fans the event out to the handlers; their failures never reach the caller.
func afterCommit(ev *event.EventRecord) {
	metrics.ObserveTransition(ev.Operation, nil, false)
	event.InvokeHandlersFunc(ev)
}

func message(phase string, wf *SqlWorkflow, status string, operator *session.Identity, remark string) notify.Message {
	return notify.Message{Phase: phase, WorkflowID: wf.ID, WorkflowName: wf.WorkflowName,
		Status: status, Operator: operator.DisplayName(), Remark: remark}
}

func notifyAsync(taskName string, msg notify.Message) {
	if NotificationGate == nil {
		return
	}
	if _, err := NotificationGate.NotifyAsync(taskName, msg); err != nil {
		logrus.WithFields(logrus.Fields{"workflowId": msg.WorkflowID, "phase": msg.Phase, "task": taskName}).
			Warnf("notification not queued: %v", err)
	}
}
