package sqlworkflow

import (
	"sqlreview/domain/state"
	"sqlreview/engine"
	"time"

	"github.com/fundwit/go-commons/types"
)

const (
	StatusManReviewing = "workflow_manreviewing"
	StatusReviewPass   = "workflow_review_pass"
	StatusTimingTask   = "workflow_timingtask"
	StatusQueuing      = "workflow_queuing"
	StatusExecuting    = "workflow_executing"
	StatusFinish       = "workflow_finish"
	StatusException    = "workflow_exception"
	StatusAbort        = "workflow_abort"

	// StatusPendingReview is the name other components use for a workflow awaiting its first review.
	StatusPendingReview = "pending_review"
)

const (
	OpPass         = "pass"
	OpExecute      = "execute"
	OpManualFinish = "manual_finish"
	OpSchedule     = "schedule"
	OpCancel       = "cancel"
	OpFire         = "fire"
	OpRun          = "run"
	OpComplete     = "complete"
	OpFail         = "fail"
	OpAlterRunDate = "alter_run_date"
)

const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

const (
	TaskKindExecute = "execute"
)

// SqlWorkflow is a SQL change request under review.
type SqlWorkflow struct {
	ID              types.ID `json:"id" gorm:"primary_key"`
	WorkflowName    string   `json:"workflowName"`
	GroupID         types.ID `json:"groupId"`
	Engineer        string   `json:"engineer"`
	EngineerDisplay string   `json:"engineerDisplay"`
	Status          string   `json:"status" gorm:"index"`

	InstanceID    types.ID `json:"instanceId"`
	DBName        string   `json:"dbName"`
	SqlContent    string   `json:"sqlContent" sql:"type:TEXT"`
	ExecuteResult string   `json:"executeResult" sql:"type:TEXT"`

	RunDateStart *time.Time `json:"runDateStart"`
	RunDateEnd   *time.Time `json:"runDateEnd"`
	FinishTime   *time.Time `json:"finishTime"`
	CreateTime   time.Time  `json:"createTime"`
}

func (SqlWorkflow) TableName() string {
	return "sql_workflows"
}

// TransitionResult is reported to callers of a transition.
type TransitionResult struct {
	Status string `json:"status"`
}

// OscResult is the row shaped payload of an OSC control call.
type OscResult struct {
	Total int          `json:"total"`
	Rows  []engine.Row `json:"rows"`
	Msg   string       `json:"msg"`
}

var (
	stateManReviewing = state.State{Name: StatusManReviewing, Category: state.Pending}
	stateReviewPass   = state.State{Name: StatusReviewPass, Category: state.InProcess}
	stateTimingTask   = state.State{Name: StatusTimingTask, Category: state.InProcess}
	stateQueuing      = state.State{Name: StatusQueuing, Category: state.InProcess}
	stateExecuting    = state.State{Name: StatusExecuting, Category: state.InProcess}
	stateFinish       = state.State{Name: StatusFinish, Category: state.Done}
	stateException    = state.State{Name: StatusException, Category: state.Done}
	stateAbort        = state.State{Name: StatusAbort, Category: state.Done}

	// WorkflowStateMachine holds every edge a workflow status may take.
	WorkflowStateMachine = state.NewStateMachine(
		[]state.State{stateManReviewing, stateReviewPass, stateTimingTask, stateQueuing,
			stateExecuting, stateFinish, stateException, stateAbort},
		[]state.Transition{
			{Name: OpPass, From: stateManReviewing, To: stateReviewPass},

			{Name: OpExecute, From: stateReviewPass, To: stateQueuing},
			{Name: OpExecute, From: stateTimingTask, To: stateQueuing},
			{Name: OpManualFinish, From: stateReviewPass, To: stateFinish},
			{Name: OpManualFinish, From: stateTimingTask, To: stateFinish},
			{Name: OpSchedule, From: stateReviewPass, To: stateTimingTask},

			{Name: OpCancel, From: stateManReviewing, To: stateAbort},
			{Name: OpCancel, From: stateReviewPass, To: stateAbort},
			{Name: OpCancel, From: stateTimingTask, To: stateAbort},
			{Name: OpCancel, From: stateQueuing, To: stateAbort},

			{Name: OpFire, From: stateTimingTask, To: stateQueuing},
			{Name: OpRun, From: stateQueuing, To: stateExecuting},
			{Name: OpComplete, From: stateExecuting, To: stateFinish},
			{Name: OpFail, From: stateExecuting, To: stateException},
			{Name: OpFail, From: stateQueuing, To: stateException},
		})
)

// NormalizeStatus maps external aliases onto the stored status names.
func NormalizeStatus(status string) string {
	if status == StatusPendingReview {
		return StatusManReviewing
	}
	return status
}
