package audit

import (
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
)

type WorkflowType int

const (
	WorkflowTypeQuery     WorkflowType = 1
	WorkflowTypeSqlReview WorkflowType = 2
)

// Status is the aggregate status of an audit, distinct from the status of the workflow it reviews.
type Status int

const (
	StatusWait    Status = 0
	StatusSuccess Status = 1
	StatusReject  Status = 2
	StatusAbort   Status = 3
)

var statusNames = map[Status]string{
	StatusWait:    "audit_wait",
	StatusSuccess: "audit_success",
	StatusReject:  "audit_reject",
	StatusAbort:   "audit_abort",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "audit_unknown"
}

// Decision is what a reviewer submits; its values coincide with the resulting aggregate statuses.
type Decision = Status

type OperationType int

const (
	OperationSubmit  OperationType = 0
	OperationPass    OperationType = 1
	OperationReject  OperationType = 2
	OperationCancel  OperationType = 3
	OperationTiming  OperationType = 4
	OperationExecute OperationType = 5
	OperationFinish  OperationType = 6
)

type WorkflowAudit struct {
	AuditID      types.ID     `json:"auditId" gorm:"primary_key"`
	GroupID      types.ID     `json:"groupId"`
	WorkflowID   types.ID     `json:"workflowId" gorm:"index:idx_audit_workflow"`
	WorkflowType WorkflowType `json:"workflowType" gorm:"index:idx_audit_workflow"`

	// ordered, comma separated review groups
	AuditAuthGroups   string `json:"auditAuthGroups"`
	CurrentAuditGroup string `json:"currentAuditGroup"`
	NextAuditGroup    string `json:"nextAuditGroup"`
	CurrentStatus     Status `json:"currentStatus"`

	CreateUser        string    `json:"createUser"`
	CreateUserDisplay string    `json:"createUserDisplay"`
	CreateTime        time.Time `json:"createTime"`
}

func (WorkflowAudit) TableName() string {
	return "workflow_audits"
}

func (a *WorkflowAudit) Groups() []string {
	var groups []string
	for _, g := range strings.Split(a.AuditAuthGroups, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

type WorkflowLog struct {
	ID                types.ID      `json:"id" gorm:"primary_key"`
	AuditID           types.ID      `json:"auditId" gorm:"index"`
	OperationType     OperationType `json:"operationType"`
	OperationTypeDesc string        `json:"operationTypeDesc"`
	OperationInfo     string        `json:"operationInfo" sql:"type:TEXT"`
	Operator          string        `json:"operator"`
	OperatorDisplay   string        `json:"operatorDisplay"`
	OperationTime     time.Time     `json:"operationTime"`
}

func (WorkflowLog) TableName() string {
	return "workflow_logs"
}

type AuditCreation struct {
	GroupID      types.ID
	WorkflowID   types.ID
	WorkflowType WorkflowType
	AuthGroups   []string
}

type AuditResult struct {
	WorkflowStatus Status
	Log            *WorkflowLog
}
