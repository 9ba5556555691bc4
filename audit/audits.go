package audit

import (
	"errors"
	"sqlreview/authority"
	"sqlreview/bizerror"
	"sqlreview/idgen"
	"sqlreview/session"
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	auditIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})
	logIdWorker   = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateAuditFunc        = CreateAudit
	DetailByWorkflowIDFunc = DetailByWorkflowID
	AuditFunc              = Audit
	AddLogFunc             = AddLog
	QueryLogsFunc          = QueryLogs
	CanReviewFunc          = CanReview
)

// CreateAudit opens the review of a submitted workflow, starting at its first auth group.
func CreateAudit(db *gorm.DB, c *AuditCreation, s *session.Session) (*WorkflowAudit, error) {
	if len(c.AuthGroups) == 0 {
		return nil, errors.New("at least one audit auth group is required")
	}
	record := &WorkflowAudit{
		AuditID:           idgen.NextID(auditIdWorker),
		GroupID:           c.GroupID,
		WorkflowID:        c.WorkflowID,
		WorkflowType:      c.WorkflowType,
		AuditAuthGroups:   strings.Join(c.AuthGroups, ","),
		CurrentAuditGroup: c.AuthGroups[0],
		CurrentStatus:     StatusWait,
		CreateUser:        s.Identity.Name,
		CreateUserDisplay: s.Identity.DisplayName(),
		CreateTime:        time.Now().Round(time.Millisecond),
	}
	if len(c.AuthGroups) > 1 {
		record.NextAuditGroup = c.AuthGroups[1]
	}
	if err := db.Create(record).Error; err != nil {
		return nil, err
	}
	if err := AddLog(db, &WorkflowLog{AuditID: record.AuditID, OperationType: OperationSubmit,
		OperationTypeDesc: "submit", OperationInfo: "waiting for review by " + record.CurrentAuditGroup,
		Operator: s.Identity.Name, OperatorDisplay: s.Identity.DisplayName()}); err != nil {
		return nil, err
	}
	return record, nil
}

func DetailByWorkflowID(db *gorm.DB, workflowID types.ID, workflowType WorkflowType) (*WorkflowAudit, error) {
	record := WorkflowAudit{}
	if err := db.Where(&WorkflowAudit{WorkflowID: workflowID, WorkflowType: workflowType}).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// Audit applies a review decision and returns the resulting aggregate status.
// A passing decision moves the review to the next auth group; the last group passing makes the audit succeed.
func Audit(db *gorm.DB, auditID types.ID, decision Decision, operator *session.Identity, remark string) (*AuditResult, error) {
	record := WorkflowAudit{}
	if err := db.Where(&WorkflowAudit{AuditID: auditID}).First(&record).Error; err != nil {
		return nil, err
	}
	if record.CurrentStatus != StatusWait {
		return nil, bizerror.ErrAuditNotPending
	}

	changes := map[string]interface{}{}
	entry := &WorkflowLog{AuditID: auditID, Operator: operator.Name, OperatorDisplay: operator.DisplayName()}
	result := &AuditResult{WorkflowStatus: StatusWait, Log: entry}

	switch decision {
	case StatusSuccess:
		entry.OperationType = OperationPass
		entry.OperationTypeDesc = "review passed"
		entry.OperationInfo = "remark: " + remark + ", group: " + record.CurrentAuditGroup
		if record.NextAuditGroup == "" {
			result.WorkflowStatus = StatusSuccess
			changes["current_status"] = StatusSuccess
		} else {
			changes["current_audit_group"] = record.NextAuditGroup
			changes["next_audit_group"] = groupAfter(record.Groups(), record.NextAuditGroup)
		}
	case StatusReject:
		entry.OperationType = OperationReject
		entry.OperationTypeDesc = "review rejected"
		entry.OperationInfo = "remark: " + remark
		result.WorkflowStatus = StatusReject
		changes["current_status"] = StatusReject
	case StatusAbort:
		entry.OperationType = OperationCancel
		entry.OperationTypeDesc = "review canceled"
		entry.OperationInfo = "reason: " + remark
		result.WorkflowStatus = StatusAbort
		changes["current_status"] = StatusAbort
	default:
		return nil, errors.New("unsupported audit decision " + decision.String())
	}

	q := db.Model(&WorkflowAudit{}).
		Where("audit_id = ? AND current_status = ? AND current_audit_group = ?", auditID, StatusWait, record.CurrentAuditGroup).
		Updates(changes)
	if err := q.Error; err != nil {
		return nil, err
	}
	if q.RowsAffected != 1 {
		return nil, bizerror.ErrAuditNotPending
	}
	if err := AddLog(db, entry); err != nil {
		return nil, err
	}
	return result, nil
}

func groupAfter(groups []string, group string) string {
	for i, g := range groups {
		if g == group && i+1 < len(groups) {
			return groups[i+1]
		}
	}
	return ""
}

func AddLog(db *gorm.DB, entry *WorkflowLog) error {
	if entry.ID == 0 {
		entry.ID = idgen.NextID(logIdWorker)
	}
	if entry.OperationTime.IsZero() {
		entry.OperationTime = time.Now().Round(time.Millisecond)
	}
	return db.Create(entry).Error
}

func QueryLogs(db *gorm.DB, auditID types.ID) ([]WorkflowLog, error) {
	var logs []WorkflowLog
	if err := db.Where(&WorkflowLog{AuditID: auditID}).Order("operation_time ASC, id ASC").Find(&logs).Error; err != nil {
		return nil, err
	}
	if logs == nil {
		return []WorkflowLog{}, nil
	}
	return logs, nil
}

// CanReview tells whether the actor may decide on the pending audit of a workflow:
// the actor holds the review permission and belongs to the auth group currently reviewing.
// Superusers review any group.
func CanReview(db *gorm.DB, s *session.Session, workflowID types.ID, workflowType WorkflowType) (bool, error) {
	if s == nil || !(s.Perms.HasRole(authority.PermSqlReview) || s.Perms.IsSuperuser()) {
		return false, nil
	}
	record, err := DetailByWorkflowID(db, workflowID, workflowType)
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	if record.CurrentStatus != StatusWait {
		return false, nil
	}
	return s.Perms.IsSuperuser() || s.AuthGroups.Has(record.CurrentAuditGroup), nil
}
