package indices

import (
	"context"
	"fmt"
	"sqlreview/audit"
	"sqlreview/bizerror"
	"sqlreview/domain/sqlworkflow"
	"sqlreview/event"
	"sqlreview/persistence"
	"sqlreview/session"
	"sync"

	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

var (
	WorkflowLogIndexEventHandlerName = "workflowLogIndexer"

	lock    sync.Mutex
	running bool

	IndicesFullSyncFunc       = IndicesFullSync
	ScheduleNewSyncRunFunc    = ScheduleNewSyncRun
	LoadWorkflowLogsFunc      = LoadWorkflowLogs
	PendingEventsRecoveryFunc = PendingEventsRecovery

	SyncBatchSize = 500
)

// ScheduleNewSyncRun starts a full sync in background, unless one is running already.
func ScheduleNewSyncRun(s *session.Session) (bool, error) {
	if !s.Perms.IsSuperuser() {
		return false, bizerror.ErrForbidden
	}

	lock.Lock()
	if running {
		lock.Unlock()
		return false, nil
	}
	running = true
	lock.Unlock()

	waitRunning := sync.WaitGroup{}
	waitRunning.Add(1)
	go func() {
		waitRunning.Done()
		defer func() {
			lock.Lock()
			running = false
			lock.Unlock()
		}()
		if err := IndicesFullSyncFunc(); err != nil {
			logrus.Errorf("indices full sync failed: %v", err)
		}
	}()
	waitRunning.Wait()
	return true, nil
}

// LoadWorkflowLogs pages through all sql review log entries, joined with their workflow.
func LoadWorkflowLogs(db *gorm.DB, page, size int) ([]WorkflowLogDocument, error) {
	docs := []WorkflowLogDocument{}
	err := db.Table(audit.WorkflowLog{}.TableName()+" AS l").
		Select("l.*, a.workflow_id, w.workflow_name").
		Joins("JOIN "+audit.WorkflowAudit{}.TableName()+" AS a ON a.audit_id = l.audit_id AND a.workflow_type = ?", audit.WorkflowTypeSqlReview).
		Joins("LEFT JOIN "+sqlworkflow.SqlWorkflow{}.TableName()+" AS w ON w.id = a.workflow_id").
		Order("l.id ASC").Offset((page - 1) * size).Limit(size).
		Scan(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func IndicesFullSync() (err error) {
	defer func() {
		if ret := recover(); ret != nil {
			e, ok := ret.(error)
			if ok {
				err = e
			} else {
				err = fmt.Errorf("error on indices full sync: %v", ret)
			}
		}
	}()

	ctx := context.Background()
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	for page := 1; ; page++ {
		docs, err := LoadWorkflowLogsFunc(db, page, SyncBatchSize)
		if err != nil {
			return fmt.Errorf("load workflow logs (page = %d, pageSize = %d): %w", page, SyncBatchSize, err)
		}
		if len(docs) == 0 {
			logrus.Infof("indices full sync: there are no more workflow logs to index")
			return nil
		}
		if err := IndexWorkflowLogs(ctx, docs); err != nil {
			logrus.Warnf("indices full sync: error on index workflow logs (page = %d, pageSize = %d): %v", page, SyncBatchSize, err)
		}
	}
}

// IndexWorkflowLogEventHandle indexes the log entries committed together with a workflow event.
func IndexWorkflowLogEventHandle(e *event.EventRecord) *event.EventHandleResult {
	if e.SourceType != event.SourceTypeSqlWorkflow {
		return nil
	}
	if err := indexEvent(context.Background(), e); err != nil {
		return &event.EventHandleResult{
			Message:           fmt.Sprintf("index logs of workflow %d, %v", e.SourceId, err),
			HandlerIdentifier: WorkflowLogIndexEventHandlerName,
		}
	}
	return &event.EventHandleResult{Success: true, HandlerIdentifier: WorkflowLogIndexEventHandlerName}
}

func indexEvent(ctx context.Context, e *event.EventRecord) error {
	docs := make([]WorkflowLogDocument, 0, len(e.Logs))
	for _, l := range e.Logs {
		docs = append(docs, WorkflowLogDocument{WorkflowLog: l, WorkflowID: e.SourceId, WorkflowName: e.SourceDesc})
	}
	if err := IndexWorkflowLogs(ctx, docs); err != nil {
		return err
	}
	return event.MarkSyncedFunc(persistence.ActiveDataSourceManager.GormDB(ctx), e.ID)
}

// PendingEventsRecovery re-indexes the logs of every workflow that has events never confirmed as indexed.
func PendingEventsRecovery(s *session.Session) error {
	if !s.Perms.IsSuperuser() {
		return bizerror.ErrForbidden
	}

	ctx := context.Background()
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	for {
		records, err := event.LoadUnsyncedFunc(db, 1, SyncBatchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		for _, record := range records {
			if err := recoverEvent(ctx, db, &record); err != nil {
				return fmt.Errorf("recover event %d of workflow %d: %w", record.ID, record.SourceId, err)
			}
		}
	}
}

func recoverEvent(ctx context.Context, db *gorm.DB, record *event.EventRecord) error {
	auditRecord, err := audit.DetailByWorkflowIDFunc(db, record.SourceId, audit.WorkflowTypeSqlReview)
	if err != nil && !gorm.IsRecordNotFoundError(err) {
		return err
	}
	if auditRecord != nil {
		logs, err := audit.QueryLogsFunc(db, auditRecord.AuditID)
		if err != nil {
			return err
		}
		record.Logs = logs
	}
	return indexEvent(ctx, record)
}
