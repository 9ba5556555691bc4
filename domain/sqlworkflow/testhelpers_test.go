package sqlworkflow_test

import (
	"context"
	"sqlreview/audit"
	"sqlreview/authority"
	"sqlreview/dispatch"
	"sqlreview/domain/sqlworkflow"
	"sqlreview/engine"
	"sqlreview/event"
	"sqlreview/notify"
	"sqlreview/schedule"
	"sqlreview/session"
	"sqlreview/sysconfig"
	"sqlreview/testinfra"
	"sync"
	"testing"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	. "github.com/onsi/gomega"
)

type recordingDispatcher struct {
	lock  sync.Mutex
	tasks []dispatch.Task
	err   error
}

func (d *recordingDispatcher) Enqueue(task dispatch.Task) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, task)
	return nil
}

func (d *recordingDispatcher) ofKind(kind string) []dispatch.Task {
	d.lock.Lock()
	defer d.lock.Unlock()
	var found []dispatch.Task
	for _, t := range d.tasks {
		if t.Kind == kind {
			found = append(found, t)
		}
	}
	return found
}

type recordingNotifier struct {
	lock     sync.Mutex
	messages []notify.Message
}

func (n *recordingNotifier) Notify(ctx context.Context, msg notify.Message) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

type fakeEngine struct {
	result *engine.ReviewSet
	err    error

	calls []string
}

func (e *fakeEngine) ExecuteCheck(ctx context.Context, dbName, sql string) (*engine.ReviewSet, error) {
	e.calls = append(e.calls, "check "+dbName+" "+sql)
	return e.result, e.err
}

func (e *fakeEngine) Execute(ctx context.Context, dbName, sql string) (*engine.ReviewSet, error) {
	e.calls = append(e.calls, "execute "+dbName+" "+sql)
	return e.result, e.err
}

func (e *fakeEngine) OscControl(ctx context.Context, command, sqlsha1 string) (*engine.ReviewSet, error) {
	e.calls = append(e.calls, "osc "+command+" "+sqlsha1)
	return e.result, e.err
}

var (
	testDatabase *testinfra.TestDatabase
	dispatcher   *recordingDispatcher
	notifier     *recordingNotifier

	fixedNow = time.Date(2030, 1, 1, 10, 0, 0, 0, time.Local)

	submitter = testinfra.BuildSession(1, "alice", authority.PermSqlSubmit, authority.PermSqlExecute)
	outsider  = testinfra.BuildSession(9, "mallory", authority.PermSqlSubmit)
	admin     = testinfra.BuildSession(4, "admin", authority.PermSuperuser)
)

func reviewer(groups ...string) *session.Session {
	s := testinfra.BuildSession(2, "bob", authority.PermSqlReview)
	s.AuthGroups = groups
	return s
}

func groupExecutor(groupID types.ID) *session.Session {
	s := testinfra.BuildSession(3, "carol", authority.PermSqlExecuteForResourceGroup)
	s.ResourceGroups = authority.ResourceGroups{groupID}
	return s
}

func setup(t *testing.T, config sysconfig.StaticProvider) *gorm.DB {
	testDatabase = testinfra.StartTestDatabase("sqlreview")
	db := testDatabase.DS.GormDB(context.Background())
	Expect(db.AutoMigrate(&sqlworkflow.SqlWorkflow{}, &audit.WorkflowAudit{}, &audit.WorkflowLog{},
		&schedule.Task{}, &event.EventRecord{}, &engine.Instance{}).Error).To(BeNil())

	dispatcher = &recordingDispatcher{}
	notifier = &recordingNotifier{}
	sqlworkflow.ExecutionDispatcher = dispatcher
	sqlworkflow.NotificationGate = &notify.Gate{Config: config, Notifier: notifier, Dispatcher: dispatcher}
	sqlworkflow.Now = func() time.Time { return fixedNow }
	return db
}

func teardown(t *testing.T) {
	sqlworkflow.ExecutionDispatcher = nil
	sqlworkflow.NotificationGate = nil
	sqlworkflow.Now = time.Now
	testinfra.StopTestDatabase(testDatabase)
}

// seedWorkflow stores a workflow submitted by alice together with its audit.
func seedWorkflow(db *gorm.DB, id types.ID, status string, groups ...string) *sqlworkflow.SqlWorkflow {
	if len(groups) == 0 {
		groups = []string{"dba"}
	}
	wf := &sqlworkflow.SqlWorkflow{ID: id, WorkflowName: "add index", GroupID: 100, Engineer: "alice",
		EngineerDisplay: "alice", Status: status, InstanceID: 500, DBName: "orders",
		SqlContent: "ALTER TABLE t ADD INDEX idx_a (a);", CreateTime: fixedNow.Add(-time.Hour)}
	Expect(db.Create(wf).Error).To(BeNil())
	_, err := audit.CreateAudit(db, &audit.AuditCreation{GroupID: 100, WorkflowID: id,
		WorkflowType: audit.WorkflowTypeSqlReview, AuthGroups: groups}, submitter)
	Expect(err).To(BeNil())
	return wf
}

func seedInstance(db *gorm.DB) {
	Expect(db.Create(&engine.Instance{ID: 500, InstanceName: "orders-master", DbType: engine.DbTypeMysql,
		Host: "10.0.0.1", Port: 3306, User: "root"}).Error).To(BeNil())
}

func statusOf(db *gorm.DB, id types.ID) string {
	wf := sqlworkflow.SqlWorkflow{}
	Expect(db.Where("id = ?", id).First(&wf).Error).To(BeNil())
	return wf.Status
}

func auditOf(db *gorm.DB, id types.ID) *audit.WorkflowAudit {
	record, err := audit.DetailByWorkflowID(db, id, audit.WorkflowTypeSqlReview)
	Expect(err).To(BeNil())
	return record
}

// logsOf returns the log entries following the submission.
func logsOf(db *gorm.DB, id types.ID) []audit.WorkflowLog {
	logs, err := audit.QueryLogs(db, auditOf(db, id).AuditID)
	Expect(err).To(BeNil())
	Expect(len(logs)).To(BeNumerically(">=", 1))
	return logs[1:]
}

func timingTaskCount(db *gorm.DB, id types.ID) int {
	var count int
	Expect(db.Model(&schedule.Task{}).Where("name = ?", schedule.TaskName(schedule.PurposeTiming, id)).
		Count(&count).Error).To(BeNil())
	return count
}
