package schedule

import (
	"context"
	"sqlreview/persistence"
	"strconv"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

const (
	NamePrefix = "sqlreview"

	PurposeTiming  = "timing"
	PurposeExecute = "execute"
	PurposePass    = "pass"
	PurposeCancel  = "cancel"
	PurposeFinish  = "finish"
)

var (
	AddFunc    = Add
	RemoveFunc = Remove
)

// Task is a named, time-triggered execution intent. Names are unique.
type Task struct {
	Name        string    `json:"name" gorm:"primary_key;size:191"`
	Purpose     string    `json:"purpose" gorm:"size:32"`
	WorkflowID  types.ID  `json:"workflowId" gorm:"index"`
	Operator    string    `json:"operator" gorm:"size:64"`
	TriggerTime time.Time `json:"triggerTime" gorm:"index"`
	CreateTime  time.Time `json:"createTime"`
}

func (Task) TableName() string {
	return "schedules"
}

// TaskName derives the registry key of a workflow's task, e.g. sqlreview-timing-42.
func TaskName(purpose string, workflowID types.ID) string {
	return NamePrefix + "-" + purpose + "-" + strconv.FormatUint(uint64(workflowID), 10)
}

// Add registers the task, replacing any task already registered under the same name.
func Add(db *gorm.DB, task *Task) error {
	if task.CreateTime.IsZero() {
		task.CreateTime = time.Now().Round(time.Millisecond)
	}
	if err := db.Where("name = ?", task.Name).Delete(&Task{}).Error; err != nil {
		return err
	}
	return db.Create(task).Error
}

// Remove deletes the named task; removing an absent task is not an error.
func Remove(db *gorm.DB, name string) error {
	return db.Where("name = ?", name).Delete(&Task{}).Error
}

func Detail(db *gorm.DB, name string) (*Task, error) {
	task := Task{}
	if err := db.Where("name = ?", name).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// Due lists the tasks whose trigger time is not after now, oldest first.
func Due(db *gorm.DB, now time.Time) ([]Task, error) {
	var tasks []Task
	if err := db.Where("trigger_time <= ?", now).Order("trigger_time ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// restore registers a claimed task again, unless a newer task took its name meanwhile.
func restore(ctx context.Context, task *Task) error {
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	if _, err := Detail(db, task.Name); err == nil {
		return nil
	} else if !gorm.IsRecordNotFoundError(err) {
		return err
	}
	return db.Create(task).Error
}

// claim removes a due task so that only one sweeper fires it.
func claim(ctx context.Context, task *Task) (bool, error) {
	q := persistence.ActiveDataSourceManager.GormDB(ctx).
		Where("name = ? AND trigger_time = ?", task.Name, task.TriggerTime).Delete(&Task{})
	if q.Error != nil {
		return false, q.Error
	}
	return q.RowsAffected == 1, nil
}
