package schedule

import (
	"context"
	"errors"
	"sqlreview/testinfra"
	"testing"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	. "github.com/onsi/gomega"
)

var testDatabase *testinfra.TestDatabase

func setup(t *testing.T) *gorm.DB {
	testDatabase = testinfra.StartTestDatabase("sqlreview")
	db := testDatabase.DS.GormDB(context.Background())
	Expect(db.AutoMigrate(&Task{}).Error).To(BeNil())
	return db
}

func teardown(t *testing.T) {
	testinfra.StopTestDatabase(testDatabase)
}

func TestTaskName(t *testing.T) {
	RegisterTestingT(t)
	Expect(TaskName(PurposeTiming, 42)).To(Equal("sqlreview-timing-42"))
	Expect(TaskName(PurposeExecute, 7)).To(Equal("sqlreview-execute-7"))
}

func TestAddAndRemove(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should keep a single task per name", func(t *testing.T) {
		db := setup(t)
		defer teardown(t)

		name := TaskName(PurposeTiming, 42)
		first := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
		second := time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC)
		Expect(Add(db, &Task{Name: name, Purpose: PurposeTiming, WorkflowID: 42, TriggerTime: first})).To(BeNil())
		Expect(Add(db, &Task{Name: name, Purpose: PurposeTiming, WorkflowID: 42, TriggerTime: second})).To(BeNil())

		var count int
		Expect(db.Model(&Task{}).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(1))

		task, err := Detail(db, name)
		Expect(err).To(BeNil())
		Expect(task.TriggerTime.Equal(second)).To(BeTrue())
	})

	t.Run("should tolerate removing absent tasks", func(t *testing.T) {
		db := setup(t)
		defer teardown(t)

		Expect(Remove(db, TaskName(PurposeTiming, 1))).To(BeNil())
		Expect(Add(db, &Task{Name: TaskName(PurposeTiming, 1), TriggerTime: time.Now()})).To(BeNil())
		Expect(Remove(db, TaskName(PurposeTiming, 1))).To(BeNil())
		_, err := Detail(db, TaskName(PurposeTiming, 1))
		Expect(gorm.IsRecordNotFoundError(err)).To(BeTrue())
	})
}

func TestSweep(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should fire due tasks once and leave future tasks", func(t *testing.T) {
		db := setup(t)
		defer teardown(t)

		now := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
		Expect(Add(db, &Task{Name: TaskName(PurposeTiming, 1), WorkflowID: 1, TriggerTime: now.Add(-time.Minute)})).To(BeNil())
		Expect(Add(db, &Task{Name: TaskName(PurposeTiming, 2), WorkflowID: 2, TriggerTime: now})).To(BeNil())
		Expect(Add(db, &Task{Name: TaskName(PurposeTiming, 3), WorkflowID: 3, TriggerTime: now.Add(time.Minute)})).To(BeNil())

		var fired []string
		r := NewRunner(func(ctx context.Context, task Task) error {
			fired = append(fired, task.Name)
			return nil
		})
		r.now = func() time.Time { return now }

		Expect(r.Sweep(context.Background())).To(Equal(2))
		Expect(fired).To(Equal([]string{"sqlreview-timing-1", "sqlreview-timing-2"}))
		Expect(r.Sweep(context.Background())).To(Equal(0))

		_, err := Detail(db, TaskName(PurposeTiming, 3))
		Expect(err).To(BeNil())
	})

	t.Run("should not count failed fires", func(t *testing.T) {
		db := setup(t)
		defer teardown(t)

		now := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
		Expect(Add(db, &Task{Name: TaskName(PurposeTiming, 1), WorkflowID: 1, TriggerTime: now})).To(BeNil())

		r := NewRunner(func(ctx context.Context, task Task) error { return errors.New("boom") })
		r.now = func() time.Time { return now }
		Expect(r.Sweep(context.Background())).To(Equal(0))
	})

	t.Run("should keep failed tasks for a later sweep", func(t *testing.T) {
		db := setup(t)
		defer teardown(t)

		now := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
		Expect(Add(db, &Task{Name: TaskName(PurposeTiming, 1), Purpose: PurposeTiming, WorkflowID: 1, TriggerTime: now})).To(BeNil())

		attempts := 0
		r := NewRunner(func(ctx context.Context, task Task) error {
			attempts++
			if attempts == 1 {
				return errors.New("connection reset")
			}
			return nil
		})
		r.now = func() time.Time { return now }

		Expect(r.Sweep(context.Background())).To(Equal(0))
		task, err := Detail(db, TaskName(PurposeTiming, 1))
		Expect(err).To(BeNil())
		Expect(task.WorkflowID).To(Equal(types.ID(1)))
		Expect(task.TriggerTime.Equal(now)).To(BeTrue())

		Expect(r.Sweep(context.Background())).To(Equal(1))
		Expect(attempts).To(Equal(2))
		_, err = Detail(db, TaskName(PurposeTiming, 1))
		Expect(gorm.IsRecordNotFoundError(err)).To(BeTrue())
	})

	t.Run("should drop obsolete tasks", func(t *testing.T) {
		db := setup(t)
		defer teardown(t)

		now := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
		Expect(Add(db, &Task{Name: TaskName(PurposeTiming, 1), WorkflowID: 1, TriggerTime: now})).To(BeNil())

		r := NewRunner(func(ctx context.Context, task Task) error {
			return &ObsoleteError{Cause: errors.New("workflow aborted")}
		})
		r.now = func() time.Time { return now }

		Expect(r.Sweep(context.Background())).To(Equal(0))
		_, err := Detail(db, TaskName(PurposeTiming, 1))
		Expect(gorm.IsRecordNotFoundError(err)).To(BeTrue())
	})

	t.Run("should not overwrite a task registered while firing", func(t *testing.T) {
		db := setup(t)
		defer teardown(t)

		now := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
		later := now.Add(time.Hour)
		Expect(Add(db, &Task{Name: TaskName(PurposeTiming, 1), WorkflowID: 1, TriggerTime: now})).To(BeNil())

		r := NewRunner(func(ctx context.Context, task Task) error {
			Expect(Add(db, &Task{Name: task.Name, WorkflowID: 1, TriggerTime: later})).To(BeNil())
			return errors.New("status changed concurrently")
		})
		r.now = func() time.Time { return now }

		Expect(r.Sweep(context.Background())).To(Equal(0))
		task, err := Detail(db, TaskName(PurposeTiming, 1))
		Expect(err).To(BeNil())
		Expect(task.TriggerTime.Equal(later)).To(BeTrue())
	})
}

func TestRunnerStart(t *testing.T) {
	RegisterTestingT(t)

	r := NewRunner(func(ctx context.Context, task Task) error { return nil })
	Expect(r.Start("not a spec")).ToNot(BeNil())

	r = NewRunner(func(ctx context.Context, task Task) error { return nil })
	Expect(r.Start("")).To(BeNil())
	<-r.Stop().Done()
}
