package schedule

import (
	"context"
	"errors"
	"sqlreview/persistence"
	"time"

	cron "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const DefaultSweepSpec = "@every 10s"

// FireFunc is invoked once for each due task, after the task has been claimed.
// A failed task is registered again and retried on a later sweep, unless the failure is an *ObsoleteError.
type FireFunc func(ctx context.Context, task Task) error

// ObsoleteError reports a task whose target no longer wants it fired.
type ObsoleteError struct {
	Cause error
}

func (e *ObsoleteError) Error() string {
	return e.Cause.Error()
}

func (e *ObsoleteError) Unwrap() error {
	return e.Cause
}

type Runner struct {
	crontab *cron.Cron
	fire    FireFunc
	now     func() time.Time
}

func NewRunner(fire FireFunc) *Runner {
	return &Runner{
		crontab: cron.New(cron.WithSeconds()),
		fire:    fire,
		now:     time.Now,
	}
}

// Start registers the sweep job on spec (standard cron with seconds, or descriptors like "@every 10s").
func (r *Runner) Start(spec string) error {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	if _, err := r.crontab.AddFunc(spec, func() { r.Sweep(context.Background()) }); err != nil {
		return err
	}
	r.crontab.Start()
	return nil
}

func (r *Runner) Stop() context.Context {
	return r.crontab.Stop()
}

// Sweep fires every due task, returning how many were fired.
func (r *Runner) Sweep(ctx context.Context) int {
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	tasks, err := Due(db, r.now())
	if err != nil {
		logrus.Errorf("schedule sweep: list due tasks failed: %v", err)
		return 0
	}

	fired := 0
	for i := range tasks {
		task := tasks[i]
		claimed, err := claim(ctx, &task)
		if err != nil {
			logrus.Errorf("schedule sweep: claim %s failed: %v", task.Name, err)
			continue
		}
		if !claimed {
			continue
		}
		if err := r.fire(ctx, task); err != nil {
			var obsolete *ObsoleteError
			if errors.As(err, &obsolete) {
				logrus.WithField("schedule", task.Name).Infof("schedule dropped: %v", err)
				continue
			}
			logrus.WithField("schedule", task.Name).Errorf("schedule sweep: fire failed, retry later: %v", err)
			if err := restore(ctx, &task); err != nil {
				logrus.WithField("schedule", task.Name).Errorf("schedule sweep: restore failed: %v", err)
			}
			continue
		}
		logrus.WithField("schedule", task.Name).Infof("schedule fired, trigger time %s", task.TriggerTime)
		fired++
	}
	return fired
}
