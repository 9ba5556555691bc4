package indices

import (
	cron "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const DefaultFullSyncSpec = "0 0 23 * * ?"

// StartCron runs a full sync every night. Stop the returned cron on shutdown.
func StartCron(spec string) (*cron.Cron, error) {
	if spec == "" {
		spec = DefaultFullSyncSpec
	}
	crontab := cron.New(cron.WithSeconds())
	_, err := crontab.AddFunc(spec, func() {
		if err := IndicesFullSyncFunc(); err != nil {
			logrus.Errorf("nightly indices full sync failed: %v", err)
		}
	})
	if err != nil {
		return nil, err
	}
	crontab.Start()
	return crontab, nil
}
