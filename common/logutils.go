package common

import (
	"os"

	"github.com/sirupsen/logrus"
)

const ServiceName = "sqlreview"

func init() {
	logger := logrus.StandardLogger()
	logger.Out = os.Stdout
	logger.Formatter = &logrus.TextFormatter{}
	logger.AddHook(&DefaultFieldsHook{})
}

type DefaultFieldsHook struct {
}

func (hook *DefaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook *DefaultFieldsHook) Fire(e *logrus.Entry) error {
	e.Data["serviceName"] = ServiceName
	if instance := GetServiceInstance(); instance != "" {
		e.Data["serviceInstance"] = instance
	}
	return nil
}

// GetServiceInstance returns the host name, which identifies the instance in a deployment.
func GetServiceInstance() string {
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}
