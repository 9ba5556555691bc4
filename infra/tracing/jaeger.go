package tracing

import (
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"github.com/uber/jaeger-client-go"
	"github.com/uber/jaeger-client-go/config"
	jprom "github.com/uber/jaeger-lib/metrics/prometheus"
)

const DefaultServiceName = "sqlreview"

var NewTracerFunc = NewTracer

// NewTracer builds a jaeger tracer from the JAEGER_* environment variables
// and installs it as the global tracer. Close the returned closer on shutdown.
func NewTracer() (io.Closer, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	if cfg.Sampler.Type == "" {
		cfg.Sampler.Type = jaeger.SamplerTypeConst
		cfg.Sampler.Param = 1
	}

	tracer, closer, err := cfg.NewTracer(
		config.Logger(jaegerLogger{}),
		config.Metrics(jprom.New()),
	)
	if err != nil {
		return nil, err
	}
	opentracing.SetGlobalTracer(tracer)
	logrus.Infof("tracer of service %s initialized, sampler: %s", cfg.ServiceName, cfg.Sampler.Type)
	return closer, nil
}

type jaegerLogger struct{}

func (jaegerLogger) Error(msg string) {
	logrus.Error(msg)
}

func (jaegerLogger) Infof(msg string, args ...interface{}) {
	logrus.Debugf(msg, args...)
}
