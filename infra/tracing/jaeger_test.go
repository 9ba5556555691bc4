package tracing

import (
	"os"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/opentracing/opentracing-go"
)

func TestNewTracer(t *testing.T) {
	RegisterTestingT(t)
	defer opentracing.SetGlobalTracer(opentracing.NoopTracer{})

	t.Run("should install global tracer from environment", func(t *testing.T) {
		os.Setenv("JAEGER_DISABLED", "true")
		defer os.Unsetenv("JAEGER_DISABLED")

		closer, err := NewTracer()
		Expect(err).To(BeNil())
		Expect(closer).ToNot(BeNil())
		Expect(closer.Close()).To(BeNil())
	})

	t.Run("should fail on malformed sampler param", func(t *testing.T) {
		os.Setenv("JAEGER_SAMPLER_PARAM", "not-a-number")
		defer os.Unsetenv("JAEGER_SAMPLER_PARAM")

		_, err := NewTracer()
		Expect(err).ToNot(BeNil())
	})
}
