package common

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/sirupsen/logrus"
)

const maxErrorBodyLen = 512

var (
	PostJSONFunc = PostJSON

	OutboundClient = &http.Client{Timeout: 10 * time.Second}
)

// ErrRemoteCall describes an outbound call that did not complete with a 2xx status.
type ErrRemoteCall struct {
	URL        string
	StatusCode int
	Body       string
	Cause      error
}

func (e *ErrRemoteCall) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("call %s: %v", e.URL, e.Cause)
	}
	return fmt.Sprintf("call %s: status %d, body '%s'", e.URL, e.StatusCode, e.Body)
}

func (e *ErrRemoteCall) Unwrap() error {
	return e.Cause
}

// PostJSON posts body to url and returns the response body.
// The active span of ctx, if any, is propagated in the request headers.
func PostJSON(ctx context.Context, url string, headers http.Header, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &ErrRemoteCall{URL: url, Cause: err}
	}
	for name, values := range headers {
		req.Header[http.CanonicalHeaderKey(name)] = values
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	if parent := opentracing.SpanFromContext(ctx); parent != nil {
		span := parent.Tracer().StartSpan("POST "+req.URL.Host, opentracing.ChildOf(parent.Context()))
		defer span.Finish()
		ext.SpanKindRPCClient.Set(span)
		ext.HTTPUrl.Set(span, url)
		_ = span.Tracer().Inject(span.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(req.Header))
	}

	resp, err := OutboundClient.Do(req)
	if err != nil {
		return nil, &ErrRemoteCall{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ErrRemoteCall{URL: url, StatusCode: resp.StatusCode, Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(respBody) > maxErrorBodyLen {
			respBody = respBody[:maxErrorBodyLen]
		}
		return nil, &ErrRemoteCall{URL: url, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	logrus.Debugf("posted %d bytes to %s, status %d", len(body), url, resp.StatusCode)
	return respBody, nil
}
