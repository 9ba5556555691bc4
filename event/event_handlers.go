package event

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// EventHandler returns nil when the event is not of its interest.
type EventHandler func(e *EventRecord) *EventHandleResult

type EventHandleResult struct {
	Success           bool
	Message           string
	HandlerIdentifier string
}

var EventHandlers []EventHandler

var InvokeHandlersFunc = invokeHandlers

// invokeHandlers runs after the transaction committed, so a failing handler never affects the transition.
func invokeHandlers(record *EventRecord) []EventHandleResult {
	results := []EventHandleResult{}
	for _, handler := range EventHandlers {
		r := safeHandle(handler, record)
		if r == nil {
			continue
		}
		results = append(results, *r)

		fields := logrus.Fields{"eventId": record.ID, "workflowId": record.SourceId, "handler": r.HandlerIdentifier}
		if r.Success {
			logrus.WithFields(fields).Debug("event handled")
		} else {
			logrus.WithFields(fields).Errorf("event handle failed: %s", r.Message)
		}
	}
	return results
}

func safeHandle(handler EventHandler, record *EventRecord) (r *EventHandleResult) {
	defer func() {
		if ret := recover(); ret != nil {
			r = &EventHandleResult{Success: false, Message: fmt.Sprintf("handler panicked: %v", ret)}
		}
	}()
	return handler(record)
}
