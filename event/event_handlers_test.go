package event_test

import (
	"sqlreview/event"
	"testing"
	"time"

	. "github.com/onsi/gomega"
)

func TestInvokeHandlers(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should invoke all registered event handlers", func(t *testing.T) {
		defer func() { event.EventHandlers = nil }()

		event.EventHandlers = append(event.EventHandlers, func(e *event.EventRecord) *event.EventHandleResult {
			return nil
		})
		event.EventHandlers = append(event.EventHandlers, func(e *event.EventRecord) *event.EventHandleResult {
			return &event.EventHandleResult{Success: true, Message: "success", HandlerIdentifier: "all-success-handler"}
		})
		event.EventHandlers = append(event.EventHandlers, func(e *event.EventRecord) *event.EventHandleResult {
			return &event.EventHandleResult{Success: false, Message: "failure", HandlerIdentifier: "all-failure-handler"}
		})
		event.EventHandlers = append(event.EventHandlers, func(e *event.EventRecord) *event.EventHandleResult {
			panic("broken handler")
		})

		ev := event.EventRecord{
			ID: 1,
			Event: event.Event{
				SourceType: event.SourceTypeSqlWorkflow,
				SourceId:   42,
				SourceDesc: "add index",

				EventCategory:     event.EventCategoryStatusChanged,
				Operation:         "cancel",
				UpdatedProperties: event.StatusChange("workflow_review_pass", "workflow_abort"),

				CreatorId:   333,
				CreatorName: "user333",
			},
			Timestamp: time.Date(2021, 1, 1, 12, 12, 12, 0, time.Local),
		}

		ret := event.InvokeHandlersFunc(&ev)
		Expect(ret).To(Equal([]event.EventHandleResult{
			{Success: true, Message: "success", HandlerIdentifier: "all-success-handler"},
			{Success: false, Message: "failure", HandlerIdentifier: "all-failure-handler"},
			{Success: false, Message: "handler panicked: broken handler"},
		}))
	})
}
