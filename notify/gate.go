package notify

import (
	"context"
	"sqlreview/dispatch"
	"sqlreview/sysconfig"
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
)

const (
	PhasePass    = "Pass"
	PhaseExecute = "Execute"
	PhaseCancel  = "Cancel"

	AsyncTimeout = 60 * time.Second
	TaskKind     = "notify"
)

// Message is what gets sent to the notification channel when a phase fires.
type Message struct {
	Phase        string   `json:"phase"`
	WorkflowID   types.ID `json:"workflowId"`
	WorkflowName string   `json:"workflowName"`
	AuditID      types.ID `json:"auditId,omitempty"`
	Status       string   `json:"status"`
	Operator     string   `json:"operator"`
	Remark       string   `json:"remark"`
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// IsPhaseEnabled checks phase against a comma separated allow-list. An empty list permits every phase.
func IsPhaseEnabled(allowList, phase string) bool {
	if strings.TrimSpace(allowList) == "" {
		return true
	}
	for _, p := range strings.Split(allowList, ",") {
		if strings.TrimSpace(p) == phase {
			return true
		}
	}
	return false
}

// Gate decides whether a phase is notified and hands the message to the notifier.
type Gate struct {
	Config     sysconfig.Provider
	Notifier   Notifier
	Dispatcher dispatch.Enqueuer
}

func (g *Gate) Enabled(phase string) bool {
	if g.Config == nil {
		return true
	}
	return IsPhaseEnabled(g.Config.Get(sysconfig.KeyNotifyPhaseControl), phase)
}

// NotifyAsync queues the message as a named task bounded by AsyncTimeout.
// The returned flag tells whether the phase was enabled.
func (g *Gate) NotifyAsync(taskName string, msg Message) (bool, error) {
	if !g.Enabled(msg.Phase) {
		return false, nil
	}
	notifier := g.Notifier
	err := g.Dispatcher.Enqueue(dispatch.Task{
		Name:      taskName,
		Kind:      TaskKind,
		Timeout:   AsyncTimeout,
		Throttled: true,
		Run: func(ctx context.Context) error {
			return notifier.Notify(ctx, msg)
		},
	})
	return true, err
}

// NotifySync sends the message inline.
func (g *Gate) NotifySync(ctx context.Context, msg Message) (bool, error) {
	if !g.Enabled(msg.Phase) {
		return false, nil
	}
	return true, g.Notifier.Notify(ctx, msg)
}
