package notify

import (
	"context"
	"encoding/json"
	"sqlreview/common"
	"sqlreview/sysconfig"

	"github.com/sirupsen/logrus"
)

type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, msg Message) error {
	logrus.WithFields(logrus.Fields{
		"phase":      msg.Phase,
		"workflowId": msg.WorkflowID,
		"status":     msg.Status,
		"operator":   msg.Operator,
	}).Infof("workflow notification: %s", msg.Remark)
	return nil
}

// WebhookNotifier posts the message as JSON to the url configured under notify_webhook_url.
// Nothing is sent while the url is unset.
type WebhookNotifier struct {
	Config sysconfig.Provider
}

func (n *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	url := n.Config.Get(sysconfig.KeyNotifyWebhookURL)
	if url == "" {
		return nil
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = common.PostJSONFunc(ctx, url, nil, body)
	return err
}

// Notifiers fans a message out to every notifier and returns the first failure.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, msg Message) error {
	var first error
	for _, n := range ns {
		if err := n.Notify(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}
