package indices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sqlreview/audit"
	"sqlreview/client/es"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

var (
	WorkflowLogIndexName = "sqlreview-workflow-logs"

	DetailWorkflowLogFunc = DetailWorkflowLog
)

// WorkflowLogDocument is a log entry of a workflow audit, denormalized for search.
type WorkflowLogDocument struct {
	audit.WorkflowLog

	WorkflowID   types.ID `json:"workflowId"`
	WorkflowName string   `json:"workflowName"`
}

type BatchActionError map[types.ID]error

func (e BatchActionError) Error() string {
	return fmt.Sprintf("%v", map[types.ID]error(e))
}

// IndexWorkflowLogs writes docs in one bulk request. A failed request fails every document.
func IndexWorkflowLogs(ctx context.Context, docs []WorkflowLogDocument) error {
	if len(docs) == 0 {
		return nil
	}
	bulk := make([]es.BulkDocument, 0, len(docs))
	for _, doc := range docs {
		bulk = append(bulk, es.BulkDocument{ID: doc.ID.String(), Source: doc})
	}

	errs := BatchActionError{}
	failures, err := es.BulkIndexFunc(ctx, WorkflowLogIndexName, bulk)
	for _, doc := range docs {
		if err != nil {
			errs[doc.ID] = err
		} else if reason, found := failures[doc.ID.String()]; found {
			errs[doc.ID] = errors.New(reason)
		}
	}
	if len(errs) == 0 {
		logrus.Debugf("indexed %d workflow logs", len(docs))
		return nil
	}
	logrus.Warnf("index workflow logs, %d of %d failed: %v", len(errs), len(docs), errs)
	return errs
}

// DetailWorkflowLog reads back a single indexed log.
func DetailWorkflowLog(ctx context.Context, id types.ID) (*WorkflowLogDocument, error) {
	source, err := es.GetDocumentFunc(ctx, WorkflowLogIndexName, id.String())
	if err != nil {
		return nil, err
	}
	doc := WorkflowLogDocument{}
	if err := json.Unmarshal([]byte(source), &doc); err != nil {
		return nil, fmt.Errorf("decode workflow log document %d: %w", id, err)
	}
	return &doc, nil
}
