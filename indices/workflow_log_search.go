package indices

import (
	"context"
	"encoding/json"
	"fmt"
	"sqlreview/client/es"

	"github.com/fundwit/go-commons/types"
)

var (
	SearchWorkflowLogsFunc = SearchWorkflowLogs
)

type WorkflowLogQuery struct {
	WorkflowID types.ID `form:"workflowId"`
	Keyword    string   `form:"keyword"`
}

func SearchWorkflowLogs(ctx context.Context, q WorkflowLogQuery) ([]WorkflowLogDocument, error) {
	filters := make([]es.H, 0, 2)
	if q.WorkflowID != 0 {
		filters = append(filters, es.H{"term": es.H{"workflowId": q.WorkflowID.String()}})
	}
	if q.Keyword != "" {
		filters = append(filters, es.H{"multi_match": es.H{"query": q.Keyword, "operator": "AND",
			"fields": []string{"workflowName", "operationTypeDesc", "operationInfo", "operator", "operatorDisplay"}}})
	}
	sorts := []es.H{{"operationTime": es.H{"order": "asc"}}}

	r, err := es.SearchFunc(ctx, WorkflowLogIndexName, es.H{"size": 10000, "query": es.H{"bool": es.H{"filter": filters}}, "sort": sorts})
	if err != nil {
		return nil, err
	}
	docs := make([]WorkflowLogDocument, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		doc := WorkflowLogDocument{}
		if err := json.Unmarshal([]byte(hit.Source), &doc); err != nil {
			return nil, fmt.Errorf("decode workflow log document %s: %w", hit.Id, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
