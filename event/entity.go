package event

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sqlreview/audit"
	"time"

	"github.com/fundwit/go-commons/types"
)

const (
	SourceTypeSqlWorkflow = "SQL_WORKFLOW"

	EventCategoryStatusChanged EventCategory = "STATUS_CHANGED"
	EventCategoryAudited       EventCategory = "AUDITED"
)

type EventCategory string

type Event struct {
	SourceId   types.ID `json:"sourceId" gorm:"index"`
	SourceType string   `json:"sourceType"`
	SourceDesc string   `json:"sourceDesc"`

	CreatorId   types.ID `json:"creatorId"`
	CreatorName string   `json:"creatorName"`

	EventCategory     EventCategory     `json:"eventCategory"`
	Operation         string            `json:"operation"`
	UpdatedProperties UpdatedProperties `json:"updatedProperties" sql:"type:TEXT"`
}

type EventRecord struct {
	ID types.ID `json:"id" gorm:"primary_key"`
	Event

	// log entries appended by the same transaction, handed to handlers only
	Logs []audit.WorkflowLog `json:"logs,omitempty" gorm:"-"`

	Timestamp time.Time `json:"timestamp"`
	Synced    bool      `json:"synced"`
}

func (r *EventRecord) TableName() string {
	return "workflow_events"
}

type UpdatedProperty struct {
	PropertyName string `json:"propertyName"`
	PropertyDesc string `json:"propertyDesc"`

	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

type UpdatedProperties []UpdatedProperty

func (t UpdatedProperties) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&t)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (c *UpdatedProperties) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), c)
}
