package event

import (
	"sqlreview/idgen"
	"sqlreview/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var eventIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

// CreateEvent persists a workflow event with the given transaction.
func CreateEvent(sourceId types.ID, sourceDesc string, category EventCategory, operation string,
	updatedProperties UpdatedProperties, identity *session.Identity, timestamp time.Time, db *gorm.DB) (*EventRecord, error) {

	record := EventRecord{
		ID: idgen.NextID(eventIdWorker),
		Event: Event{
			SourceType: SourceTypeSqlWorkflow,
			SourceId:   sourceId,
			SourceDesc: sourceDesc,

			EventCategory:     category,
			Operation:         operation,
			UpdatedProperties: updatedProperties,

			CreatorId:   identity.ID,
			CreatorName: identity.Name,
		},
		Synced:    false,
		Timestamp: timestamp,
	}
	if err := EventPersistCreateFunc(&record, db); err != nil {
		return nil, err
	}
	return &record, nil
}

// StatusChange describes a status property moving from one value to another.
func StatusChange(from, to string) UpdatedProperties {
	return UpdatedProperties{{PropertyName: "status", PropertyDesc: "Status", OldValue: from, NewValue: to}}
}
