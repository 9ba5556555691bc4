package event

import (
	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	EventPersistCreateFunc = eventPersistCreate
	QueryEventsFunc        = QueryEvents
	LoadUnsyncedFunc       = LoadUnsynced
	MarkSyncedFunc         = MarkSynced
)

func eventPersistCreate(record *EventRecord, db *gorm.DB) error {
	return db.Create(record).Error
}

func QueryEvents(db *gorm.DB, sourceId types.ID) ([]EventRecord, error) {
	records := []EventRecord{}
	if err := db.Where("source_id = ?", sourceId).Order("timestamp ASC, id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func MarkSynced(db *gorm.DB, id types.ID) error {
	return db.Model(&EventRecord{}).Where("id = ?", id).Update("synced", true).Error
}

// LoadUnsynced pages through events whose side effects were not confirmed yet, oldest first.
func LoadUnsynced(db *gorm.DB, page, size int) ([]EventRecord, error) {
	records := []EventRecord{}
	if err := db.Where("synced = ?", false).Order("timestamp ASC, id ASC").
		Offset((page - 1) * size).Limit(size).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
