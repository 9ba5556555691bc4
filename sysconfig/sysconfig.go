package sysconfig

import (
	"context"
	"sqlreview/persistence"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	KeyNotifyPhaseControl = "notify_phase_control"
	KeyNotifyWebhookURL   = "notify_webhook_url"
)

// Provider supplies runtime system configuration items.
type Provider interface {
	Get(key string) string
}

// ConfigItem is a row of the runtime configuration table.
type ConfigItem struct {
	Item        string `json:"item" gorm:"primary_key;size:200"`
	Value       string `json:"value" sql:"type:TEXT"`
	Description string `json:"description" gorm:"size:200"`
}

func (ConfigItem) TableName() string {
	return "sql_config"
}

// DBProvider reads configuration items from the database, caching them for Expiration.
type DBProvider struct {
	cache *cache.Cache
}

const Expiration = 30 * time.Second

func NewDBProvider() *DBProvider {
	return &DBProvider{cache: cache.New(Expiration, time.Minute)}
}

func (p *DBProvider) Get(key string) string {
	if v, found := p.cache.Get(key); found {
		return v.(string)
	}
	item := ConfigItem{}
	err := persistence.ActiveDataSourceManager.GormDB(context.Background()).Where(&ConfigItem{Item: key}).First(&item).Error
	if err != nil {
		if !gorm.IsRecordNotFoundError(err) {
			logrus.Warnf("load system config %s failed: %v", key, err)
			return ""
		}
	}
	p.cache.Set(key, item.Value, cache.DefaultExpiration)
	return item.Value
}

// Set upserts an item and drops its cached value.
func (p *DBProvider) Set(key, value string) error {
	err := persistence.ActiveDataSourceManager.GormDB(context.Background()).
		Save(&ConfigItem{Item: key, Value: value}).Error
	if err != nil {
		return err
	}
	p.cache.Delete(key)
	return nil
}

// StaticProvider serves a fixed set of items.
type StaticProvider map[string]string

func (p StaticProvider) Get(key string) string {
	return p[key]
}
