package engine

import (
	"sqlreview/bizerror"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

const (
	DbTypeMysql = "mysql"
)

// Instance describes a target database that workflows are executed against.
type Instance struct {
	ID           types.ID `json:"id" gorm:"primary_key"`
	InstanceName string   `json:"instanceName"`
	DbType       string   `json:"dbType"`
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	User         string   `json:"user"`
	Password     string   `json:"-"`
}

func (i *Instance) TableName() string {
	return "sql_instances"
}

var DetailInstanceFunc = DetailInstance

func DetailInstance(db *gorm.DB, id types.ID) (*Instance, error) {
	instance := Instance{}
	if err := db.Where(&Instance{ID: id}).First(&instance).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, bizerror.ErrNotFound
		}
		return nil, err
	}
	return &instance, nil
}
