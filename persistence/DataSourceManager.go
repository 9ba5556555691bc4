package persistence

import (
	"context"
	"errors"
	"os"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	"github.com/sirupsen/logrus"
	otgorm "github.com/smacker/opentracing-gorm"
)

var (
	ActiveDataSourceManager *DataSourceManager

	ErrDataSourceStopped = errors.New("data source is not started")
)

// DataSourceManager owns the connection pool described by DatabaseConfig.
type DataSourceManager struct {
	DatabaseConfig *DatabaseConfig

	gormDB *gorm.DB
}

func (m *DataSourceManager) Start() error {
	db, err := gorm.Open(m.DatabaseConfig.DriverType, m.DatabaseConfig.DriverArgs)
	if err != nil {
		return err
	}
	m.DatabaseConfig.applyPool(db)
	if err := db.DB().Ping(); err != nil {
		_ = db.Close()
		return err
	}
	db.LogMode(os.Getenv("GIN_MODE") != "release")
	otgorm.AddGormCallbacks(db)

	m.gormDB = db
	logrus.Infof("data source %s started", m.DatabaseConfig.DriverType)
	return nil
}

func (m *DataSourceManager) Stop() {
	if m.gormDB == nil {
		return
	}
	if err := m.gormDB.Close(); err != nil {
		logrus.Warnf("failed to close DB: %v", err)
	}
	m.gormDB = nil
}

// Ping checks that the database is reachable within the deadline of ctx.
func (m *DataSourceManager) Ping(ctx context.Context) error {
	if m.gormDB == nil {
		return ErrDataSourceStopped
	}
	return m.gormDB.DB().PingContext(ctx)
}

// GormDB returns a new session, nil once stopped. Sql spans become children of the span carried by ctx.
func (m *DataSourceManager) GormDB(ctx context.Context) *gorm.DB {
	if m.gormDB == nil {
		return nil
	}
	return otgorm.SetSpanToGorm(ctx, m.gormDB.New())
}
