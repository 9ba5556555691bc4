package persistence

import (
	"database/sql"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jinzhu/gorm"
)

type DatabaseConfig struct {
	DriverType string
	DriverArgs string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c *DatabaseConfig) applyPool(db *gorm.DB) {
	if c.MaxOpenConns > 0 {
		db.DB().SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.DB().SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetime > 0 {
		db.DB().SetConnMaxLifetime(c.ConnMaxLifetime)
	}
}

// ParseDatabaseConfigFromEnv DATABASE_DRIVER=mysql DATABASE_URL=root:root@(127.0.0.1:3306)/sqlreview?parseTime=True
// Pool sizing comes from DATABASE_MAX_OPEN_CONNS, DATABASE_MAX_IDLE_CONNS and DATABASE_CONN_MAX_LIFETIME.
func ParseDatabaseConfigFromEnv() (*DatabaseConfig, error) {
	driverType := os.Getenv("DATABASE_DRIVER")
	if driverType == "" {
		driverType = "mysql"
	}
	driverArgs := os.Getenv("DATABASE_URL")
	if driverArgs == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	config := &DatabaseConfig{DriverType: driverType, DriverArgs: driverArgs}

	var err error
	if config.MaxOpenConns, err = envCount("DATABASE_MAX_OPEN_CONNS"); err != nil {
		return nil, err
	}
	if config.MaxIdleConns, err = envCount("DATABASE_MAX_IDLE_CONNS"); err != nil {
		return nil, err
	}
	if v := os.Getenv("DATABASE_CONN_MAX_LIFETIME"); v != "" {
		if config.ConnMaxLifetime, err = time.ParseDuration(v); err != nil {
			return nil, errors.New("invalid DATABASE_CONN_MAX_LIFETIME '" + v + "'")
		}
	}
	return config, nil
}

func envCount(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key + " '" + v + "'")
	}
	return n, nil
}

// PrepareMysqlDatabase creates the database named in the DSN if it does not exist yet.
func PrepareMysqlDatabase(driverArgs string) error {
	cfg, err := mysql.ParseDSN(driverArgs)
	if err != nil {
		return err
	}
	dbName := cfg.DBName
	if dbName == "" {
		return errors.New("database name is missing in DSN")
	}
	cfg.DBName = ""

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec("CREATE DATABASE IF NOT EXISTS `" + dbName + "` DEFAULT CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci")
	return err
}
