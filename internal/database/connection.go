package database

import (
	"errors"
	"strings"

	"github.com/thereayou/letstalk/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrMissingDSN = errors.New("database dsn is not set")

// Connect opens dsn and migrates the schema. DSNs starting with "sqlite://"
// or "file:" use the SQLite driver, anything else PostgreSQL.
func (d *Database) Connect(dsn string) error {
	if dsn == "" {
		return ErrMissingDSN
	}

	db, err := gorm.Open(dialector(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if db.Dialector.Name() == "sqlite" {
		// SQLite allows a single writer.
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Room{}, &models.Message{}); err != nil {
		return err
	}

	d.db = db
	return nil
}

func dialector(dsn string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "file:"):
		return sqlite.Open(dsn)
	default:
		return postgres.Open(dsn)
	}
}

func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
