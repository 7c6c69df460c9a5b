// Package database stores users, user-created rooms and the message archive
// with gorm.
package database

import (
	"errors"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// DB exposes the underlying handle, mostly for tests.
func (d *Database) DB() *gorm.DB {
	return d.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
