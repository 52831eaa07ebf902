package system

import (
	"fmt"
	"sync"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	dbOnce sync.Once
	db     *gorm.DB
	dbErr  error
)

// InitDB opens the process-wide *gorm.DB singleton once, ahead of any
// call to GetDB. Safe to call more than once; only the first call
// takes effect.
func InitDB(cfg *Config) error {
	dbOnce.Do(func() {
		db, dbErr = gorm.Open(mysql.Open(cfg.MySQLDSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
	})
	return dbErr
}

// GetDB returns the process-wide database handle. It panics if
// InitDB has not been called, matching the teacher's system.GetDb()
// call sites which assume a live connection.
func GetDB() *gorm.DB {
	if db == nil {
		panic(fmt.Errorf("system: GetDB called before InitDB: %w", dbErr))
	}
	return db
}

// AutoMigrate creates/updates the schema for every model the import
// core owns. Call once at startup.
func AutoMigrate(models ...any) error {
	return GetDB().AutoMigrate(models...)
}
