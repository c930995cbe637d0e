package database

import (
	"os"
	"path/filepath"

	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Initialize creates and returns a database connection
func Initialize(dbPath string) (*gorm.DB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig)
	if err != nil {
		return nil, err
	}

	// sqlite tolerates exactly one writer
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return db, nil
}

// runMigrations runs all database migrations
func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Folder{},
		&models.Message{},
		&models.MessageBody{},
		&models.SyncManifest{},
		&models.Mutation{},
		&models.OutboxItem{},
		&models.QueueLock{},
		&models.Log{},
	); err != nil {
		return err
	}

	// Messages synced by builds that predate folder scoping land in INBOX
	db.Model(&models.Message{}).Where("folder = '' OR folder IS NULL").Update("folder", models.FolderInbox)

	// Early builds created mutations without a queue position; backfill from
	// insertion order so FIFO replay stays correct
	db.Exec("UPDATE mutations SET position = rowid WHERE position = 0 OR position IS NULL")

	// Expired leases from crashed processes must not block the first pass
	db.Exec("DELETE FROM queue_locks WHERE expires_at < CURRENT_TIMESTAMP")

	return nil
}
