package models

import (
	"time"
)

// SyncManifest records resumable sync progress for one (account, folder).
// It is written only after a page of messages has been durably stored, so a
// crash mid-page leaves messages persisted with a stale manifest; re-running
// the sync is safe because message upserts are idempotent.
type SyncManifest struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Account         string    `gorm:"size:255;not null;uniqueIndex:idx_sync_manifests_key" json:"account"`
	Folder          string    `gorm:"size:500;not null;uniqueIndex:idx_sync_manifests_key" json:"folder"`
	LastUID         string    `gorm:"size:255" json:"last_uid"`
	LastSyncAt      time.Time `json:"last_sync_at"`
	PagesFetched    int       `gorm:"default:0" json:"pages_fetched"`
	MessagesFetched int       `gorm:"default:0" json:"messages_fetched"`
	HasBodiesPass   bool      `gorm:"default:false" json:"has_bodies_pass"`
	UpdatedAt       time.Time `json:"updated_at"`
}
