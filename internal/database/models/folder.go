package models

import (
	"time"
)

// Folder represents a remote mail folder cached locally
type Folder struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Account     string    `gorm:"size:255;not null;uniqueIndex:idx_folders_account_path" json:"account"`
	Path        string    `gorm:"size:500;not null;uniqueIndex:idx_folders_account_path" json:"path"`
	Name        string    `gorm:"size:255" json:"name"`
	UnreadCount int       `gorm:"default:0" json:"unread_count"`
	SpecialUse  string    `gorm:"size:50" json:"special_use"` // \Inbox, \Sent, \Drafts, \Trash, ...
	UpdatedAt   time.Time `json:"updated_at"`
}

// Well-known folder paths
const (
	FolderInbox = "INBOX"
	FolderSent  = "Sent"
)
