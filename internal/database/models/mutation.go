package models

import (
	"encoding/json"
	"time"
)

// MutationType identifies a state-changing operation queued for replay
type MutationType string

const (
	MutationToggleRead MutationType = "toggleRead"
	MutationToggleStar MutationType = "toggleStar"
	MutationMove       MutationType = "move"
	MutationDelete     MutationType = "delete"
	MutationLabel      MutationType = "label"
)

// IsValid checks if the mutation type is recognized
func (t MutationType) IsValid() bool {
	switch t {
	case MutationToggleRead, MutationToggleStar, MutationMove, MutationDelete, MutationLabel:
		return true
	}
	return false
}

// MutationStatus is the lifecycle state of a queued mutation
type MutationStatus string

const (
	MutationPending    MutationStatus = "pending"
	MutationProcessing MutationStatus = "processing"
	MutationCompleted  MutationStatus = "completed"
	MutationFailed     MutationStatus = "failed"
)

// Mutation is one durable write-ahead entry of the per-account mutation
// queue. Position gives FIFO order within the account. The payload carries a
// full snapshot of the target message's relevant state at enqueue time so
// the mutation can be replayed correctly even if UI state has since changed.
type Mutation struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	Account     string         `gorm:"size:255;not null;index:idx_mutations_account_position" json:"account"`
	Position    int64          `gorm:"not null;index:idx_mutations_account_position" json:"position"`
	Type        MutationType   `gorm:"size:20;not null" json:"type"`
	Payload     string         `gorm:"type:text" json:"payload"` // JSON snapshot
	Status      MutationStatus `gorm:"size:20;index" json:"status"`
	RetryCount  int            `gorm:"default:0" json:"retry_count"`
	NextRetryAt *time.Time     `json:"next_retry_at,omitempty"`
	LastError   string         `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// MutationPayload is the decoded payload snapshot. Flag-toggle mutations
// recompute the target flag set from Flags plus the toggle direction; they
// never re-read live UI state.
type MutationPayload struct {
	MessageUID string   `json:"messageId"`
	Folder     string   `json:"folder"`
	Flags      []string `json:"flags"`
	IsUnread   bool     `json:"isUnread"`
	IsStarred  bool     `json:"isStarred"`
	Target     string   `json:"target,omitempty"` // destination folder for move
	Labels     []string `json:"labels,omitempty"`
	Permanent  bool     `json:"permanent,omitempty"` // permanent delete
}

// DecodePayload unmarshals the stored payload snapshot
func (m *Mutation) DecodePayload() (MutationPayload, error) {
	var p MutationPayload
	err := json.Unmarshal([]byte(m.Payload), &p)
	return p, err
}

// SetPayload marshals and stores the payload snapshot
func (m *Mutation) SetPayload(p MutationPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	m.Payload = string(data)
	return nil
}
