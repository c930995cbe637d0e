package models

import (
	"encoding/json"
	"time"
)

// OutboxStatus is the lifecycle state of an outbox item
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxScheduled OutboxStatus = "scheduled"
	OutboxSending   OutboxStatus = "sending"
	OutboxSent      OutboxStatus = "sent"
	OutboxFailed    OutboxStatus = "failed"
)

// OutboxItem is one durable entry of the send queue. A scheduled item whose
// ServerID is set was already accepted by the server; the local processor
// marks it sent once SendAt elapses without resubmitting.
type OutboxItem struct {
	ID          string       `gorm:"primaryKey;size:36" json:"id"`
	Account     string       `gorm:"size:255;not null;index" json:"account"`
	Status      OutboxStatus `gorm:"size:20;index" json:"status"`
	RetryCount  int          `gorm:"default:0" json:"retry_count"`
	NextRetryAt *time.Time   `json:"next_retry_at,omitempty"`
	SendAt      *time.Time   `json:"send_at,omitempty"`
	ServerID    string       `gorm:"size:255" json:"server_id,omitempty"`
	LastError   string       `gorm:"type:text" json:"last_error,omitempty"`
	EmailData   string       `gorm:"type:text" json:"email_data"` // JSON
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// EmailData is the decoded outgoing message of an outbox item
type EmailData struct {
	From     string   `json:"from,omitempty"`
	To       []string `json:"to"`
	Cc       []string `json:"cc,omitempty"`
	Bcc      []string `json:"bcc,omitempty"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body,omitempty"`
	HTMLBody string   `json:"html_body,omitempty"`
}

// DecodeEmailData unmarshals the stored email payload
func (o *OutboxItem) DecodeEmailData() (EmailData, error) {
	var d EmailData
	err := json.Unmarshal([]byte(o.EmailData), &d)
	return d, err
}

// SetEmailData marshals and stores the email payload
func (o *OutboxItem) SetEmailData(d EmailData) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	o.EmailData = string(data)
	return nil
}

// Terminal reports whether the item is in a state that is never retried
// automatically
func (o *OutboxItem) Terminal() bool {
	return o.Status == OutboxSent || o.Status == OutboxFailed
}
