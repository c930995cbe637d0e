package models

import (
	"encoding/json"
	"time"
)

// Standard IMAP-style flags carried on messages
const (
	FlagSeen    = `\Seen`
	FlagFlagged = `\Flagged`
)

// Message is the canonical local copy of a remote message.
// Uniqueness is (account, folder, message_uid); sync upserts overwrite in
// place, so re-delivery of the same page is idempotent.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Account        string    `gorm:"size:255;not null;uniqueIndex:idx_messages_key" json:"account"`
	Folder         string    `gorm:"size:500;not null;uniqueIndex:idx_messages_key" json:"folder"`
	UID            string    `gorm:"column:message_uid;size:255;not null;uniqueIndex:idx_messages_key" json:"uid"`
	DateMs         int64     `gorm:"index" json:"date_ms"`
	FromAddr       string    `gorm:"size:255" json:"from"`
	Subject        string    `gorm:"size:500" json:"subject"`
	Snippet        string    `gorm:"type:text" json:"snippet"`
	Flags          string    `gorm:"type:text" json:"flags"` // JSON array stored as string
	IsUnread       bool      `gorm:"default:true;index" json:"is_unread"`
	IsStarred      bool      `gorm:"default:false" json:"is_starred"`
	HasAttachment  bool      `gorm:"default:false" json:"has_attachment"`
	ThreadID       string    `gorm:"size:255;index" json:"thread_id"`
	MessageID      string    `gorm:"size:255" json:"message_id"` // RFC 5322 Message-ID header
	InReplyTo      string    `gorm:"size:255" json:"in_reply_to"`
	ReferencesList string    `gorm:"type:text" json:"references"` // JSON array stored as string
	BodyIndexed    bool      `gorm:"default:false" json:"body_indexed"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GetFlags decodes the JSON flag column
func (m *Message) GetFlags() []string {
	var flags []string
	if m.Flags != "" {
		json.Unmarshal([]byte(m.Flags), &flags)
	}
	return flags
}

// SetFlags encodes flags into the JSON flag column and keeps the derived
// read/star columns in agreement with the flag set
func (m *Message) SetFlags(flags []string) {
	if flags == nil {
		flags = []string{}
	}
	data, err := json.Marshal(flags)
	if err != nil {
		data = []byte("[]")
	}
	m.Flags = string(data)
	m.IsUnread = true
	m.IsStarred = false
	for _, f := range flags {
		switch f {
		case FlagSeen:
			m.IsUnread = false
		case FlagFlagged:
			m.IsStarred = true
		}
	}
}

// GetReferences decodes the JSON references column
func (m *Message) GetReferences() []string {
	var refs []string
	if m.ReferencesList != "" {
		json.Unmarshal([]byte(m.ReferencesList), &refs)
	}
	return refs
}
