package models

import (
	"encoding/json"
	"time"
)

// MessageBody holds the lazily fetched full body of a message. Absence of a
// row means the UI has to fetch the body on demand.
type MessageBody struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Account     string    `gorm:"size:255;not null;uniqueIndex:idx_message_bodies_key" json:"account"`
	Folder      string    `gorm:"size:500;not null;uniqueIndex:idx_message_bodies_key" json:"folder"`
	UID         string    `gorm:"column:message_uid;size:255;not null;uniqueIndex:idx_message_bodies_key" json:"uid"`
	Body        string    `gorm:"type:text" json:"body"`
	TextContent string    `gorm:"type:text" json:"text_content"`
	Attachments string    `gorm:"type:text" json:"attachments"` // JSON array stored as string
	UpdatedAt   time.Time `json:"updated_at"`
}

// AttachmentInfo describes one attachment of a cached body
type AttachmentInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// GetAttachments decodes the JSON attachments column
func (b *MessageBody) GetAttachments() []AttachmentInfo {
	var atts []AttachmentInfo
	if b.Attachments != "" {
		json.Unmarshal([]byte(b.Attachments), &atts)
	}
	return atts
}

// SetAttachments encodes attachments into the JSON column
func (b *MessageBody) SetAttachments(atts []AttachmentInfo) error {
	data, err := json.Marshal(atts)
	if err != nil {
		return err
	}
	b.Attachments = string(data)
	return nil
}
