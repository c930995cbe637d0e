package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
)

// The upstream API has shipped several record shapes over time (renamed
// fields, different casings, enveloped vs bare lists). All of that tolerance
// lives here; the canonical models stay strict.

const noSubjectPlaceholder = "(no subject)"

// extractRecordList unwraps a message-list response. Accepts a bare JSON
// array or an envelope keyed messages/data/results/items.
func extractRecordList(data json.RawMessage) ([]map[string]interface{}, error) {
	var bare []map[string]interface{}
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unrecognized list response shape: %v", err)
	}
	for _, key := range []string{"messages", "data", "results", "items", "folders"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		var list []map[string]interface{}
		if err := json.Unmarshal(raw, &list); err == nil {
			return list, nil
		}
	}
	// an envelope without a recognized list key is an empty page
	return nil, nil
}

// normalizeMessage adapts one raw upstream record into the canonical
// Message. Missing subject gets a placeholder; missing date falls back to
// the current time.
func normalizeMessage(account, folder string, raw map[string]interface{}) models.Message {
	msg := models.Message{
		Account:   account,
		Folder:    folder,
		UID:       stringField(raw, "id", "uid", "_id"),
		FromAddr:  addressField(raw, "from", "sender", "fromAddress", "from_address"),
		Subject:   stringField(raw, "subject", "Subject"),
		Snippet:   snippetField(raw),
		ThreadID:  stringField(raw, "threadId", "thread_id", "thread"),
		MessageID: stringField(raw, "messageId", "message_id", "messageID"),
		InReplyTo: stringField(raw, "inReplyTo", "in_reply_to"),
		DateMs:    dateField(raw),
		UpdatedAt: time.Now(),
	}

	if msg.Subject == "" {
		msg.Subject = noSubjectPlaceholder
	}

	msg.SetFlags(flagsField(raw))

	// explicit booleans win over flag-derived state
	if v, ok := boolField(raw, "isUnread", "is_unread", "unread"); ok {
		msg.IsUnread = v
	}
	if v, ok := boolField(raw, "isStarred", "is_starred", "starred"); ok {
		msg.IsStarred = v
	}
	if v, ok := boolField(raw, "hasAttachment", "has_attachment", "hasAttachments", "has_attachments"); ok {
		msg.HasAttachment = v
	} else if atts, ok := raw["attachments"].([]interface{}); ok {
		msg.HasAttachment = len(atts) > 0
	}

	if refs := referencesField(raw); len(refs) > 0 {
		if data, err := json.Marshal(refs); err == nil {
			msg.ReferencesList = string(data)
		}
	}

	return msg
}

// normalizeMessageBody adapts a message-detail record into a MessageBody
func normalizeMessageBody(account, folder, uid string, raw map[string]interface{}) models.MessageBody {
	body := models.MessageBody{
		Account:     account,
		Folder:      folder,
		UID:         uid,
		Body:        stringField(raw, "html", "body", "textHtml", "html_body"),
		TextContent: stringField(raw, "text", "textContent", "text_content", "plain"),
		UpdatedAt:   time.Now(),
	}

	if atts, ok := raw["attachments"].([]interface{}); ok {
		infos := make([]models.AttachmentInfo, 0, len(atts))
		for _, a := range atts {
			m, ok := a.(map[string]interface{})
			if !ok {
				continue
			}
			info := models.AttachmentInfo{
				Filename:    stringField(m, "filename", "name"),
				ContentType: stringField(m, "contentType", "content_type", "type"),
			}
			if size, ok := numberField(m, "size", "length"); ok {
				info.Size = int64(size)
			}
			infos = append(infos, info)
		}
		body.SetAttachments(infos)
	}

	return body
}

// normalizeFolder adapts one raw folder record
func normalizeFolder(account string, raw map[string]interface{}) models.Folder {
	f := models.Folder{
		Account:    account,
		Path:       stringField(raw, "path", "id", "name"),
		Name:       stringField(raw, "name", "path"),
		SpecialUse: stringField(raw, "specialUse", "special_use", "attribute"),
		UpdatedAt:  time.Now(),
	}
	if n, ok := numberField(raw, "unreadCount", "unread_count", "unread"); ok {
		f.UnreadCount = int(n)
	}
	return f
}

// stringField returns the first present key rendered as a string. Numeric
// ids are formatted without an exponent.
func stringField(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if val != "" {
				return val
			}
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64)
		case json.Number:
			return val.String()
		}
	}
	return ""
}

// numberField returns the first present key as a float
func numberField(raw map[string]interface{}, keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case float64:
			return val, true
		case string:
			if n, err := strconv.ParseFloat(val, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// boolField returns the first present key as a bool
func boolField(raw map[string]interface{}, keys ...string) (bool, bool) {
	for _, key := range keys {
		if v, ok := raw[key].(bool); ok {
			return v, true
		}
	}
	return false, false
}

// dateField extracts the message date in epoch milliseconds. Accepts numeric
// ms, numeric seconds, or date strings; falls back to now.
func dateField(raw map[string]interface{}) int64 {
	for _, key := range []string{"dateMs", "date_ms", "date", "internalDate", "created_at", "createdAt"} {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case float64:
			// values this small must be seconds
			if val < 1e12 {
				return int64(val) * 1000
			}
			return int64(val)
		case string:
			for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.RFC1123Z, time.RFC1123, "2006-01-02 15:04:05"} {
				if t, err := time.Parse(layout, val); err == nil {
					return t.UnixMilli()
				}
			}
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				if n < 1e12 {
					return n * 1000
				}
				return n
			}
		}
	}
	return time.Now().UnixMilli()
}

// addressField extracts a from-style address. Accepts a bare string, an
// object with name/address keys, or a list of either.
func addressField(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if addr := renderAddress(v); addr != "" {
			return addr
		}
	}
	return ""
}

func renderAddress(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]interface{}:
		addr := stringField(val, "address", "email")
		name := stringField(val, "name")
		if name != "" && addr != "" {
			return fmt.Sprintf("%s <%s>", name, addr)
		}
		if addr != "" {
			return addr
		}
		return name
	case []interface{}:
		if len(val) > 0 {
			return renderAddress(val[0])
		}
	}
	return ""
}

// flagsField extracts the flag set from flags or labels
func flagsField(raw map[string]interface{}) []string {
	for _, key := range []string{"flags", "labels"} {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if list, ok := v.([]interface{}); ok {
			flags := make([]string, 0, len(list))
			for _, f := range list {
				if s, ok := f.(string); ok && s != "" {
					flags = append(flags, s)
				}
			}
			return flags
		}
	}
	return nil
}

// snippetField extracts a short preview, truncated to a display-safe length
func snippetField(raw map[string]interface{}) string {
	s := stringField(raw, "snippet", "preview", "intro")
	if s == "" {
		s = stringField(raw, "text")
	}
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// referencesField extracts the References chain (array or space-separated)
func referencesField(raw map[string]interface{}) []string {
	v, ok := raw["references"]
	if !ok || v == nil {
		return nil
	}
	switch val := v.(type) {
	case []interface{}:
		refs := make([]string, 0, len(val))
		for _, r := range val {
			if s, ok := r.(string); ok && s != "" {
				refs = append(refs, s)
			}
		}
		return refs
	case string:
		return strings.Fields(val)
	}
	return nil
}
