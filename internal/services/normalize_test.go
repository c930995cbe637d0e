package services

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
)

func TestExtractRecordList(t *testing.T) {
	bare, err := extractRecordList(json.RawMessage(`[{"id":"1"},{"id":"2"}]`))
	require.NoError(t, err)
	assert.Len(t, bare, 2)

	enveloped, err := extractRecordList(json.RawMessage(`{"messages":[{"id":"1"}],"total":1}`))
	require.NoError(t, err)
	assert.Len(t, enveloped, 1)

	folders, err := extractRecordList(json.RawMessage(`{"folders":[{"path":"INBOX"}]}`))
	require.NoError(t, err)
	assert.Len(t, folders, 1)

	// an envelope without a recognized list key is an empty page
	empty, err := extractRecordList(json.RawMessage(`{"total":0}`))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = extractRecordList(json.RawMessage(`"not a list"`))
	assert.Error(t, err)
}

func TestNormalizeMessageAlternateFieldNames(t *testing.T) {
	raw := map[string]interface{}{
		"uid":       "abc-1",
		"Subject":   "Hello",
		"sender":    map[string]interface{}{"name": "Ann", "address": "ann@example.com"},
		"thread_id": "t-9",
		"flags":     []interface{}{`\Seen`},
	}

	msg := normalizeMessage("me@example.com", "INBOX", raw)
	assert.Equal(t, "abc-1", msg.UID)
	assert.Equal(t, "Hello", msg.Subject)
	assert.Equal(t, "Ann <ann@example.com>", msg.FromAddr)
	assert.Equal(t, "t-9", msg.ThreadID)
	assert.False(t, msg.IsUnread, `\Seen should derive read state`)
}

func TestNormalizeMessagePlaceholders(t *testing.T) {
	before := time.Now().Add(-time.Second).UnixMilli()
	msg := normalizeMessage("me@example.com", "INBOX", map[string]interface{}{"id": "x"})

	assert.Equal(t, "(no subject)", msg.Subject)
	assert.GreaterOrEqual(t, msg.DateMs, before, "missing date falls back to now")
	assert.True(t, msg.IsUnread, "no flags means unread")
}

func TestNormalizeMessageNumericID(t *testing.T) {
	msg := normalizeMessage("me@example.com", "INBOX", map[string]interface{}{"id": float64(12345)})
	assert.Equal(t, "12345", msg.UID)
}

func TestDateFieldUnits(t *testing.T) {
	// epoch seconds scale up to milliseconds
	assert.Equal(t, int64(1700000000000), dateField(map[string]interface{}{"date": float64(1700000000)}))
	// epoch milliseconds pass through
	assert.Equal(t, int64(1700000000123), dateField(map[string]interface{}{"date": float64(1700000000123)}))
	// RFC3339 strings parse
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, want, dateField(map[string]interface{}{"date": "2024-05-01T12:00:00Z"}))
}

func TestSnippetTruncation(t *testing.T) {
	long := strings.Repeat("a", 300)
	got := snippetField(map[string]interface{}{"snippet": long})
	assert.Len(t, got, 200)
}

func TestFlagsDeriveStarred(t *testing.T) {
	msg := normalizeMessage("me@example.com", "INBOX", map[string]interface{}{
		"id":    "x",
		"flags": []interface{}{`\Flagged`},
	})
	assert.True(t, msg.IsStarred)
	assert.True(t, msg.IsUnread)

	// explicit booleans win over flag-derived state
	msg = normalizeMessage("me@example.com", "INBOX", map[string]interface{}{
		"id":       "x",
		"flags":    []interface{}{`\Flagged`},
		"isUnread": false,
		"starred":  false,
	})
	assert.False(t, msg.IsStarred)
	assert.False(t, msg.IsUnread)
}

func TestReferencesField(t *testing.T) {
	assert.Equal(t, []string{"<a@x>", "<b@x>"},
		referencesField(map[string]interface{}{"references": "<a@x> <b@x>"}))
	assert.Equal(t, []string{"<a@x>"},
		referencesField(map[string]interface{}{"references": []interface{}{"<a@x>"}}))
	assert.Nil(t, referencesField(map[string]interface{}{}))
}

func TestNormalizeMessageBodyAttachments(t *testing.T) {
	body := normalizeMessageBody("me@example.com", "INBOX", "u-1", map[string]interface{}{
		"html": "<p>hi</p>",
		"text": "hi",
		"attachments": []interface{}{
			map[string]interface{}{"filename": "a.pdf", "contentType": "application/pdf", "size": float64(1024)},
		},
	})

	assert.Equal(t, "<p>hi</p>", body.Body)
	assert.Equal(t, "hi", body.TextContent)
	atts := body.GetAttachments()
	require.Len(t, atts, 1)
	assert.Equal(t, "a.pdf", atts[0].Filename)
	assert.Equal(t, int64(1024), atts[0].Size)
}

func TestNormalizeFolder(t *testing.T) {
	f := normalizeFolder("me@example.com", map[string]interface{}{
		"path":        "Archive/2024",
		"name":        "2024",
		"specialUse":  `\Archive`,
		"unreadCount": float64(7),
	})
	assert.Equal(t, models.Folder{
		Account:     "me@example.com",
		Path:        "Archive/2024",
		Name:        "2024",
		SpecialUse:  `\Archive`,
		UnreadCount: 7,
		UpdatedAt:   f.UpdatedAt,
	}, f)
}
