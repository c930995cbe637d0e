package platform

import (
	"time"
)

// Event type values published by the engines. The dispatcher only forwards
// events whose type appears in its allowlist.
const (
	EventSyncProgress           = "syncProgress"
	EventSyncComplete           = "syncComplete"
	EventSyncCancelled          = "syncCancelled"
	EventSyncError              = "syncError"
	EventMutationQueueProcessed = "mutationQueueProcessed"
	EventDBError                = "dbError"
	EventOutboxSent             = "outboxSent"
)

// Event is one notification published to collaborators (UI layer, dispatcher)
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}
