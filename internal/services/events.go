package services

import (
	"strings"
	"time"
)

// SyncProgressEvent is published after every page write and for status
// queries (Status "idle")
type SyncProgressEvent struct {
	Account      string `json:"account"`
	Folder       string `json:"folderId"`
	Status       string `json:"status"` // syncing, idle
	PagesDone    int    `json:"pagesDone"`
	MessagesDone int    `json:"messagesDone"`
	LastUID      string `json:"lastUID,omitempty"`
}

// SyncCompleteEvent is published when a sync pass finishes successfully
type SyncCompleteEvent struct {
	Account      string    `json:"account"`
	Folder       string    `json:"folderId"`
	MessagesDone int       `json:"messagesDone"`
	LastUID      string    `json:"lastUID,omitempty"`
	LastSyncAt   time.Time `json:"lastSyncAt"`
}

// SyncCancelledEvent is published on cooperative cancellation, carrying the
// counters reached so far
type SyncCancelledEvent struct {
	Account      string `json:"account"`
	Folder       string `json:"folderId"`
	PagesDone    int    `json:"pagesDone"`
	MessagesDone int    `json:"messagesDone"`
}

// SyncErrorEvent is published on hard sync failure. Counts are zero; a hard
// failure aborts the whole pass.
type SyncErrorEvent struct {
	Account      string `json:"account"`
	Folder       string `json:"folderId"`
	Error        string `json:"error"`
	MessagesDone int    `json:"messagesDone"`
	PagesDone    int    `json:"pagesDone"`
}

// MutationQueueProcessedEvent summarizes one mutation queue pass
type MutationQueueProcessedEvent struct {
	Account   string `json:"account"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Pending   int    `json:"pending"`
}

// OutboxSentEvent is the local sent notification
type OutboxSentEvent struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
}

// DBErrorEvent surfaces a storage failure with a recoverability
// classification derived from known sqlite error kinds
type DBErrorEvent struct {
	Error       string `json:"error"`
	ErrorName   string `json:"errorName"`
	Recoverable bool   `json:"recoverable"`
}

// classifyDBError maps a storage error onto the dbError event shape.
// Lock/busy conditions clear on retry; corruption and I/O failures do not.
func classifyDBError(err error) DBErrorEvent {
	msg := err.Error()
	lower := strings.ToLower(msg)

	name := "StorageError"
	recoverable := false
	switch {
	case strings.Contains(lower, "database is locked"), strings.Contains(lower, "busy"):
		name = "StorageBusy"
		recoverable = true
	case strings.Contains(lower, "no such table"), strings.Contains(lower, "no such column"):
		name = "StorageSchema"
		recoverable = true
	case strings.Contains(lower, "not a database"), strings.Contains(lower, "malformed"), strings.Contains(lower, "corrupt"):
		name = "StorageCorrupt"
	case strings.Contains(lower, "disk i/o"), strings.Contains(lower, "readonly"):
		name = "StorageUnavailable"
	}

	return DBErrorEvent{
		Error:       msg,
		ErrorName:   name,
		Recoverable: recoverable,
	}
}
