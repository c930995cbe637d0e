package platform

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"
)

// Action is a logical remote API operation. The concrete method and path
// belong to the active backend; the engines only name the action.
type Action string

const (
	ActionFolders       Action = "Folders"
	ActionMessageList   Action = "MessageList"
	ActionMessage       Action = "Message"
	ActionMessageUpdate Action = "MessageUpdate"
	ActionMessageDelete Action = "MessageDelete"
	ActionEmails        Action = "Emails"
	ActionEmailCancel   Action = "EmailCancel"
)

// CallOptions carries per-call settings for a remote action. AuthToken is an
// opaque credential supplied by the collaborator; this package never issues
// or refreshes tokens.
type CallOptions struct {
	APIBase   string
	AuthToken string
}

// Environment is the capability surface the engines run against. The host
// process supplies a concrete backend; the engines never touch platform
// APIs directly.
type Environment interface {
	// RemoteCall executes one logical remote action and returns the raw
	// JSON response body.
	RemoteCall(ctx context.Context, action Action, params map[string]interface{}, opts CallOptions) (json.RawMessage, error)

	// DB is the durable key/record store capability.
	DB() *gorm.DB

	// Publish emits an event to collaborators.
	Publish(evt Event)

	// Online reports the current connectivity belief.
	Online() bool

	// OnReconnect registers a callback invoked when connectivity returns.
	// Queues use it as their wake-up signal.
	OnReconnect(fn func())
}
