package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/dispatch"
)

// SyncHandler routes sync commands through the dispatcher
type SyncHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewSyncHandler creates a new SyncHandler instance
func NewSyncHandler(d *dispatch.Dispatcher) *SyncHandler {
	return &SyncHandler{dispatcher: d}
}

// bearerToken extracts the opaque credential from the Authorization header
func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// dispatchCommand wraps a payload in a command envelope and dispatches it.
// The dispatcher drops anything outside its allowlist; the HTTP layer only
// reports whether the command was accepted for processing.
func (h *SyncHandler) dispatchCommand(c *gin.Context, cmdType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	raw, _ := json.Marshal(dispatch.Command{Type: cmdType, Payload: data})

	if !h.dispatcher.Dispatch(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command not accepted"})
		return
	}
	// outcome arrives on the event channel
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// StartSync handles POST /api/sync/start
func (h *SyncHandler) StartSync(c *gin.Context) {
	var p dispatch.StartSyncPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if p.AuthToken == "" {
		p.AuthToken = bearerToken(c)
	}
	h.dispatchCommand(c, dispatch.CommandStartSync, p)
}

// CancelSync handles POST /api/sync/cancel
func (h *SyncHandler) CancelSync(c *gin.Context) {
	var p dispatch.TargetPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dispatchCommand(c, dispatch.CommandCancelSync, p)
}

// SyncStatus handles GET /api/sync/status
func (h *SyncHandler) SyncStatus(c *gin.Context) {
	p := dispatch.TargetPayload{
		Account: c.Query("account"),
		Folder:  c.Query("folder"),
	}
	h.dispatchCommand(c, dispatch.CommandSyncStatus, p)
}
