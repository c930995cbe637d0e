package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/dispatch"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/services"
)

// SystemHandler exposes events, activity logs and the connectivity signal
type SystemHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewSystemHandler creates a new SystemHandler instance
func NewSystemHandler(d *dispatch.Dispatcher) *SystemHandler {
	return &SystemHandler{dispatcher: d}
}

// RecentEvents handles GET /api/events, the polling tail of the event bus
func (h *SystemHandler) RecentEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, gin.H{"events": h.dispatcher.Bus().Recent(limit)})
}

// ListLogs handles GET /api/logs
func (h *SystemHandler) ListLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	logs, err := h.dispatcher.Logs().ListLogs(services.LogQueryOptions{
		Account: c.Query("account"),
		Module:  c.Query("module"),
		Level:   c.Query("level"),
		Limit:   limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// ConnectivityRequest is the request body for POST /api/connectivity
type ConnectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// SetConnectivity handles POST /api/connectivity. The host process owns
// connectivity detection; this is how it feeds transitions in. Going online
// wakes the queue processors.
func (h *SystemHandler) SetConnectivity(c *gin.Context) {
	var req ConnectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.dispatcher.SetOnline(*req.Online)
	c.JSON(http.StatusOK, gin.H{"online": *req.Online})
}
