package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/dispatch"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/services"
)

// OutboxHandler exposes the outbox queue
type OutboxHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewOutboxHandler creates a new OutboxHandler instance
func NewOutboxHandler(d *dispatch.Dispatcher) *OutboxHandler {
	return &OutboxHandler{dispatcher: d}
}

// QueueEmailRequest is the request body for POST /api/outbox
type QueueEmailRequest struct {
	Account  string           `json:"account" binding:"required"`
	Email    models.EmailData `json:"email" binding:"required"`
	SendAt   *time.Time       `json:"send_at,omitempty"`
	ServerID string           `json:"server_id,omitempty"`
}

// ListOutbox handles GET /api/outbox
func (h *OutboxHandler) ListOutbox(c *gin.Context) {
	account := c.Query("account")
	if account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account is required"})
		return
	}

	items, err := h.dispatcher.Outbox().List(account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outbox": items})
}

// QueueEmail handles POST /api/outbox
func (h *OutboxHandler) QueueEmail(c *gin.Context) {
	var req QueueEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Email.To) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one recipient is required"})
		return
	}

	item, err := h.dispatcher.Outbox().QueueEmail(c.Request.Context(), req.Account, req.Email, services.QueueEmailOptions{
		SendAt:   req.SendAt,
		ServerID: req.ServerID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, item)
}

// ProcessOutbox handles POST /api/outbox/process
func (h *OutboxHandler) ProcessOutbox(c *gin.Context) {
	account := c.Query("account")
	if account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account is required"})
		return
	}

	result, err := h.dispatcher.Outbox().ProcessOutbox(c.Request.Context(), account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// RetryItem handles POST /api/outbox/:id/retry
func (h *OutboxHandler) RetryItem(c *gin.Context) {
	err := h.dispatcher.Outbox().RetryOutboxItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrOutboxItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"retried": true})
}

// RetryAllFailed handles POST /api/outbox/retry-all
func (h *OutboxHandler) RetryAllFailed(c *gin.Context) {
	account := c.Query("account")
	if account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account is required"})
		return
	}

	if err := h.dispatcher.Outbox().RetryAllFailed(c.Request.Context(), account); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"retried": true})
}

// CancelScheduled handles DELETE /api/outbox/:id. A 409 with mayStillBeSent
// means the server-side cancel failed and the email may still go out; the
// local record is preserved.
func (h *OutboxHandler) CancelScheduled(c *gin.Context) {
	err := h.dispatcher.Outbox().CancelScheduledEmail(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOutboxItemNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrMayStillBeSent):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "mayStillBeSent": true})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}
