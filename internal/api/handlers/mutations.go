package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/dispatch"
)

// MutationHandler exposes the mutation queue
type MutationHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewMutationHandler creates a new MutationHandler instance
func NewMutationHandler(d *dispatch.Dispatcher) *MutationHandler {
	return &MutationHandler{dispatcher: d}
}

// EnqueueMutationRequest is the request body for POST /api/mutations
type EnqueueMutationRequest struct {
	Account string                 `json:"account" binding:"required"`
	Type    models.MutationType    `json:"type" binding:"required"`
	Payload models.MutationPayload `json:"payload" binding:"required"`
}

// ListMutations handles GET /api/mutations
func (h *MutationHandler) ListMutations(c *gin.Context) {
	account := c.Query("account")
	if account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account is required"})
		return
	}

	items, err := h.dispatcher.Mutations().List(account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	pending, _ := h.dispatcher.Mutations().PendingCount(account)
	c.JSON(http.StatusOK, gin.H{"mutations": items, "pending": pending})
}

// EnqueueMutation handles POST /api/mutations
func (h *MutationHandler) EnqueueMutation(c *gin.Context) {
	var req EnqueueMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mutation, err := h.dispatcher.Mutations().Enqueue(c.Request.Context(), req.Account, req.Type, req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, mutation)
}

// ProcessQueue handles POST /api/mutations/process
func (h *MutationHandler) ProcessQueue(c *gin.Context) {
	account := c.Query("account")
	if account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account is required"})
		return
	}

	result, err := h.dispatcher.Mutations().Process(c.Request.Context(), account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// RetryFailed handles POST /api/mutations/retry
func (h *MutationHandler) RetryFailed(c *gin.Context) {
	account := c.Query("account")
	if account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account is required"})
		return
	}

	if err := h.dispatcher.Mutations().RetryFailed(c.Request.Context(), account); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"retried": true})
}
