package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
	"gorm.io/gorm"
)

// MessageHandler serves the locally cached folder and message state
type MessageHandler struct {
	db *gorm.DB
}

// NewMessageHandler creates a new MessageHandler instance
func NewMessageHandler(db *gorm.DB) *MessageHandler {
	return &MessageHandler{db: db}
}

// ListFolders handles GET /api/folders
func (h *MessageHandler) ListFolders(c *gin.Context) {
	account := c.Query("account")
	if account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account is required"})
		return
	}

	var folders []models.Folder
	if err := h.db.Where("account = ?", account).Order("path ASC").Find(&folders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": folders})
}

// ListMessages handles GET /api/messages
func (h *MessageHandler) ListMessages(c *gin.Context) {
	account := c.Query("account")
	if account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account is required"})
		return
	}
	folder := c.DefaultQuery("folder", models.FolderInbox)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	query := h.db.Model(&models.Message{}).Where("account = ? AND folder = ?", account, folder)
	if c.Query("unread") == "true" {
		query = query.Where("is_unread = ?", true)
	}

	var total int64
	query.Count(&total)

	var messages []models.Message
	err := query.Order("date_ms DESC").Limit(limit).Offset(offset).Find(&messages).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetMessageBody handles GET /api/messages/:uid/body. A 404 means the body
// was never cached; the client fetches it on demand.
func (h *MessageHandler) GetMessageBody(c *gin.Context) {
	account := c.Query("account")
	if account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account is required"})
		return
	}
	folder := c.DefaultQuery("folder", models.FolderInbox)
	uid := c.Param("uid")

	var body models.MessageBody
	err := h.db.Where("account = ? AND folder = ? AND message_uid = ?", account, folder, uid).First(&body).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "body not cached"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, body)
}
