package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/config"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/database"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/dispatch"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/platform"
)

func setupTestRouter(t *testing.T) (*gin.Engine, func()) {
	gin.SetMode(gin.TestMode)

	tempDir, err := os.MkdirTemp("", "api_test_*")
	require.NoError(t, err)

	db, err := database.Initialize(filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{
		APIBase:     "https://api.example.com",
		LogLevel:    "INFO",
		CORSOrigins: "*",
	}
	bus := platform.NewBus()
	d := dispatch.New(cfg, db, bus, log)
	router := SetupRouter(db, cfg, d)

	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		os.RemoveAll(tempDir)
	}
	return router, cleanup
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	router, cleanup := setupTestRouter(t)
	defer cleanup()

	w := doJSON(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMutationEndpointsOfflineFlow(t *testing.T) {
	router, cleanup := setupTestRouter(t)
	defer cleanup()

	// take the backend offline so the enqueue does not attempt a real replay
	w := doJSON(router, http.MethodPost, "/api/connectivity", map[string]interface{}{"online": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/api/mutations", map[string]interface{}{
		"account": "me@example.com",
		"type":    "toggleRead",
		"payload": map[string]interface{}{
			"messageId": "msg-1",
			"folder":    "INBOX",
			"isUnread":  true,
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.Mutation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, models.MutationPending, created.Status)
	assert.Equal(t, int64(1), created.Position)

	w = doJSON(router, http.MethodGet, "/api/mutations?account=me@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Mutations []models.Mutation `json:"mutations"`
		Pending   int64             `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Mutations, 1)
	assert.Equal(t, int64(1), listed.Pending)

	// unknown mutation types are rejected at the boundary
	w = doJSON(router, http.MethodPost, "/api/mutations", map[string]interface{}{
		"account": "me@example.com",
		"type":    "archive",
		"payload": map[string]interface{}{"messageId": "msg-1"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// missing account is rejected
	w = doJSON(router, http.MethodGet, "/api/mutations", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOutboxEndpointsScheduledFlow(t *testing.T) {
	router, cleanup := setupTestRouter(t)
	defer cleanup()

	w := doJSON(router, http.MethodPost, "/api/connectivity", map[string]interface{}{"online": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/api/outbox", map[string]interface{}{
		"account": "me@example.com",
		"email": map[string]interface{}{
			"to":      []string{"rcpt@example.com"},
			"subject": "later",
			"body":    "hello",
		},
		"send_at": "2999-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var item models.OutboxItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, models.OutboxScheduled, item.Status)

	// a local-only scheduled send cancels cleanly
	w = doJSON(router, http.MethodDelete, "/api/outbox/"+item.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodDelete, "/api/outbox/"+item.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// a send without recipients is rejected
	w = doJSON(router, http.MethodPost, "/api/outbox", map[string]interface{}{
		"account": "me@example.com",
		"email":   map[string]interface{}{"subject": "empty"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncEndpointsAcceptAndReject(t *testing.T) {
	router, cleanup := setupTestRouter(t)
	defer cleanup()

	// a well-formed start is accepted; the outcome arrives on the event
	// channel, not in the response
	w := doJSON(router, http.MethodPost, "/api/sync/start", map[string]interface{}{
		"accountId": "me@example.com",
		"folderId":  "INBOX",
		"authToken": "tok",
	})
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(router, http.MethodPost, "/api/sync/cancel", map[string]interface{}{
		"accountId": "me@example.com",
		"folderId":  "INBOX",
	})
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(router, http.MethodGet, "/api/sync/status?account=me@example.com&folder=INBOX", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	// malformed body never reaches the dispatcher
	w = doJSON(router, http.MethodPost, "/api/sync/cancel", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessageEndpointsServeLocalCache(t *testing.T) {
	router, cleanup := setupTestRouter(t)
	defer cleanup()

	w := doJSON(router, http.MethodGet, "/api/messages?account=me@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Messages []models.Message `json:"messages"`
		Total    int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Zero(t, listed.Total)

	// an uncached body is a 404, the signal to fetch on demand
	w = doJSON(router, http.MethodGet, "/api/messages/uid-1/body?account=me@example.com", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
