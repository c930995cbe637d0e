package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrOffline indicates a remote call was attempted without connectivity
	ErrOffline = errors.New("offline")
	// ErrRemoteCallFailed indicates the remote API rejected or failed a call
	ErrRemoteCallFailed = errors.New("remote call failed")
	// ErrUnknownAction indicates an action with no route mapping
	ErrUnknownAction = errors.New("unknown remote action")
)

const remoteCallTimeout = 30 * time.Second

// ForegroundEnv is the live backend used while the app runs in the
// foreground: remote actions go straight to the mail API over HTTP and
// events are delivered on the in-process bus. Connectivity transitions are
// fed in by the host via SetOnline.
type ForegroundEnv struct {
	db     *gorm.DB
	bus    *Bus
	client *http.Client
	log    *logrus.Logger

	mu        sync.Mutex
	online    bool
	reconnect []func()
}

// NewForegroundEnv creates the foreground backend. Connectivity starts
// optimistic; the host corrects it on the first failed probe.
func NewForegroundEnv(db *gorm.DB, bus *Bus, log *logrus.Logger) *ForegroundEnv {
	return &ForegroundEnv{
		db:     db,
		bus:    bus,
		client: &http.Client{Timeout: remoteCallTimeout},
		log:    log,
		online: true,
	}
}

// DB returns the durable store handle
func (e *ForegroundEnv) DB() *gorm.DB {
	return e.db
}

// Publish emits an event on the in-process bus
func (e *ForegroundEnv) Publish(evt Event) {
	e.bus.Publish(evt)
}

// Online reports the current connectivity belief
func (e *ForegroundEnv) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// OnReconnect registers a wake-up callback for connectivity restoration
func (e *ForegroundEnv) OnReconnect(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reconnect = append(e.reconnect, fn)
}

// SetOnline records a connectivity transition. Going offline→online fires
// the registered wake-up callbacks.
func (e *ForegroundEnv) SetOnline(online bool) {
	e.mu.Lock()
	wasOnline := e.online
	e.online = online
	callbacks := make([]func(), len(e.reconnect))
	copy(callbacks, e.reconnect)
	e.mu.Unlock()

	if online && !wasOnline {
		e.log.Info("[platform] connectivity restored")
		for _, fn := range callbacks {
			go fn()
		}
	}
}

// route maps a logical action to method and path. Path parameters come from
// params["id"]; remaining params become the query string for GET/DELETE and
// the JSON body for PUT/POST.
func route(action Action, params map[string]interface{}) (method, path string, err error) {
	id, _ := params["id"].(string)

	switch action {
	case ActionFolders:
		return http.MethodGet, "/v1/folders", nil
	case ActionMessageList:
		return http.MethodGet, "/v1/messages", nil
	case ActionMessage:
		return http.MethodGet, "/v1/messages/" + url.PathEscape(id), nil
	case ActionMessageUpdate:
		return http.MethodPut, "/v1/messages/" + url.PathEscape(id), nil
	case ActionMessageDelete:
		return http.MethodDelete, "/v1/messages/" + url.PathEscape(id), nil
	case ActionEmails:
		return http.MethodPost, "/v1/emails", nil
	case ActionEmailCancel:
		return http.MethodDelete, "/v1/emails/" + url.PathEscape(id), nil
	}
	return "", "", fmt.Errorf("%w: %s", ErrUnknownAction, action)
}

// RemoteCall executes one logical action against the mail API
func (e *ForegroundEnv) RemoteCall(ctx context.Context, action Action, params map[string]interface{}, opts CallOptions) (json.RawMessage, error) {
	if !e.Online() {
		return nil, ErrOffline
	}

	method, path, err := route(action, params)
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(opts.APIBase, "/")
	endpoint := base + path

	var body io.Reader
	if method == http.MethodPut || method == http.MethodPost {
		payload := make(map[string]interface{}, len(params))
		for k, v := range params {
			if k == "id" {
				continue
			}
			payload[k] = v
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	} else if len(params) > 0 {
		query := url.Values{}
		for k, v := range params {
			if k == "id" {
				continue
			}
			query.Set(k, fmt.Sprintf("%v", v))
		}
		if encoded := query.Encode(); encoded != "" {
			endpoint += "?" + encoded
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+opts.AuthToken)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRemoteCallFailed, action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRemoteCallFailed, action, err)
	}

	if resp.StatusCode >= 400 {
		detail := strings.TrimSpace(string(data))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return nil, fmt.Errorf("%w: %s: status %d: %s", ErrRemoteCallFailed, action, resp.StatusCode, detail)
	}

	return json.RawMessage(data), nil
}
