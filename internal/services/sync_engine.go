package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/platform"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrAuthTokenRequired indicates a sync was requested without credentials
	ErrAuthTokenRequired = errors.New("auth token required")
	// ErrSyncRunning indicates a sync for the same (account, folder) is already active
	ErrSyncRunning = errors.New("sync already running")
)

// DefaultPageSize is the message page size when the caller does not set one
const DefaultPageSize = 100

// SyncOptions configures one sync pass for an (account, folder)
type SyncOptions struct {
	Account     string
	Folder      string
	FetchBodies bool
	APIBase     string
	AuthToken   string
	PageSize    int
	MaxMessages int // 0 means unlimited
}

// SyncEngine pulls remote folder and message state into the local store,
// page by page, tracking resumable progress in a per-(account, folder)
// manifest. All failures surface on the event channel, never to the caller:
// the UI collaborator observes syncs, it does not await them.
type SyncEngine struct {
	env        platform.Environment
	db         *gorm.DB
	logService *LogService
	log        *logrus.Logger

	cancelFlags sync.Map // key -> struct{}, checked between pages
	running     sync.Map // key -> struct{}, one active pass per (account, folder)
}

// NewSyncEngine creates a sync engine bound to an environment
func NewSyncEngine(env platform.Environment, logService *LogService, log *logrus.Logger) *SyncEngine {
	return &SyncEngine{
		env:        env,
		db:         env.DB(),
		logService: logService,
		log:        log,
	}
}

func syncKey(account, folder string) string {
	return account + "\x00" + folder
}

// CancelSync sets the cooperative cancellation flag for (account, folder).
// It does not abort an in-flight network call; the flag is observed at the
// next page boundary.
func (e *SyncEngine) CancelSync(account, folder string) {
	if folder == "" {
		folder = models.FolderInbox
	}
	e.cancelFlags.Store(syncKey(account, folder), struct{}{})
}

// GetSyncStatus reads the persisted manifest and publishes an idle
// progress-shaped status event. Status is observed on the event channel,
// not returned.
func (e *SyncEngine) GetSyncStatus(account, folder string) {
	if folder == "" {
		folder = models.FolderInbox
	}

	var manifest models.SyncManifest
	err := e.db.Where("account = ? AND folder = ?", account, folder).First(&manifest).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		e.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
		return
	}

	e.env.Publish(platform.Event{Type: platform.EventSyncProgress, Payload: SyncProgressEvent{
		Account:      account,
		Folder:       folder,
		Status:       "idle",
		PagesDone:    manifest.PagesFetched,
		MessagesDone: manifest.MessagesFetched,
		LastUID:      manifest.LastUID,
	}})
}

// StartSync runs one full sync pass. It never returns an error to the
// caller; auth failures, hard fetch failures and storage failures are all
// published as events.
func (e *SyncEngine) StartSync(ctx context.Context, opts SyncOptions) {
	if opts.Folder == "" {
		opts.Folder = models.FolderInbox
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	if opts.AuthToken == "" {
		e.publishError(opts, ErrAuthTokenRequired.Error())
		return
	}

	key := syncKey(opts.Account, opts.Folder)
	if _, loaded := e.running.LoadOrStore(key, struct{}{}); loaded {
		e.publishError(opts, ErrSyncRunning.Error())
		return
	}
	defer e.running.Delete(key)
	e.cancelFlags.Delete(key)

	callOpts := platform.CallOptions{APIBase: opts.APIBase, AuthToken: opts.AuthToken}

	// Step 1, best effort: a failed folder fetch never aborts message sync
	if err := e.syncFolders(ctx, opts.Account, callOpts); err != nil {
		e.log.WithFields(logrus.Fields{"account": opts.Account, "error": err}).Warn("folder list sync failed, continuing")
	}

	var (
		pagesDone    int
		messagesDone int
		lastUID      string
	)

	for page := 1; ; page++ {
		if e.cancelled(ctx, key) {
			e.env.Publish(platform.Event{Type: platform.EventSyncCancelled, Payload: SyncCancelledEvent{
				Account:      opts.Account,
				Folder:       opts.Folder,
				PagesDone:    pagesDone,
				MessagesDone: messagesDone,
			}})
			e.logService.LogInfo(opts.Account, models.LogModuleSync, "cancel", "Sync cancelled", map[string]interface{}{
				"folder": opts.Folder, "pages": pagesDone, "messages": messagesDone,
			})
			return
		}

		batch, err := e.fetchPage(ctx, opts, callOpts, page)
		if err != nil {
			// hard failure aborts the whole sync; there is no partial-page retry
			e.publishError(opts, err.Error())
			e.logService.LogError(opts.Account, models.LogModuleSync, "fetch", "Sync aborted", map[string]interface{}{
				"folder": opts.Folder, "page": page, "error": err.Error(),
			})
			return
		}
		if len(batch) == 0 {
			break
		}

		if opts.MaxMessages > 0 && messagesDone+len(batch) > opts.MaxMessages {
			batch = batch[:opts.MaxMessages-messagesDone]
		}

		if err := e.upsertMessages(batch); err != nil {
			e.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
			e.publishError(opts, fmt.Sprintf("message store write failed: %v", err))
			return
		}

		if opts.FetchBodies {
			e.fetchBodies(ctx, opts, callOpts, batch)
		}

		pagesDone++
		messagesDone += len(batch)
		lastUID = batch[len(batch)-1].UID

		// the manifest advances only after the batch write succeeded, so a
		// crash mid-page re-runs an idempotent page rather than skipping one
		if err := e.writeManifest(opts, pagesDone, messagesDone, lastUID, false); err != nil {
			e.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
			e.publishError(opts, fmt.Sprintf("manifest write failed: %v", err))
			return
		}

		e.env.Publish(platform.Event{Type: platform.EventSyncProgress, Payload: SyncProgressEvent{
			Account:      opts.Account,
			Folder:       opts.Folder,
			Status:       "syncing",
			PagesDone:    pagesDone,
			MessagesDone: messagesDone,
			LastUID:      lastUID,
		}})

		if opts.MaxMessages > 0 && messagesDone >= opts.MaxMessages {
			break
		}
		if len(batch) < opts.PageSize {
			break
		}
	}

	now := time.Now()
	if err := e.writeManifest(opts, pagesDone, messagesDone, lastUID, true); err != nil {
		e.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
	}

	e.env.Publish(platform.Event{Type: platform.EventSyncComplete, Payload: SyncCompleteEvent{
		Account:      opts.Account,
		Folder:       opts.Folder,
		MessagesDone: messagesDone,
		LastUID:      lastUID,
		LastSyncAt:   now,
	}})
	e.logService.LogInfo(opts.Account, models.LogModuleSync, "complete", "Sync completed", map[string]interface{}{
		"folder": opts.Folder, "pages": pagesDone, "messages": messagesDone,
	})
	e.log.WithFields(logrus.Fields{
		"account": opts.Account, "folder": opts.Folder, "pages": pagesDone, "messages": messagesDone,
	}).Info("sync completed")
}

// cancelled checks the cooperative flag and the caller's context at a page
// boundary
func (e *SyncEngine) cancelled(ctx context.Context, key string) bool {
	if ctx.Err() != nil {
		return true
	}
	_, ok := e.cancelFlags.Load(key)
	return ok
}

func (e *SyncEngine) publishError(opts SyncOptions, msg string) {
	e.env.Publish(platform.Event{Type: platform.EventSyncError, Payload: SyncErrorEvent{
		Account: opts.Account,
		Folder:  opts.Folder,
		Error:   msg,
	}})
}

// syncFolders fetches and upserts the folder list
func (e *SyncEngine) syncFolders(ctx context.Context, account string, callOpts platform.CallOptions) error {
	data, err := e.env.RemoteCall(ctx, platform.ActionFolders, nil, callOpts)
	if err != nil {
		return err
	}

	records, err := extractRecordList(data)
	if err != nil {
		return err
	}

	for _, raw := range records {
		folder := normalizeFolder(account, raw)
		if folder.Path == "" {
			continue
		}
		err := e.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}, {Name: "path"}},
			UpdateAll: true,
		}).Create(&folder).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// fetchPage fetches and normalizes one page of messages
func (e *SyncEngine) fetchPage(ctx context.Context, opts SyncOptions, callOpts platform.CallOptions, page int) ([]models.Message, error) {
	data, err := e.env.RemoteCall(ctx, platform.ActionMessageList, map[string]interface{}{
		"folder": opts.Folder,
		"page":   page,
		"limit":  opts.PageSize,
	}, callOpts)
	if err != nil {
		return nil, err
	}

	records, err := extractRecordList(data)
	if err != nil {
		return nil, err
	}

	batch := make([]models.Message, 0, len(records))
	for _, raw := range records {
		msg := normalizeMessage(opts.Account, opts.Folder, raw)
		if msg.UID == "" {
			e.log.WithField("folder", opts.Folder).Warn("skipping upstream record without id")
			continue
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

// upsertMessages writes one normalized batch; same (account, folder, uid)
// overwrites in place
func (e *SyncEngine) upsertMessages(batch []models.Message) error {
	if len(batch) == 0 {
		return nil
	}
	return e.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}, {Name: "folder"}, {Name: "message_uid"}},
		UpdateAll: true,
	}).Create(&batch).Error
}

// fetchBodies fetches message details for a page, tolerating per-message
// failures
func (e *SyncEngine) fetchBodies(ctx context.Context, opts SyncOptions, callOpts platform.CallOptions, batch []models.Message) {
	for i := range batch {
		msg := &batch[i]
		data, err := e.env.RemoteCall(ctx, platform.ActionMessage, map[string]interface{}{
			"id":     msg.UID,
			"folder": opts.Folder,
		}, callOpts)
		if err != nil {
			e.log.WithFields(logrus.Fields{"uid": msg.UID, "error": err}).Warn("body fetch failed")
			continue
		}

		var raw map[string]interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			e.log.WithFields(logrus.Fields{"uid": msg.UID, "error": err}).Warn("body decode failed")
			continue
		}

		body := normalizeMessageBody(opts.Account, opts.Folder, msg.UID, raw)
		err = e.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}, {Name: "folder"}, {Name: "message_uid"}},
			UpdateAll: true,
		}).Create(&body).Error
		if err != nil {
			e.log.WithFields(logrus.Fields{"uid": msg.UID, "error": err}).Warn("body store write failed")
			continue
		}

		e.db.Model(&models.Message{}).
			Where("account = ? AND folder = ? AND message_uid = ?", opts.Account, opts.Folder, msg.UID).
			Update("body_indexed", true)
	}
}

// writeManifest persists the per-(account, folder) progress record
func (e *SyncEngine) writeManifest(opts SyncOptions, pages, messages int, lastUID string, final bool) error {
	var manifest models.SyncManifest
	err := e.db.Where("account = ? AND folder = ?", opts.Account, opts.Folder).
		FirstOrInit(&manifest, models.SyncManifest{Account: opts.Account, Folder: opts.Folder}).Error
	if err != nil {
		return err
	}

	manifest.PagesFetched = pages
	manifest.MessagesFetched = messages
	if lastUID != "" {
		manifest.LastUID = lastUID
	}
	manifest.UpdatedAt = time.Now()
	if final {
		manifest.LastSyncAt = time.Now()
		if opts.FetchBodies {
			manifest.HasBodiesPass = true
		}
	}

	return e.db.Save(&manifest).Error
}
