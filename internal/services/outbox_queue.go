package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/platform"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrOutboxItemNotFound indicates the outbox item does not exist
	ErrOutboxItemNotFound = errors.New("outbox item not found")
	// ErrMayStillBeSent indicates a server-side scheduled send could not be
	// cancelled; the local record is preserved and the email may still go out
	ErrMayStillBeSent = errors.New("cancel failed on server, email may still be sent")
)

// interSendDelay is the courtesy pause between consecutive submissions
// within one pass
const interSendDelay = 500 * time.Millisecond

// OutboxQueue is the durable send queue for outgoing mail, including
// time-scheduled sends. A scheduled item the server already accepted
// (ServerID set) is marked sent locally once its time elapses, never
// resubmitted: at most one submission per server-accepted scheduled send.
type OutboxQueue struct {
	env        platform.Environment
	db         *gorm.DB
	logService *LogService
	log        *logrus.Logger
	policy     RetryPolicy
	holder     string
	sendDelay  time.Duration

	processing sync.Mutex // single-flight guard

	mu       sync.Mutex
	callOpts platform.CallOptions
}

// NewOutboxQueue creates an outbox queue bound to an environment
func NewOutboxQueue(env platform.Environment, logService *LogService, log *logrus.Logger) *OutboxQueue {
	return &OutboxQueue{
		env:        env,
		db:         env.DB(),
		logService: logService,
		log:        log,
		policy:     outboxRetryPolicy,
		holder:     uuid.NewString(),
		sendDelay:  interSendDelay,
	}
}

// SetCallOptions stores the credentials used for submissions
func (q *OutboxQueue) SetCallOptions(opts platform.CallOptions) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.callOpts = opts
}

func (q *OutboxQueue) callOptions() platform.CallOptions {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.callOpts
}

// QueueEmailOptions carries scheduling settings for QueueEmail
type QueueEmailOptions struct {
	SendAt   *time.Time // future time makes the item scheduled
	ServerID string     // set when the server already accepted the scheduled send
}

// QueueEmail creates a durable outbox item. Status is scheduled when SendAt
// lies in the future, pending otherwise. Processing is triggered immediately
// only when the item is eligible now and connectivity is up.
func (q *OutboxQueue) QueueEmail(ctx context.Context, account string, email models.EmailData, opts QueueEmailOptions) (*models.OutboxItem, error) {
	item := &models.OutboxItem{
		ID:       uuid.NewString(),
		Account:  account,
		Status:   models.OutboxPending,
		SendAt:   opts.SendAt,
		ServerID: opts.ServerID,
	}
	if opts.SendAt != nil && opts.SendAt.After(time.Now()) {
		item.Status = models.OutboxScheduled
	}
	if err := item.SetEmailData(email); err != nil {
		return nil, err
	}

	if err := q.db.Create(item).Error; err != nil {
		q.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
		return nil, err
	}

	if item.Status == models.OutboxPending && q.env.Online() {
		q.ProcessOutbox(ctx, account)
	}

	return item, nil
}

// eligibleAt returns the earliest time the item may be processed
func eligibleAt(item *models.OutboxItem) time.Time {
	switch item.Status {
	case models.OutboxScheduled:
		if item.SendAt != nil {
			return *item.SendAt
		}
		return item.CreatedAt
	default:
		if item.NextRetryAt != nil {
			return *item.NextRetryAt
		}
		return item.CreatedAt
	}
}

// GetPendingOutbox selects the items due for processing: pending with
// elapsed backoff, or scheduled with elapsed SendAt. Sorted by earliest
// eligible timestamp; this is the processing order, not creation order.
func (q *OutboxQueue) GetPendingOutbox(account string) ([]models.OutboxItem, error) {
	var items []models.OutboxItem
	err := q.db.Where("account = ? AND status IN ?", account,
		[]models.OutboxStatus{models.OutboxPending, models.OutboxScheduled}).Find(&items).Error
	if err != nil {
		return nil, err
	}

	now := time.Now()
	eligible := items[:0]
	for i := range items {
		if !eligibleAt(&items[i]).After(now) {
			eligible = append(eligible, items[i])
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligibleAt(&eligible[i]).Before(eligibleAt(&eligible[j]))
	})
	return eligible, nil
}

// ProcessOutbox runs one single-flight pass over the account's eligible
// items. An overlapping call returns immediately with Skipped set.
func (q *OutboxQueue) ProcessOutbox(ctx context.Context, account string) (ProcessResult, error) {
	if !q.processing.TryLock() {
		return ProcessResult{Skipped: true}, nil
	}
	defer q.processing.Unlock()

	lockName := "outbox_" + account
	acquired, err := acquireQueueLock(q.db, lockName, q.holder)
	if err != nil {
		q.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
		return ProcessResult{}, err
	}
	if !acquired {
		return ProcessResult{Skipped: true}, nil
	}
	defer releaseQueueLock(q.db, lockName, q.holder)

	items, err := q.GetPendingOutbox(account)
	if err != nil {
		q.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
		return ProcessResult{}, err
	}

	var result ProcessResult
	for i := range items {
		item := &items[i]

		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			// courtesy pacing between consecutive sends
			time.Sleep(q.sendDelay)
		}

		if item.Status == models.OutboxScheduled && item.ServerID != "" {
			// the server already accepted this scheduled send; never resubmit
			item.Status = models.OutboxSent
			item.UpdatedAt = time.Now()
			if err := q.db.Save(item).Error; err != nil {
				q.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
				continue
			}
			q.notifySent(item)
			result.Processed++
			continue
		}

		item.Status = models.OutboxSending
		item.UpdatedAt = time.Now()
		if err := q.db.Save(item).Error; err != nil {
			q.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
			continue
		}

		if err := q.submit(ctx, item); err != nil {
			item.RetryCount++
			item.LastError = err.Error()
			if q.policy.Exhausted(item.RetryCount) {
				item.Status = models.OutboxFailed
				item.NextRetryAt = nil
				result.Failed++
				q.logService.LogWarn(account, models.LogModuleOutbox, "exhausted", "Outbox item failed terminally", map[string]interface{}{
					"id": item.ID, "error": err.Error(),
				})
			} else {
				item.Status = models.OutboxPending
				retryAt := time.Now().Add(q.policy.Delay(item.RetryCount - 1))
				item.NextRetryAt = &retryAt
			}
		} else {
			// the sent-copy write is fallible on its own; a failure there
			// never rolls back the send
			q.writeSentCopy(item)
			item.Status = models.OutboxSent
			item.NextRetryAt = nil
			item.LastError = ""
			result.Processed++
		}
		item.UpdatedAt = time.Now()

		if err := q.db.Save(item).Error; err != nil {
			q.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
		}
		if item.Status == models.OutboxSent {
			q.notifySent(item)
		}
		refreshQueueLock(q.db, lockName, q.holder)
	}

	var pending int64
	q.db.Model(&models.OutboxItem{}).
		Where("account = ? AND status IN ?", account,
			[]models.OutboxStatus{models.OutboxPending, models.OutboxScheduled, models.OutboxSending}).
		Count(&pending)
	result.Pending = int(pending)

	if result.Processed > 0 || result.Failed > 0 {
		q.logService.LogInfo(account, models.LogModuleOutbox, "process", "Outbox processed", map[string]interface{}{
			"processed": result.Processed, "failed": result.Failed, "pending": result.Pending,
		})
	}

	return result, nil
}

// submit performs the remote send and records a returned server id
func (q *OutboxQueue) submit(ctx context.Context, item *models.OutboxItem) error {
	email, err := item.DecodeEmailData()
	if err != nil {
		return fmt.Errorf("corrupt email data: %v", err)
	}

	params := map[string]interface{}{
		"to":      email.To,
		"subject": email.Subject,
	}
	if email.From != "" {
		params["from"] = email.From
	}
	if len(email.Cc) > 0 {
		params["cc"] = email.Cc
	}
	if len(email.Bcc) > 0 {
		params["bcc"] = email.Bcc
	}
	if email.Body != "" {
		params["text"] = email.Body
	}
	if email.HTMLBody != "" {
		params["html"] = email.HTMLBody
	}
	if item.SendAt != nil {
		params["date"] = item.SendAt.Format(time.RFC3339)
	}

	data, err := q.env.RemoteCall(ctx, platform.ActionEmails, params, q.callOptions())
	if err != nil {
		return err
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(data, &resp); err == nil {
		if id := stringField(resp, "id", "_id", "messageId"); id != "" {
			item.ServerID = id
		}
	}
	return nil
}

// writeSentCopy stores a local copy of the sent message in the Sent folder
func (q *OutboxQueue) writeSentCopy(item *models.OutboxItem) {
	email, err := item.DecodeEmailData()
	if err != nil {
		q.log.WithFields(logrus.Fields{"id": item.ID, "error": err}).Warn("sent-copy skipped, corrupt email data")
		return
	}

	msg := models.Message{
		Account:   item.Account,
		Folder:    models.FolderSent,
		UID:       "outbox-" + item.ID,
		DateMs:    time.Now().UnixMilli(),
		FromAddr:  email.From,
		Subject:   email.Subject,
		Snippet:   snippetOf(email),
		UpdatedAt: time.Now(),
	}
	msg.SetFlags([]string{models.FlagSeen})
	if item.ServerID != "" {
		msg.UID = item.ServerID
	}

	err = q.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}, {Name: "folder"}, {Name: "message_uid"}},
		UpdateAll: true,
	}).Create(&msg).Error
	if err != nil {
		// the send already happened; losing the local copy is logged, not fatal
		q.log.WithFields(logrus.Fields{"id": item.ID, "error": err}).Warn("sent-copy write failed")
		q.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
	}
}

func snippetOf(email models.EmailData) string {
	s := email.Body
	if s == "" {
		s = email.HTMLBody
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func (q *OutboxQueue) notifySent(item *models.OutboxItem) {
	subject := ""
	if email, err := item.DecodeEmailData(); err == nil {
		subject = email.Subject
	}
	q.env.Publish(platform.Event{Type: platform.EventOutboxSent, Payload: OutboxSentEvent{
		ID:      item.ID,
		Subject: subject,
	}})
}

// CancelScheduledEmail cancels a scheduled send. When the server already
// accepted the send, the remote cancel must succeed before the local record
// is deleted; otherwise the record is preserved and ErrMayStillBeSent is
// returned. The system never claims a cancellation it cannot guarantee.
func (q *OutboxQueue) CancelScheduledEmail(ctx context.Context, id string) error {
	var item models.OutboxItem
	if err := q.db.Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOutboxItemNotFound
		}
		return err
	}

	if item.ServerID != "" {
		_, err := q.env.RemoteCall(ctx, platform.ActionEmailCancel, map[string]interface{}{
			"id": item.ServerID,
		}, q.callOptions())
		if err != nil {
			q.logService.LogWarn(item.Account, models.LogModuleOutbox, "cancel", "Remote cancel failed", map[string]interface{}{
				"id": item.ID, "server_id": item.ServerID, "error": err.Error(),
			})
			return fmt.Errorf("%w: %v", ErrMayStillBeSent, err)
		}
	}

	return q.db.Delete(&item).Error
}

// List returns the account's outbox, newest first
func (q *OutboxQueue) List(account string) ([]models.OutboxItem, error) {
	var items []models.OutboxItem
	err := q.db.Where("account = ?", account).Order("created_at DESC").Find(&items).Error
	return items, err
}

// RetryOutboxItem makes one failed item immediately eligible and re-triggers
// processing when online
func (q *OutboxQueue) RetryOutboxItem(ctx context.Context, id string) error {
	var item models.OutboxItem
	if err := q.db.Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOutboxItemNotFound
		}
		return err
	}

	err := q.db.Model(&item).Updates(map[string]interface{}{
		"status":        models.OutboxPending,
		"retry_count":   0,
		"next_retry_at": nil,
		"last_error":    "",
	}).Error
	if err != nil {
		return err
	}

	if q.env.Online() {
		q.ProcessOutbox(ctx, item.Account)
	}
	return nil
}

// RetryAllFailed resets every terminally failed item for the account
func (q *OutboxQueue) RetryAllFailed(ctx context.Context, account string) error {
	err := q.db.Model(&models.OutboxItem{}).
		Where("account = ? AND status = ?", account, models.OutboxFailed).
		Updates(map[string]interface{}{
			"status":        models.OutboxPending,
			"retry_count":   0,
			"next_retry_at": nil,
			"last_error":    "",
		}).Error
	if err != nil {
		q.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
		return err
	}

	if q.env.Online() {
		q.ProcessOutbox(ctx, account)
	}
	return nil
}
