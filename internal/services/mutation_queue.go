package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/platform"
	"gorm.io/gorm"
)

var (
	// ErrInvalidMutationType indicates an unrecognized mutation type
	ErrInvalidMutationType = errors.New("invalid mutation type")
)

// ProcessResult summarizes one queue processing pass
type ProcessResult struct {
	Skipped   bool // another pass was already running
	Processed int
	Failed    int
	Pending   int
}

// MutationQueue is the durable write-ahead queue of state-changing
// operations. The UI applies mutations optimistically and enqueues them
// here; a single-flight processor replays them against the remote API in
// FIFO order when connectivity allows. Conflicting mutations on the same
// target are not coalesced; both replay in order.
type MutationQueue struct {
	env        platform.Environment
	db         *gorm.DB
	logService *LogService
	log        *logrus.Logger
	policy     RetryPolicy
	holder     string

	processing sync.Mutex // single-flight guard

	mu       sync.Mutex
	callOpts platform.CallOptions
}

// NewMutationQueue creates a mutation queue bound to an environment
func NewMutationQueue(env platform.Environment, logService *LogService, log *logrus.Logger) *MutationQueue {
	return &MutationQueue{
		env:        env,
		db:         env.DB(),
		logService: logService,
		log:        log,
		policy:     mutationRetryPolicy,
		holder:     uuid.NewString(),
	}
}

// SetCallOptions stores the credentials used for replaying mutations. The
// collaborator owns token lifecycle; the queue just carries the latest.
func (q *MutationQueue) SetCallOptions(opts platform.CallOptions) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.callOpts = opts
}

func (q *MutationQueue) callOptions() platform.CallOptions {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.callOpts
}

// Enqueue appends a new pending mutation to the account's durable list and,
// when online, immediately attempts a processing pass. Offline enqueues rely
// on a later wake-up (reconnect callback or heartbeat).
func (q *MutationQueue) Enqueue(ctx context.Context, account string, mtype models.MutationType, payload models.MutationPayload) (*models.Mutation, error) {
	if !mtype.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMutationType, mtype)
	}

	var maxPosition int64
	q.db.Model(&models.Mutation{}).Where("account = ?", account).
		Select("COALESCE(MAX(position), 0)").Scan(&maxPosition)

	mutation := &models.Mutation{
		ID:       uuid.NewString(),
		Account:  account,
		Position: maxPosition + 1,
		Type:     mtype,
		Status:   models.MutationPending,
	}
	if err := mutation.SetPayload(payload); err != nil {
		return nil, err
	}

	if err := q.db.Create(mutation).Error; err != nil {
		q.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
		return nil, err
	}

	if q.env.Online() {
		q.Process(ctx, account)
	}

	return mutation, nil
}

// Process runs one single-flight pass over the account's queue. A second
// overlapping call returns immediately with Skipped set. The storage-level
// lease additionally keeps two contexts sharing one database from racing on
// the aggregate read-modify-write.
func (q *MutationQueue) Process(ctx context.Context, account string) (ProcessResult, error) {
	if !q.processing.TryLock() {
		return ProcessResult{Skipped: true}, nil
	}
	defer q.processing.Unlock()

	lockName := "mutation_queue_" + account
	acquired, err := acquireQueueLock(q.db, lockName, q.holder)
	if err != nil {
		q.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
		return ProcessResult{}, err
	}
	if !acquired {
		return ProcessResult{Skipped: true}, nil
	}
	defer releaseQueueLock(q.db, lockName, q.holder)

	var items []models.Mutation
	if err := q.db.Where("account = ?", account).Order("position ASC").Find(&items).Error; err != nil {
		q.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
		return ProcessResult{}, err
	}

	var result ProcessResult
	now := time.Now()

	for i := range items {
		item := &items[i]

		// cancellation is observed between items, never mid-call
		if ctx.Err() != nil {
			break
		}

		switch {
		case item.Status == models.MutationCompleted:
			continue
		case item.Status == models.MutationFailed && q.policy.Exhausted(item.RetryCount):
			continue
		case item.NextRetryAt != nil && item.NextRetryAt.After(now):
			continue
		}

		item.Status = models.MutationProcessing
		if err := q.db.Save(item).Error; err != nil {
			q.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
			continue
		}

		if err := q.execute(ctx, item); err != nil {
			item.RetryCount++
			item.LastError = err.Error()
			if q.policy.Exhausted(item.RetryCount) {
				item.Status = models.MutationFailed
				item.NextRetryAt = nil
				result.Failed++
				q.logService.LogWarn(account, models.LogModuleMutation, "exhausted", "Mutation failed terminally", map[string]interface{}{
					"id": item.ID, "type": item.Type, "error": err.Error(),
				})
			} else {
				item.Status = models.MutationPending
				retryAt := time.Now().Add(q.policy.Delay(item.RetryCount - 1))
				item.NextRetryAt = &retryAt
			}
		} else {
			item.Status = models.MutationCompleted
			item.NextRetryAt = nil
			item.LastError = ""
			result.Processed++
		}

		if err := q.db.Save(item).Error; err != nil {
			q.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
		}
		refreshQueueLock(q.db, lockName, q.holder)
	}

	// prune completed entries; terminally failed entries are retained so the
	// user can see and explicitly retry them
	if err := q.db.Where("account = ? AND status = ?", account, models.MutationCompleted).
		Delete(&models.Mutation{}).Error; err != nil {
		q.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
	}

	var pending int64
	q.db.Model(&models.Mutation{}).
		Where("account = ? AND status IN ?", account, []models.MutationStatus{models.MutationPending, models.MutationProcessing}).
		Count(&pending)
	result.Pending = int(pending)

	q.env.Publish(platform.Event{Type: platform.EventMutationQueueProcessed, Payload: MutationQueueProcessedEvent{
		Account:   account,
		Processed: result.Processed,
		Failed:    result.Failed,
		Pending:   result.Pending,
	}})

	if result.Processed > 0 || result.Failed > 0 {
		q.logService.LogInfo(account, models.LogModuleMutation, "process", "Mutation queue processed", map[string]interface{}{
			"processed": result.Processed, "failed": result.Failed, "pending": result.Pending,
		})
	}

	return result, nil
}

// execute replays one mutation against the remote API and, on success,
// applies the same change to the local cache (last writer wins; a later sync
// pass may overwrite it again)
func (q *MutationQueue) execute(ctx context.Context, m *models.Mutation) error {
	payload, err := m.DecodePayload()
	if err != nil {
		return fmt.Errorf("corrupt payload: %v", err)
	}

	opts := q.callOptions()

	switch m.Type {
	case models.MutationToggleRead:
		// the flag set is recomputed from the payload snapshot plus the
		// toggle direction, never from live UI state
		flags := toggleFlag(payload.Flags, models.FlagSeen, payload.IsUnread)
		return q.updateRemoteAndLocal(ctx, m.Account, payload, map[string]interface{}{
			"id": payload.MessageUID, "folder": payload.Folder, "flags": flags,
		}, flags, opts)

	case models.MutationToggleStar:
		flags := toggleFlag(payload.Flags, models.FlagFlagged, !payload.IsStarred)
		return q.updateRemoteAndLocal(ctx, m.Account, payload, map[string]interface{}{
			"id": payload.MessageUID, "folder": payload.Folder, "flags": flags,
		}, flags, opts)

	case models.MutationMove:
		_, err := q.env.RemoteCall(ctx, platform.ActionMessageUpdate, map[string]interface{}{
			"id": payload.MessageUID, "folder": payload.Target,
		}, opts)
		if err != nil {
			return err
		}
		q.db.Model(&models.Message{}).
			Where("account = ? AND folder = ? AND message_uid = ?", m.Account, payload.Folder, payload.MessageUID).
			Update("folder", payload.Target)
		return nil

	case models.MutationDelete:
		params := map[string]interface{}{"id": payload.MessageUID, "folder": payload.Folder}
		if payload.Permanent {
			params["permanent"] = true
		}
		if _, err := q.env.RemoteCall(ctx, platform.ActionMessageDelete, params, opts); err != nil {
			return err
		}
		q.db.Where("account = ? AND folder = ? AND message_uid = ?", m.Account, payload.Folder, payload.MessageUID).
			Delete(&models.Message{})
		q.db.Where("account = ? AND folder = ? AND message_uid = ?", m.Account, payload.Folder, payload.MessageUID).
			Delete(&models.MessageBody{})
		return nil

	case models.MutationLabel:
		_, err := q.env.RemoteCall(ctx, platform.ActionMessageUpdate, map[string]interface{}{
			"id": payload.MessageUID, "folder": payload.Folder, "labels": payload.Labels,
		}, opts)
		return err
	}

	return fmt.Errorf("%w: %s", ErrInvalidMutationType, m.Type)
}

// updateRemoteAndLocal pushes a flag update and mirrors it onto the cached
// message
func (q *MutationQueue) updateRemoteAndLocal(ctx context.Context, account string, payload models.MutationPayload, params map[string]interface{}, flags []string, opts platform.CallOptions) error {
	if _, err := q.env.RemoteCall(ctx, platform.ActionMessageUpdate, params, opts); err != nil {
		return err
	}

	var msg models.Message
	err := q.db.Where("account = ? AND folder = ? AND message_uid = ?", account, payload.Folder, payload.MessageUID).First(&msg).Error
	if err != nil {
		// local copy may not exist yet; the next sync will converge it
		return nil
	}
	msg.SetFlags(flags)
	msg.UpdatedAt = time.Now()
	q.db.Save(&msg)
	return nil
}

// toggleFlag returns the snapshot flag set with one flag added or removed
func toggleFlag(flags []string, flag string, enable bool) []string {
	out := make([]string, 0, len(flags)+1)
	for _, f := range flags {
		if f != flag {
			out = append(out, f)
		}
	}
	if enable {
		out = append(out, flag)
	}
	return out
}

// PendingCount returns the number of non-terminal queue entries
func (q *MutationQueue) PendingCount(account string) (int64, error) {
	var count int64
	err := q.db.Model(&models.Mutation{}).
		Where("account = ? AND status IN ?", account, []models.MutationStatus{models.MutationPending, models.MutationProcessing}).
		Count(&count).Error
	return count, err
}

// List returns the account's queue in replay order
func (q *MutationQueue) List(account string) ([]models.Mutation, error) {
	var items []models.Mutation
	err := q.db.Where("account = ?", account).Order("position ASC").Find(&items).Error
	return items, err
}

// RetryFailed makes terminally failed mutations immediately eligible again
// and re-triggers processing when online
func (q *MutationQueue) RetryFailed(ctx context.Context, account string) error {
	err := q.db.Model(&models.Mutation{}).
		Where("account = ? AND status = ?", account, models.MutationFailed).
		Updates(map[string]interface{}{
			"status":        models.MutationPending,
			"retry_count":   0,
			"next_retry_at": nil,
			"last_error":    "",
		}).Error
	if err != nil {
		q.env.Publish(platform.Event{Type: platform.EventDBError, Payload: classifyDBError(err)})
		return err
	}

	if q.env.Online() {
		q.Process(ctx, account)
	}
	return nil
}
