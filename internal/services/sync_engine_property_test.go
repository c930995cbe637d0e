package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/platform"
)

// pagedServer plays a remote API holding total messages and serving them in
// pages through the fake environment handler
func pagedServer(total int) func(action platform.Action, params map[string]interface{}) (json.RawMessage, error) {
	return func(action platform.Action, params map[string]interface{}) (json.RawMessage, error) {
		switch action {
		case platform.ActionFolders:
			return json.RawMessage(`[{"path":"INBOX","name":"INBOX"}]`), nil
		case platform.ActionMessageList:
			page := int(params["page"].(int))
			limit := int(params["limit"].(int))
			start := (page - 1) * limit
			end := start + limit
			if start > total {
				start = total
			}
			if end > total {
				end = total
			}
			records := make([]map[string]interface{}, 0, end-start)
			for i := start; i < end; i++ {
				records = append(records, map[string]interface{}{
					"id":      fmt.Sprintf("msg-%04d", i),
					"subject": fmt.Sprintf("Message %d", i),
					"from":    "sender@example.com",
					"date":    1700000000000 + int64(i),
				})
			}
			data, _ := json.Marshal(records)
			return data, nil
		}
		return json.RawMessage(`{}`), nil
	}
}

// Full pagination: syncing a folder of N messages with page size P stores
// exactly N unique messages and leaves the manifest counting N messages over
// ceil(N/P) pages.
func TestProperty_SyncPagination(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("stores_all_pages_and_manifest_counts_match", prop.ForAll(
		func(total, pageSize int) bool {
			db, cleanup := setupServicesTestDB(t)
			defer cleanup()

			env := newFakeEnv(db)
			env.handler = pagedServer(total)
			engine := NewSyncEngine(env, NewLogService(db), testLogger())

			engine.StartSync(context.Background(), SyncOptions{
				Account:   "me@example.com",
				Folder:    "INBOX",
				AuthToken: "token",
				PageSize:  pageSize,
			})

			var count int64
			db.Model(&models.Message{}).Where("account = ? AND folder = ?", "me@example.com", "INBOX").Count(&count)
			if int(count) != total {
				return false
			}

			var manifest models.SyncManifest
			if err := db.Where("account = ? AND folder = ?", "me@example.com", "INBOX").First(&manifest).Error; err != nil {
				return false
			}
			wantPages := 0
			if total > 0 {
				wantPages = (total + pageSize - 1) / pageSize
			}
			if manifest.MessagesFetched != total || manifest.PagesFetched != wantPages {
				return false
			}

			return len(env.eventsOf(platform.EventSyncComplete)) == 1 &&
				len(env.eventsOf(platform.EventSyncError)) == 0
		},
		gen.IntRange(0, 120),
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}

// Idempotent re-sync: running the same sync twice neither duplicates
// messages nor accumulates manifest counters.
func TestProperty_SyncIdempotentRerun(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("second_run_overwrites_in_place", prop.ForAll(
		func(total int) bool {
			db, cleanup := setupServicesTestDB(t)
			defer cleanup()

			env := newFakeEnv(db)
			env.handler = pagedServer(total)
			engine := NewSyncEngine(env, NewLogService(db), testLogger())

			opts := SyncOptions{Account: "me@example.com", Folder: "INBOX", AuthToken: "token", PageSize: 10}
			engine.StartSync(context.Background(), opts)
			engine.StartSync(context.Background(), opts)

			var count int64
			db.Model(&models.Message{}).Where("account = ? AND folder = ?", "me@example.com", "INBOX").Count(&count)
			if int(count) != total {
				return false
			}

			var manifest models.SyncManifest
			if err := db.Where("account = ? AND folder = ?", "me@example.com", "INBOX").First(&manifest).Error; err != nil {
				return false
			}
			return manifest.MessagesFetched == total
		},
		gen.IntRange(1, 60),
	))

	properties.TestingRun(t)
}

func TestSyncCancelBetweenPages(t *testing.T) {
	db, cleanup := setupServicesTestDB(t)
	defer cleanup()

	env := newFakeEnv(db)
	engine := NewSyncEngine(env, NewLogService(db), testLogger())

	serve := pagedServer(50)
	env.handler = func(action platform.Action, params map[string]interface{}) (json.RawMessage, error) {
		data, err := serve(action, params)
		if action == platform.ActionMessageList {
			// request cancellation while the first page is in flight; the
			// flag is observed at the next page boundary
			engine.CancelSync("me@example.com", "INBOX")
		}
		return data, err
	}

	engine.StartSync(context.Background(), SyncOptions{
		Account:   "me@example.com",
		Folder:    "INBOX",
		AuthToken: "token",
		PageSize:  10,
	})

	if got := len(env.eventsOf(platform.EventSyncCancelled)); got != 1 {
		t.Fatalf("expected exactly one cancelled event, got %d", got)
	}
	if got := len(env.eventsOf(platform.EventSyncComplete)); got != 0 {
		t.Fatalf("expected no complete event after cancellation, got %d", got)
	}

	// the page already written stays durably stored
	var count int64
	db.Model(&models.Message{}).Count(&count)
	if count != 10 {
		t.Fatalf("expected the first page to remain stored, got %d messages", count)
	}
}

func TestSyncMissingAuthToken(t *testing.T) {
	db, cleanup := setupServicesTestDB(t)
	defer cleanup()

	env := newFakeEnv(db)
	engine := NewSyncEngine(env, NewLogService(db), testLogger())

	engine.StartSync(context.Background(), SyncOptions{Account: "me@example.com", Folder: "INBOX"})

	errs := env.eventsOf(platform.EventSyncError)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one sync error event, got %d", len(errs))
	}
	payload, ok := errs[0].Payload.(SyncErrorEvent)
	if !ok || payload.Error != ErrAuthTokenRequired.Error() {
		t.Fatalf("unexpected error payload: %#v", errs[0].Payload)
	}
	if len(env.calls) != 0 {
		t.Fatalf("expected no remote calls without credentials, got %d", len(env.calls))
	}
}

func TestSyncHardFetchFailureAborts(t *testing.T) {
	db, cleanup := setupServicesTestDB(t)
	defer cleanup()

	env := newFakeEnv(db)
	serve := pagedServer(50)
	env.handler = func(action platform.Action, params map[string]interface{}) (json.RawMessage, error) {
		if action == platform.ActionMessageList {
			if page := int(params["page"].(int)); page >= 2 {
				return nil, errors.New("upstream 503")
			}
		}
		return serve(action, params)
	}
	engine := NewSyncEngine(env, NewLogService(db), testLogger())

	engine.StartSync(context.Background(), SyncOptions{
		Account:   "me@example.com",
		Folder:    "INBOX",
		AuthToken: "token",
		PageSize:  10,
	})

	if got := len(env.eventsOf(platform.EventSyncError)); got != 1 {
		t.Fatalf("expected exactly one sync error event, got %d", got)
	}
	if got := len(env.eventsOf(platform.EventSyncComplete)); got != 0 {
		t.Fatalf("expected no complete event after a hard failure, got %d", got)
	}

	// the manifest reflects the last durably written page, so a later run
	// can resume from known-good state
	var manifest models.SyncManifest
	if err := db.Where("account = ? AND folder = ?", "me@example.com", "INBOX").First(&manifest).Error; err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	if manifest.PagesFetched != 1 || manifest.MessagesFetched != 10 {
		t.Fatalf("manifest should count the completed page, got pages=%d messages=%d",
			manifest.PagesFetched, manifest.MessagesFetched)
	}
}

func TestSyncOverlappingRunRejected(t *testing.T) {
	db, cleanup := setupServicesTestDB(t)
	defer cleanup()

	env := newFakeEnv(db)
	engine := NewSyncEngine(env, NewLogService(db), testLogger())

	serve := pagedServer(30)
	env.handler = func(action platform.Action, params map[string]interface{}) (json.RawMessage, error) {
		if action == platform.ActionMessageList {
			// a second start for the same (account, folder) while the first
			// is inside a page fetch must be rejected with an error event
			engine.StartSync(context.Background(), SyncOptions{
				Account:   "me@example.com",
				Folder:    "INBOX",
				AuthToken: "token",
				PageSize:  10,
			})
		}
		return serve(action, params)
	}

	engine.StartSync(context.Background(), SyncOptions{
		Account:   "me@example.com",
		Folder:    "INBOX",
		AuthToken: "token",
		PageSize:  10,
	})

	found := false
	for _, evt := range env.eventsOf(platform.EventSyncError) {
		if payload, ok := evt.Payload.(SyncErrorEvent); ok && payload.Error == ErrSyncRunning.Error() {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an overlapping start to publish a sync-running error event")
	}
	if got := len(env.eventsOf(platform.EventSyncComplete)); got != 1 {
		t.Fatalf("expected the original run to complete exactly once, got %d", got)
	}
}

func TestSyncMaxMessagesTruncatesFinalPage(t *testing.T) {
	db, cleanup := setupServicesTestDB(t)
	defer cleanup()

	env := newFakeEnv(db)
	env.handler = pagedServer(100)
	engine := NewSyncEngine(env, NewLogService(db), testLogger())

	engine.StartSync(context.Background(), SyncOptions{
		Account:     "me@example.com",
		Folder:      "INBOX",
		AuthToken:   "token",
		PageSize:    30,
		MaxMessages: 45,
	})

	var count int64
	db.Model(&models.Message{}).Count(&count)
	if count != 45 {
		t.Fatalf("expected the cap to truncate at 45 messages, got %d", count)
	}
	if got := len(env.eventsOf(platform.EventSyncComplete)); got != 1 {
		t.Fatalf("expected one complete event, got %d", got)
	}
}
