package services

import (
	"context"
	"testing"
	"time"

	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/platform"
)

// Work enqueued while offline flushes when connectivity returns and the
// reconnect wake-up fires.
func TestHeartbeatKickFlushesOfflineBacklog(t *testing.T) {
	db, cleanup := setupServicesTestDB(t)
	defer cleanup()

	env := newFakeEnv(db)
	env.setOnline(false)

	logService := NewLogService(db)
	mutations := NewMutationQueue(env, logService, testLogger())
	outbox := NewOutboxQueue(env, logService, testLogger())
	outbox.sendDelay = 0

	if _, err := mutations.Enqueue(context.Background(), testAccount, models.MutationToggleRead, models.MutationPayload{
		MessageUID: "msg-1", Folder: "INBOX",
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := outbox.QueueEmail(context.Background(), testAccount, testEmail("offline"), QueueEmailOptions{}); err != nil {
		t.Fatalf("queue email: %v", err)
	}
	if len(env.calls) != 0 {
		t.Fatal("no remote work should happen while offline")
	}

	h := NewHeartbeat(env, mutations, outbox, testLogger(), time.Hour)
	env.setOnline(true)
	h.Kick()

	if got := len(env.callsFor(platform.ActionMessageUpdate)); got != 1 {
		t.Fatalf("expected the queued mutation to replay, got %d calls", got)
	}
	if got := len(env.callsFor(platform.ActionEmails)); got != 1 {
		t.Fatalf("expected the queued email to submit, got %d calls", got)
	}

	pending, _ := mutations.PendingCount(testAccount)
	if pending != 0 {
		t.Fatalf("mutation backlog not drained, %d pending", pending)
	}
}

func TestHeartbeatSkipsWhileOffline(t *testing.T) {
	db, cleanup := setupServicesTestDB(t)
	defer cleanup()

	env := newFakeEnv(db)
	env.setOnline(false)

	logService := NewLogService(db)
	mutations := NewMutationQueue(env, logService, testLogger())
	outbox := NewOutboxQueue(env, logService, testLogger())

	if _, err := mutations.Enqueue(context.Background(), testAccount, models.MutationToggleRead, models.MutationPayload{
		MessageUID: "msg-1", Folder: "INBOX",
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	h := NewHeartbeat(env, mutations, outbox, testLogger(), time.Hour)
	h.Kick()

	if len(env.calls) != 0 {
		t.Fatal("an offline heartbeat pass must not touch the remote")
	}
}

func TestHeartbeatStartRegistersReconnectWakeup(t *testing.T) {
	db, cleanup := setupServicesTestDB(t)
	defer cleanup()

	env := newFakeEnv(db)
	logService := NewLogService(db)
	mutations := NewMutationQueue(env, logService, testLogger())
	outbox := NewOutboxQueue(env, logService, testLogger())

	h := NewHeartbeat(env, mutations, outbox, testLogger(), time.Hour)
	h.Start()
	defer h.Stop()

	env.mu.Lock()
	registered := len(env.reconnect)
	env.mu.Unlock()
	if registered != 1 {
		t.Fatalf("expected one reconnect callback, got %d", registered)
	}

	// double start is a no-op
	h.Start()
	env.mu.Lock()
	registered = len(env.reconnect)
	env.mu.Unlock()
	if registered != 1 {
		t.Fatalf("double start must not re-register, got %d", registered)
	}
}
