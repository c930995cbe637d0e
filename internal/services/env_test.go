package services

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/platform"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordedCall is one RemoteCall observed by the fake environment
type recordedCall struct {
	Action platform.Action
	Params map[string]interface{}
	Opts   platform.CallOptions
}

// fakeEnv is an in-memory Environment backend for engine tests. The handler
// plays the remote API; calls and published events are recorded for
// assertions.
type fakeEnv struct {
	db      *gorm.DB
	handler func(action platform.Action, params map[string]interface{}) (json.RawMessage, error)

	mu        sync.Mutex
	online    bool
	calls     []recordedCall
	events    []platform.Event
	reconnect []func()
}

func newFakeEnv(db *gorm.DB) *fakeEnv {
	return &fakeEnv{db: db, online: true}
}

func (e *fakeEnv) RemoteCall(ctx context.Context, action platform.Action, params map[string]interface{}, opts platform.CallOptions) (json.RawMessage, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !e.Online() {
		return nil, platform.ErrOffline
	}
	e.mu.Lock()
	e.calls = append(e.calls, recordedCall{Action: action, Params: params, Opts: opts})
	handler := e.handler
	e.mu.Unlock()
	if handler == nil {
		return json.RawMessage(`{}`), nil
	}
	return handler(action, params)
}

func (e *fakeEnv) DB() *gorm.DB { return e.db }

func (e *fakeEnv) Publish(evt platform.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *fakeEnv) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

func (e *fakeEnv) OnReconnect(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reconnect = append(e.reconnect, fn)
}

func (e *fakeEnv) setOnline(online bool) {
	e.mu.Lock()
	e.online = online
	e.mu.Unlock()
}

func (e *fakeEnv) callsFor(action platform.Action) []recordedCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []recordedCall
	for _, c := range e.calls {
		if c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

func (e *fakeEnv) eventsOf(eventType string) []platform.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []platform.Event
	for _, evt := range e.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

func setupServicesTestDB(t *testing.T) (*gorm.DB, func()) {
	tmpFile, err := os.CreateTemp("", "services_test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpFile.Close()

	db, err := gorm.Open(sqlite.Open(tmpFile.Name()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to open database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Folder{},
		&models.Message{},
		&models.MessageBody{},
		&models.SyncManifest{},
		&models.Mutation{},
		&models.OutboxItem{},
		&models.QueueLock{},
		&models.Log{},
	)
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		os.Remove(tmpFile.Name())
	}

	return db, cleanup
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}
