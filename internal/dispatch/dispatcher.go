package dispatch

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/config"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/platform"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/services"
	"gorm.io/gorm"
)

// Command type values accepted from collaborators
const (
	CommandStartSync  = "startSync"
	CommandCancelSync = "cancelSync"
	CommandSyncStatus = "syncStatus"
)

// commandAllowlist is the full set of recognized command types
var commandAllowlist = map[string]struct{}{
	CommandStartSync:  {},
	CommandCancelSync: {},
	CommandSyncStatus: {},
}

// eventAllowlist is the full set of event types forwarded across the
// backend boundary
var eventAllowlist = map[string]struct{}{
	platform.EventSyncProgress:           {},
	platform.EventSyncComplete:           {},
	platform.EventSyncCancelled:          {},
	platform.EventSyncError:              {},
	platform.EventMutationQueueProcessed: {},
	platform.EventDBError:                {},
	platform.EventOutboxSent:             {},
}

// Command is one envelope crossing the boundary into the engines
type Command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StartSyncPayload is the payload of a startSync command
type StartSyncPayload struct {
	Account     string `json:"accountId"`
	Folder      string `json:"folderId"`
	FetchBodies bool   `json:"fetchBodies"`
	APIBase     string `json:"apiBase,omitempty"`
	AuthToken   string `json:"authToken"`
	PageSize    int    `json:"pageSize,omitempty"`
	MaxMessages int    `json:"maxMessages,omitempty"`
}

// TargetPayload is the payload of cancelSync and syncStatus commands
type TargetPayload struct {
	Account string `json:"accountId"`
	Folder  string `json:"folderId"`
}

// Dispatcher presents one abstract command surface over whichever concrete
// Environment backend the platform supports. Every inbound payload is
// checked against an allowlist and a minimal shape check; anything else is
// dropped with a logged warning and never surfaced to the user. The backend
// is selected once at initialization and not expected to change mid-session.
type Dispatcher struct {
	env        platform.Environment
	bus        *platform.Bus
	engine     *services.SyncEngine
	mutations  *services.MutationQueue
	outbox     *services.OutboxQueue
	logService *services.LogService
	log        *logrus.Logger
	setOnline  func(bool)
	caps       platform.Capabilities
	apiBase    string
}

// New selects the backend from the platform capability signal and wires the
// three engines onto it
func New(cfg *config.Config, db *gorm.DB, bus *platform.Bus, log *logrus.Logger) *Dispatcher {
	logService := services.NewLogServiceWithLevel(db, cfg.LogLevel)
	caps := platform.DetectCapabilities()

	var env platform.Environment
	var setOnline func(bool)
	if caps.Background {
		daemon := platform.NewDaemonEnv(db, bus, log, logService)
		env = daemon
		setOnline = daemon.SetOnline
		log.Info("dispatcher using background-capable backend")
	} else {
		fg := platform.NewForegroundEnv(db, bus, log)
		env = fg
		setOnline = fg.SetOnline
		log.Info("dispatcher using foreground backend")
	}

	return &Dispatcher{
		env:        env,
		bus:        bus,
		engine:     services.NewSyncEngine(env, logService, log),
		mutations:  services.NewMutationQueue(env, logService, log),
		outbox:     services.NewOutboxQueue(env, logService, log),
		logService: logService,
		log:        log,
		setOnline:  setOnline,
		caps:       caps,
		apiBase:    cfg.APIBase,
	}
}

// Env returns the active backend
func (d *Dispatcher) Env() platform.Environment { return d.env }

// Bus returns the event bus
func (d *Dispatcher) Bus() *platform.Bus { return d.bus }

// Engine returns the sync engine
func (d *Dispatcher) Engine() *services.SyncEngine { return d.engine }

// Mutations returns the mutation queue
func (d *Dispatcher) Mutations() *services.MutationQueue { return d.mutations }

// Outbox returns the outbox queue
func (d *Dispatcher) Outbox() *services.OutboxQueue { return d.outbox }

// Logs returns the activity log service
func (d *Dispatcher) Logs() *services.LogService { return d.logService }

// SetOnline feeds a connectivity transition into the active backend
func (d *Dispatcher) SetOnline(online bool) { d.setOnline(online) }

// Dispatch validates and routes one raw command. The return value reports
// whether the command was recognized; malformed or unknown commands are
// dropped with a warning, never an error.
func (d *Dispatcher) Dispatch(raw []byte) bool {
	var shape map[string]interface{}
	if err := json.Unmarshal(raw, &shape); err != nil {
		d.log.WithField("error", err).Warn("dropping malformed command")
		return false
	}
	typ, ok := shape["type"].(string)
	if !ok || typ == "" {
		d.log.Warn("dropping command without string type")
		return false
	}
	if _, ok := commandAllowlist[typ]; !ok {
		d.log.WithField("type", typ).Warn("dropping unrecognized command")
		return false
	}

	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.log.WithField("error", err).Warn("dropping malformed command")
		return false
	}

	switch cmd.Type {
	case CommandStartSync:
		var p StartSyncPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			d.log.WithField("error", err).Warn("dropping startSync with malformed payload")
			return false
		}
		if p.APIBase == "" {
			p.APIBase = d.apiBase
		}
		// the freshest credentials also serve the queues' replay passes
		opts := platform.CallOptions{APIBase: p.APIBase, AuthToken: p.AuthToken}
		d.mutations.SetCallOptions(opts)
		d.outbox.SetCallOptions(opts)

		go d.engine.StartSync(context.Background(), services.SyncOptions{
			Account:     p.Account,
			Folder:      p.Folder,
			FetchBodies: p.FetchBodies,
			APIBase:     p.APIBase,
			AuthToken:   p.AuthToken,
			PageSize:    p.PageSize,
			MaxMessages: p.MaxMessages,
		})
		return true

	case CommandCancelSync:
		var p TargetPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			d.log.WithField("error", err).Warn("dropping cancelSync with malformed payload")
			return false
		}
		d.engine.CancelSync(p.Account, p.Folder)
		return true

	case CommandSyncStatus:
		var p TargetPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			d.log.WithField("error", err).Warn("dropping syncStatus with malformed payload")
			return false
		}
		d.engine.GetSyncStatus(p.Account, p.Folder)
		return true
	}

	return false
}

// HandleInboundEvent validates one raw event arriving from the backend
// boundary and republishes it on the bus. Unrecognized or malformed events
// are dropped with a warning.
func (d *Dispatcher) HandleInboundEvent(raw []byte) bool {
	var shape map[string]interface{}
	if err := json.Unmarshal(raw, &shape); err != nil {
		d.log.WithField("error", err).Warn("dropping malformed event")
		return false
	}
	typ, ok := shape["type"].(string)
	if !ok || typ == "" {
		d.log.Warn("dropping event without string type")
		return false
	}
	if _, ok := eventAllowlist[typ]; !ok {
		d.log.WithField("type", typ).Warn("dropping unrecognized event")
		return false
	}

	d.bus.Publish(platform.Event{Type: typ, Payload: shape["payload"]})
	return true
}
