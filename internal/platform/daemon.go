package platform

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EventJournal records events somewhere durable. The daemon backend uses it
// because no UI is attached to observe the bus.
type EventJournal interface {
	Record(evt Event)
}

// DaemonEnv is the background-capable backend for headless operation
// (service mode). Remote calls behave exactly like the foreground backend;
// published events additionally go to a durable journal so a UI attaching
// later can catch up.
type DaemonEnv struct {
	*ForegroundEnv
	journal EventJournal
}

// NewDaemonEnv creates the daemon backend
func NewDaemonEnv(db *gorm.DB, bus *Bus, log *logrus.Logger, journal EventJournal) *DaemonEnv {
	return &DaemonEnv{
		ForegroundEnv: NewForegroundEnv(db, bus, log),
		journal:       journal,
	}
}

// Publish emits the event on the bus and journals it
func (e *DaemonEnv) Publish(evt Event) {
	e.ForegroundEnv.Publish(evt)
	if e.journal != nil {
		e.journal.Record(evt)
	}
}
