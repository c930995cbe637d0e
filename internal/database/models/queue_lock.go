package models

import (
	"time"
)

// QueueLock is a storage-level lease guarding a queue's aggregate
// read-modify-write. The in-process single-flight flag prevents overlapping
// passes within one process; this row prevents them across two processes
// sharing the same database. Acquisition is a CAS-style upsert that only
// succeeds when the previous lease expired.
type QueueLock struct {
	Name      string    `gorm:"primaryKey;size:100" json:"name"`
	Holder    string    `gorm:"size:64" json:"holder"`
	ExpiresAt time.Time `json:"expires_at"`
}
