package services

import (
	"time"

	"gorm.io/gorm"
)

// queueLockTTL bounds how long a crashed holder can block the other context.
// A pass that outlives its lease refreshes it per item.
const queueLockTTL = 60 * time.Second

// acquireQueueLock takes the storage-level lease for a queue. It succeeds
// when no row exists, when the caller already holds the lease, or when the
// previous lease expired. The upsert-with-condition makes the check and the
// take a single statement, which is as close to CAS as sqlite offers.
func acquireQueueLock(db *gorm.DB, name, holder string) (bool, error) {
	now := time.Now()
	res := db.Exec(
		`INSERT INTO queue_locks (name, holder, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
		 WHERE queue_locks.holder = ? OR queue_locks.expires_at < ?`,
		name, holder, now.Add(queueLockTTL), holder, now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// refreshQueueLock extends the lease mid-pass
func refreshQueueLock(db *gorm.DB, name, holder string) {
	db.Exec(
		"UPDATE queue_locks SET expires_at = ? WHERE name = ? AND holder = ?",
		time.Now().Add(queueLockTTL), name, holder,
	)
}

// releaseQueueLock drops the lease if the caller still holds it
func releaseQueueLock(db *gorm.DB, name, holder string) {
	db.Exec("DELETE FROM queue_locks WHERE name = ? AND holder = ?", name, holder)
}
