package services

import (
	"testing"
	"time"

	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
)

func TestQueueLockExclusion(t *testing.T) {
	db, cleanup := setupServicesTestDB(t)
	defer cleanup()

	got, err := acquireQueueLock(db, "mutation_queue_a", "holder-1")
	if err != nil || !got {
		t.Fatalf("first acquire should succeed: got=%v err=%v", got, err)
	}

	// a different holder is kept out while the lease is live
	got, err = acquireQueueLock(db, "mutation_queue_a", "holder-2")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got {
		t.Fatal("second holder must not take a live lease")
	}

	// the lease holder re-enters freely
	got, err = acquireQueueLock(db, "mutation_queue_a", "holder-1")
	if err != nil || !got {
		t.Fatalf("holder re-entry should succeed: got=%v err=%v", got, err)
	}

	// release frees it for the other holder
	releaseQueueLock(db, "mutation_queue_a", "holder-1")
	got, err = acquireQueueLock(db, "mutation_queue_a", "holder-2")
	if err != nil || !got {
		t.Fatalf("acquire after release should succeed: got=%v err=%v", got, err)
	}
}

func TestQueueLockExpiredLeaseIsTakeable(t *testing.T) {
	db, cleanup := setupServicesTestDB(t)
	defer cleanup()

	// simulate a crashed holder whose lease ran out
	expired := models.QueueLock{
		Name:      "outbox_a",
		Holder:    "crashed",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := db.Create(&expired).Error; err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	got, err := acquireQueueLock(db, "outbox_a", "holder-2")
	if err != nil || !got {
		t.Fatalf("expired lease should be takeable: got=%v err=%v", got, err)
	}

	var lock models.QueueLock
	if err := db.Where("name = ?", "outbox_a").First(&lock).Error; err != nil {
		t.Fatalf("load lock: %v", err)
	}
	if lock.Holder != "holder-2" {
		t.Fatalf("lease not transferred, holder=%s", lock.Holder)
	}
	if !lock.ExpiresAt.After(time.Now()) {
		t.Fatal("taken lease should be fresh")
	}
}

func TestQueueLocksAreIndependentPerName(t *testing.T) {
	db, cleanup := setupServicesTestDB(t)
	defer cleanup()

	got, _ := acquireQueueLock(db, "mutation_queue_a", "holder-1")
	if !got {
		t.Fatal("acquire a")
	}
	got, err := acquireQueueLock(db, "outbox_a", "holder-2")
	if err != nil || !got {
		t.Fatalf("locks for different queues must not conflict: got=%v err=%v", got, err)
	}
}

func TestQueueLockRefreshExtendsLease(t *testing.T) {
	db, cleanup := setupServicesTestDB(t)
	defer cleanup()

	if got, _ := acquireQueueLock(db, "mutation_queue_a", "holder-1"); !got {
		t.Fatal("acquire")
	}
	var before models.QueueLock
	db.Where("name = ?", "mutation_queue_a").First(&before)

	time.Sleep(10 * time.Millisecond)
	refreshQueueLock(db, "mutation_queue_a", "holder-1")

	var after models.QueueLock
	db.Where("name = ?", "mutation_queue_a").First(&after)
	if !after.ExpiresAt.After(before.ExpiresAt) {
		t.Fatal("refresh should push the expiry forward")
	}

	// refresh by a non-holder is a no-op
	refreshQueueLock(db, "mutation_queue_a", "holder-2")
	var unchanged models.QueueLock
	db.Where("name = ?", "mutation_queue_a").First(&unchanged)
	if unchanged.Holder != "holder-1" {
		t.Fatal("non-holder refresh must not steal the lease")
	}
}
