package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/database/models"
	"github.com/titanism/mail.forwardemail.net-sub001/internal/platform"
)

// Heartbeat periodically wakes both queue processors so work enqueued while
// offline eventually flushes even if no connectivity event fires. It also
// registers itself as the environment's reconnect callback, which is the
// fast path after connectivity returns.
type Heartbeat struct {
	env       platform.Environment
	mutations *MutationQueue
	outbox    *OutboxQueue
	log       *logrus.Logger
	interval  time.Duration
	stopChan  chan struct{}
	running   bool
	mu        sync.Mutex
	ticking   sync.Mutex // skip a cycle while the previous one still runs
}

// NewHeartbeat creates a heartbeat over the two queues
func NewHeartbeat(env platform.Environment, mutations *MutationQueue, outbox *OutboxQueue, log *logrus.Logger, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		env:       env,
		mutations: mutations,
		outbox:    outbox,
		log:       log,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// Start begins periodic processing and hooks the reconnect wake-up
func (h *Heartbeat) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	h.env.OnReconnect(h.Kick)

	h.log.WithField("interval", h.interval).Info("heartbeat started")

	go func() {
		// let the process settle before the first pass
		select {
		case <-time.After(10 * time.Second):
			h.tick()
		case <-h.stopChan:
			return
		}

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h.tick()
			case <-h.stopChan:
				h.log.Info("heartbeat stopped")
				return
			}
		}
	}()
}

// Stop halts periodic processing
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	close(h.stopChan)
	h.running = false
}

// Kick runs one pass immediately, used as the reconnect wake-up
func (h *Heartbeat) Kick() {
	h.tick()
}

// tick flushes both queues for every account that has work queued
func (h *Heartbeat) tick() {
	if !h.ticking.TryLock() {
		h.log.Debug("previous heartbeat pass still running, skipping")
		return
	}
	defer h.ticking.Unlock()

	if !h.env.Online() {
		return
	}

	ctx := context.Background()
	db := h.env.DB()

	var accounts []string
	db.Model(&models.Mutation{}).Distinct("account").Pluck("account", &accounts)
	for _, account := range accounts {
		if _, err := h.mutations.Process(ctx, account); err != nil {
			h.log.WithFields(logrus.Fields{"account": account, "error": err}).Warn("mutation queue pass failed")
		}
	}

	accounts = accounts[:0]
	db.Model(&models.OutboxItem{}).Distinct("account").Pluck("account", &accounts)
	for _, account := range accounts {
		if _, err := h.outbox.ProcessOutbox(ctx, account); err != nil {
			h.log.WithFields(logrus.Fields{"account": account, "error": err}).Warn("outbox pass failed")
		}
	}
}
