package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// SyncScheduler runs the periodic mailbox sync cycle
type SyncScheduler struct {
	syncService *SyncService
	interval    time.Duration
	tickBudget  time.Duration
	stopChan    chan struct{}
	running     bool
	mu          sync.Mutex
	syncing     sync.Mutex // guards against overlapping cycles
}

// NewSyncScheduler creates a new sync scheduler. tickBudget bounds one
// cycle; a cycle that overruns stops cleanly and resumes from the persisted
// cursors on the next tick.
func NewSyncScheduler(syncService *SyncService, interval, tickBudget time.Duration) *SyncScheduler {
	return &SyncScheduler{
		syncService: syncService,
		interval:    interval,
		tickBudget:  tickBudget,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the automatic sync process
func (s *SyncScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Printf("[SyncScheduler] Starting with interval: %v", s.interval)

	go func() {
		// Give the service a moment to settle before the first cycle
		select {
		case <-time.After(10 * time.Second):
			log.Println("[SyncScheduler] Running first sync...")
			s.runCycle()
		case <-s.stopChan:
			return
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				log.Println("[SyncScheduler] Running scheduled sync...")
				s.runCycle()
			case <-s.stopChan:
				log.Println("[SyncScheduler] Stopping")
				return
			}
		}
	}()
}

// Stop stops the automatic sync process
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopChan)
	s.running = false
}

func (s *SyncScheduler) runCycle() {
	if !s.syncing.TryLock() {
		log.Println("[SyncScheduler] Previous sync still running, skipping this cycle")
		return
	}
	defer s.syncing.Unlock()

	ctx := context.Background()
	if s.tickBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.tickBudget)
		defer cancel()
	}

	s.syncService.SyncAllEnabledAccounts(ctx)
}
