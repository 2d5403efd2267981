package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// QueueScheduler drains the outbound send queue on a short cadence
type QueueScheduler struct {
	sendService *SendService
	interval    time.Duration
	batchLimit  int
	stopChan    chan struct{}
	running     bool
	mu          sync.Mutex
	processing  sync.Mutex // guards against overlapping passes
}

// NewQueueScheduler creates a new queue scheduler
func NewQueueScheduler(sendService *SendService, interval time.Duration, batchLimit int) *QueueScheduler {
	return &QueueScheduler{
		sendService: sendService,
		interval:    interval,
		batchLimit:  batchLimit,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the periodic queue processing
func (s *QueueScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Printf("[QueueScheduler] Starting with interval: %v", s.interval)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runPass()
			case <-s.stopChan:
				log.Println("[QueueScheduler] Stopping")
				return
			}
		}
	}()
}

// Stop stops the periodic queue processing
func (s *QueueScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopChan)
	s.running = false
}

func (s *QueueScheduler) runPass() {
	if !s.processing.TryLock() {
		return
	}
	defer s.processing.Unlock()

	result, err := s.sendService.ProcessPending(context.Background(), s.batchLimit)
	if err != nil {
		log.Printf("[QueueScheduler] Queue pass failed: %v", err)
		return
	}
	if result.Claimed > 0 {
		log.Printf("[QueueScheduler] Processed %d entries: %d sent, %d failed",
			result.Claimed, result.Sent, result.Failed)
	}
}
