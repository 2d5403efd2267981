package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// TokenScheduler refreshes cached access tokens for all enabled credentials
// on a fixed cadence so interactive work rarely pays the exchange latency.
type TokenScheduler struct {
	tokenService *TokenService
	interval     time.Duration
	stopChan     chan struct{}
	running      bool
	mu           sync.Mutex
}

// NewTokenScheduler creates a new token refresh scheduler
func NewTokenScheduler(tokenService *TokenService, interval time.Duration) *TokenScheduler {
	return &TokenScheduler{
		tokenService: tokenService,
		interval:     interval,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the periodic token refresh
func (s *TokenScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Printf("[TokenScheduler] Starting with interval: %v", s.interval)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.tokenService.RefreshAll(context.Background())
			case <-s.stopChan:
				log.Println("[TokenScheduler] Stopping")
				return
			}
		}
	}()
}

// Stop stops the periodic token refresh
func (s *TokenScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopChan)
	s.running = false
}
