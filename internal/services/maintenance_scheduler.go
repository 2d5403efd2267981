package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// MaintenanceScheduler runs the daily housekeeping pass: sync log retention
// and credential validation.
type MaintenanceScheduler struct {
	logService        *LogService
	tokenService      *TokenService
	credentialService *CredentialService
	logRetention      time.Duration
	stopChan          chan struct{}
	running           bool
	mu                sync.Mutex
}

// NewMaintenanceScheduler creates a new maintenance scheduler
func NewMaintenanceScheduler(logService *LogService, tokenService *TokenService, credentialService *CredentialService, logRetention time.Duration) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		logService:        logService,
		tokenService:      tokenService,
		credentialService: credentialService,
		logRetention:      logRetention,
		stopChan:          make(chan struct{}),
	}
}

// Start begins the daily maintenance cycle
func (s *MaintenanceScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Printf("[MaintenanceScheduler] Starting with log retention: %v", s.logRetention)

	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runMaintenance()
			case <-s.stopChan:
				log.Println("[MaintenanceScheduler] Stopping")
				return
			}
		}
	}()
}

// Stop stops the maintenance cycle
func (s *MaintenanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopChan)
	s.running = false
}

func (s *MaintenanceScheduler) runMaintenance() {
	deleted, err := s.logService.PurgeOldLogs(s.logRetention)
	if err != nil {
		log.Printf("[MaintenanceScheduler] Log purge failed: %v", err)
	} else if deleted > 0 {
		log.Printf("[MaintenanceScheduler] Purged %d old sync log entries", deleted)
	}

	s.validateCredentials()
}

// validateCredentials test-refreshes every enabled credential so a broken
// secret is noticed and disabled before a sync run trips over it.
func (s *MaintenanceScheduler) validateCredentials() {
	credentials, err := s.credentialService.ListEnabledCredentials()
	if err != nil {
		log.Printf("[MaintenanceScheduler] Failed to list credentials: %v", err)
		return
	}

	for _, credential := range credentials {
		result := s.tokenService.TestConnection(context.Background(), credential.ID)
		if !result.Success {
			log.Printf("[MaintenanceScheduler] Credential %s failed validation: %s", credential.Name, result.Message)
		}
	}
}
