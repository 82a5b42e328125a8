package cron

import (
	"context"
	"log"
	"time"

	"github.com/lautwerk/speech_go_server/internal/service"
)

// Service periodically evicts expired terminal jobs and their audio
// files. Retention is an operational concern; active jobs are never
// touched.
type Service struct {
	jobService *service.JobService
	expire     time.Duration
	interval   time.Duration
	stopChan   chan struct{}
}

func NewService(jobService *service.JobService, expireHours int) *Service {
	if expireHours <= 0 {
		expireHours = 24
	}
	return &Service{
		jobService: jobService,
		expire:     time.Duration(expireHours) * time.Hour,
		interval:   time.Hour,
		stopChan:   make(chan struct{}),
	}
}

func (s *Service) Start() {
	go s.run()
	log.Println("Cron service started (job eviction)")
}

func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

func (s *Service) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := s.jobService.CleanupExpired(ctx, s.expire); err != nil {
		log.Printf("Job eviction sweep failed: %v", err)
	}
}

// RunNow triggers one sweep immediately, for manual operations.
func (s *Service) RunNow(ctx context.Context) (int, error) {
	return s.jobService.CleanupExpired(ctx, s.expire)
}
