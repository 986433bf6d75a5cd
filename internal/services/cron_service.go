package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronSchedules holds the cron specs of the background jobs (seconds precision)
type CronSchedules struct {
	Sweep      string        // reclaim expired holds, e.g. "@every 30s"
	Evict      string        // drop ledgers of departed trips, e.g. "0 0 3 * * *"
	EvictAfter time.Duration // how long after departure a trip's ledger is kept
}

// CronService manages scheduled background jobs
type CronService struct {
	cron      *cron.Cron
	inventory *InventoryService
	schedules CronSchedules
	limiter   *RateLimitService
	logger    *logrus.Logger
	now       func() time.Time
}

// NewCronService creates a new CronService
func NewCronService(inventory *InventoryService, schedules CronSchedules, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:      cron.New(cron.WithSeconds()),
		inventory: inventory,
		schedules: schedules,
		logger:    logger,
		now:       time.Now,
	}
}

// WithRateLimiter adds a job that forgets stale hold rate limit entries
func (s *CronService) WithRateLimiter(limiter *RateLimitService) *CronService {
	s.limiter = limiter
	return s
}

// Start schedules all jobs and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	if _, err := s.cron.AddFunc(s.schedules.Sweep, s.sweepExpiredHoldsJob); err != nil {
		return fmt.Errorf("failed to schedule hold sweep job: %w", err)
	}
	s.logger.WithField("schedule", s.schedules.Sweep).Info("✓ Scheduled: Sweep expired holds")

	if _, err := s.cron.AddFunc(s.schedules.Evict, s.evictDepartedTripsJob); err != nil {
		return fmt.Errorf("failed to schedule ledger eviction job: %w", err)
	}
	s.logger.WithField("schedule", s.schedules.Evict).Info("✓ Scheduled: Evict departed trip ledgers")

	if s.limiter != nil {
		if _, err := s.cron.AddFunc("@every 10m", s.cleanupRateLimitsJob); err != nil {
			return fmt.Errorf("failed to schedule rate limit cleanup job: %w", err)
		}
		s.logger.Info("✓ Scheduled: Rate limit cleanup (every 10 minutes)")
	}

	s.cron.Start()
	s.logger.Info("✓ Cron service started successfully")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("✓ Cron service stopped")
}

func (s *CronService) sweepExpiredHoldsJob() {
	start := time.Now()
	swept, err := s.inventory.SweepExpired(context.Background(), s.now())
	if err != nil {
		s.logger.WithError(err).Error("[CRON ERROR] Failed to sweep expired holds")
		return
	}
	if swept > 0 {
		s.logger.WithFields(logrus.Fields{
			"expired":  swept,
			"duration": time.Since(start).String(),
		}).Info("[CRON] ✓ Reclaimed expired holds")
	}
}

func (s *CronService) evictDepartedTripsJob() {
	cutoff := s.now().Add(-s.schedules.EvictAfter)
	evicted := s.inventory.EvictDeparted(context.Background(), cutoff)
	s.logger.WithFields(logrus.Fields{
		"evicted": evicted,
		"cutoff":  cutoff,
	}).Info("[CRON] ✓ Evicted departed trip ledgers")
}

func (s *CronService) cleanupRateLimitsJob() {
	if removed := s.limiter.CleanupExpiredRateLimits(s.now()); removed > 0 {
		s.logger.WithField("removed", removed).Debug("[CRON] Cleaned up rate limit entries")
	}
}

// RunSweepNow runs the hold sweep immediately
func (s *CronService) RunSweepNow() {
	s.logger.Info("[MANUAL] Running hold sweep now...")
	s.sweepExpiredHoldsJob()
}

// RunEvictNow runs the ledger eviction immediately
func (s *CronService) RunEvictNow() {
	s.logger.Info("[MANUAL] Running ledger eviction now...")
	s.evictDepartedTripsJob()
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
