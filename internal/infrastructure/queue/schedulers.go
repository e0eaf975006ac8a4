package queue

import (
	"time"

	"github.com/hibiken/asynq"

	"licensestore-backend/internal/config"
	"licensestore-backend/internal/shared"
	"licensestore-backend/pkg/logger"
)

type Scheduler struct {
	scheduler *asynq.Scheduler
	jobConfig config.JobConfig
}

func NewScheduler(redisAddress string, jobConfig config.JobConfig) *Scheduler {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: redisAddress},
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
		},
	)

	return &Scheduler{
		scheduler: scheduler,
		jobConfig: jobConfig,
	}
}

func (s *Scheduler) RegisterJobs() error {
	// Register all scheduled jobs
	if err := s.registerExpirePendingTopupsJob(); err != nil {
		return err
	}

	if err := s.registerSyncLicenseKeysJob(); err != nil {
		return err
	}

	return nil
}

// ================================================
// JOB 1: Expire Pending Topups (hourly)
// ================================================
func (s *Scheduler) registerExpirePendingTopupsJob() error {
	task := asynq.NewTask(shared.TypeExpirePendingTopups, nil)

	_, err := s.scheduler.Register(
		s.jobConfig.ExpirePendingTopupsCron,
		task,
		asynq.Queue(shared.QueueLow),
		asynq.MaxRetry(1),
		asynq.Timeout(5*time.Minute),
	)

	if err != nil {
		logger.Error("Failed to register ExpirePendingTopups job", err)
		return err
	}

	logger.Info("Registered ExpirePendingTopups job", map[string]interface{}{
		"cron": s.jobConfig.ExpirePendingTopupsCron,
	})
	return nil
}

// ================================================
// JOB 2: Sync License Keys (daily)
// ================================================
func (s *Scheduler) registerSyncLicenseKeysJob() error {
	task := asynq.NewTask(shared.TypeSyncLicenseKeys, nil)

	_, err := s.scheduler.Register(
		s.jobConfig.SyncLicenseKeysCron,
		task,
		asynq.Queue(shared.QueueLow),
		asynq.MaxRetry(2),
		asynq.Timeout(10*time.Minute),
	)

	if err != nil {
		logger.Error("Failed to register SyncLicenseKeys job", err)
		return err
	}

	logger.Info("Registered SyncLicenseKeys job", map[string]interface{}{
		"cron": s.jobConfig.SyncLicenseKeysCron,
	})
	return nil
}

// Run starts the scheduler (blocking)
func (s *Scheduler) Run() error {
	return s.scheduler.Run()
}

// Shutdown stops the scheduler gracefully
func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
