package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work. It receives a context cancelled when
// the scheduler stops.
type Job func(ctx context.Context) error

// cronLogger adapts zap to the cron logger interface.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

// SchedulerService runs background jobs on cron schedules. A job still
// running when its next tick fires is skipped, and panics are recovered.
type SchedulerService struct {
	cron    *cron.Cron
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
	stopped bool
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(logger *zap.Logger) *SchedulerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{log: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &SchedulerService{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob registers job under spec, a standard five-field cron expression or
// a descriptor such as "@every 15m".
func (s *SchedulerService) AddJob(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			s.logger.Error("❌ Scheduled job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.logger.Debug("⏰ Scheduled job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	s.logger.Info("⏰ Job scheduled", zap.String("job", name), zap.String("schedule", spec))
	return nil
}

// Start begins running jobs in the background.
func (s *SchedulerService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.stopped {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.Info("⏰ Scheduler service started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them to return, or for ctx to
// expire.
func (s *SchedulerService) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.running = false
	s.mu.Unlock()

	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("⏰ Scheduler service stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsistencyJob wraps the schema consistency check as a job. Violations are
// logged as warnings; the job fails only when the check cannot run.
func ConsistencyJob(ms *MetadataService, logger *zap.Logger) Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) error {
		violations, err := ms.CheckConsistency(ctx)
		if err != nil {
			return err
		}
		for _, v := range violations {
			logger.Warn("⚠️ Schema drift", zap.String("object", v.Object), zap.String("detail", v.Message))
		}
		if len(violations) == 0 {
			logger.Debug("✅ Schema consistent")
		}
		return nil
	}
}
