package scheduler

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs recurring background jobs on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// New creates a Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}
}

// AddJob registers a named job on the given cron spec. The job is wrapped
// with panic recovery so one bad run cannot kill the scheduler.
func (s *Scheduler) AddJob(spec, name string, fn func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled job panicked",
					zap.String("job", name),
					zap.Any("panic", r),
				)
			}
		}()
		s.logger.Debug("scheduled job starting", zap.String("job", name))
		fn()
	})
	if err != nil {
		return err
	}
	s.logger.Info("scheduled job registered",
		zap.String("job", name),
		zap.String("spec", spec),
	)
	return nil
}

// Start begins running the registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler, waiting for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
