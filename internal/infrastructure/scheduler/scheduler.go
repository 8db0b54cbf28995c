package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
)

type Logger interface {
	Errorf(template string, args ...interface{})
}

// Scheduler triggers pipeline runs on cron specs (seconds granularity). It is
// a caller of the pipeline, not part of it; job errors are logged and the
// schedule keeps running.
type Scheduler struct {
	cron   *cron.Cron
	logger Logger
}

func New(logger Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
	}
}

func (s *Scheduler) AddJob(spec string, job func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := job(context.Background()); err != nil {
			s.logger.Errorf("Scheduled job failed: %v", err)
		}
	})
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
