// Package scheduler runs the periodic due-task scan so deployments without an
// external cron caller still deliver follow-ups.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"atelierbot/internal/feedback"
)

type Service struct {
	feedback *feedback.Service
	sched    cron.Schedule
	stop     chan struct{}
	interval time.Duration
	nextRun  time.Time
}

// NewService ticks every checkInterval and runs the feedback scan whenever
// the cron expression's next fire time has passed.
func NewService(fb *feedback.Service, cronExpr string, checkInterval time.Duration) (*Service, error) {
	sched, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, err
	}
	return &Service{
		feedback: fb,
		sched:    sched,
		stop:     make(chan struct{}),
		interval: checkInterval,
	}, nil
}

func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.nextRun = s.sched.Next(time.Now())
	log.Info().Dur("interval", s.interval).Time("next_run", s.nextRun).Msg("feedback scan scheduler started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case now := <-ticker.C:
			if now.Before(s.nextRun) {
				continue
			}
			s.runScan(ctx, now)
			s.nextRun = s.sched.Next(now)
		}
	}
}

func (s *Service) Stop() {
	close(s.stop)
}

func (s *Service) runScan(ctx context.Context, now time.Time) {
	processed, err := s.feedback.ProcessDueTasks(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("feedback scan failed")
		return
	}
	log.Info().Int("processed", processed).Time("next_run", s.sched.Next(now)).Msg("feedback scan complete")
}
