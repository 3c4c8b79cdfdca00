// Package schedule executes configured blind movements on cron schedules.
package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/openblinds/bluelink/internal/config"
)

// A job must finish within one command session; this bounds the whole
// connect+write+disconnect sequence.
const jobTimeout = 45 * time.Second

// Commander is the command surface schedules drive.
type Commander interface {
	MoveToPosition(ctx context.Context, address string, percent int) error
}

// Scheduler runs configured movements. Job failures are logged and never
// fatal; the next firing simply tries again.
type Scheduler struct {
	cron      *cron.Cron
	commander Commander
	logger    *logrus.Logger
	jobs      int
}

// NewScheduler creates an empty scheduler using standard 5-field cron specs.
func NewScheduler(commander Commander, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		cron:      cron.New(),
		commander: commander,
		logger:    logger,
	}
}

// Add registers one schedule entry.
func (s *Scheduler) Add(entry config.Schedule) error {
	log := s.logger.WithFields(logrus.Fields{
		"address":  entry.Address,
		"position": entry.Position,
		"cron":     entry.Cron,
	})

	_, err := s.cron.AddFunc(entry.Cron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		log.Info("Running scheduled move")
		if err := s.commander.MoveToPosition(ctx, entry.Address, entry.Position); err != nil {
			log.WithField("error", err).Error("Scheduled move failed")
			return
		}
		log.Info("Scheduled move delivered")
	})
	if err != nil {
		return err
	}

	s.jobs++
	log.Debug("Schedule registered")
	return nil
}

// Jobs returns the number of registered schedule entries.
func (s *Scheduler) Jobs() int {
	return s.jobs
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("jobs", s.jobs).Info("Scheduler started")
}

// Stop stops firing new jobs and waits for running ones to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}
