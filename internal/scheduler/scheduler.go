// Package scheduler runs the bot's periodic jobs.
package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Common schedules, with a leading seconds field.
const (
	EveryMinute      = "0 * * * * *"
	EveryFiveMinutes = "0 */5 * * * *"
	EveryTenMinutes  = "0 */10 * * * *"
)

// Service holds the cron runner.
type Service struct {
	cron *cron.Cron
	log  logrus.FieldLogger
}

// NewService creates a stopped scheduler.
func NewService(logger logrus.FieldLogger) *Service {
	return &Service{
		cron: cron.New(cron.WithSeconds()),
		log:  logger.WithField("component", "scheduler"),
	}
}

// Add registers fn under name. Panics inside fn are recovered and logged.
func (s *Service) Add(spec, name string, fn func()) error {
	log := s.log.WithField("job", name)
	_, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("Scheduled job panicked")
			}
		}()
		log.Debug("Running scheduled job")
		fn()
	})
	return err
}

// Len is the number of registered jobs.
func (s *Service) Len() int {
	return len(s.cron.Entries())
}

// Start begins running jobs.
func (s *Service) Start() {
	s.cron.Start()
	s.log.Infof("Scheduler started with %d jobs", s.Len())
}

// Stop stops the scheduler and waits for running jobs.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}
