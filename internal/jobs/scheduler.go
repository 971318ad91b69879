// internal/jobs/scheduler.go

// Package jobs runs the background maintenance schedule.
package jobs

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/stackdrive/stackdrive-backend/internal/services"
)

type Scheduler struct {
	cron       *cron.Cron
	sharedLink *services.SharedLinkService
}

func NewScheduler(sharedLink *services.SharedLinkService) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		sharedLink: sharedLink,
	}
}

// Start registers the jobs and begins the schedule.
func (s *Scheduler) Start() error {
	// Expired-link sweep. Resolution checks expiry inline; this keeps
	// listings and the active index honest.
	_, err := s.cron.AddFunc("*/10 * * * *", s.deactivateExpiredLinks)
	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Info("Background scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logrus.Info("Background scheduler stopped")
}

func (s *Scheduler) deactivateExpiredLinks() {
	count, err := s.sharedLink.DeactivateExpired()
	if err != nil {
		logrus.WithError(err).Error("Expired-link sweep failed")
		return
	}
	if count > 0 {
		logrus.WithField("count", count).Info("Deactivated expired shared links")
	}
}
