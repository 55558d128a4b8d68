package service

import (
	"context"
	"time"

	"telerelay/internal/constants"

	"github.com/sirupsen/logrus"
)

// Scheduler periodically prunes expired credential backups from the
// store and orphaned session artifact backups from disk.
type Scheduler struct {
	store         Store
	artifacts     Artifacts
	retentionDays int
	intervalHours int
	logger        *logrus.Logger
	stopCh        chan struct{}
}

func NewScheduler(store Store, artifacts Artifacts, retentionDays, intervalHours int, logger *logrus.Logger) *Scheduler {
	if retentionDays <= 0 {
		retentionDays = constants.DefaultBackupRetentionDays
	}
	if intervalHours <= 0 {
		intervalHours = constants.DefaultCleanupIntervalHours
	}
	return &Scheduler{
		store:         store,
		artifacts:     artifacts,
		retentionDays: retentionDays,
		intervalHours: intervalHours,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.intervalHours) * time.Hour)
	defer ticker.Stop()

	s.logger.Info("Starting cleanup scheduler")

	s.runCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	s.logger.WithField("retentionDays", s.retentionDays).Info("Running scheduled cleanup")

	if err := s.store.CleanupCredentialBackups(s.retentionDays); err != nil {
		s.logger.WithError(err).Error("Failed to clean up credential backups")
	}
	if err := s.artifacts.CleanupBackups(s.retentionDays); err != nil {
		s.logger.WithError(err).Error("Failed to clean up artifact backups")
	}
}
