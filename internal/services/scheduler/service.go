package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
)

// Service refreshes completed versions on a cron schedule. Refresh jobs go
// through the normal manager queue, so the per-version lock still applies
// when a manual job is already active.
type Service struct {
	store   interfaces.DocumentStore
	manager interfaces.PipelineManager
	config  common.RefreshConfig
	logger  arbor.ILogger
	cron    *cron.Cron
}

func NewService(store interfaces.DocumentStore, manager interfaces.PipelineManager, config common.RefreshConfig, logger arbor.ILogger) *Service {
	return &Service{store: store, manager: manager, config: config, logger: logger}
}

// Start registers the refresh schedule. Disabled config is a no-op.
func (s *Service) Start() error {
	if !s.config.Enabled {
		return nil
	}
	if s.config.Schedule == "" {
		return fmt.Errorf("refresh is enabled but no schedule is configured")
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.config.Schedule, s.refreshAll); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", s.config.Schedule, err)
	}
	s.cron.Start()

	s.logger.Info().Str("schedule", s.config.Schedule).Msg("Scheduled refresh enabled")
	return nil
}

// Stop halts the schedule and waits for a running refresh sweep to finish.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// refreshAll enqueues a refresh for every completed version. Failures are
// logged per version; one broken version never blocks the rest.
func (s *Service) refreshAll() {
	ctx := context.Background()

	refs, err := s.store.GetVersionsByStatus(ctx, models.VersionStatusCompleted)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled refresh: failed to list completed versions")
		return
	}

	s.logger.Info().Int("versions", len(refs)).Msg("Scheduled refresh sweep starting")

	for _, ref := range refs {
		id, err := s.manager.EnqueueRefresh(ctx, ref.Library, ref.VersionName())
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("library", ref.Library).
				Str("version", ref.VersionName()).
				Msg("Scheduled refresh: failed to enqueue")
			continue
		}
		s.logger.Debug().
			Str("job_id", id).
			Str("library", ref.Library).
			Str("version", ref.VersionName()).
			Msg("Scheduled refresh enqueued")
	}
}
