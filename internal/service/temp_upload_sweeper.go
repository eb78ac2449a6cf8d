package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/volunteer-hub-web/internal/observability"
	"github.com/noah-isme/volunteer-hub-web/internal/repository"
	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

const (
	defaultTempUploadTTL  = 24 * time.Hour
	defaultSweepBatchSize = 50
	maxTempDeleteAttempts = 5
)

// TempUploadSweeperConfig tunes the sweeper.
type TempUploadSweeperConfig struct {
	TTL       time.Duration
	BatchSize int
}

// TempUploadSweeper deletes temporary uploads that were never attached to a
// saved activity.
type TempUploadSweeper struct {
	ledger repository.TempUploadRepository
	media  MediaAPI
	cfg    TempUploadSweeperConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewTempUploadSweeper constructs a sweeper.
func NewTempUploadSweeper(ledger repository.TempUploadRepository, media MediaAPI, cfg TempUploadSweeperConfig, logger zerolog.Logger) *TempUploadSweeper {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTempUploadTTL
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepBatchSize
	}
	return &TempUploadSweeper{
		ledger: ledger,
		media:  media,
		cfg:    cfg,
		logger: logger.With().Str("component", "temp_upload_sweeper").Logger(),
		now:    time.Now,
	}
}

// Sweep deletes one batch of expired uploads and returns how many ledger
// rows were released.
func (s *TempUploadSweeper) Sweep(ctx context.Context) (int, error) {
	expired, err := s.ledger.ListExpired(ctx, s.now().Add(-s.cfg.TTL), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, upload := range expired {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}

		err := s.media.DeleteTemp(ctx, upload.PublicID, upload.ResourceType)
		switch {
		case err == nil || activityapi.StatusCode(err) == 404:
			if relErr := s.ledger.Release(ctx, upload.PublicID); relErr != nil {
				s.logger.Error().Err(relErr).Str("public_id", upload.PublicID).Msg("failed to release swept upload")
				continue
			}
			observability.TempUploadsSwept().WithLabelValues("deleted").Inc()
			released++
		case upload.Attempts+1 >= maxTempDeleteAttempts:
			s.logger.Error().Err(err).Str("public_id", upload.PublicID).Int("attempts", upload.Attempts+1).Msg("giving up on temporary upload")
			if relErr := s.ledger.Release(ctx, upload.PublicID); relErr == nil {
				observability.TempUploadsSwept().WithLabelValues("abandoned").Inc()
				released++
			}
		default:
			s.logger.Warn().Err(err).Str("public_id", upload.PublicID).Msg("failed to delete temporary upload")
			if markErr := s.ledger.MarkFailed(ctx, upload.ID, err.Error()); markErr != nil {
				s.logger.Error().Err(markErr).Str("public_id", upload.PublicID).Msg("failed to record sweep failure")
			}
			observability.TempUploadsSwept().WithLabelValues("failed").Inc()
		}
	}

	if released > 0 {
		s.logger.Info().Int("released", released).Msg("temporary uploads swept")
	}
	return released, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *TempUploadSweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("temporary upload sweep failed")
			}
		}
	}
}
