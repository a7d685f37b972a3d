package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/account-security/internal/repository"
	"github.com/jwalitptl/account-security/pkg/metrics"
)

// AuditCleanupWorker purges activity events older than the retention window.
type AuditCleanupWorker struct {
	repo            repository.AuditRepository
	retentionDays   int
	cleanupInterval time.Duration
	logger          zerolog.Logger
	metrics         *metrics.Metrics
	now             func() time.Time
}

func NewAuditCleanupWorker(repo repository.AuditRepository, retentionDays int, cleanupInterval time.Duration,
	logger zerolog.Logger, m *metrics.Metrics) *AuditCleanupWorker {
	if cleanupInterval <= 0 {
		cleanupInterval = 24 * time.Hour
	}
	return &AuditCleanupWorker{
		repo:            repo,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		logger:          logger.With().Str("worker", "audit_cleanup").Logger(),
		metrics:         m,
		now:             time.Now,
	}
}

// Start runs a cleanup immediately and then on every interval until ctx ends.
func (w *AuditCleanupWorker) Start(ctx context.Context) {
	if w.retentionDays <= 0 {
		w.logger.Info().Msg("audit retention disabled")
		return
	}

	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	w.logger.Info().Int("retention_days", w.retentionDays).Dur("interval", w.cleanupInterval).Msg("audit cleanup started")

	for {
		if _, err := w.Cleanup(ctx); err != nil {
			w.logger.Error().Err(err).Msg("audit cleanup failed")
		}

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("audit cleanup stopped")
			return
		case <-ticker.C:
		}
	}
}

// Cleanup deletes everything recorded before now minus the retention window.
func (w *AuditCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := w.now().UTC().AddDate(0, 0, -w.retentionDays)

	rows, err := w.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	w.metrics.AuditPurged.Add(float64(rows))
	w.logger.Info().Int64("deleted", rows).Time("cutoff", cutoff).Msg("cleaned up audit logs")
	return rows, nil
}
