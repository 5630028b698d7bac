package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"premium-access/internal/infra/metrics"
	"premium-access/internal/usecase"
)

// ReaperWorker periodically removes stale device sessions via the use case.
// The sweep is advisory: admission filters staleness inline, so a missed or
// late tick never over-admits, it only leaves dead rows around a bit longer.
type ReaperWorker struct {
	interval time.Duration
	sessions usecase.SessionUseCase
	log      *zerolog.Logger
}

func NewReaperWorker(interval time.Duration, sessions usecase.SessionUseCase, logger *zerolog.Logger) *ReaperWorker {
	reapLog := logger.With().Str("component", "ReaperWorker").Logger()
	return &ReaperWorker{
		interval: interval,
		sessions: sessions,
		log:      &reapLog,
	}
}

func (w *ReaperWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting session reaper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping session reaper")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.sessions.ReapStale(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("session reaper error")
			}
			if n > 0 {
				metrics.IncSessionsReaped(n)
				w.log.Info().Int("count", n).Msg("stale sessions removed")
			}
		}
	}
}
