package core

// reaper.go reconciles import jobs whose process died.
//
// A live import refreshes its heartbeat every HeartbeatInterval. Jobs still
// marked running whose heartbeat is older than StaleAfter are moved to
// abandoned so the history never shows a phantom running import. The reaper
// runs at startup and then every ReaperInterval; failures are logged and
// retried on the next tick.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/metrics"
)

// StartReaper reconciles stale jobs immediately, then every ReaperInterval,
// until ctx is cancelled.
func (s *Service) StartReaper(ctx context.Context) {
	slog.Info("import reaper started",
		"stale_after", s.cfg.StaleAfter,
		"interval", s.cfg.ReaperInterval,
	)

	s.runReaper(ctx)

	ticker := time.NewTicker(s.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("import reaper stopped")
			return
		case <-ticker.C:
			s.runReaper(ctx)
		}
	}
}

func (s *Service) runReaper(ctx context.Context) {
	start := time.Now()
	n, err := s.ReapStaleImports(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("reap stale imports failed", "error", err)
		}
		return
	}
	if n > 0 {
		slog.Warn("marked stale imports abandoned",
			"jobs", n,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// ReapStaleImports marks running jobs with an expired heartbeat as abandoned
// and returns how many were marked.
func (s *Service) ReapStaleImports(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.StaleAfter)
	msg := fmt.Sprintf("no heartbeat for %s; importer process presumed dead", s.cfg.StaleAfter)

	n, err := s.store.MarkStaleJobs(ctx, cutoff, msg)
	if err != nil {
		return 0, fmt.Errorf("mark stale jobs: %w", err)
	}
	metrics.AddJobsReaped(n)
	return n, nil
}
