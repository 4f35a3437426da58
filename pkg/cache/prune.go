package cache

import (
	"context"
	"fmt"
	"time"
)

// PruneReport summarizes a prune run.
type PruneReport struct {
	Cutoff         time.Time
	SearchesPruned int64
}

// PruneExpired deletes every search snapshot with created_at <= now-maxAge
// together with its results, segments, layovers and price insights. Raw
// responses in api_queries are not touched.
func (s *Store) PruneExpired(ctx context.Context, maxAge time.Duration) (PruneReport, error) {
	now := s.config.Now()
	report := PruneReport{Cutoff: now.Add(-maxAge)}
	cutoff := report.Cutoff.UnixMicro()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.config.Metrics.CacheErrors.WithLabelValues("prune").Inc()
		return report, fmt.Errorf("beginning prune transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	expired := "SELECT search_id FROM flight_searches WHERE created_at <= ?"
	stmts := []string{
		"DELETE FROM layovers WHERE flight_result_id IN (SELECT id FROM flight_results WHERE search_id IN (" + expired + "))",
		"DELETE FROM flight_segments WHERE flight_result_id IN (SELECT id FROM flight_results WHERE search_id IN (" + expired + "))",
		"DELETE FROM flight_results WHERE search_id IN (" + expired + ")",
		"DELETE FROM price_insights WHERE search_id IN (" + expired + ")",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, cutoff); err != nil {
			s.config.Metrics.CacheErrors.WithLabelValues("prune").Inc()
			return report, fmt.Errorf("pruning search children: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM flight_searches WHERE created_at <= ?", cutoff)
	if err != nil {
		s.config.Metrics.CacheErrors.WithLabelValues("prune").Inc()
		return report, fmt.Errorf("pruning searches: %w", err)
	}
	report.SearchesPruned, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		s.config.Metrics.CacheErrors.WithLabelValues("prune").Inc()
		return report, fmt.Errorf("committing prune: %w", err)
	}
	committed = true

	s.config.Metrics.PrunedSearch.Add(float64(report.SearchesPruned))
	if report.SearchesPruned > 0 {
		s.logger.Info().
			Int64("searches", report.SearchesPruned).
			Time("cutoff", report.Cutoff).
			Msg("Pruned expired searches")
	}
	return report, nil
}

// PruneIfDue runs PruneExpired at most once per PruneInterval. ran is false
// when the previous run is too recent. Failures are logged and returned;
// callers on the search path ignore them.
func (s *Store) PruneIfDue(ctx context.Context, maxAge time.Duration) (report PruneReport, ran bool, err error) {
	now := s.config.Now()

	s.mu.Lock()
	if !s.lastPrune.IsZero() && now.Sub(s.lastPrune) < s.config.PruneInterval {
		s.mu.Unlock()
		return report, false, nil
	}
	s.lastPrune = now
	s.mu.Unlock()

	report, err = s.PruneExpired(ctx, maxAge)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Opportunistic prune failed")
	}
	return report, true, err
}
