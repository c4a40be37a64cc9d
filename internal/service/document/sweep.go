package document

import (
	"context"
	"fmt"

	"github.com/feichai0017/document-summarizer/pkg/logger"
)

// SweepStuck re-triggers pending documents whose run was lost, for example
// because the process died or the dispatch failed.
func (s *DocumentService) SweepStuck(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.config.StaleAfter)
	ids, err := s.store.ListStalePending(ctx, cutoff, s.config.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale documents: %w", err)
	}

	retriggered := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return retriggered, ctx.Err()
		}
		doc, err := s.store.Get(ctx, id)
		if err != nil {
			continue
		}
		before := doc.SummaryUpdatedAt
		fresh, err := s.retrigger(ctx, doc)
		if err != nil {
			s.logger.Warn("Failed to re-trigger stuck document", logger.DocumentID(id), logger.Error(err))
			continue
		}
		if fresh.SummaryUpdatedAt.After(before) {
			retriggered++
		}
	}
	return retriggered, nil
}

// SweepTempFiles removes leftover fetch artifacts and, when a retention is
// configured, expired uploads.
func (s *DocumentService) SweepTempFiles(ctx context.Context) (int, error) {
	removed, err := s.acquirer.SweepTemp(s.config.TempMaxAge)
	if err != nil {
		return removed, fmt.Errorf("failed to sweep temp files: %w", err)
	}

	if s.config.UploadRetention > 0 && s.uploads != nil {
		threshold := s.now().Add(-s.config.UploadRetention)
		if err := s.uploads.CleanupBefore(ctx, threshold); err != nil {
			return removed, fmt.Errorf("failed to cleanup uploads: %w", err)
		}
		s.logger.Info("Completed uploads cleanup", logger.Time("threshold", threshold))
	}
	return removed, nil
}
