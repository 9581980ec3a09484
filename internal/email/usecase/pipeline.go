package usecase

import (
	"context"
	"log"
	"time"

	"mailmind/internal/email/domain"
)

// PipelineUsecase runs the full ingestion pipeline: sync then analysis
type PipelineUsecase interface {
	// Run executes one sync pass over the window followed by one analysis
	// pass over up to limit messages. Re-invocable after a crash: the sync
	// is idempotent and analysis state transitions are transactional.
	Run(ctx context.Context, window domain.SyncWindow, limit int) (*domain.RunStats, error)
}

type pipeline struct {
	sync     SyncUsecase
	analysis AnalysisUsecase
}

// NewPipeline creates a new instance of pipeline
func NewPipeline(sync SyncUsecase, analysis AnalysisUsecase) PipelineUsecase {
	return &pipeline{
		sync:     sync,
		analysis: analysis,
	}
}

func (p *pipeline) Run(ctx context.Context, window domain.SyncWindow, limit int) (*domain.RunStats, error) {
	log.Printf("[Pipeline] Starting run (window=%s)", window.Mode)
	stats, err := p.sync.Sync(ctx, window)
	if err != nil {
		stats.FinishedAt = time.Now()
		return stats, err
	}

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	analysisStats, err := p.analysis.RunBatch(ctx, limit)
	stats.Merge(analysisStats)
	stats.FinishedAt = time.Now()
	if err != nil {
		return stats, err
	}

	log.Printf("[Pipeline] Run complete: new=%d updated=%d analyzed=%d errors=%d",
		stats.New, stats.Updated, stats.Analyzed, stats.Errors)
	return stats, nil
}
