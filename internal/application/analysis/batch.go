package analysis

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
	"github.com/bryanwahyu/photo-tagger/internal/metrics"
)

// DefaultMaxParallelism is used when a batch does not set a bound.
const DefaultMaxParallelism = 3

// Analyzer runs a single photo analysis.
type Analyzer interface {
	AnalyzePhoto(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error)
}

// ExistenceChecker reports whether a photo already has an analysis.
type ExistenceChecker interface {
	HasExistingAnalysis(ctx context.Context, photoID int64) (bool, error)
}

// Authorizer checks that a photo exists and belongs to the caller.
type Authorizer interface {
	Authorize(ctx context.Context, photoID, userID int64) error
}

// BatchRequest untuk analisa banyak foto sekaligus
type BatchRequest struct {
	PhotoIDs        []int64 `json:"photo_ids"`
	UserID          int64   `json:"-"`
	ForceReanalysis bool    `json:"force_reanalysis"`
	MaxParallelism  int     `json:"max_parallelism"`
}

// BatchResult aggregates per-photo outcomes. Results only carries the
// successful analyses; skipped and failed items show up in the counters.
type BatchResult struct {
	BatchID   string              `json:"batch_id"`
	Total     int                 `json:"total"`
	Processed int                 `json:"processed"`
	Skipped   int                 `json:"skipped"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Results   []*AnalysisResponse `json:"results"`
}

// Scheduler fans AnalyzePhoto out over many photos with bounded parallelism.
type Scheduler struct {
	Analyzer Analyzer
	Auth     Authorizer
	Checker  ExistenceChecker
	Defaults Defaults
	Logger   *zap.Logger
}

// NewScheduler wires a scheduler on top of the analysis service.
func NewScheduler(svc *Service) *Scheduler {
	return &Scheduler{Analyzer: svc, Auth: svc, Checker: svc.Repo, Defaults: svc.Policy.Defaults, Logger: svc.log()}
}

// Run analyzes every id and waits for all of them. One item failing never
// stops the others; every item lands in exactly one of skipped, succeeded
// or failed.
func (s *Scheduler) Run(ctx context.Context, req BatchRequest) BatchResult {
	batchID := uuid.NewString()
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("batch_id", batchID), zap.Int("photos", len(req.PhotoIDs)))
	metrics.IncrementBatches()

	limit := req.MaxParallelism
	if limit == 0 {
		limit = s.Defaults.MaxParallelism
	}
	if limit == 0 {
		limit = DefaultMaxParallelism
	}
	if limit < 1 {
		limit = 1
	}
	log.Info("batch started", zap.Int("max_parallelism", limit), zap.Bool("force", req.ForceReanalysis))

	var processed, skipped, succeeded, failed atomic.Int64
	// one slot per item, merged after Wait so no lock is needed on insert
	slots := make([]*AnalysisResponse, len(req.PhotoIDs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, photoID := range req.PhotoIDs {
		g.Go(func() error {
			defer processed.Add(1)
			resp, status, err := s.runOne(ctx, req, photoID)
			switch status {
			case itemSkipped:
				skipped.Add(1)
			case itemSucceeded:
				succeeded.Add(1)
			default:
				failed.Add(1)
			}
			if err != nil {
				log.Warn("batch item failed", zap.Int64("photo_id", photoID), zap.Error(err))
			}
			slots[i] = resp
			return nil
		})
	}
	_ = g.Wait()

	results := make([]*AnalysisResponse, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, r)
		}
	}

	out := BatchResult{
		BatchID:   batchID,
		Total:     len(req.PhotoIDs),
		Processed: int(processed.Load()),
		Skipped:   int(skipped.Load()),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Results:   results,
	}
	log.Info("batch finished",
		zap.Int("processed", out.Processed),
		zap.Int("skipped", out.Skipped),
		zap.Int("succeeded", out.Succeeded),
		zap.Int("failed", out.Failed),
	)
	return out
}

type itemStatus int

const (
	itemFailed itemStatus = iota
	itemSkipped
	itemSucceeded
)

func (s *Scheduler) runOne(ctx context.Context, req BatchRequest, photoID int64) (resp *AnalysisResponse, status itemStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, status, err = nil, itemFailed, fmt.Errorf("panic: %v", r)
		}
	}()

	// ownership first, so a skip never leaks whether a foreign photo was analyzed
	if s.Auth != nil {
		if err := s.Auth.Authorize(ctx, photoID, req.UserID); err != nil {
			return nil, itemFailed, fmt.Errorf("photo %d: %w", photoID, err)
		}
	}
	if !req.ForceReanalysis && s.Checker != nil {
		has, err := s.Checker.HasExistingAnalysis(ctx, photoID)
		if err != nil {
			return nil, itemFailed, err
		}
		if has {
			return nil, itemSkipped, nil
		}
	}

	single := s.Defaults.Request(photoID, req.UserID)
	single.ForceReanalysis = req.ForceReanalysis
	resp, err = s.Analyzer.AnalyzePhoto(ctx, single)
	if err != nil {
		return nil, itemFailed, err
	}
	if resp == nil {
		return nil, itemFailed, fmt.Errorf("photo %d: empty response", photoID)
	}
	if resp.Status == photos.StatusFailed {
		return nil, itemFailed, fmt.Errorf("photo %d: %s", photoID, resp.ErrorMessage)
	}
	return resp, itemSucceeded, nil
}
