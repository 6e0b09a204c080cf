package analysis

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
	"github.com/bryanwahyu/photo-tagger/internal/metrics"
)

// ApplyRequest promotes suggestions into the photo's tag/category set.
// PhotoID scopes the request when set. UserID is recorded as the adder and,
// when set, must own the photo of every suggestion.
type ApplyRequest struct {
	PhotoID       *int64  `json:"photo_id,omitempty"`
	UserID        *int64  `json:"-"`
	SuggestionIDs []int64 `json:"suggestion_ids"`
}

// ApplyResult counts per-id outcomes.
type ApplyResult struct {
	Applied int      `json:"applied"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// ApplySuggestions processes every distinct id on its own; a failing id is
// counted and the rest still run.
func (s *Service) ApplySuggestions(ctx context.Context, req ApplyRequest) ApplyResult {
	res := ApplyResult{Errors: []string{}}
	log := s.log().With(zap.Int("suggestions", len(req.SuggestionIDs)))

	seen := make(map[int64]struct{}, len(req.SuggestionIDs))
	owners := map[int64]error{}
	for _, id := range req.SuggestionIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		outcome, err := s.applyOne(ctx, req, id, owners)
		switch outcome {
		case applyApplied:
			res.Applied++
		case applySkipped:
			res.Skipped++
		case applyFailed:
			res.Failed++
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("suggestion %d: %v", id, err))
			log.Warn("apply suggestion", zap.Int64("suggestion_id", id), zap.String("outcome", string(outcome)), zap.Error(err))
		}
	}

	metrics.AddSuggestionsApplied(res.Applied)
	log.Info("apply finished", zap.Int("applied", res.Applied), zap.Int("skipped", res.Skipped), zap.Int("failed", res.Failed))
	return res
}

type applyOutcome string

const (
	applyApplied applyOutcome = "applied"
	applySkipped applyOutcome = "skipped"
	applyFailed  applyOutcome = "failed"
)

var (
	errSuggestionMissing = errors.New("suggestion does not exist")
	errWrongPhoto        = errors.New("suggestion belongs to another photo")
)

// applyOne handles a single suggestion. owners memoizes the ownership check
// per photo for the duration of one request.
func (s *Service) applyOne(ctx context.Context, req ApplyRequest, id int64, owners map[int64]error) (out applyOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = applyFailed, fmt.Errorf("panic: %v", r)
		}
	}()

	sg, err := s.Repo.GetSuggestionByID(ctx, id)
	if errors.Is(err, photos.ErrNotFound) || (err == nil && sg == nil) {
		return applySkipped, errSuggestionMissing
	}
	if err != nil {
		return applyFailed, err
	}
	if req.PhotoID != nil && *req.PhotoID != 0 && sg.PhotoID != *req.PhotoID {
		return applyFailed, fmt.Errorf("%w %d", errWrongPhoto, *req.PhotoID)
	}
	if req.UserID != nil {
		authErr, ok := owners[sg.PhotoID]
		if !ok {
			authErr = s.Authorize(ctx, sg.PhotoID, *req.UserID)
			owners[sg.PhotoID] = authErr
		}
		if authErr != nil {
			return applyFailed, fmt.Errorf("photo %d: %w", sg.PhotoID, authErr)
		}
	}
	if sg.IsAdopted {
		return applySkipped, nil
	}

	var changed bool
	if sg.TagID != nil {
		exists, err := s.Repo.HasPhotoTag(ctx, sg.PhotoID, *sg.TagID)
		if err != nil {
			return applyFailed, err
		}
		if exists {
			return applySkipped, nil
		}
		changed, err = s.Repo.AddPhotoTag(ctx, sg.PhotoID, *sg.TagID, photos.AISourceID, sg.Confidence, req.UserID)
		if err != nil {
			return applyFailed, err
		}
	} else {
		exists, err := s.Repo.HasPhotoCategory(ctx, sg.PhotoID, sg.CategoryID)
		if err != nil {
			return applyFailed, err
		}
		if exists {
			return applySkipped, nil
		}
		changed, err = s.Repo.AddPhotoCategory(ctx, sg.PhotoID, sg.CategoryID, photos.AISourceID, sg.Confidence, req.UserID)
		if err != nil {
			return applyFailed, err
		}
	}

	// link sudah ada (race dengan request lain), anggap skip
	if !changed {
		return applySkipped, nil
	}
	if err := s.Repo.MarkSuggestionAdopted(ctx, id); err != nil {
		return applyFailed, fmt.Errorf("mark adopted: %w", err)
	}
	return applyApplied, nil
}
