package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	domai "github.com/bryanwahyu/photo-tagger/internal/domain/ai"
	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
)

// AnalysisStatus ringkasan status AI per foto
type AnalysisStatus struct {
	PhotoID         int64 `json:"photo_id"`
	HasAnalysis     bool  `json:"has_analysis"`
	SuggestionCount int   `json:"suggestion_count"`
	AdoptedCount    int   `json:"adopted_count"`
	PendingCount    int   `json:"pending_count"`
	CanReanalyze    bool  `json:"can_reanalyze"`
}

// ProviderResult is the latest stored payload of a single provider.
type ProviderResult struct {
	LogID      int64           `json:"log_id"`
	PhotoID    int64           `json:"photo_id"`
	Provider   photos.Provider `json:"provider"`
	AnalyzedAt time.Time       `json:"analyzed_at"`
	Outcome    json.RawMessage `json:"outcome"`
}

// Authorize checks that the photo exists and belongs to userID.
func (s *Service) Authorize(ctx context.Context, photoID, userID int64) error {
	photo, err := s.Repo.GetPhoto(ctx, photoID)
	if err != nil {
		return err
	}
	if photo.UserID != userID {
		return photos.ErrForbidden
	}
	return nil
}

// GetAnalysis rebuilds the latest analysis of a photo from its stored log
// and suggestions. Returns nil, nil when the photo was never analyzed.
func (s *Service) GetAnalysis(ctx context.Context, photoID int64) (*AnalysisResponse, error) {
	entry, err := s.Repo.GetLatestLog(ctx, photoID)
	if errors.Is(err, photos.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest log: %w", err)
	}
	return s.responseFromLog(ctx, entry)
}

// latestSuccessful rebuilds the newest Success analysis of a photo, skipping
// any Failed attempts recorded after it. Returns nil, nil when there is none.
func (s *Service) latestSuccessful(ctx context.Context, photoID int64) (*AnalysisResponse, error) {
	entry, err := s.Repo.GetLatestSuccessfulLog(ctx, photoID)
	if errors.Is(err, photos.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest successful log: %w", err)
	}
	return s.responseFromLog(ctx, entry)
}

func (s *Service) responseFromLog(ctx context.Context, entry *photos.AnalysisLog) (*AnalysisResponse, error) {
	photoID := entry.PhotoID
	log := s.log().With(zap.Int64("photo_id", photoID))

	suggestions, err := s.Repo.GetSuggestions(ctx, photoID)
	if err != nil {
		return nil, fmt.Errorf("suggestions: %w", err)
	}
	if suggestions == nil {
		suggestions = []*photos.TagSuggestion{}
	}

	resp := &AnalysisResponse{
		LogID:             entry.LogID,
		PhotoID:           photoID,
		Status:            entry.Status,
		AnalyzedAt:        entry.AnalyzedAt,
		Vision:            summarizeVision(decodeOutcome[domai.VisionResult](entry.VisionResponse, photos.ProviderVision, log)),
		Places:            summarizePlaces(decodeOutcome[domai.SpotResult](entry.PlacesResponse, photos.ProviderPlaces, log)),
		Semantic:          summarizeSemantic(decodeOutcome[domai.SemanticResult](entry.SemanticResponse, photos.ProviderSemantic, log)),
		Suggestions:       suggestions,
		TotalProcessingMS: entry.ProcessingTimeMS,
		QuotaUsed:         entry.QuotaUsed,
		ErrorMessage:      entry.ErrorMessage,
	}
	if resp.Status == "" {
		resp.Status = photos.StatusSuccess
	}
	return resp, nil
}

// GetStatus reports whether a photo has been analyzed and how its
// suggestions are split between adopted and pending.
func (s *Service) GetStatus(ctx context.Context, photoID int64) (*AnalysisStatus, error) {
	has, err := s.Repo.HasExistingAnalysis(ctx, photoID)
	if err != nil {
		return nil, err
	}
	st := &AnalysisStatus{PhotoID: photoID, HasAnalysis: has, CanReanalyze: true}
	if !has {
		return st, nil
	}
	stats, err := s.Repo.SuggestionStats(ctx, photoID)
	if err != nil {
		return nil, err
	}
	st.SuggestionCount = stats.Total
	st.AdoptedCount = stats.Adopted
	st.PendingCount = stats.Pending
	return st, nil
}

// PendingSuggestions lists not-yet-adopted suggestions, optionally filtered by confidence.
func (s *Service) PendingSuggestions(ctx context.Context, photoID int64, minConfidence *float64) ([]*photos.TagSuggestion, error) {
	list, err := s.Repo.GetPendingSuggestions(ctx, photoID, minConfidence)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*photos.TagSuggestion{}
	}
	return list, nil
}

// LatestProviderResult returns the newest stored payload of one provider.
// A malformed payload is logged and reported as not found.
func (s *Service) LatestProviderResult(ctx context.Context, photoID int64, provider photos.Provider) (*ProviderResult, error) {
	if !provider.Valid() {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	entry, err := s.Repo.GetLatestLogByProvider(ctx, photoID, provider)
	if err != nil {
		return nil, err
	}
	raw := entry.Response(provider)
	if raw == nil || !json.Valid([]byte(*raw)) {
		s.log().Warn("stored provider payload unreadable",
			zap.Int64("photo_id", photoID),
			zap.Int64("log_id", entry.LogID),
			zap.String("provider", string(provider)),
		)
		return nil, photos.ErrNotFound
	}
	return &ProviderResult{
		LogID:      entry.LogID,
		PhotoID:    photoID,
		Provider:   provider,
		AnalyzedAt: entry.AnalyzedAt,
		Outcome:    json.RawMessage(*raw),
	}, nil
}

// History pages through every analysis log of a photo, newest first.
func (s *Service) History(ctx context.Context, photoID int64, page, pageSize int) (*photos.PaginatedLogs, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	logs, total, err := s.Repo.ListLogs(ctx, photoID, page, pageSize)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []*photos.AnalysisLog{}
	}
	return &photos.PaginatedLogs{
		Data:       logs,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

// UserStats rekap pemakaian AI per user
func (s *Service) UserStats(ctx context.Context, userID int64) (*photos.UserStats, error) {
	return s.Repo.UserStats(ctx, userID)
}
