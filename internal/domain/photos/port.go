package photos

import (
	"context"
	"io"
)

// Repository port (interface untuk persistence)
type Repository interface {
	GetPhoto(ctx context.Context, photoID int64) (*Photo, error)
	GetStorageLocations(ctx context.Context, photoID int64) ([]StorageLocation, error)

	HasExistingAnalysis(ctx context.Context, photoID int64) (bool, error)
	GetLatestLog(ctx context.Context, photoID int64) (*AnalysisLog, error)
	GetLatestSuccessfulLog(ctx context.Context, photoID int64) (*AnalysisLog, error)
	GetLatestLogByProvider(ctx context.Context, photoID int64, provider Provider) (*AnalysisLog, error)
	SaveLog(ctx context.Context, log *AnalysisLog) (int64, error)
	ListLogs(ctx context.Context, photoID int64, page, pageSize int) ([]*AnalysisLog, int64, error)

	SaveSuggestions(ctx context.Context, list []*TagSuggestion) ([]*TagSuggestion, error)
	GetSuggestions(ctx context.Context, photoID int64) ([]*TagSuggestion, error)
	GetPendingSuggestions(ctx context.Context, photoID int64, minConfidence *float64) ([]*TagSuggestion, error)
	GetSuggestionByID(ctx context.Context, suggestionID int64) (*TagSuggestion, error)
	MarkSuggestionAdopted(ctx context.Context, suggestionID int64) error

	HasPhotoTag(ctx context.Context, photoID, tagID int64) (bool, error)
	AddPhotoTag(ctx context.Context, photoID, tagID int64, sourceID int, confidence float64, addedBy *int64) (bool, error)
	HasPhotoCategory(ctx context.Context, photoID, categoryID int64) (bool, error)
	AddPhotoCategory(ctx context.Context, photoID, categoryID int64, sourceID int, confidence float64, addedBy *int64) (bool, error)

	SuggestionStats(ctx context.Context, photoID int64) (SuggestionStats, error)
	UserStats(ctx context.Context, userID int64) (*UserStats, error)
}

// BlobStore port (download binary foto dari object storage)
type BlobStore interface {
	DownloadOriginal(ctx context.Context, path string) (io.ReadCloser, error)
	DownloadThumbnail(ctx context.Context, path string) (io.ReadCloser, error)
}
