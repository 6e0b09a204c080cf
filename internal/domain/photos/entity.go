package photos

import (
	"time"
)

// Status enum untuk AnalysisLog dan response
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// Provider enum, dipakai sebagai source suggestion dan key payload di log
type Provider string

const (
	ProviderVision   Provider = "vision"
	ProviderPlaces   Provider = "places"
	ProviderSemantic Provider = "semantic"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderVision, ProviderPlaces, ProviderSemantic:
		return true
	}
	return false
}

// ModelMultiProvider is the model name recorded on every fused analysis log.
const ModelMultiProvider = "MultiProvider"

// AISourceID identifies links created by adopting an AI suggestion.
const AISourceID = 3

// Metadata value object (EXIF yang sudah disimpan waktu upload)
type Metadata struct {
	DateTaken   *time.Time `json:"date_taken,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	CameraMake  string     `json:"camera_make,omitempty"`
	CameraModel string     `json:"camera_model,omitempty"`
}

// HasGPS reports whether both coordinates are present.
func (m *Metadata) HasGPS() bool {
	return m != nil && m.Latitude != nil && m.Longitude != nil
}

// Aggregate Root: Photo
type Photo struct {
	PhotoID       int64     `json:"photo_id"`
	UserID        int64     `json:"user_id"`
	FileName      string    `json:"file_name"`
	OriginalData  []byte    `json:"-"`
	ThumbnailData []byte    `json:"-"`
	Metadata      *Metadata `json:"metadata,omitempty"`
}

// StorageLocation menunjuk object di blob store
type StorageLocation struct {
	PhotoID   int64  `json:"photo_id"`
	Path      string `json:"path"`
	IsPrimary bool   `json:"is_primary"`
}

// AnalysisLog is written once per non-cached analysis. Provider payloads are
// the serialized outcome of each call, nil when the provider was skipped.
type AnalysisLog struct {
	LogID            int64     `json:"log_id"`
	PhotoID          int64     `json:"photo_id"`
	UserID           int64     `json:"user_id"`
	Model            string    `json:"model"`
	AnalyzedAt       time.Time `json:"analyzed_at"`
	VisionResponse   *string   `json:"vision_response,omitempty"`
	PlacesResponse   *string   `json:"places_response,omitempty"`
	SemanticResponse *string   `json:"semantic_response,omitempty"`
	Status           Status    `json:"status"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
	QuotaUsed        int       `json:"quota_used"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

// Response returns the stored payload for one provider.
func (l *AnalysisLog) Response(p Provider) *string {
	switch p {
	case ProviderVision:
		return l.VisionResponse
	case ProviderPlaces:
		return l.PlacesResponse
	case ProviderSemantic:
		return l.SemanticResponse
	}
	return nil
}

// TagSuggestion hasil fusion. TagID di-resolve repository dari katalog tag
// waktu disimpan; nil artinya suggestion hanya menunjuk kategori.
type TagSuggestion struct {
	SuggestionID int64     `json:"suggestion_id"`
	LogID        int64     `json:"log_id"`
	PhotoID      int64     `json:"photo_id"`
	CategoryID   int64     `json:"category_id"`
	CategoryName string    `json:"category_name,omitempty"`
	CategoryType string    `json:"category_type,omitempty"`
	TagID        *int64    `json:"tag_id,omitempty"`
	TagName      string    `json:"tag_name"`
	Confidence   float64   `json:"confidence"`
	Source       Provider  `json:"source"`
	IsAdopted    bool      `json:"is_adopted"`
	CreatedAt    time.Time `json:"created_at"`
}

// SuggestionStats per photo
type SuggestionStats struct {
	Total   int `json:"total"`
	Adopted int `json:"adopted"`
	Pending int `json:"pending"`
}

// UserStats rekap pemakaian AI per user
type UserStats struct {
	UserID             int64      `json:"user_id"`
	TotalAnalyses      int        `json:"total_analyses"`
	SuccessfulAnalyses int        `json:"successful_analyses"`
	FailedAnalyses     int        `json:"failed_analyses"`
	TotalSuggestions   int        `json:"total_suggestions"`
	AdoptedSuggestions int        `json:"adopted_suggestions"`
	QuotaUsed          int        `json:"quota_used"`
	LastAnalyzedAt     *time.Time `json:"last_analyzed_at,omitempty"`
}
