package ai

import "time"

// Feature yang diminta ke vision classifier
type Feature string

const (
	FeatureObjects     Feature = "objects"
	FeatureTags        Feature = "tags"
	FeatureColor       Feature = "color"
	FeatureAdult       Feature = "adult"
	FeatureDescription Feature = "description"
	FeatureCategories  Feature = "categories"
)

// DefaultFeatures is the feature set requested on every analysis.
var DefaultFeatures = []Feature{
	FeatureObjects, FeatureTags, FeatureColor, FeatureAdult, FeatureDescription, FeatureCategories,
}

// Detection is a named label with a 0..1 confidence.
type Detection struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// VisionResult value object
type VisionResult struct {
	Objects           []Detection `json:"objects"`
	Tags              []Detection `json:"tags"`
	Categories        []Detection `json:"categories,omitempty"`
	DominantColors    []string    `json:"dominant_colors,omitempty"`
	Caption           string      `json:"caption,omitempty"`
	CaptionConfidence float64     `json:"caption_confidence,omitempty"`
	IsAdult           bool        `json:"is_adult"`
	IsRacy            bool        `json:"is_racy"`

	// filled by the orchestrator from image selection
	UsedThumbnail  bool    `json:"used_thumbnail"`
	OriginalSizeMB float64 `json:"original_size_mb"`
	AnalyzedSizeMB float64 `json:"analyzed_size_mb"`
}

// PlaceCandidate satu hasil nearby search
type PlaceCandidate struct {
	PlaceID          string   `json:"place_id,omitempty"`
	Name             string   `json:"name"`
	Types            []string `json:"types,omitempty"`
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	DistanceMeters   float64  `json:"distance_meters"`
	Rating           float32  `json:"rating,omitempty"`
	UserRatingsTotal int      `json:"user_ratings_total,omitempty"`
}

// SpotResult value object
type SpotResult struct {
	IsTouristSpot  bool             `json:"is_tourist_spot"`
	SpotName       string           `json:"spot_name,omitempty"`
	Confidence     float64          `json:"confidence"`
	DistanceMeters float64          `json:"distance_meters"`
	SpotTypes      []string         `json:"spot_types,omitempty"`
	Candidates     []PlaceCandidate `json:"candidates,omitempty"`
}

// ExifContext is passed to the describer as capture context.
type ExifContext struct {
	DateTaken  *time.Time `json:"date_taken,omitempty"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	CameraInfo string     `json:"camera_info,omitempty"`
}

// DescribeOptions tuning untuk semantic describer
type DescribeOptions struct {
	IncludeHistoricalContext bool    `json:"include_historical_context"`
	Temperature              float32 `json:"temperature"`
	MaxTokens                int     `json:"max_tokens"`
}

// DefaultDescribeOptions matches the settings used for every photo analysis.
func DefaultDescribeOptions() DescribeOptions {
	return DescribeOptions{IncludeHistoricalContext: false, Temperature: 0.2, MaxTokens: 2048}
}

// DescribeContext is everything the semantic describer sees about one photo.
type DescribeContext struct {
	ImageBase64 string           `json:"-"`
	MediaType   string           `json:"media_type"`
	Exif        ExifContext      `json:"exif"`
	Vision      *VisionResult    `json:"vision,omitempty"`
	Places      []PlaceCandidate `json:"places,omitempty"`
	Options     DescribeOptions  `json:"options"`
}

// TokenUsage reported by the language model
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u TokenUsage) Total() int { return u.InputTokens + u.OutputTokens }

// SemanticResult value object. Confidence applies to the whole answer.
type SemanticResult struct {
	SuggestedTags []string   `json:"suggested_tags"`
	IsTouristSpot bool       `json:"is_tourist_spot"`
	SpotName      string     `json:"spot_name,omitempty"`
	Confidence    float64    `json:"confidence"`
	Description   string     `json:"description,omitempty"`
	Usage         TokenUsage `json:"usage"`
}
