package analysis

import (
	"sort"

	domai "github.com/bryanwahyu/photo-tagger/internal/domain/ai"
)

const (
	topObjects = 5
	topTags    = 10
)

// VisionSummary is the response view of a vision outcome.
type VisionSummary struct {
	ObjectCount      int      `json:"object_count"`
	TagCount         int      `json:"tag_count"`
	TopObjects       []string `json:"top_objects"`
	TopTags          []string `json:"top_tags"`
	Caption          string   `json:"caption,omitempty"`
	DominantColors   []string `json:"dominant_colors,omitempty"`
	HasAdultContent  bool     `json:"has_adult_content"`
	UsedThumbnail    bool     `json:"used_thumbnail"`
	AnalyzedSizeMB   float64  `json:"analyzed_size_mb"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
}

// PlacesSummary is the response view of a place resolver outcome.
type PlacesSummary struct {
	IsTouristSpot        bool     `json:"is_tourist_spot"`
	NearestPlaceName     string   `json:"nearest_place_name,omitempty"`
	NearestPlaceDistance float64  `json:"nearest_place_distance"`
	NearbyPlaces         []string `json:"nearby_places"`
	SpotTypes            []string `json:"spot_types,omitempty"`
	ProcessingTimeMS     int64    `json:"processing_time_ms"`
}

// SemanticSummary is the response view of a describer outcome.
type SemanticSummary struct {
	IsTouristSpot    bool     `json:"is_tourist_spot"`
	SpotName         string   `json:"spot_name,omitempty"`
	Confidence       float64  `json:"confidence"`
	Description      string   `json:"description,omitempty"`
	SuggestedTags    []string `json:"suggested_tags"`
	InputTokens      int      `json:"input_tokens"`
	OutputTokens     int      `json:"output_tokens"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
}

// summaries are only produced for successful outcomes
func summarizeVision(o domai.Outcome[domai.VisionResult]) *VisionSummary {
	v, ok := o.Value()
	if !ok {
		return nil
	}
	return &VisionSummary{
		ObjectCount:      len(v.Objects),
		TagCount:         len(v.Tags),
		TopObjects:       topNames(v.Objects, topObjects),
		TopTags:          topNames(v.Tags, topTags),
		Caption:          v.Caption,
		DominantColors:   v.DominantColors,
		HasAdultContent:  v.IsAdult,
		UsedThumbnail:    v.UsedThumbnail,
		AnalyzedSizeMB:   v.AnalyzedSizeMB,
		ProcessingTimeMS: o.ElapsedMS,
	}
}

func summarizePlaces(o domai.Outcome[domai.SpotResult]) *PlacesSummary {
	p, ok := o.Value()
	if !ok {
		return nil
	}
	nearby := make([]string, 0, len(p.Candidates)+1)
	if p.SpotName != "" {
		nearby = append(nearby, p.SpotName)
	}
	for _, c := range p.Candidates {
		if c.Name != "" && c.Name != p.SpotName {
			nearby = append(nearby, c.Name)
		}
	}
	return &PlacesSummary{
		IsTouristSpot:        p.IsTouristSpot,
		NearestPlaceName:     p.SpotName,
		NearestPlaceDistance: p.DistanceMeters,
		NearbyPlaces:         nearby,
		SpotTypes:            p.SpotTypes,
		ProcessingTimeMS:     o.ElapsedMS,
	}
}

func summarizeSemantic(o domai.Outcome[domai.SemanticResult]) *SemanticSummary {
	s, ok := o.Value()
	if !ok {
		return nil
	}
	return &SemanticSummary{
		IsTouristSpot:    s.IsTouristSpot,
		SpotName:         s.SpotName,
		Confidence:       s.Confidence,
		Description:      s.Description,
		SuggestedTags:    s.SuggestedTags,
		InputTokens:      s.Usage.InputTokens,
		OutputTokens:     s.Usage.OutputTokens,
		ProcessingTimeMS: o.ElapsedMS,
	}
}

func topNames(list []domai.Detection, n int) []string {
	sorted := make([]domai.Detection, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make([]string, 0, len(sorted))
	for _, d := range sorted {
		out = append(out, d.Name)
	}
	return out
}
