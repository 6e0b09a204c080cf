package analysis

import (
	"strings"
	"time"

	domai "github.com/bryanwahyu/photo-tagger/internal/domain/ai"
	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
)

// PersistConfidenceThreshold is the fixed bar a fused suggestion must reach
// before it is stored or returned. It is a separate knob from the per-request
// MinConfidence, which only filters vision candidates in the first stage.
const PersistConfidenceThreshold = 0.95

// CategoryIDs maps the three suggestion categories to catalogue ids.
type CategoryIDs struct {
	AI       int64
	Location int64
	Scene    int64
}

// DefaultSceneKeywords dipakai kalau config tidak mengisi scene_keywords
var DefaultSceneKeywords = []string{
	"beach", "mountain", "sky", "sunset", "sunrise", "ocean", "sea", "lake", "river",
	"forest", "landscape", "night", "city", "street", "snow", "outdoor", "indoor",
}

// DefaultPlaceTypeLabels translates place type codes into tag names.
var DefaultPlaceTypeLabels = map[string]string{
	"tourist_attraction": "Tourist Attraction",
	"museum":             "Museum",
	"park":               "Park",
	"restaurant":         "Restaurant",
	"cafe":               "Cafe",
	"shopping_mall":      "Shopping Mall",
	"store":              "Store",
	"point_of_interest":  "Point of Interest",
	"establishment":      "Establishment",
}

// CategoryRules decides which category a fused tag lands in.
type CategoryRules struct {
	IDs           CategoryIDs
	SceneKeywords []string
}

// Classify applies, in order: place-sourced tags and describer-confirmed
// place names go to Location, scene keyword matches go to Scene, the rest to AI.
func (r CategoryRules) Classify(tag string, source photos.Provider, isPlace bool) int64 {
	if source == photos.ProviderPlaces {
		return r.IDs.Location
	}
	if isPlace && source == photos.ProviderSemantic {
		return r.IDs.Location
	}
	lower := strings.ToLower(tag)
	for _, kw := range r.SceneKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return r.IDs.Scene
		}
	}
	return r.IDs.AI
}

// FusionPolicy holds every knob the fusion pass reads.
type FusionPolicy struct {
	MinConfidence    float64
	PersistThreshold float64
	Categories       CategoryRules
	PlaceTypeLabels  map[string]string
}

// PlaceTypeLabel returns the human label for a place type, or the code itself.
func (p FusionPolicy) PlaceTypeLabel(code string) string {
	if label, ok := p.PlaceTypeLabels[code]; ok {
		return label
	}
	return code
}

// FusionInput bundles the three provider outcomes of one analysis.
type FusionInput struct {
	LogID    int64
	PhotoID  int64
	Vision   domai.Outcome[domai.VisionResult]
	Places   domai.Outcome[domai.SpotResult]
	Semantic domai.Outcome[domai.SemanticResult]
	Now      time.Time
}

// FusionResult: All is every candidate (telemetry), Persisted passed the gate.
type FusionResult struct {
	All       []*photos.TagSuggestion
	Persisted []*photos.TagSuggestion
}

// fusionSet keeps suggestions in insertion order with O(1) lookup by tag name.
type fusionSet struct {
	items []*photos.TagSuggestion
	index map[string]int
}

func newFusionSet() *fusionSet {
	return &fusionSet{index: make(map[string]int)}
}

// add inserts a new suggestion. Returns false if the name already exists.
func (s *fusionSet) add(sg *photos.TagSuggestion) bool {
	if _, ok := s.index[sg.TagName]; ok {
		return false
	}
	s.index[sg.TagName] = len(s.items)
	s.items = append(s.items, sg)
	return true
}

// upsert overrides source and confidence of an existing name or inserts it.
// Category is kept from the first insertion.
func (s *fusionSet) upsert(sg *photos.TagSuggestion) {
	if i, ok := s.index[sg.TagName]; ok {
		s.items[i].Source = sg.Source
		s.items[i].Confidence = sg.Confidence
		return
	}
	s.add(sg)
}

// Fuse merges provider outcomes into one deduplicated suggestion list.
// Stages run vision, then places, then semantic; a later stage overrides an
// earlier one on a case-sensitive tag name collision.
func Fuse(in FusionInput, policy FusionPolicy) FusionResult {
	set := newFusionSet()
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	newSuggestion := func(name string, confidence float64, source photos.Provider, isPlace bool) *photos.TagSuggestion {
		return &photos.TagSuggestion{
			LogID:      in.LogID,
			PhotoID:    in.PhotoID,
			CategoryID: policy.Categories.Classify(name, source, isPlace),
			TagName:    name,
			Confidence: confidence,
			Source:     source,
			CreatedAt:  now,
		}
	}

	// stage 1: vision objects + tags
	if v, ok := in.Vision.Value(); ok {
		for _, group := range [][]domai.Detection{v.Objects, v.Tags} {
			for _, d := range group {
				if d.Name == "" || d.Confidence < policy.MinConfidence {
					continue
				}
				set.add(newSuggestion(d.Name, d.Confidence, photos.ProviderVision, false))
			}
		}
	}

	// stage 2: place resolver, hanya kalau memang tourist spot
	if p, ok := in.Places.Value(); ok && p.IsTouristSpot {
		if p.SpotName != "" {
			set.upsert(newSuggestion(p.SpotName, p.Confidence, photos.ProviderPlaces, true))
		}
		for _, code := range p.SpotTypes {
			label := policy.PlaceTypeLabel(code)
			if label == "" {
				continue
			}
			set.upsert(newSuggestion(label, p.Confidence, photos.ProviderPlaces, false))
		}
	}

	// stage 3: semantic describer, prioritas tertinggi
	if sem, ok := in.Semantic.Value(); ok {
		for _, tag := range sem.SuggestedTags {
			if tag == "" {
				continue
			}
			set.upsert(newSuggestion(tag, sem.Confidence, photos.ProviderSemantic, false))
		}
		if sem.IsTouristSpot && sem.SpotName != "" {
			set.upsert(newSuggestion(sem.SpotName, sem.Confidence, photos.ProviderSemantic, true))
		}
	}

	threshold := policy.PersistThreshold
	if threshold <= 0 {
		threshold = PersistConfidenceThreshold
	}
	persisted := make([]*photos.TagSuggestion, 0, len(set.items))
	for _, sg := range set.items {
		if sg.Confidence >= threshold {
			persisted = append(persisted, sg)
		}
	}
	return FusionResult{All: set.items, Persisted: persisted}
}
