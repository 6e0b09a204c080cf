package analysis

import (
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/photo-tagger/internal/application"
	domai "github.com/bryanwahyu/photo-tagger/internal/domain/ai"
	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
)

// MaxVisionPayloadBytes is the upload ceiling enforced by the vision classifier.
const MaxVisionPayloadBytes = 4 * 1024 * 1024

// Defaults are applied to requests that do not set a value.
type Defaults struct {
	MinConfidence     float64
	UseThumbnail      bool
	PlaceSearchRadius int
	MaxParallelism    int
}

// DefaultDefaults returns the stock request defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		MinConfidence:     0.7,
		UseThumbnail:      true,
		PlaceSearchRadius: 100,
		MaxParallelism:    3,
	}
}

// Request builds a request for one photo pre-filled with defaults.
// HTTP handlers decode the body on top of it so absent fields keep their default.
func (d Defaults) Request(photoID, userID int64) AnalysisRequest {
	return AnalysisRequest{
		PhotoID:               photoID,
		UserID:                userID,
		EnableObjectDetection: true,
		EnablePlaceDetection:  true,
		MinConfidence:         d.MinConfidence,
		UseThumbnail:          d.UseThumbnail,
		PlaceSearchRadius:     d.PlaceSearchRadius,
	}
}

// Policy groups the tunables read by the orchestrator.
type Policy struct {
	Defaults         Defaults
	Categories       CategoryRules
	PlaceTypeLabels  map[string]string
	PersistThreshold float64
	// ProviderTimeout bounds each provider call; zero disables it.
	ProviderTimeout time.Duration
	MaxPayloadBytes int
	// DescriberMaxEdge is the longest edge (px) of the image sent to the describer.
	DescriberMaxEdge int
	DescribeOptions  domai.DescribeOptions
}

// DefaultPolicy returns the stock policy.
func DefaultPolicy() Policy {
	return Policy{
		Defaults: DefaultDefaults(),
		Categories: CategoryRules{
			IDs:           CategoryIDs{AI: 1, Location: 2, Scene: 3},
			SceneKeywords: DefaultSceneKeywords,
		},
		PlaceTypeLabels:  DefaultPlaceTypeLabels,
		PersistThreshold: PersistConfidenceThreshold,
		ProviderTimeout:  60 * time.Second,
		MaxPayloadBytes:  MaxVisionPayloadBytes,
		DescriberMaxEdge: 1024,
		DescribeOptions:  domai.DefaultDescribeOptions(),
	}
}

func (p Policy) fusion(minConfidence float64) FusionPolicy {
	return FusionPolicy{
		MinConfidence:    minConfidence,
		PersistThreshold: p.PersistThreshold,
		Categories:       p.Categories,
		PlaceTypeLabels:  p.PlaceTypeLabels,
	}
}

// Service implements the photo analysis use-cases.
// Service is safe for concurrent use; every call works on its own photo.
type Service struct {
	Repo      photos.Repository
	Blobs     photos.BlobStore
	Vision    domai.VisionClassifier
	Places    domai.PlaceResolver
	Describer domai.SemanticDescriber
	Clock     application.Clock
	Logger    *zap.Logger
	Policy    Policy
}

func (s *Service) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *Service) selector() *Selector {
	return &Selector{
		Repo:     s.Repo,
		Blobs:    s.Blobs,
		Logger:   s.log(),
		MaxBytes: s.Policy.MaxPayloadBytes,
	}
}
