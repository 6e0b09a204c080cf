package ai

import "context"

// VisionClassifier port (object/tag detection)
type VisionClassifier interface {
	Analyze(ctx context.Context, image []byte, features []Feature) (*VisionResult, error)
}

// PlaceResolver port (GPS -> tourist spot)
type PlaceResolver interface {
	IdentifySpot(ctx context.Context, lat, lon float64, radiusMeters int) (*SpotResult, error)
}

// SemanticDescriber port (vision-language model)
type SemanticDescriber interface {
	Describe(ctx context.Context, in DescribeContext) (*SemanticResult, error)
}
