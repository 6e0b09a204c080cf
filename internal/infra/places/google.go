package places

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	domai "github.com/bryanwahyu/photo-tagger/internal/domain/ai"
	"github.com/bryanwahyu/photo-tagger/internal/retry"
)

const (
	defaultRadius = 500
	maxCandidates = 5
	earthRadiusM  = 6371000.0
)

// types that count as a tourist spot
var touristTypes = map[string]bool{
	"tourist_attraction": true,
	"museum":             true,
	"park":               true,
	"amusement_park":     true,
	"aquarium":           true,
	"art_gallery":        true,
	"zoo":                true,
	"church":             true,
	"hindu_temple":       true,
	"mosque":             true,
	"synagogue":          true,
	"stadium":            true,
	"natural_feature":    true,
}

type nearbySearcher interface {
	NearbySearch(ctx context.Context, r *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error)
}

// Resolver finds the tourist spot closest to a GPS point.
type Resolver struct {
	api    nearbySearcher
	Retry  *retry.Config
	Logger *zap.Logger
}

var _ domai.PlaceResolver = (*Resolver)(nil)

func NewResolver(apiKey string, retryCfg *retry.Config, logger *zap.Logger) (*Resolver, error) {
	cli, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{api: cli, Retry: retryCfg, Logger: logger.Named("places")}, nil
}

// IdentifySpot runs a nearby search and picks the closest candidate whose
// types mark it as an attraction. No match is a successful, non-tourist result.
func (r *Resolver) IdentifySpot(ctx context.Context, lat, lon float64, radiusMeters int) (*domai.SpotResult, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("invalid coordinates %.6f,%.6f", lat, lon)
	}
	if radiusMeters <= 0 {
		radiusMeters = defaultRadius
	}

	req := &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: lat, Lng: lon},
		Radius:   uint(radiusMeters),
	}
	resp, err := retry.DoWithResult(ctx, r.Retry, func() (maps.PlacesSearchResponse, error) {
		return r.api.NearbySearch(ctx, req)
	})
	if err != nil {
		return nil, mapError(err)
	}

	candidates := toCandidates(lat, lon, resp.Results)
	r.Logger.Debug("nearby search",
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
		zap.Int("radius_m", radiusMeters),
		zap.Int("results", len(candidates)),
	)
	return pickSpot(candidates, radiusMeters), nil
}

func toCandidates(lat, lon float64, results []maps.PlacesSearchResult) []domai.PlaceCandidate {
	out := make([]domai.PlaceCandidate, 0, len(results))
	for _, p := range results {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		loc := p.Geometry.Location
		out = append(out, domai.PlaceCandidate{
			PlaceID:          p.PlaceID,
			Name:             p.Name,
			Types:            p.Types,
			Latitude:         loc.Lat,
			Longitude:        loc.Lng,
			DistanceMeters:   math.Round(haversine(lat, lon, loc.Lat, loc.Lng)),
			Rating:           p.Rating,
			UserRatingsTotal: p.UserRatingsTotal,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out
}

func pickSpot(candidates []domai.PlaceCandidate, radius int) *domai.SpotResult {
	res := &domai.SpotResult{Candidates: candidates}
	if len(res.Candidates) > maxCandidates {
		res.Candidates = res.Candidates[:maxCandidates]
	}
	for _, c := range candidates {
		if !isTourist(c.Types) {
			continue
		}
		res.IsTouristSpot = true
		res.SpotName = c.Name
		res.DistanceMeters = c.DistanceMeters
		res.SpotTypes = c.Types
		res.Confidence = confidence(c, radius)
		return res
	}
	return res
}

func isTourist(types []string) bool {
	for _, t := range types {
		if touristTypes[t] {
			return true
		}
	}
	return false
}

// confidence turun linear dengan jarak, plus sedikit bonus untuk tempat populer
func confidence(c domai.PlaceCandidate, radius int) float64 {
	ratio := 1.0
	if radius > 0 {
		ratio = c.DistanceMeters / float64(radius)
	}
	conf := 0.99 - 0.4*ratio
	if c.UserRatingsTotal >= 1000 {
		conf += 0.02
	}
	return math.Max(0.5, math.Min(0.99, conf))
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "OVER_QUERY_LIMIT") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return fmt.Errorf("%w: %s", domai.ErrQuotaExceeded, msg)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("nearby search: %w", err)
}
