package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	domai "github.com/bryanwahyu/photo-tagger/internal/domain/ai"
	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
	"github.com/bryanwahyu/photo-tagger/internal/imageproc"
	"github.com/bryanwahyu/photo-tagger/internal/metrics"
)

// ErrorKind classifies a Failed response.
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindNotFound  ErrorKind = "not_found"
	ErrorKindForbidden ErrorKind = "forbidden"
	ErrorKindInternal  ErrorKind = "internal"
)

// AnalysisRequest untuk satu foto
type AnalysisRequest struct {
	PhotoID               int64   `json:"photo_id"`
	UserID                int64   `json:"-"`
	EnableObjectDetection bool    `json:"enable_object_detection"`
	EnablePlaceDetection  bool    `json:"enable_place_detection"`
	ForceReanalysis       bool    `json:"force_reanalysis"`
	MinConfidence         float64 `json:"min_confidence"`
	UseThumbnail          bool    `json:"use_thumbnail"`
	PlaceSearchRadius     int     `json:"place_search_radius"`
}

// AnalysisResponse is always returned for a finished call; Status tells
// whether any provider produced data.
type AnalysisResponse struct {
	LogID             int64                   `json:"log_id,omitempty"`
	PhotoID           int64                   `json:"photo_id"`
	Status            photos.Status           `json:"status"`
	ErrorKind         ErrorKind               `json:"error_kind,omitempty"`
	Cached            bool                    `json:"cached"`
	AnalyzedAt        time.Time               `json:"analyzed_at"`
	Vision            *VisionSummary          `json:"vision,omitempty"`
	Places            *PlacesSummary          `json:"places,omitempty"`
	Semantic          *SemanticSummary        `json:"semantic,omitempty"`
	Suggestions       []*photos.TagSuggestion `json:"suggestions"`
	TotalProcessingMS int64                   `json:"total_processing_ms"`
	QuotaUsed         int                     `json:"quota_used"`
	ErrorMessage      string                  `json:"error_message,omitempty"`
	Errors            []string                `json:"errors,omitempty"`
}

func (s *Service) normalize(req AnalysisRequest) AnalysisRequest {
	if req.MinConfidence < 0 {
		req.MinConfidence = 0
	}
	if req.MinConfidence > 1 {
		req.MinConfidence = 1
	}
	if req.PlaceSearchRadius <= 0 {
		req.PlaceSearchRadius = s.Policy.Defaults.PlaceSearchRadius
	}
	return req
}

// AnalyzePhoto runs the three providers for one photo, fuses their output
// and persists the log plus gated suggestions. The only error returned is a
// failure to persist the analysis log; everything else ends up in the response.
func (s *Service) AnalyzePhoto(ctx context.Context, req AnalysisRequest) (resp *AnalysisResponse, err error) {
	start := time.Now()
	log := s.log().With(zap.Int64("photo_id", req.PhotoID), zap.Int64("user_id", req.UserID))
	metrics.IncrementAnalyses()
	metrics.IncrementAnalysesRunning()
	defer metrics.DecrementAnalysesRunning()

	defer func() {
		if r := recover(); r != nil {
			log.Error("analysis panicked", zap.Any("panic", r))
			resp, err = s.failedResponse(req.PhotoID, ErrorKindInternal, fmt.Sprintf("analysis panicked: %v", r), start), nil
		}
		if err != nil || (resp != nil && resp.Status == photos.StatusFailed) {
			metrics.IncrementAnalysesFailed()
		}
	}()

	req = s.normalize(req)
	log.Info("analysis started", zap.Bool("force", req.ForceReanalysis))

	photo, err := s.Repo.GetPhoto(ctx, req.PhotoID)
	if errors.Is(err, photos.ErrNotFound) {
		log.Warn("photo not found")
		return s.failedResponse(req.PhotoID, ErrorKindNotFound, "photo not found", start), nil
	}
	if err != nil {
		log.Error("load photo failed", zap.Error(err))
		return s.failedResponse(req.PhotoID, ErrorKindInternal, err.Error(), start), nil
	}
	if photo.UserID != req.UserID {
		log.Warn("photo owned by another user", zap.Int64("owner_id", photo.UserID))
		return s.failedResponse(req.PhotoID, ErrorKindForbidden, "not allowed to analyze this photo", start), nil
	}

	if !req.ForceReanalysis {
		has, err := s.Repo.HasExistingAnalysis(ctx, req.PhotoID)
		if err != nil {
			log.Error("existing analysis check failed", zap.Error(err))
			return s.failedResponse(req.PhotoID, ErrorKindInternal, err.Error(), start), nil
		}
		if has {
			existing, err := s.latestSuccessful(ctx, req.PhotoID)
			if err == nil && existing != nil {
				log.Info("returning existing analysis", zap.Int64("log_id", existing.LogID))
				metrics.IncrementCacheHits()
				existing.Cached = true
				return existing, nil
			}
			log.Warn("existing analysis unreadable, analyzing again", zap.Error(err))
		}
	}

	// phase 1: vision + places jalan paralel
	var (
		visionOut domai.Outcome[domai.VisionResult]
		placesOut domai.Outcome[domai.SpotResult]
		selected  atomic.Pointer[SelectedImage]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		visionOut = s.runVision(gctx, photo, req, &selected, log)
		return nil
	})
	g.Go(func() error {
		placesOut = s.runPlaces(gctx, photo, req, log)
		return nil
	})
	_ = g.Wait()
	log.Info("phase one finished",
		zap.String("vision", string(visionOut.Status)),
		zap.String("places", string(placesOut.Status)),
	)

	// phase 2: semantic describer butuh hasil phase 1
	semanticOut := s.runSemantic(ctx, photo, visionOut, placesOut, selected.Load(), log)
	log.Info("phase two finished", zap.String("semantic", string(semanticOut.Status)))

	// phase 3: persist log, fuse, persist suggestions
	entry := &photos.AnalysisLog{
		PhotoID:          req.PhotoID,
		UserID:           req.UserID,
		Model:            photos.ModelMultiProvider,
		AnalyzedAt:       s.now(),
		VisionResponse:   encodeOutcome(visionOut, log),
		PlacesResponse:   encodeOutcome(placesOut, log),
		SemanticResponse: encodeOutcome(semanticOut, log),
		Status:           photos.StatusFailed,
		QuotaUsed:        1,
		ErrorMessage:     firstNonEmpty(semanticOut.FailureReason(), visionOut.FailureReason(), placesOut.FailureReason()),
	}
	if visionOut.OK() || placesOut.OK() || semanticOut.OK() {
		entry.Status = photos.StatusSuccess
	}
	entry.ProcessingTimeMS = time.Since(start).Milliseconds()

	logID, err := s.Repo.SaveLog(ctx, entry)
	if err != nil {
		log.Error("save analysis log failed", zap.Error(err))
		return nil, fmt.Errorf("save analysis log for photo %d: %w", req.PhotoID, err)
	}
	entry.LogID = logID

	fused := Fuse(FusionInput{
		LogID:    logID,
		PhotoID:  req.PhotoID,
		Vision:   visionOut,
		Places:   placesOut,
		Semantic: semanticOut,
		Now:      entry.AnalyzedAt,
	}, s.Policy.fusion(req.MinConfidence))
	log.Info("fusion finished",
		zap.Int("candidates", len(fused.All)),
		zap.Int("persisted", len(fused.Persisted)),
		zap.Float64("min_confidence", req.MinConfidence),
	)
	for _, sg := range fused.All {
		log.Debug("fused candidate",
			zap.String("tag", sg.TagName),
			zap.String("source", string(sg.Source)),
			zap.Float64("confidence", sg.Confidence),
			zap.Int64("category_id", sg.CategoryID),
		)
	}

	errs := providerErrors(visionOut, placesOut, semanticOut)
	saved := []*photos.TagSuggestion{}
	if len(fused.Persisted) > 0 {
		out, err := s.Repo.SaveSuggestions(ctx, fused.Persisted)
		if err != nil {
			log.Error("save suggestions failed", zap.Error(err))
			errs = append(errs, "save suggestions: "+err.Error())
		} else {
			saved = out
		}
	}
	metrics.AddSuggestionsCreated(len(saved))

	resp = &AnalysisResponse{
		LogID:             logID,
		PhotoID:           req.PhotoID,
		Status:            entry.Status,
		AnalyzedAt:        entry.AnalyzedAt,
		Vision:            summarizeVision(visionOut),
		Places:            summarizePlaces(placesOut),
		Semantic:          summarizeSemantic(semanticOut),
		Suggestions:       saved,
		TotalProcessingMS: time.Since(start).Milliseconds(),
		QuotaUsed:         1,
		Errors:            errs,
	}
	if resp.Status == photos.StatusFailed {
		resp.ErrorKind = ErrorKindInternal
		resp.ErrorMessage = entry.ErrorMessage
	}
	log.Info("analysis finished",
		zap.String("status", string(resp.Status)),
		zap.Int("suggestions", len(saved)),
		zap.Int64("elapsed_ms", resp.TotalProcessingMS),
	)
	return resp, nil
}

func (s *Service) failedResponse(photoID int64, kind ErrorKind, msg string, start time.Time) *AnalysisResponse {
	return &AnalysisResponse{
		PhotoID:           photoID,
		Status:            photos.StatusFailed,
		ErrorKind:         kind,
		AnalyzedAt:        s.now(),
		Suggestions:       []*photos.TagSuggestion{},
		TotalProcessingMS: time.Since(start).Milliseconds(),
		ErrorMessage:      msg,
		Errors:            []string{msg},
	}
}

func (s *Service) runVision(ctx context.Context, photo *photos.Photo, req AnalysisRequest, selected *atomic.Pointer[SelectedImage], log *zap.Logger) domai.Outcome[domai.VisionResult] {
	if !req.EnableObjectDetection {
		return domai.Skipped[domai.VisionResult]("object detection disabled")
	}
	if s.Vision == nil {
		return domai.Skipped[domai.VisionResult]("vision classifier not configured")
	}
	out := callProvider(ctx, s.Policy.ProviderTimeout, func(ctx context.Context) (*domai.VisionResult, error) {
		img, err := s.selector().Select(ctx, photo, req.UseThumbnail)
		if err != nil {
			return nil, err
		}
		selected.Store(img)
		res, err := s.Vision.Analyze(ctx, img.Data, domai.DefaultFeatures)
		if err != nil || res == nil {
			return res, err
		}
		res.UsedThumbnail = img.UsedThumbnail
		res.OriginalSizeMB = img.OriginalSizeMB
		res.AnalyzedSizeMB = img.AnalyzedSizeMB
		return res, nil
	})
	if out.Status == domai.OutcomeFailed {
		metrics.IncrementProviderFailures(string(photos.ProviderVision))
		log.Warn("vision classifier failed", zap.String("reason", out.Reason))
	}
	return out
}

func (s *Service) runPlaces(ctx context.Context, photo *photos.Photo, req AnalysisRequest, log *zap.Logger) domai.Outcome[domai.SpotResult] {
	if !req.EnablePlaceDetection {
		return domai.Skipped[domai.SpotResult]("place detection disabled")
	}
	if !photo.Metadata.HasGPS() {
		return domai.Skipped[domai.SpotResult]("photo has no GPS coordinates")
	}
	if s.Places == nil {
		return domai.Skipped[domai.SpotResult]("place resolver not configured")
	}
	lat, lon := *photo.Metadata.Latitude, *photo.Metadata.Longitude
	out := callProvider(ctx, s.Policy.ProviderTimeout, func(ctx context.Context) (*domai.SpotResult, error) {
		return s.Places.IdentifySpot(ctx, lat, lon, req.PlaceSearchRadius)
	})
	if out.Status == domai.OutcomeFailed {
		metrics.IncrementProviderFailures(string(photos.ProviderPlaces))
		log.Warn("place resolver failed", zap.String("reason", out.Reason))
	}
	return out
}

func (s *Service) runSemantic(
	ctx context.Context,
	photo *photos.Photo,
	vision domai.Outcome[domai.VisionResult],
	places domai.Outcome[domai.SpotResult],
	selected *SelectedImage,
	log *zap.Logger,
) domai.Outcome[domai.SemanticResult] {
	if s.Describer == nil {
		return domai.Skipped[domai.SemanticResult]("semantic describer not configured")
	}
	out := callProvider(ctx, s.Policy.ProviderTimeout, func(ctx context.Context) (*domai.SemanticResult, error) {
		if selected == nil {
			img, err := s.selector().Select(ctx, photo, true)
			if err != nil {
				return nil, err
			}
			selected = img
		}
		encoded, mediaType := s.describerImage(selected.Data, log)
		in := domai.DescribeContext{
			ImageBase64: encoded,
			MediaType:   mediaType,
			Exif:        exifContext(photo, selected.Data),
			Options:     s.Policy.DescribeOptions,
		}
		if v, ok := vision.Value(); ok {
			in.Vision = v
		}
		if p, ok := places.Value(); ok {
			in.Places = placeCandidates(p)
		}
		return s.Describer.Describe(ctx, in)
	})
	if out.Status == domai.OutcomeFailed {
		metrics.IncrementProviderFailures(string(photos.ProviderSemantic))
		log.Warn("semantic describer failed", zap.String("reason", out.Reason))
	}
	return out
}

// describerImage downscales for transmission; undecodable bytes are sent as-is.
func (s *Service) describerImage(data []byte, log *zap.Logger) (string, string) {
	small, err := imageproc.Downscale(data, s.Policy.DescriberMaxEdge)
	if err != nil {
		log.Debug("describer image not downscaled", zap.Error(err))
		return base64.StdEncoding.EncodeToString(data), imageproc.MediaType(data)
	}
	return base64.StdEncoding.EncodeToString(small), "image/jpeg"
}

// exifContext starts from stored metadata and backfills from embedded EXIF.
func exifContext(photo *photos.Photo, data []byte) domai.ExifContext {
	var out domai.ExifContext
	var cameraMake, cameraModel string
	if m := photo.Metadata; m != nil {
		out.DateTaken, out.Latitude, out.Longitude = m.DateTaken, m.Latitude, m.Longitude
		cameraMake, cameraModel = m.CameraMake, m.CameraModel
	}
	if out.DateTaken == nil || out.Latitude == nil || cameraMake == "" || cameraModel == "" {
		if ex := imageproc.ReadExif(data); ex != nil {
			if out.DateTaken == nil {
				out.DateTaken = ex.DateTaken
			}
			if out.Latitude == nil || out.Longitude == nil {
				out.Latitude, out.Longitude = ex.Latitude, ex.Longitude
			}
			if cameraMake == "" {
				cameraMake = ex.CameraMake
			}
			if cameraModel == "" {
				cameraModel = ex.CameraModel
			}
		}
	}
	out.CameraInfo = strings.TrimSpace(cameraMake + " " + cameraModel)
	return out
}

func placeCandidates(p *domai.SpotResult) []domai.PlaceCandidate {
	if len(p.Candidates) > 0 {
		return p.Candidates
	}
	if p.SpotName == "" {
		return nil
	}
	return []domai.PlaceCandidate{{Name: p.SpotName, Types: p.SpotTypes, DistanceMeters: p.DistanceMeters}}
}

// callProvider turns one provider call into an Outcome. Panics, errors,
// empty answers and timeouts all become Failed.
func callProvider[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (*T, error)) domai.Outcome[T] {
	start := time.Now()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		val *T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("provider panicked: %v", r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{val: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return domai.Failed[T](r.err.Error(), time.Since(start))
		}
		if r.val == nil {
			return domai.Failed[T](domai.ErrEmptyResponse.Error(), time.Since(start))
		}
		return domai.Succeeded(r.val, time.Since(start))
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domai.Failed[T](fmt.Sprintf("timed out after %s", timeout), time.Since(start))
		}
		return domai.Failed[T](ctx.Err().Error(), time.Since(start))
	}
}

// encodeOutcome serializes an outcome for the log. Skipped providers store nil.
func encodeOutcome[T any](o domai.Outcome[T], log *zap.Logger) *string {
	if o.Status == domai.OutcomeSkipped || o.Status == "" {
		return nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		log.Warn("encode provider outcome failed", zap.Error(err))
		return nil
	}
	s := string(b)
	return &s
}

// decodeOutcome reads a stored payload back. Missing or malformed payloads
// are treated as no data from that provider.
func decodeOutcome[T any](raw *string, provider photos.Provider, log *zap.Logger) domai.Outcome[T] {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return domai.Skipped[T]("not recorded")
	}
	var o domai.Outcome[T]
	if err := json.Unmarshal([]byte(*raw), &o); err != nil {
		log.Warn("stored provider payload unreadable", zap.String("provider", string(provider)), zap.Error(err))
		return domai.Skipped[T]("stored payload unreadable")
	}
	return o
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func providerErrors(
	vision domai.Outcome[domai.VisionResult],
	places domai.Outcome[domai.SpotResult],
	semantic domai.Outcome[domai.SemanticResult],
) []string {
	var errs []string
	if vision.Status == domai.OutcomeFailed {
		errs = append(errs, "vision: "+vision.Reason)
	}
	if places.Status == domai.OutcomeFailed {
		errs = append(errs, "places: "+places.Reason)
	}
	if semantic.Status == domai.OutcomeFailed {
		errs = append(errs, "semantic: "+semantic.Reason)
	}
	return errs
}
