package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bryanwahyu/photo-tagger/internal/application"
	domai "github.com/bryanwahyu/photo-tagger/internal/domain/ai"
	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
)

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	svc       *Service
	repo      *fakeRepo
	blobs     *fakeBlobs
	vision    *fakeVision
	places    *fakePlaces
	describer *fakeDescriber
}

func newHarness() *harness {
	repo := newFakeRepo()
	repo.photos[1] = &photos.Photo{
		PhotoID:       1,
		UserID:        10,
		ThumbnailData: []byte("thumb"),
		Metadata: &photos.Metadata{
			Latitude:    ptr(25.0339),
			Longitude:   ptr(121.5645),
			CameraMake:  "Canon",
			CameraModel: "EOS R6",
		},
	}
	h := &harness{
		repo:  repo,
		blobs: &fakeBlobs{},
		vision: &fakeVision{result: &domai.VisionResult{
			Objects: []domai.Detection{{Name: "tower", Confidence: 0.97}},
			Tags: []domai.Detection{
				{Name: "building", Confidence: 0.98},
				{Name: "sky", Confidence: 0.96},
				{Name: "car", Confidence: 0.50},
			},
			DominantColors: []string{"Blue", "Grey"},
			Caption:        "a tall tower under a blue sky",
		}},
		places: &fakePlaces{result: &domai.SpotResult{
			IsTouristSpot:  true,
			SpotName:       "Taipei 101",
			Confidence:     0.96,
			DistanceMeters: 35,
			SpotTypes:      []string{"tourist_attraction"},
		}},
		describer: &fakeDescriber{result: &domai.SemanticResult{
			SuggestedTags: []string{"skyscraper", "tower"},
			IsTouristSpot: true,
			SpotName:      "Taipei 101",
			Confidence:    0.97,
			Description:   "Taipei 101 at noon",
			Usage:         domai.TokenUsage{InputTokens: 100, OutputTokens: 50},
		}},
	}
	policy := DefaultPolicy()
	policy.ProviderTimeout = 2 * time.Second
	h.svc = &Service{
		Repo:      repo,
		Blobs:     h.blobs,
		Vision:    h.vision,
		Places:    h.places,
		Describer: h.describer,
		Clock:     application.FixedClock{T: fixedNow},
		Logger:    zap.NewNop(),
		Policy:    policy,
	}
	return h
}

func (h *harness) request() AnalysisRequest {
	return h.svc.Policy.Defaults.Request(1, 10)
}

func TestAnalyzePhoto_FullRun(t *testing.T) {
	h := newHarness()

	resp, err := h.svc.AnalyzePhoto(context.Background(), h.request())
	require.NoError(t, err)

	assert.Equal(t, photos.StatusSuccess, resp.Status)
	assert.Equal(t, 1, resp.QuotaUsed)
	assert.Equal(t, int64(1), resp.LogID)
	assert.False(t, resp.Cached)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, fixedNow, resp.AnalyzedAt)

	assert.Equal(t,
		[]string{"tower", "building", "sky", "Taipei 101", "Tourist Attraction", "skyscraper"},
		names(resp.Suggestions))
	got := byName(resp.Suggestions)
	assert.Equal(t, photos.ProviderSemantic, got["tower"].Source)
	assert.Equal(t, photos.ProviderSemantic, got["Taipei 101"].Source)
	assert.Equal(t, int64(2), got["Taipei 101"].CategoryID)
	assert.Equal(t, int64(3), got["skyscraper"].CategoryID)

	require.NotNil(t, resp.Vision)
	assert.True(t, resp.Vision.UsedThumbnail)
	assert.Equal(t, []string{"tower"}, resp.Vision.TopObjects)
	assert.Equal(t, []string{"building", "sky", "car"}, resp.Vision.TopTags)
	require.NotNil(t, resp.Places)
	assert.Equal(t, "Taipei 101", resp.Places.NearestPlaceName)
	require.NotNil(t, resp.Semantic)
	assert.Equal(t, 100, resp.Semantic.InputTokens)

	require.Len(t, h.repo.logs, 1)
	entry := h.repo.logs[0]
	assert.Equal(t, photos.StatusSuccess, entry.Status)
	assert.Equal(t, photos.ModelMultiProvider, entry.Model)
	assert.Equal(t, 1, entry.QuotaUsed)
	assert.NotNil(t, entry.VisionResponse)
	assert.NotNil(t, entry.PlacesResponse)
	assert.NotNil(t, entry.SemanticResponse)

	// describer sees phase one output and capture context
	dc := h.describer.got
	require.NotNil(t, dc.Vision)
	assert.Equal(t, "a tall tower under a blue sky", dc.Vision.Caption)
	require.Len(t, dc.Places, 1)
	assert.Equal(t, "Taipei 101", dc.Places[0].Name)
	assert.Equal(t, "Canon EOS R6", dc.Exif.CameraInfo)
	assert.NotEmpty(t, dc.ImageBase64)
	assert.Equal(t, float32(0.2), dc.Options.Temperature)
	assert.Equal(t, 2048, dc.Options.MaxTokens)
}

func TestAnalyzePhoto_IdempotentWithoutForce(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first, err := h.svc.AnalyzePhoto(ctx, h.request())
	require.NoError(t, err)
	second, err := h.svc.AnalyzePhoto(ctx, h.request())
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.LogID, second.LogID)
	assert.Equal(t, names(first.Suggestions), names(second.Suggestions))
	assert.Equal(t, int32(1), h.vision.calls.Load())
	assert.Equal(t, int32(1), h.places.calls.Load())
	assert.Equal(t, int32(1), h.describer.calls.Load())
	assert.Len(t, h.repo.logs, 1)
}

func TestAnalyzePhoto_ForceReanalysisCallsProvidersAgain(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.svc.AnalyzePhoto(ctx, h.request())
	require.NoError(t, err)

	req := h.request()
	req.ForceReanalysis = true
	resp, err := h.svc.AnalyzePhoto(ctx, req)
	require.NoError(t, err)

	assert.False(t, resp.Cached)
	assert.Equal(t, int64(2), resp.LogID)
	assert.Equal(t, int32(2), h.vision.calls.Load())
	assert.Len(t, h.repo.logs, 2)
}

func TestAnalyzePhoto_CachedSkipsLaterFailedRun(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first, err := h.svc.AnalyzePhoto(ctx, h.request())
	require.NoError(t, err)
	require.Equal(t, photos.StatusSuccess, first.Status)

	h.vision.err = errors.New("vision down")
	h.places.err = errors.New("places down")
	h.describer.err = errors.New("describer down")
	forced := h.request()
	forced.ForceReanalysis = true
	failed, err := h.svc.AnalyzePhoto(ctx, forced)
	require.NoError(t, err)
	require.Equal(t, photos.StatusFailed, failed.Status)
	require.Len(t, h.repo.logs, 2)

	again, err := h.svc.AnalyzePhoto(ctx, h.request())
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, photos.StatusSuccess, again.Status)
	assert.Equal(t, first.LogID, again.LogID)
	assert.Empty(t, again.ErrorMessage)
	assert.NotNil(t, again.Vision)
	assert.Equal(t, names(first.Suggestions), names(again.Suggestions))
	assert.Equal(t, int32(2), h.vision.calls.Load())
	assert.Len(t, h.repo.logs, 2)

	// the history view still reports the newest attempt
	latest, err := h.svc.GetAnalysis(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, photos.StatusFailed, latest.Status)
}

func TestAnalyzePhoto_NotFoundAndForbidden(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	missing := h.request()
	missing.PhotoID = 999
	resp, err := h.svc.AnalyzePhoto(ctx, missing)
	require.NoError(t, err)
	assert.Equal(t, photos.StatusFailed, resp.Status)
	assert.Equal(t, ErrorKindNotFound, resp.ErrorKind)

	other := h.request()
	other.UserID = 11
	resp, err = h.svc.AnalyzePhoto(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, photos.StatusFailed, resp.Status)
	assert.Equal(t, ErrorKindForbidden, resp.ErrorKind)

	assert.Zero(t, h.vision.calls.Load())
	assert.Zero(t, h.places.calls.Load())
	assert.Zero(t, h.describer.calls.Load())
	assert.Empty(t, h.repo.logs)
}

func TestAnalyzePhoto_DescriberPanicDegradesGracefully(t *testing.T) {
	h := newHarness()
	h.describer.panic = true

	resp, err := h.svc.AnalyzePhoto(context.Background(), h.request())
	require.NoError(t, err)

	assert.Equal(t, photos.StatusSuccess, resp.Status)
	assert.Nil(t, resp.Semantic)
	require.Len(t, resp.Errors, 1)
	assert.True(t, strings.HasPrefix(resp.Errors[0], "semantic:"))
	assert.Contains(t, h.repo.logs[0].ErrorMessage, "describer exploded")
	// without the describer, vision and places still produce suggestions
	assert.Equal(t, photos.ProviderVision, byName(resp.Suggestions)["tower"].Source)
}

func TestAnalyzePhoto_DescriberTimeoutIsFailedOutcome(t *testing.T) {
	h := newHarness()
	h.describer.block = true
	h.svc.Policy.ProviderTimeout = 50 * time.Millisecond

	resp, err := h.svc.AnalyzePhoto(context.Background(), h.request())
	require.NoError(t, err)

	assert.Equal(t, photos.StatusSuccess, resp.Status)
	assert.Nil(t, resp.Semantic)
	assert.Regexp(t, "timed out|deadline exceeded", h.repo.logs[0].ErrorMessage)
}

func TestAnalyzePhoto_AllProvidersFail(t *testing.T) {
	h := newHarness()
	h.vision.err = errors.New("vision down")
	h.places.err = errors.New("places down")
	h.describer.err = errors.New("describer down")

	resp, err := h.svc.AnalyzePhoto(context.Background(), h.request())
	require.NoError(t, err)

	assert.Equal(t, photos.StatusFailed, resp.Status)
	assert.Equal(t, "describer down", resp.ErrorMessage)
	assert.Empty(t, resp.Suggestions)
	assert.Len(t, resp.Errors, 3)
	assert.Equal(t, 1, resp.QuotaUsed)
	require.Len(t, h.repo.logs, 1)
	assert.Equal(t, photos.StatusFailed, h.repo.logs[0].Status)

	has, err := h.repo.HasExistingAnalysis(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAnalyzePhoto_LogErrorTextFallsBackToVision(t *testing.T) {
	h := newHarness()
	h.vision.err = errors.New("vision down")

	_, err := h.svc.AnalyzePhoto(context.Background(), h.request())
	require.NoError(t, err)
	assert.Equal(t, "vision down", h.repo.logs[0].ErrorMessage)
}

func TestAnalyzePhoto_SaveLogFailureIsFatal(t *testing.T) {
	h := newHarness()
	h.repo.saveLogErr = errors.New("db gone")

	resp, err := h.svc.AnalyzePhoto(context.Background(), h.request())
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "db gone")
}

func TestAnalyzePhoto_SaveSuggestionsFailureIsAbsorbed(t *testing.T) {
	h := newHarness()
	h.repo.saveSuggestionsErr = errors.New("constraint violation")

	resp, err := h.svc.AnalyzePhoto(context.Background(), h.request())
	require.NoError(t, err)

	assert.Equal(t, photos.StatusSuccess, resp.Status)
	assert.Empty(t, resp.Suggestions)
	assert.Contains(t, strings.Join(resp.Errors, ";"), "constraint violation")
}

func TestAnalyzePhoto_NoGPSSkipsPlaces(t *testing.T) {
	h := newHarness()
	h.repo.photos[1].Metadata = nil

	resp, err := h.svc.AnalyzePhoto(context.Background(), h.request())
	require.NoError(t, err)

	assert.Zero(t, h.places.calls.Load())
	assert.Nil(t, resp.Places)
	assert.Nil(t, h.repo.logs[0].PlacesResponse)
	assert.Empty(t, resp.Errors)
}

func TestAnalyzePhoto_DisabledFeaturesStillDescribe(t *testing.T) {
	h := newHarness()
	req := h.request()
	req.EnableObjectDetection = false
	req.EnablePlaceDetection = false

	resp, err := h.svc.AnalyzePhoto(context.Background(), req)
	require.NoError(t, err)

	assert.Zero(t, h.vision.calls.Load())
	assert.Zero(t, h.places.calls.Load())
	assert.Equal(t, int32(1), h.describer.calls.Load())
	assert.Nil(t, h.describer.got.Vision)
	assert.NotEmpty(t, h.describer.got.ImageBase64)
	assert.Equal(t, photos.StatusSuccess, resp.Status)
	assert.Nil(t, h.repo.logs[0].VisionResponse)
}

func TestAnalyzePhoto_VisionWithoutImageFails(t *testing.T) {
	h := newHarness()
	h.repo.photos[1].ThumbnailData = nil

	resp, err := h.svc.AnalyzePhoto(context.Background(), h.request())
	require.NoError(t, err)

	assert.Zero(t, h.vision.calls.Load())
	assert.Nil(t, resp.Vision)
	// places still succeeded
	assert.Equal(t, photos.StatusSuccess, resp.Status)
	assert.Contains(t, strings.Join(resp.Errors, ";"), photos.ErrNoImageData.Error())
}

func TestAnalyzePhoto_LowConfidenceNeverPersisted(t *testing.T) {
	h := newHarness()
	h.vision.result = &domai.VisionResult{Tags: []domai.Detection{{Name: "lamp", Confidence: 0.94}}}
	h.describer.err = errors.New("off")
	h.repo.photos[1].Metadata = nil

	req := h.request()
	req.MinConfidence = 0.10
	resp, err := h.svc.AnalyzePhoto(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, resp.Suggestions)

	pending, err := h.svc.PendingSuggestions(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestGetAnalysis_MalformedPayloadTreatedAsMissing(t *testing.T) {
	h := newHarness()
	bad := "{not json"
	_, err := h.repo.SaveLog(context.Background(), &photos.AnalysisLog{
		PhotoID:        1,
		UserID:         10,
		Status:         photos.StatusSuccess,
		VisionResponse: &bad,
		QuotaUsed:      1,
	})
	require.NoError(t, err)

	resp, err := h.svc.GetAnalysis(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Nil(t, resp.Vision)
	assert.Equal(t, photos.StatusSuccess, resp.Status)
	assert.NotNil(t, resp.Suggestions)
}

func TestGetAnalysis_NeverAnalyzed(t *testing.T) {
	h := newHarness()
	resp, err := h.svc.GetAnalysis(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestReadOperations(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	st, err := h.svc.GetStatus(ctx, 1)
	require.NoError(t, err)
	assert.False(t, st.HasAnalysis)
	assert.True(t, st.CanReanalyze)

	resp, err := h.svc.AnalyzePhoto(ctx, h.request())
	require.NoError(t, err)

	st, err = h.svc.GetStatus(ctx, 1)
	require.NoError(t, err)
	assert.True(t, st.HasAnalysis)
	assert.Equal(t, len(resp.Suggestions), st.SuggestionCount)
	assert.Equal(t, len(resp.Suggestions), st.PendingCount)

	pr, err := h.svc.LatestProviderResult(ctx, 1, photos.ProviderPlaces)
	require.NoError(t, err)
	assert.Equal(t, resp.LogID, pr.LogID)
	assert.Contains(t, string(pr.Outcome), "Taipei 101")

	_, err = h.svc.LatestProviderResult(ctx, 1, photos.Provider("bogus"))
	assert.Error(t, err)

	hist, err := h.svc.History(ctx, 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hist.Total)
	assert.Equal(t, 1, hist.TotalPages)
	assert.Equal(t, 20, hist.PageSize)

	us, err := h.svc.UserStats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, us.TotalAnalyses)
	assert.Equal(t, 1, us.QuotaUsed)

	assert.NoError(t, h.svc.Authorize(ctx, 1, 10))
	assert.ErrorIs(t, h.svc.Authorize(ctx, 1, 11), photos.ErrForbidden)
	assert.ErrorIs(t, h.svc.Authorize(ctx, 2, 10), photos.ErrNotFound)

	floor := 0.965
	pending, err := h.svc.PendingSuggestions(ctx, 1, &floor)
	require.NoError(t, err)
	assert.NotEmpty(t, pending)
	for _, sg := range pending {
		assert.GreaterOrEqual(t, sg.Confidence, floor)
	}
}
