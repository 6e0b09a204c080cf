package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/bryanwahyu/photo-tagger/internal/application/analysis"
	domai "github.com/bryanwahyu/photo-tagger/internal/domain/ai"
	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
	"github.com/bryanwahyu/photo-tagger/internal/middleware"
)

// AnalysisService is the slice of analysis.Service the HTTP layer needs.
type AnalysisService interface {
	AnalyzePhoto(ctx context.Context, req analysis.AnalysisRequest) (*analysis.AnalysisResponse, error)
	Authorize(ctx context.Context, photoID, userID int64) error
	GetAnalysis(ctx context.Context, photoID int64) (*analysis.AnalysisResponse, error)
	GetStatus(ctx context.Context, photoID int64) (*analysis.AnalysisStatus, error)
	PendingSuggestions(ctx context.Context, photoID int64, minConfidence *float64) ([]*photos.TagSuggestion, error)
	LatestProviderResult(ctx context.Context, photoID int64, provider photos.Provider) (*analysis.ProviderResult, error)
	History(ctx context.Context, photoID int64, page, pageSize int) (*photos.PaginatedLogs, error)
	UserStats(ctx context.Context, userID int64) (*photos.UserStats, error)
	ApplySuggestions(ctx context.Context, req analysis.ApplyRequest) analysis.ApplyResult
}

// BatchRunner runs a batch analysis.
type BatchRunner interface {
	Run(ctx context.Context, req analysis.BatchRequest) analysis.BatchResult
}

// Options configure the HTTP surface.
type Options struct {
	APIKeys        map[string]int64
	RateLimiter    *middleware.RateLimiter // nil disables rate limiting
	AllowedOrigins []string
	HealthCheckers map[string]middleware.HealthChecker
	Version        string
	Logger         *zap.Logger
}

type Router struct {
	svc      AnalysisService
	batch    BatchRunner
	defaults analysis.Defaults
	logger   *zap.Logger
}

// errBadRequest marks client input errors.
type errBadRequest struct{ msg string }

func (e errBadRequest) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return errBadRequest{msg: fmt.Sprintf(format, args...)}
}

func NewRouter(svc AnalysisService, batch BatchRunner, defaults analysis.Defaults, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{svc: svc, batch: batch, defaults: defaults, logger: logger.Named("httpserver")}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Logging(logger))
	mux.Use(middleware.Metrics)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.HealthHandler(opts.Version, opts.HealthCheckers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Use(middleware.APIKeyAuth(opts.APIKeys))
		if opts.RateLimiter != nil {
			rt.Use(opts.RateLimiter.Middleware)
		}

		rt.Route("/photos/{photoID}", func(pr chi.Router) {
			pr.Post("/analysis", r.wrap(r.handleAnalyze))
			pr.Get("/analysis", r.wrap(r.handleGetAnalysis))
			pr.Get("/analysis/status", r.wrap(r.handleStatus))
			pr.Get("/analysis/history", r.wrap(r.handleHistory))
			pr.Get("/analysis/providers/{provider}", r.wrap(r.handleProvider))
			pr.Get("/suggestions", r.wrap(r.handleSuggestions))
		})
		rt.Post("/suggestions/apply", r.wrap(r.handleApply))
		rt.Post("/analysis/batch", r.wrap(r.handleBatch))
		rt.Get("/me/analysis-stats", r.wrap(r.handleUserStats))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var bad errBadRequest
		switch {
		case errors.As(err, &bad):
			writeError(w, http.StatusBadRequest, bad.msg)
		case errors.Is(err, photos.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
		case errors.Is(err, photos.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden")
		case errors.Is(err, domai.ErrQuotaExceeded):
			writeError(w, http.StatusTooManyRequests, "ai quota exceeded")
		default:
			r.logger.Error("request failed",
				zap.String("request_id", middleware.RequestID(req.Context())),
				zap.String("path", req.URL.Path),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}
}

func userID(req *http.Request) (int64, error) {
	id, ok := middleware.UserID(req.Context())
	if !ok {
		return 0, photos.ErrForbidden
	}
	return id, nil
}

func photoID(req *http.Request) (int64, error) {
	id, err := middleware.ParseID("photo id", chi.URLParam(req, "photoID"))
	if err != nil {
		return 0, errBadRequest{msg: err.Error()}
	}
	return id, nil
}

// ownedPhoto resolves the path photo and checks the caller owns it.
func (r *Router) ownedPhoto(req *http.Request) (int64, error) {
	pid, err := photoID(req)
	if err != nil {
		return 0, err
	}
	uid, err := userID(req)
	if err != nil {
		return 0, err
	}
	if err := r.svc.Authorize(req.Context(), pid, uid); err != nil {
		return 0, err
	}
	return pid, nil
}

// decodeBody decodes an optional JSON body into v; an empty body keeps v as is.
func decodeBody(req *http.Request, v any) error {
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// POST /v1/photos/{photoID}/analysis
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	pid, err := photoID(req)
	if err != nil {
		return err
	}
	uid, err := userID(req)
	if err != nil {
		return err
	}

	body := r.defaults.Request(pid, uid)
	if err := decodeBody(req, &body); err != nil {
		return err
	}
	body.PhotoID, body.UserID = pid, uid
	if body.MinConfidence < 0 || body.MinConfidence > 1 {
		return badRequest("min_confidence must be between 0 and 1")
	}

	resp, err := r.svc.AnalyzePhoto(req.Context(), body)
	if err != nil {
		return err
	}

	status := http.StatusOK
	switch resp.ErrorKind {
	case analysis.ErrorKindNotFound:
		status = http.StatusNotFound
	case analysis.ErrorKindForbidden:
		status = http.StatusForbidden
	}
	writeJSON(w, status, resp)
	return nil
}

// GET /v1/photos/{photoID}/analysis
func (r *Router) handleGetAnalysis(w http.ResponseWriter, req *http.Request) error {
	pid, err := r.ownedPhoto(req)
	if err != nil {
		return err
	}
	resp, err := r.svc.GetAnalysis(req.Context(), pid)
	if err != nil {
		return err
	}
	if resp == nil {
		return photos.ErrNotFound
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

// GET /v1/photos/{photoID}/analysis/status
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) error {
	pid, err := r.ownedPhoto(req)
	if err != nil {
		return err
	}
	st, err := r.svc.GetStatus(req.Context(), pid)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, st)
	return nil
}

// GET /v1/photos/{photoID}/analysis/history?page=&page_size=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	pid, err := r.ownedPhoto(req)
	if err != nil {
		return err
	}
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.svc.History(req.Context(), pid, middleware.ValidatePage(page), middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/photos/{photoID}/analysis/providers/{provider}
func (r *Router) handleProvider(w http.ResponseWriter, req *http.Request) error {
	provider, err := middleware.ParseProvider(chi.URLParam(req, "provider"))
	if err != nil {
		return errBadRequest{msg: err.Error()}
	}
	pid, err := r.ownedPhoto(req)
	if err != nil {
		return err
	}
	res, err := r.svc.LatestProviderResult(req.Context(), pid, provider)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

// GET /v1/photos/{photoID}/suggestions?min_confidence=
func (r *Router) handleSuggestions(w http.ResponseWriter, req *http.Request) error {
	minConf, err := middleware.ParseConfidence(req.URL.Query().Get("min_confidence"))
	if err != nil {
		return errBadRequest{msg: err.Error()}
	}
	pid, err := r.ownedPhoto(req)
	if err != nil {
		return err
	}
	list, err := r.svc.PendingSuggestions(req.Context(), pid, minConf)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"photo_id": pid, "suggestions": list})
	return nil
}

// POST /v1/suggestions/apply
// Body: {"photo_id": 1, "suggestion_ids": [1,2,3]}
func (r *Router) handleApply(w http.ResponseWriter, req *http.Request) error {
	uid, err := userID(req)
	if err != nil {
		return err
	}
	var body analysis.ApplyRequest
	if err := decodeBody(req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateIDs("suggestion_ids", body.SuggestionIDs, middleware.MaxBatchSize); err != nil {
		return errBadRequest{msg: err.Error()}
	}
	if body.PhotoID != nil {
		if err := r.svc.Authorize(req.Context(), *body.PhotoID, uid); err != nil {
			return err
		}
	}
	body.UserID = &uid

	writeJSON(w, http.StatusOK, r.svc.ApplySuggestions(req.Context(), body))
	return nil
}

// POST /v1/analysis/batch
// Body: {"photo_ids": [1,2,3], "force_reanalysis": false, "max_parallelism": 3}
func (r *Router) handleBatch(w http.ResponseWriter, req *http.Request) error {
	uid, err := userID(req)
	if err != nil {
		return err
	}
	var body analysis.BatchRequest
	if err := decodeBody(req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateIDs("photo_ids", body.PhotoIDs, middleware.MaxBatchSize); err != nil {
		return errBadRequest{msg: err.Error()}
	}
	body.UserID = uid

	started := time.Now()
	res := r.batch.Run(req.Context(), body)
	r.logger.Info("batch request done",
		zap.String("batch_id", res.BatchID),
		zap.Int64("user_id", uid),
		zap.Duration("took", time.Since(started)),
	)
	writeJSON(w, http.StatusOK, res)
	return nil
}

// GET /v1/me/analysis-stats
func (r *Router) handleUserStats(w http.ResponseWriter, req *http.Request) error {
	uid, err := userID(req)
	if err != nil {
		return err
	}
	st, err := r.svc.UserStats(req.Context(), uid)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, st)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
