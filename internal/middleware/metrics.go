package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/bryanwahyu/photo-tagger/internal/metrics"
)

// Metrics tracks request counters
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.IncrementRequests()
		metrics.IncrementInProgress()
		defer metrics.DecrementInProgress()

		wrapped := wrapWriter(w)
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			metrics.IncrementSuccess()
		} else {
			metrics.IncrementFailed()
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metrics.Snapshot())
}
