package metrics

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	AnalysesTotal      uint64
	AnalysesRunning    uint64
	AnalysesFailed     uint64
	AnalysesCached     uint64
	SuggestionsCreated uint64
	SuggestionsApplied uint64
	BatchesTotal       uint64
	StartTime          time.Time

	providerFailures sync.Map // provider name -> *uint64
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementRequests increments total request counter
func IncrementRequests() {
	atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
}

// IncrementInProgress increments in-progress request counter
func IncrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
}

// DecrementInProgress decrements in-progress request counter
func DecrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))
}

// IncrementSuccess increments successful request counter
func IncrementSuccess() {
	atomic.AddUint64(&globalMetrics.RequestsSuccess, 1)
}

// IncrementFailed increments failed request counter
func IncrementFailed() {
	atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
}

// IncrementAnalyses counts every AnalyzePhoto call
func IncrementAnalyses() {
	atomic.AddUint64(&globalMetrics.AnalysesTotal, 1)
}

func IncrementAnalysesRunning() {
	atomic.AddUint64(&globalMetrics.AnalysesRunning, 1)
}

func DecrementAnalysesRunning() {
	atomic.AddUint64(&globalMetrics.AnalysesRunning, ^uint64(0))
}

func IncrementAnalysesFailed() {
	atomic.AddUint64(&globalMetrics.AnalysesFailed, 1)
}

// IncrementCacheHits counts analyses answered from a previous log
func IncrementCacheHits() {
	atomic.AddUint64(&globalMetrics.AnalysesCached, 1)
}

func AddSuggestionsCreated(n int) {
	if n > 0 {
		atomic.AddUint64(&globalMetrics.SuggestionsCreated, uint64(n))
	}
}

func AddSuggestionsApplied(n int) {
	if n > 0 {
		atomic.AddUint64(&globalMetrics.SuggestionsApplied, uint64(n))
	}
}

func IncrementBatches() {
	atomic.AddUint64(&globalMetrics.BatchesTotal, 1)
}

// IncrementProviderFailures counts failed calls per provider
func IncrementProviderFailures(provider string) {
	v, _ := globalMetrics.providerFailures.LoadOrStore(provider, new(uint64))
	atomic.AddUint64(v.(*uint64), 1)
}

// ProviderFailures returns the failure count for one provider.
func ProviderFailures(provider string) uint64 {
	v, ok := globalMetrics.providerFailures.Load(provider)
	if !ok {
		return 0
	}
	return atomic.LoadUint64(v.(*uint64))
}

// Snapshot returns current metrics
func Snapshot() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	failures := map[string]uint64{}
	globalMetrics.providerFailures.Range(func(k, v any) bool {
		failures[k.(string)] = atomic.LoadUint64(v.(*uint64))
		return true
	})

	return map[string]interface{}{
		"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":     atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":      atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"analyses_total":       atomic.LoadUint64(&globalMetrics.AnalysesTotal),
		"analyses_running":     atomic.LoadUint64(&globalMetrics.AnalysesRunning),
		"analyses_failed":      atomic.LoadUint64(&globalMetrics.AnalysesFailed),
		"analyses_cached":      atomic.LoadUint64(&globalMetrics.AnalysesCached),
		"suggestions_created":  atomic.LoadUint64(&globalMetrics.SuggestionsCreated),
		"suggestions_applied":  atomic.LoadUint64(&globalMetrics.SuggestionsApplied),
		"batches_total":        atomic.LoadUint64(&globalMetrics.BatchesTotal),
		"provider_failures":    failures,
		"uptime_seconds":       time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}
