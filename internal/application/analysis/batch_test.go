package analysis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
)

type scriptedAnalyzer struct {
	mu       sync.Mutex
	requests []AnalysisRequest

	panicOn map[int64]bool
	errOn   map[int64]error
	failOn  map[int64]bool
	delay   time.Duration
	running atomic.Int32
	maxSeen atomic.Int32
}

func (a *scriptedAnalyzer) AnalyzePhoto(_ context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	n := a.running.Add(1)
	defer a.running.Add(-1)
	for {
		m := a.maxSeen.Load()
		if n <= m || a.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	if a.delay > 0 {
		time.Sleep(a.delay)
	}

	if a.panicOn[req.PhotoID] {
		panic("boom")
	}
	if err := a.errOn[req.PhotoID]; err != nil {
		return nil, err
	}
	if a.failOn[req.PhotoID] {
		return &AnalysisResponse{PhotoID: req.PhotoID, Status: photos.StatusFailed, ErrorMessage: "all providers failed"}, nil
	}
	return &AnalysisResponse{PhotoID: req.PhotoID, Status: photos.StatusSuccess}, nil
}

type setChecker map[int64]bool

func (c setChecker) HasExistingAnalysis(_ context.Context, id int64) (bool, error) {
	return c[id], nil
}

func newScheduler(a *scriptedAnalyzer, checker ExistenceChecker) *Scheduler {
	return &Scheduler{Analyzer: a, Checker: checker, Defaults: DefaultDefaults(), Logger: zap.NewNop()}
}

func TestSchedulerRun_OneBadItemDoesNotStopBatch(t *testing.T) {
	a := &scriptedAnalyzer{
		panicOn: map[int64]bool{3: true},
		errOn:   map[int64]error{},
	}
	s := newScheduler(a, setChecker{})

	res := s.Run(context.Background(), BatchRequest{PhotoIDs: []int64{1, 2, 3, 4, 5}, UserID: 10})

	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 5, res.Processed)
	assert.Equal(t, 4, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Skipped)
	assert.Len(t, res.Results, 4)
	_, err := uuid.Parse(res.BatchID)
	assert.NoError(t, err)
}

func TestSchedulerRun_ErrorCountsAsFailed(t *testing.T) {
	a := &scriptedAnalyzer{errOn: map[int64]error{2: errors.New("save analysis log: db gone")}}
	s := newScheduler(a, setChecker{})

	res := s.Run(context.Background(), BatchRequest{PhotoIDs: []int64{1, 2}})

	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, res.Results, 1)
}

func TestSchedulerRun_FailedStatusCountedButNotListed(t *testing.T) {
	a := &scriptedAnalyzer{failOn: map[int64]bool{7: true}}
	s := newScheduler(a, setChecker{})

	res := s.Run(context.Background(), BatchRequest{PhotoIDs: []int64{7, 8}})

	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Succeeded)
	require.Len(t, res.Results, 1)
	assert.Equal(t, int64(8), res.Results[0].PhotoID)
	assert.Equal(t, photos.StatusSuccess, res.Results[0].Status)
}

type ownerAuth map[int64]int64

func (o ownerAuth) Authorize(_ context.Context, photoID, userID int64) error {
	owner, ok := o[photoID]
	if !ok {
		return photos.ErrNotFound
	}
	if owner != userID {
		return photos.ErrForbidden
	}
	return nil
}

func TestSchedulerRun_ForeignPhotoFailsBeforeExistenceCheck(t *testing.T) {
	a := &scriptedAnalyzer{}
	s := newScheduler(a, setChecker{1: true, 2: true})
	s.Auth = ownerAuth{1: 10, 2: 20, 3: 10}

	// photo 2 is analyzed but belongs to user 20, photo 9 does not exist
	res := s.Run(context.Background(), BatchRequest{PhotoIDs: []int64{1, 2, 3, 9}, UserID: 10})

	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, a.requests, 1)
	assert.Equal(t, int64(3), a.requests[0].PhotoID)
}

func TestSchedulerRun_SkipsAnalyzedUnlessForced(t *testing.T) {
	a := &scriptedAnalyzer{}
	s := newScheduler(a, setChecker{1: true, 2: true})

	res := s.Run(context.Background(), BatchRequest{PhotoIDs: []int64{1, 2, 3}})
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, res.Total, res.Skipped+res.Succeeded+res.Failed)
	assert.Len(t, a.requests, 1)

	res = s.Run(context.Background(), BatchRequest{PhotoIDs: []int64{1, 2, 3}, ForceReanalysis: true})
	assert.Zero(t, res.Skipped)
	assert.Equal(t, 3, res.Succeeded)
	for _, req := range a.requests[1:] {
		assert.True(t, req.ForceReanalysis)
	}
}

func TestSchedulerRun_ItemsCarryDefaults(t *testing.T) {
	a := &scriptedAnalyzer{}
	s := newScheduler(a, setChecker{})

	s.Run(context.Background(), BatchRequest{PhotoIDs: []int64{4}, UserID: 10})

	require.Len(t, a.requests, 1)
	req := a.requests[0]
	assert.Equal(t, int64(10), req.UserID)
	assert.True(t, req.EnableObjectDetection)
	assert.True(t, req.EnablePlaceDetection)
	assert.Equal(t, 0.7, req.MinConfidence)
	assert.Equal(t, 100, req.PlaceSearchRadius)
}

func TestSchedulerRun_ParallelismBound(t *testing.T) {
	ids := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	cases := []struct {
		name     string
		limit    int
		defaults int
		want     int32
	}{
		{name: "explicit", limit: 2, defaults: 3, want: 2},
		{name: "from defaults", limit: 0, defaults: 4, want: 4},
		{name: "fallback", limit: 0, defaults: 0, want: DefaultMaxParallelism},
		{name: "negative floors to one", limit: -5, defaults: 3, want: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := &scriptedAnalyzer{delay: 20 * time.Millisecond}
			s := newScheduler(a, setChecker{})
			s.Defaults.MaxParallelism = tc.defaults

			res := s.Run(context.Background(), BatchRequest{PhotoIDs: ids, MaxParallelism: tc.limit})

			assert.Equal(t, len(ids), res.Succeeded)
			assert.LessOrEqual(t, a.maxSeen.Load(), tc.want)
			assert.GreaterOrEqual(t, a.maxSeen.Load(), int32(1))
		})
	}
}

func TestSchedulerRun_EmptyBatch(t *testing.T) {
	s := newScheduler(&scriptedAnalyzer{}, setChecker{})
	res := s.Run(context.Background(), BatchRequest{})
	assert.Zero(t, res.Total)
	assert.NotNil(t, res.Results)
}

func TestNewScheduler_UsesServiceDefaults(t *testing.T) {
	h := newHarness()
	h.svc.Policy.Defaults.MaxParallelism = 5
	s := NewScheduler(h.svc)
	assert.Equal(t, 5, s.Defaults.MaxParallelism)

	res := s.Run(context.Background(), BatchRequest{PhotoIDs: []int64{1}, UserID: 10})
	assert.Equal(t, 1, res.Succeeded)
	// second run skips because the photo now has a successful log
	res = s.Run(context.Background(), BatchRequest{PhotoIDs: []int64{1}, UserID: 10})
	assert.Equal(t, 1, res.Skipped)
	// another user gets a failure, not a skip
	res = s.Run(context.Background(), BatchRequest{PhotoIDs: []int64{1}, UserID: 11})
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Skipped)
}
