package analysis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	domai "github.com/bryanwahyu/photo-tagger/internal/domain/ai"
	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
)

type linkKey struct{ photoID, targetID int64 }

type fakeRepo struct {
	mu sync.Mutex

	photos      map[int64]*photos.Photo
	locations   map[int64][]photos.StorageLocation
	logs        []*photos.AnalysisLog
	suggestions []*photos.TagSuggestion
	tagIDs      map[string]int64
	photoTags   map[linkKey]bool
	photoCats   map[linkKey]bool

	nextLogID        int64
	nextSuggestionID int64

	saveLogErr         error
	saveSuggestionsErr error
	getSuggestionErr   map[int64]error
	hasExistingErr     error
	addTagCalls        atomic.Int32
	lastAddedBy        *int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		photos:           map[int64]*photos.Photo{},
		locations:        map[int64][]photos.StorageLocation{},
		tagIDs:           map[string]int64{},
		photoTags:        map[linkKey]bool{},
		photoCats:        map[linkKey]bool{},
		getSuggestionErr: map[int64]error{},
	}
}

func (r *fakeRepo) GetPhoto(_ context.Context, id int64) (*photos.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.photos[id]
	if !ok {
		return nil, photos.ErrNotFound
	}
	return p, nil
}

func (r *fakeRepo) GetStorageLocations(_ context.Context, id int64) ([]photos.StorageLocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locations[id], nil
}

func (r *fakeRepo) HasExistingAnalysis(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasExistingErr != nil {
		return false, r.hasExistingErr
	}
	for _, l := range r.logs {
		if l.PhotoID == id && l.Status == photos.StatusSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) GetLatestLog(_ context.Context, id int64) (*photos.AnalysisLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].PhotoID == id {
			return r.logs[i], nil
		}
	}
	return nil, photos.ErrNotFound
}

func (r *fakeRepo) GetLatestSuccessfulLog(_ context.Context, id int64) (*photos.AnalysisLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].PhotoID == id && r.logs[i].Status == photos.StatusSuccess {
			return r.logs[i], nil
		}
	}
	return nil, photos.ErrNotFound
}

func (r *fakeRepo) GetLatestLogByProvider(_ context.Context, id int64, p photos.Provider) (*photos.AnalysisLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].PhotoID == id && r.logs[i].Response(p) != nil {
			return r.logs[i], nil
		}
	}
	return nil, photos.ErrNotFound
}

func (r *fakeRepo) SaveLog(_ context.Context, l *photos.AnalysisLog) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveLogErr != nil {
		return 0, r.saveLogErr
	}
	r.nextLogID++
	cp := *l
	cp.LogID = r.nextLogID
	r.logs = append(r.logs, &cp)
	return cp.LogID, nil
}

func (r *fakeRepo) ListLogs(_ context.Context, id int64, page, pageSize int) ([]*photos.AnalysisLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*photos.AnalysisLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].PhotoID == id {
			all = append(all, r.logs[i])
		}
	}
	from := (page - 1) * pageSize
	if from >= len(all) {
		return nil, int64(len(all)), nil
	}
	to := from + pageSize
	if to > len(all) {
		to = len(all)
	}
	return all[from:to], int64(len(all)), nil
}

func (r *fakeRepo) SaveSuggestions(_ context.Context, list []*photos.TagSuggestion) ([]*photos.TagSuggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveSuggestionsErr != nil {
		return nil, r.saveSuggestionsErr
	}
	out := make([]*photos.TagSuggestion, 0, len(list))
	for _, sg := range list {
		r.nextSuggestionID++
		cp := *sg
		cp.SuggestionID = r.nextSuggestionID
		if id, ok := r.tagIDs[cp.TagName]; ok {
			tagID := id
			cp.TagID = &tagID
		}
		r.suggestions = append(r.suggestions, &cp)
		view := cp
		out = append(out, &view)
	}
	return out, nil
}

func (r *fakeRepo) GetSuggestions(_ context.Context, id int64) ([]*photos.TagSuggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*photos.TagSuggestion
	for _, sg := range r.suggestions {
		if sg.PhotoID == id {
			cp := *sg
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetPendingSuggestions(_ context.Context, id int64, min *float64) ([]*photos.TagSuggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*photos.TagSuggestion
	for _, sg := range r.suggestions {
		if sg.PhotoID != id || sg.IsAdopted {
			continue
		}
		if min != nil && sg.Confidence < *min {
			continue
		}
		cp := *sg
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

func (r *fakeRepo) GetSuggestionByID(_ context.Context, id int64) (*photos.TagSuggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.getSuggestionErr[id]; err != nil {
		return nil, err
	}
	for _, sg := range r.suggestions {
		if sg.SuggestionID == id {
			cp := *sg
			return &cp, nil
		}
	}
	return nil, photos.ErrNotFound
}

func (r *fakeRepo) MarkSuggestionAdopted(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sg := range r.suggestions {
		if sg.SuggestionID == id {
			sg.IsAdopted = true
			return nil
		}
	}
	return photos.ErrNotFound
}

func (r *fakeRepo) HasPhotoTag(_ context.Context, photoID, tagID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.photoTags[linkKey{photoID, tagID}], nil
}

func (r *fakeRepo) AddPhotoTag(_ context.Context, photoID, tagID int64, _ int, _ float64, addedBy *int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addTagCalls.Add(1)
	r.lastAddedBy = addedBy
	k := linkKey{photoID, tagID}
	if r.photoTags[k] {
		return false, nil
	}
	r.photoTags[k] = true
	return true, nil
}

func (r *fakeRepo) HasPhotoCategory(_ context.Context, photoID, categoryID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.photoCats[linkKey{photoID, categoryID}], nil
}

func (r *fakeRepo) AddPhotoCategory(_ context.Context, photoID, categoryID int64, _ int, _ float64, _ *int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := linkKey{photoID, categoryID}
	if r.photoCats[k] {
		return false, nil
	}
	r.photoCats[k] = true
	return true, nil
}

func (r *fakeRepo) SuggestionStats(_ context.Context, id int64) (photos.SuggestionStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var st photos.SuggestionStats
	for _, sg := range r.suggestions {
		if sg.PhotoID != id {
			continue
		}
		st.Total++
		if sg.IsAdopted {
			st.Adopted++
		} else {
			st.Pending++
		}
	}
	return st, nil
}

func (r *fakeRepo) UserStats(_ context.Context, userID int64) (*photos.UserStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := &photos.UserStats{UserID: userID}
	for _, l := range r.logs {
		if l.UserID != userID {
			continue
		}
		st.TotalAnalyses++
		st.QuotaUsed += l.QuotaUsed
		if l.Status == photos.StatusSuccess {
			st.SuccessfulAnalyses++
		} else {
			st.FailedAnalyses++
		}
	}
	return st, nil
}

// addSuggestion seeds a stored suggestion and returns its id.
func (r *fakeRepo) addSuggestion(sg photos.TagSuggestion) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSuggestionID++
	sg.SuggestionID = r.nextSuggestionID
	r.suggestions = append(r.suggestions, &sg)
	return sg.SuggestionID
}

type fakeBlobs struct {
	originals  map[string][]byte
	thumbnails map[string][]byte
	calls      atomic.Int32
}

func (b *fakeBlobs) DownloadOriginal(_ context.Context, path string) (io.ReadCloser, error) {
	b.calls.Add(1)
	if data, ok := b.originals[path]; ok {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil, errors.New("object not found")
}

func (b *fakeBlobs) DownloadThumbnail(_ context.Context, path string) (io.ReadCloser, error) {
	b.calls.Add(1)
	if data, ok := b.thumbnails[path]; ok {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil, errors.New("object not found")
}

type fakeVision struct {
	calls  atomic.Int32
	result *domai.VisionResult
	err    error
	got    []byte
	mu     sync.Mutex
}

func (f *fakeVision) Analyze(_ context.Context, image []byte, _ []domai.Feature) (*domai.VisionResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.got = image
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.result
	return &cp, nil
}

type fakePlaces struct {
	calls  atomic.Int32
	result *domai.SpotResult
	err    error
}

func (f *fakePlaces) IdentifySpot(_ context.Context, _, _ float64, _ int) (*domai.SpotResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.result
	return &cp, nil
}

type fakeDescriber struct {
	calls  atomic.Int32
	result *domai.SemanticResult
	err    error
	panic  bool
	block  bool
	mu     sync.Mutex
	got    domai.DescribeContext
}

func (f *fakeDescriber) Describe(ctx context.Context, in domai.DescribeContext) (*domai.SemanticResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.got = in
	f.mu.Unlock()
	if f.panic {
		panic("describer exploded")
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.result
	return &cp, nil
}

func ptr[T any](v T) *T { return &v }
