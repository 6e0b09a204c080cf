package analysis

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domai "github.com/bryanwahyu/photo-tagger/internal/domain/ai"
	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
)

func newTestSelector(repo *fakeRepo, blobs *fakeBlobs) *Selector {
	return &Selector{Repo: repo, Blobs: blobs, Logger: zap.NewNop(), MaxBytes: MaxVisionPayloadBytes}
}

func TestSelector_ThumbnailPreferred(t *testing.T) {
	ctx := context.Background()

	t.Run("cached thumbnail first", func(t *testing.T) {
		repo, blobs := newFakeRepo(), &fakeBlobs{}
		photo := &photos.Photo{PhotoID: 1, ThumbnailData: []byte("thumb"), OriginalData: []byte("original-bytes")}

		got, err := newTestSelector(repo, blobs).Select(ctx, photo, true)
		require.NoError(t, err)
		assert.Equal(t, TierCachedThumbnail, got.Tier)
		assert.True(t, got.UsedThumbnail)
		assert.Equal(t, []byte("thumb"), got.Data)
		assert.Zero(t, blobs.calls.Load())
	})

	t.Run("blob thumbnail from non-primary storage path", func(t *testing.T) {
		repo := newFakeRepo()
		repo.locations[2] = []photos.StorageLocation{
			{PhotoID: 2, Path: "orig/2.jpg", IsPrimary: true},
			{PhotoID: 2, Path: "thumb/2.jpg"},
		}
		blobs := &fakeBlobs{thumbnails: map[string][]byte{"thumb/2.jpg": []byte("remote-thumb")}}

		got, err := newTestSelector(repo, blobs).Select(ctx, &photos.Photo{PhotoID: 2}, true)
		require.NoError(t, err)
		assert.Equal(t, TierBlobThumbnail, got.Tier)
		assert.True(t, got.UsedThumbnail)
		assert.Equal(t, []byte("remote-thumb"), got.Data)
	})

	t.Run("falls back to cached original", func(t *testing.T) {
		repo, blobs := newFakeRepo(), &fakeBlobs{}
		photo := &photos.Photo{PhotoID: 3, OriginalData: []byte("cached-original")}

		got, err := newTestSelector(repo, blobs).Select(ctx, photo, true)
		require.NoError(t, err)
		assert.Equal(t, TierCachedOriginal, got.Tier)
		assert.False(t, got.UsedThumbnail)
		assert.Equal(t, []byte("cached-original"), got.Data)
	})

	t.Run("falls back to blob original using photo id key", func(t *testing.T) {
		repo := newFakeRepo()
		blobs := &fakeBlobs{originals: map[string][]byte{"4": []byte("remote-original")}}

		got, err := newTestSelector(repo, blobs).Select(ctx, &photos.Photo{PhotoID: 4}, true)
		require.NoError(t, err)
		assert.Equal(t, TierBlobOriginal, got.Tier)
		assert.False(t, got.UsedThumbnail)
	})
}

func TestSelector_OriginalPreferredNeverUsesThumbnail(t *testing.T) {
	repo := newFakeRepo()
	blobs := &fakeBlobs{thumbnails: map[string][]byte{"5": []byte("thumb")}}
	photo := &photos.Photo{PhotoID: 5, ThumbnailData: []byte("cached-thumb")}

	_, err := newTestSelector(repo, blobs).Select(context.Background(), photo, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, photos.ErrNoImageData))
}

func TestSelector_OriginalPreferred(t *testing.T) {
	repo := newFakeRepo()
	photo := &photos.Photo{PhotoID: 6, ThumbnailData: []byte("thumb"), OriginalData: []byte("original")}

	got, err := newTestSelector(repo, &fakeBlobs{}).Select(context.Background(), photo, false)
	require.NoError(t, err)
	assert.Equal(t, TierCachedOriginal, got.Tier)
	assert.False(t, got.UsedThumbnail)
}

func TestSelector_NothingAnywhere(t *testing.T) {
	_, err := newTestSelector(newFakeRepo(), &fakeBlobs{}).Select(context.Background(), &photos.Photo{PhotoID: 7}, true)
	assert.ErrorIs(t, err, photos.ErrNoImageData)
}

func TestSelector_NilBlobStore(t *testing.T) {
	s := &Selector{Repo: newFakeRepo()}
	_, err := s.Select(context.Background(), &photos.Photo{PhotoID: 8}, true)
	assert.ErrorIs(t, err, photos.ErrNoImageData)
}

func TestSelector_SizesInMB(t *testing.T) {
	original := bytes.Repeat([]byte{1}, 2*1024*1024)
	thumb := bytes.Repeat([]byte{2}, 512*1024)
	photo := &photos.Photo{PhotoID: 9, ThumbnailData: thumb, OriginalData: original}

	got, err := newTestSelector(newFakeRepo(), &fakeBlobs{}).Select(context.Background(), photo, true)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.OriginalSizeMB)
	assert.Equal(t, 0.5, got.AnalyzedSizeMB)
}

func TestSelector_ReencodesAboveCeiling(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	img := image.NewRGBA(image.Rect(0, 0, 300, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 300; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	s := newTestSelector(newFakeRepo(), &fakeBlobs{})
	s.MaxBytes = 64 * 1024
	require.Greater(t, buf.Len(), s.MaxBytes)

	got, err := s.Select(context.Background(), &photos.Photo{PhotoID: 10, OriginalData: buf.Bytes()}, false)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got.Data), s.MaxBytes)
}

func TestSelector_UndecodableAboveCeiling(t *testing.T) {
	s := newTestSelector(newFakeRepo(), &fakeBlobs{})
	s.MaxBytes = 16

	_, err := s.Select(context.Background(), &photos.Photo{PhotoID: 11, OriginalData: bytes.Repeat([]byte("x"), 64)}, false)
	assert.ErrorIs(t, err, domai.ErrPayloadTooLarge)
}
