package analysis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	domai "github.com/bryanwahyu/photo-tagger/internal/domain/ai"
	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
	"github.com/bryanwahyu/photo-tagger/internal/imageproc"
)

// Tier names the source that supplied the image bytes.
type Tier string

const (
	TierCachedThumbnail Tier = "cached_thumbnail"
	TierBlobThumbnail   Tier = "blob_thumbnail"
	TierCachedOriginal  Tier = "cached_original"
	TierBlobOriginal    Tier = "blob_original"
)

// SelectedImage is the outcome of image version selection.
type SelectedImage struct {
	Data           []byte
	Tier           Tier
	UsedThumbnail  bool
	OriginalSizeMB float64
	AnalyzedSizeMB float64
}

// Selector picks thumbnail or original bytes for the vision classifier.
type Selector struct {
	Repo     photos.Repository
	Blobs    photos.BlobStore
	Logger   *zap.Logger
	MaxBytes int
}

type blobPaths struct {
	original  string
	thumbnail string
}

// Select returns image bytes for photo. With preferThumbnail the chain is
// cached thumbnail, blob thumbnail, cached original, blob original; otherwise
// only the two original tiers are tried. ErrNoImageData when nothing is found.
func (s *Selector) Select(ctx context.Context, photo *photos.Photo, preferThumbnail bool) (*SelectedImage, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.Int64("photo_id", photo.PhotoID), zap.Bool("prefer_thumbnail", preferThumbnail))

	var paths *blobPaths
	resolve := func() blobPaths {
		if paths == nil {
			p := s.resolvePaths(ctx, photo.PhotoID, log)
			paths = &p
		}
		return *paths
	}

	type tier struct {
		name  Tier
		thumb bool
		fetch func() []byte
	}
	cachedThumb := tier{TierCachedThumbnail, true, func() []byte { return photo.ThumbnailData }}
	blobThumb := tier{TierBlobThumbnail, true, func() []byte {
		return s.download(ctx, log, TierBlobThumbnail, resolve().thumbnail)
	}}
	cachedOrig := tier{TierCachedOriginal, false, func() []byte { return photo.OriginalData }}
	blobOrig := tier{TierBlobOriginal, false, func() []byte {
		return s.download(ctx, log, TierBlobOriginal, resolve().original)
	}}

	chain := []tier{cachedOrig, blobOrig}
	if preferThumbnail {
		chain = []tier{cachedThumb, blobThumb, cachedOrig, blobOrig}
	}

	for _, t := range chain {
		data := t.fetch()
		if len(data) == 0 {
			log.Debug("image tier empty", zap.String("tier", string(t.name)))
			continue
		}
		if preferThumbnail && !t.thumb {
			log.Warn("thumbnail unavailable, falling back to original", zap.String("tier", string(t.name)))
		}
		log.Info("image tier selected",
			zap.String("tier", string(t.name)),
			zap.String("size", humanize.IBytes(uint64(len(data)))),
		)
		return s.finish(photo, t.name, t.thumb, data, log)
	}

	return nil, fmt.Errorf("photo %d: %w", photo.PhotoID, photos.ErrNoImageData)
}

func (s *Selector) finish(photo *photos.Photo, name Tier, thumb bool, data []byte, log *zap.Logger) (*SelectedImage, error) {
	originalSize := len(data)
	if len(photo.OriginalData) > 0 {
		originalSize = len(photo.OriginalData)
	}

	if s.MaxBytes > 0 && len(data) > s.MaxBytes {
		fitted, err := imageproc.FitWithin(data, s.MaxBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domai.ErrPayloadTooLarge, err)
		}
		log.Info("image re-encoded under upload limit",
			zap.String("from", humanize.IBytes(uint64(len(data)))),
			zap.String("to", humanize.IBytes(uint64(len(fitted)))),
		)
		data = fitted
	}

	out := &SelectedImage{
		Data:           data,
		Tier:           name,
		UsedThumbnail:  thumb,
		OriginalSizeMB: toMB(originalSize),
		AnalyzedSizeMB: toMB(len(data)),
	}
	log.Info("image version chosen",
		zap.Float64("original_mb", out.OriginalSizeMB),
		zap.Float64("analyzed_mb", out.AnalyzedSizeMB),
		zap.Bool("used_thumbnail", out.UsedThumbnail),
	)
	return out, nil
}

// resolvePaths maps storage rows to blob keys: the primary row is the
// original, the first non-primary row the thumbnail. Missing rows fall back
// to the photo id as key.
func (s *Selector) resolvePaths(ctx context.Context, photoID int64, log *zap.Logger) blobPaths {
	fallback := strconv.FormatInt(photoID, 10)
	var p blobPaths

	locs, err := s.Repo.GetStorageLocations(ctx, photoID)
	if err != nil {
		log.Warn("storage locations lookup failed", zap.Error(err))
	}
	for _, l := range locs {
		if l.IsPrimary && p.original == "" {
			p.original = l.Path
		}
		if !l.IsPrimary && p.thumbnail == "" {
			p.thumbnail = l.Path
		}
	}
	if p.original == "" {
		log.Warn("no original storage path, using photo id as blob key")
		p.original = fallback
	}
	if p.thumbnail == "" {
		log.Warn("no thumbnail storage path, using photo id as blob key")
		p.thumbnail = fallback
	}
	return p
}

func (s *Selector) download(ctx context.Context, log *zap.Logger, name Tier, path string) []byte {
	if s.Blobs == nil {
		return nil
	}
	var (
		rc  io.ReadCloser
		err error
	)
	if name == TierBlobThumbnail {
		rc, err = s.Blobs.DownloadThumbnail(ctx, path)
	} else {
		rc, err = s.Blobs.DownloadOriginal(ctx, path)
	}
	if err != nil {
		log.Warn("blob download failed", zap.String("tier", string(name)), zap.String("path", path), zap.Error(err))
		return nil
	}
	if rc == nil {
		return nil
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		log.Warn("blob read failed", zap.String("tier", string(name)), zap.String("path", path), zap.Error(err))
		return nil
	}
	return buf.Bytes()
}

func toMB(n int) float64 {
	return math.Round(float64(n)/(1024*1024)*100) / 100
}
