package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
)

// Store implements photos.BlobStore over two MinIO buckets.
type Store struct {
	client     *minio.Client
	originals  string
	thumbnails string
	region     string
}

var _ photos.BlobStore = (*Store)(nil)

// Options koneksi MinIO
type Options struct {
	Endpoint         string
	Region           string
	AccessKey        string
	SecretKey        string
	UseSSL           bool
	OriginalsBucket  string
	ThumbnailsBucket string
}

// New buat koneksi MinIO
func New(ctx context.Context, opts Options) (*Store, error) {
	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	for _, bucket := range []string{opts.OriginalsBucket, opts.ThumbnailsBucket} {
		exists, err := cli.BucketExists(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
				return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}

	return &Store{client: cli, originals: opts.OriginalsBucket, thumbnails: opts.ThumbnailsBucket, region: opts.Region}, nil
}

// DownloadOriginal streams the full-resolution object.
func (s *Store) DownloadOriginal(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.download(ctx, s.originals, path)
}

// DownloadThumbnail streams the thumbnail object.
func (s *Store) DownloadThumbnail(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.download(ctx, s.thumbnails, path)
}

func (s *Store) download(ctx context.Context, bucket, path string) (io.ReadCloser, error) {
	key := objectKey(bucket, path)
	if key == "" {
		return nil, photos.ErrNotFound
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapErr(err)
	}
	// GetObject lazy, Stat supaya object yang tidak ada langsung ketahuan
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, mapErr(err)
	}
	return obj, nil
}

// objectKey strips a leading slash and an optional "<bucket>/" prefix,
// since storage rows may hold either form.
func objectKey(bucket, path string) string {
	key := strings.TrimLeft(strings.TrimSpace(path), "/")
	return strings.TrimPrefix(key, bucket+"/")
}

func mapErr(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %v", photos.ErrNotFound, err)
	}
	return err
}
