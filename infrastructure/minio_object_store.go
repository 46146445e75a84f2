package infrastructure

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/visionpipe/video-detection-service/domain"
)

// MinioObjectStore holds the immutable blobs: raw uploads and frame
// images. Keys come from the deterministic scheme in keys.go, so
// writes under the same key are idempotent overwrites.
type MinioObjectStore struct {
	client *minio.Client
	bucket string
}

func NewMinioObjectStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioObjectStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
		log.Printf("created bucket %q", bucket)
	}

	return &MinioObjectStore{client: client, bucket: bucket}, nil
}

func (s *MinioObjectStore) PutVideo(ctx context.Context, videoID uuid.UUID, ext string, r io.Reader, size int64, contentType string) (string, error) {
	key := VideoKey(videoID, ext)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", &domain.PersistenceError{Op: "put video " + key, Err: err}
	}
	return key, nil
}

func (s *MinioObjectStore) GetVideo(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, &domain.RetrievalError{Key: key, Err: err}
	}
	// GetObject is lazy; stat now so a missing object fails here and
	// not halfway through a copy.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, &domain.RetrievalError{Key: key, Err: err}
	}
	return obj, nil
}

func (s *MinioObjectStore) PutFrame(ctx context.Context, videoID uuid.UUID, frameIndex int, jpeg []byte) (string, error) {
	key := FrameKey(videoID, frameIndex)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(jpeg), int64(len(jpeg)),
		minio.PutObjectOptions{ContentType: "image/jpeg"})
	if err != nil {
		return "", &domain.PersistenceError{Op: "put frame " + key, Err: err}
	}
	return key, nil
}

// Healthy reports whether the object store answers.
func (s *MinioObjectStore) Healthy(ctx context.Context) bool {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err == nil
}
