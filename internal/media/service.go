// Package media stores uploaded content media (videos, lecture recordings)
// in object storage. Only presigned URLs cross the API boundary; media bytes
// never pass through this process.
package media

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	uploadExpiry   = 15 * time.Minute
	downloadExpiry = 6 * time.Hour
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Service wraps the object store holding content media.
type Service struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and ensures the media bucket exists.
func New(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check media bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create media bucket: %w", err)
		}
	}

	return &Service{client: client, bucket: cfg.Bucket}, nil
}

// UploadURL returns a presigned PUT URL for a new media object belonging to
// a content entity, along with the object key to persist on the entity.
func (s *Service) UploadURL(ctx context.Context, contentID, filename string) (string, string, error) {
	key, err := objectKey(contentID, filename)
	if err != nil {
		return "", "", err
	}
	presigned, err := s.client.PresignedPutObject(ctx, s.bucket, key, uploadExpiry)
	if err != nil {
		return "", "", fmt.Errorf("presign upload for %s: %w", key, err)
	}
	return presigned.String(), key, nil
}

// DownloadURL returns a presigned GET URL for a stored media object.
func (s *Service) DownloadURL(ctx context.Context, key string) (string, error) {
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, downloadExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign download for %s: %w", key, err)
	}
	return presigned.String(), nil
}

// Remove deletes a media object.
func (s *Service) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func objectKey(contentID, filename string) (string, error) {
	contentID = strings.TrimSpace(contentID)
	base := path.Base(strings.TrimSpace(filename))
	if contentID == "" || base == "" || base == "." || base == "/" {
		return "", fmt.Errorf("invalid media object name %q/%q", contentID, filename)
	}
	return path.Join("content", contentID, base), nil
}
