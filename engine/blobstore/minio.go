package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/corpusforge/corpusgraph/engine/domain"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore is the S3-compatible backend, grounded on the original's R2
// client: signature v4, region "auto", content-only PUT (no ACLs).
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore dials endpoint (host:port, no scheme) with static
// credentials. useSSL matches the endpoint's scheme.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: dial minio endpoint %s: %w", endpoint, err)
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

func (m *MinioStore) Put(ctx context.Context, key string, content []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("%w: blobstore: put %s: %v", domain.ErrUpstreamTransient, key, err)
	}
	return nil
}

func (m *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: blobstore: get %s: %v", domain.ErrUpstreamTransient, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if errResp := minio.ToErrorResponse(err); errResp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: blobstore: key %s", domain.ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: blobstore: read %s: %v", domain.ErrUpstreamTransient, key, err)
	}
	return data, nil
}

func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: blobstore: delete %s: %v", domain.ErrUpstreamTransient, key, err)
	}
	return nil
}

// SignedURL returns a presigned GET URL, matching spec.md's signed_url
// contract for the S3-compatible backend.
func (m *MinioStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("%w: blobstore: presign %s: %v", domain.ErrUpstreamTransient, key, err)
	}
	return u.String(), nil
}
