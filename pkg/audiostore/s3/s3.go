// Package s3 implements audiostore.Store on any S3-compatible object store
// (AWS S3, MinIO, Cloudflare R2, ...) using github.com/minio/minio-go/v7.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/MrWong99/voxrelay/pkg/audiostore"
)

// Config describes the bucket to publish into.
type Config struct {
	Endpoint  string // host[:port], no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Insecure  bool   // plain HTTP, for local MinIO
	Prefix    string // key prefix, e.g. "tts"

	// PublicBaseURL overrides the URL prefix of returned links, e.g. a CDN.
	// Defaults to "<scheme>://<endpoint>/<bucket>".
	PublicBaseURL string

	// PresignTTL, when positive, returns presigned GET URLs valid for this
	// duration instead of public object URLs.
	PresignTTL time.Duration
}

// objectClient is the subset of *minio.Client the store uses.
type objectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Store implements audiostore.Store on an S3 bucket.
type Store struct {
	client  objectClient
	cfg     Config
	baseURL string
	now     func() time.Time
}

// New connects to the object store and verifies that the bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("s3: endpoint and bucket must not be empty")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("s3: access key and secret key must not be empty")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: !cfg.Insecure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: init client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("s3: check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("s3: bucket %q does not exist", cfg.Bucket)
	}
	return newStore(client, cfg), nil
}

func newStore(client objectClient, cfg Config) *Store {
	base := cfg.PublicBaseURL
	if base == "" {
		scheme := "https"
		if cfg.Insecure {
			scheme = "http"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}
	return &Store{client: client, cfg: cfg, baseURL: strings.TrimRight(base, "/"), now: time.Now}
}

// Put implements audiostore.Store.
func (s *Store) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	key := audiostore.NewKey(s.cfg.Prefix, contentType, s.now())

	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"uploaded-at": s.now().UTC().Format(time.RFC3339)},
	})
	if err != nil {
		return "", fmt.Errorf("s3: upload %s: %w", key, err)
	}

	if s.cfg.PresignTTL > 0 {
		u, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, key, s.cfg.PresignTTL, nil)
		if err != nil {
			return "", fmt.Errorf("s3: presign %s: %w", key, err)
		}
		return u.String(), nil
	}
	return s.publicURL(key), nil
}

func (s *Store) publicURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + "/" + strings.Join(parts, "/")
}

var _ audiostore.Store = (*Store)(nil)
