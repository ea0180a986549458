package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3CodeStore mirrors immutable per-version code blobs to object storage,
// keyed by id@version. It backs DiskStore.Mirror so a shared bucket keeps a
// durable copy of every generation.
type S3CodeStore struct {
	client   *minio.Client
	bucket   string
	region   string
	initOnce sync.Once
	initErr  error
}

func NewS3CodeStore(cfg S3Config) (*S3CodeStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3CodeStore{client: client, bucket: bucket, region: region}, nil
}

func (s *S3CodeStore) ensureBucket(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("store is nil")
	}
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *S3CodeStore) PutCode(ctx context.Context, ref string, code string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("ref is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	body := []byte(code)
	_, err := s.client.PutObject(ctx, s.bucket, objectName(ref), bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "text/javascript"})
	return err
}

func (s *S3CodeStore) GetCode(ctx context.Context, ref string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("store is nil")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("ref is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, objectName(ref), minio.GetObjectOptions{})
	if err != nil {
		return "", err
	}
	defer obj.Close()
	raw, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return "", err
	}
	return string(raw), nil
}

func objectName(ref string) string {
	return "widgets/" + strings.ReplaceAll(ref, "@", "/v") + widgetExt
}
