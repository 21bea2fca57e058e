package stores

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const maxAssetSize = 20 << 20

// errors
var (
	ErrNoStorage   = errors.New("object storage not configured")
	ErrAssetTooBig = errors.New("asset too big")
)

// AssetStore fetches images referenced by answers
type AssetStore interface {
	FetchObject(ctx context.Context, key string) ([]byte, error)
}

// S3Config ...
type S3Config struct {
	Endpoint  string // host[:port] or URL
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
}

type s3Assets struct {
	mc     *minio.Client
	bucket string
}

// NewS3Assets returns a store of an S3 compatible bucket
func NewS3Assets(cfg S3Config) (AssetStore, error) {
	if len(cfg.Endpoint) == 0 || len(cfg.Bucket) == 0 {
		return nil, ErrNoStorage
	}
	host, secure, err := parseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	mc, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("new s3 client: %w", err)
	}
	return &s3Assets{mc: mc, bucket: cfg.Bucket}, nil
}

// FetchObject reads the whole object into memory, the key is used raw
func (s *s3Assets) FetchObject(ctx context.Context, key string) ([]byte, error) {
	info, err := s.mc.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		logger().Infow("stat object fail", "key", key, "err", err)
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.Size > maxAssetSize {
		return nil, ErrAssetTooBig
	}
	obj, err := s.mc.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()
	b, err := io.ReadAll(io.LimitReader(obj, maxAssetSize+1))
	if err != nil {
		logger().Infow("download object fail", "key", key, "err", err)
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if len(b) > maxAssetSize {
		return nil, ErrAssetTooBig
	}
	return b, nil
}

// parseEndpoint accepts "host:port" or "https://host"
func parseEndpoint(s string) (host string, secure bool, err error) {
	if !strings.Contains(s, "://") {
		return strings.TrimRight(s, "/"), true, nil
	}
	u, err := url.Parse(s)
	if err != nil || len(u.Host) == 0 {
		return "", false, fmt.Errorf("invalid endpoint %q", s)
	}
	return u.Host, u.Scheme == "https", nil
}
