package storage

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
)

// Asset is a stored blob. Handle is what Remove needs later.
type Asset struct {
	URL    string
	Handle string
}

type Config struct {
	Endpoint       string
	PublicEndpoint string // Used to build asset URLs; falls back to Endpoint if empty
	Bucket         string
	AccessKey      string
	SecretKey      string
	Region         string
	Timeout        time.Duration
}

type Storage struct {
	client    *s3.Client
	uploader  *manager.Uploader
	bucket    string
	publicURL string
	timeout   time.Duration
}

func New(ctx context.Context, cfg Config) (*Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("storage: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "eu-central-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	public := cfg.Endpoint
	if cfg.PublicEndpoint != "" {
		public = cfg.PublicEndpoint
	}

	return &Storage{
		client:    client,
		uploader:  uploader,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimSuffix(public, "/") + "/" + cfg.Bucket,
		timeout:   cfg.Timeout,
	}, nil
}

// Store uploads the file at localPath under a fresh key and deletes the
// local copy whether or not the upload succeeded.
func (s *Storage) Store(ctx context.Context, localPath string) (Asset, error) {
	defer func() { _ = os.Remove(localPath) }()

	f, err := os.Open(localPath)
	if err != nil {
		return Asset{}, apperr.Wrap(apperr.InvalidInput, "uploaded file is unreadable", err)
	}
	defer func() { _ = f.Close() }()

	ext := strings.ToLower(filepath.Ext(localPath))
	key := uuid.NewString() + ext
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return Asset{}, apperr.Wrap(apperr.Unavailable, "media storage unavailable", fmt.Errorf("upload %s: %w", key, err))
	}

	return Asset{URL: s.publicURL + "/" + key, Handle: key}, nil
}

func (s *Storage) Remove(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(handle),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", handle, err)
	}
	return nil
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}

	return nil
}

type Remover interface {
	Remove(ctx context.Context, handle string) error
}

// Discard removes handles in the background. Failures are logged and
// otherwise ignored; a leaked blob never fails the request that caused it.
func Discard(r Remover, timeout time.Duration, handles ...string) {
	if r == nil {
		return
	}
	var pending []string
	for _, h := range handles {
		if h != "" {
			pending = append(pending, h)
		}
	}
	if len(pending) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		for _, h := range pending {
			if err := r.Remove(ctx, h); err != nil {
				slog.Warn("storage: failed to remove superseded media", "handle", h, "error", err)
			}
		}
	}()
}
