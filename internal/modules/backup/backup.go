// Package backup exports a user's journal snapshot as JSON to S3-compatible
// object storage.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appcfg "github.com/mx-space/journal/internal/config"
	"github.com/mx-space/journal/internal/modules/journal"
	"go.uber.org/zap"
)

const (
	defaultKeyTemplate = "{Y}/{m}/{filename}"
	contentTypeJSON    = "application/json"
)

// Uploader stores one object.
type Uploader interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

type S3Uploader struct {
	client *s3.Client
	bucket string
}

// NewS3Uploader builds an uploader from static credentials. A custom endpoint
// selects a non-AWS S3 service.
func NewS3Uploader(cfg appcfg.BackupConfig) (*S3Uploader, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("backup bucket is empty")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("backup credentials are empty")
	}
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		UsePathStyle: cfg.PathStyle,
	}
	if endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"); endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
	}
	return &S3Uploader{client: s3.New(opts), bucket: cfg.Bucket}, nil
}

func (u *S3Uploader) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", u.bucket, key, err)
	}
	return nil
}

// Document is the exported JSON layout.
type Document struct {
	UserID     string        `json:"user_id"`
	ExportedAt time.Time     `json:"exported_at"`
	Journal    journal.State `json:"journal"`
}

type Service struct {
	uploader Uploader
	prefix   string
	now      func() time.Time
	logger   *zap.Logger
}

func NewService(uploader Uploader, prefix string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{uploader: uploader, prefix: prefix, now: time.Now, logger: logger.Named("Backup")}
}

// Export uploads state for userID and returns the object key.
func (s *Service) Export(ctx context.Context, userID string, state journal.State) (string, error) {
	now := s.now().UTC()
	state.Loading = nil
	body, err := json.MarshalIndent(Document{UserID: userID, ExportedAt: now, Journal: state}, "", "  ")
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("journal-%s-%s.json", sanitize(userID), now.Format("20060102-150405"))
	key := renderObjectKey(s.prefix, defaultKeyTemplate, filename, now)
	if err := s.uploader.Put(ctx, key, body, contentTypeJSON); err != nil {
		return "", err
	}
	s.logger.Info("snapshot exported",
		zap.String("user", userID),
		zap.String("key", key),
		zap.Int("entries", len(state.Entries)),
		zap.Int("bytes", len(body)))
	return key, nil
}

func renderObjectKey(prefix, template, filename string, now time.Time) string {
	tpl := strings.TrimSpace(template)
	if tpl == "" {
		tpl = defaultKeyTemplate
	}

	replacer := strings.NewReplacer(
		"{Y}", now.Format("2006"),
		"{m}", now.Format("01"),
		"{d}", now.Format("02"),
		"{filename}", filename,
	)

	key := strings.Trim(strings.TrimSpace(prefix), "/") + "/" + replacer.Replace(tpl)
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "/")
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	if key == "" {
		return filename
	}
	return key
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
