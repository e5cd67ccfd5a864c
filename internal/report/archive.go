package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/store"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	// Passphrase, when set, seals every object before upload.
	Passphrase string
}

// Archiver uploads generated reports to S3-compatible storage. It is
// disabled when the bucket or credentials are missing.
type Archiver struct {
	bucket     string
	passphrase string
	client     s3Client
	logger     *slog.Logger
}

func NewArchiver(cfg S3Config, logger *slog.Logger) *Archiver {
	a := &Archiver{bucket: cfg.Bucket, passphrase: cfg.Passphrase, logger: logger.With("component", "archive")}
	if cfg.Bucket != "" && cfg.AccessKey != "" && cfg.SecretKey != "" {
		a.client = newS3Client(cfg)
	}
	return a
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (a *Archiver) Enabled() bool {
	return a != nil && a.client != nil
}

// Put uploads data under key and returns the key actually written. Sealed
// objects get a .enc suffix.
func (a *Archiver) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("archiver disabled")
	}
	if a.passphrase != "" {
		sealed, err := Seal(data, a.passphrase)
		if err != nil {
			return "", fmt.Errorf("seal report: %w", err)
		}
		data, key, contentType = sealed, key+".enc", "application/octet-stream"
	}
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	a.logger.Info("report archived", "bucket", a.bucket, "key", key, "bytes", len(data), "sealed", a.passphrase != "")
	return key, nil
}

type Archived struct {
	Bucket string   `json:"bucket"`
	Key    string   `json:"key"`
	Meta   Metadata `json:"metadata"`
}

// ArchiveComplaints uploads the xlsx export under reports/complaints-<timestamp>.xlsx.
func (s *Service) ArchiveComplaints(ctx context.Context, f store.ComplaintFilter) (*Archived, error) {
	if !s.archiver.Enabled() {
		return nil, apperr.Validation("Report archiving is not configured")
	}
	export, err := s.ExportComplaints(ctx, f, FormatXLSX)
	if err != nil {
		return nil, err
	}
	key, err := s.archiver.Put(ctx, "reports/"+export.Filename, export.Data, export.ContentType)
	if err != nil {
		s.logger.Error("archive complaints", "file", export.Filename, "error", err)
		return nil, apperr.Wrap(err, "Failed to archive report")
	}
	return &Archived{Bucket: s.archiver.bucket, Key: key, Meta: export.Meta}, nil
}
