package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Config struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UsePathStyle bool
	Prefix       string
	LinkTTL      time.Duration
}

// Uploader stores transcripts as private objects and hands out presigned download links.
type Uploader struct {
	cfg     Config
	client  *s3.Client
	presign *s3.PresignClient
}

func NewUploader(cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "transcripts"
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 24 * time.Hour
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	client := s3.New(options)

	return &Uploader{
		cfg:     cfg,
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

// Upload writes data under the configured prefix and returns a time-limited GET link.
func (u *Uploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no data to upload")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	objectKey, err := u.objectKey(key, contentType)
	if err != nil {
		return "", err
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	return u.presignGet(ctx, objectKey)
}

func (u *Uploader) presignGet(ctx context.Context, objectKey string) (string, error) {
	req, err := u.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(u.cfg.Bucket),
		Key:                        aws.String(objectKey),
		ResponseContentDisposition: aws.String(fmt.Sprintf(`attachment; filename="%s"`, path.Base(objectKey))),
	}, s3.WithPresignExpires(u.cfg.LinkTTL))
	if err != nil {
		return "", fmt.Errorf("presign s3 object: %w", err)
	}
	return req.URL, nil
}

func (u *Uploader) objectKey(key, contentType string) (string, error) {
	key = strings.Trim(key, "/")
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("invalid object key %q", key)
		}
	}
	if path.Ext(key) == "" {
		key += extensionFromContentType(contentType)
	}
	return path.Join(strings.Trim(u.cfg.Prefix, "/"), key), nil
}

func extensionFromContentType(contentType string) string {
	mediaType, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	switch strings.TrimSpace(mediaType) {
	case "text/markdown":
		return ".md"
	case "text/html":
		return ".html"
	case "application/json":
		return ".json"
	case "text/plain":
		return ".txt"
	default:
		return ".bin"
	}
}
