package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// R2Config holds configuration for Cloudflare R2 storage
type R2Config struct {
	AccessKey string
	SecretKey string
	AccountID string
	Bucket    string
	Endpoint  string
	Region    string
	BaseURL   string // public URL prefix, e.g. https://media.example.com
	Prefix    string // key prefix for every object
}

// Number of attempts for UploadFile retry loop
const maxUploadAttempts = 3

// R2Storage handles operations with Cloudflare R2
type R2Storage struct {
	config   R2Config
	client   *s3.S3
	uploader *s3manager.Uploader
	backoff  func(attempt int) time.Duration
}

// NewR2Storage creates a new R2Storage instance
func NewR2Storage(config R2Config) (*R2Storage, error) {
	// Set default region if not provided
	if config.Region == "" {
		config.Region = "auto"
	}

	// Create endpoint URL if AccountID is provided but full endpoint isn't
	if config.Endpoint == "" && config.AccountID != "" {
		config.Endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", config.AccountID)
	}

	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""),
		Endpoint:    aws.String(config.Endpoint),
		Region:      aws.String(config.Region),
		// Force path style addressing for compatibility with S3 API
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	client := s3.New(sess)

	// Sequential multipart parts keep a single connection open at a time.
	uploader := s3manager.NewUploader(sess, func(u *s3manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10 MB
		u.Concurrency = 1
	})

	return &R2Storage{
		config:   config,
		client:   client,
		uploader: uploader,
		backoff: func(attempt int) time.Duration {
			// Exponential backoff: 2s, 4s, ...
			return time.Duration(1<<uint(attempt)) * time.Second
		},
	}, nil
}

// ObjectKey builds the bucket key for a run output:
// <prefix>/<camera>/<date>/<run id>/<file>, mirroring the local run folder.
func (r *R2Storage) ObjectKey(camera, date, runID, file string) string {
	return path.Join(strings.Trim(r.config.Prefix, "/"), camera, date, runID, file)
}

// UploadFile uploads a file to R2 storage and returns its public URL.
func (r *R2Storage) UploadFile(ctx context.Context, localPath, remotePath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", localPath, err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to get file info: %w", err)
	}

	metadata := map[string]*string{
		"OriginalFileName": aws.String(filepath.Base(localPath)),
		"UploadedAt":       aws.String(time.Now().Format(time.RFC3339)),
		"FileSize":         aws.String(fmt.Sprintf("%d", fileInfo.Size())),
	}

	log.Printf("[R2] Uploading %s (%.2f MB) to %s", filepath.Base(localPath), float64(fileInfo.Size())/1024/1024, remotePath)

	var lastErr error
	for attempt := 1; attempt <= maxUploadAttempts; attempt++ {
		// Ensure we start reading from the beginning each attempt
		if _, err := file.Seek(0, 0); err != nil {
			return "", fmt.Errorf("failed to seek to beginning of file: %w", err)
		}

		_, lastErr = r.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket:      aws.String(r.config.Bucket),
			Key:         aws.String(remotePath),
			Body:        file,
			ContentType: aws.String(ContentType(localPath)),
			Metadata:    metadata,
		})
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		log.Printf("[R2] Upload attempt %d/%d failed for %s: %v", attempt, maxUploadAttempts, localPath, lastErr)
		if attempt == maxUploadAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.backoff(attempt)):
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("failed to upload file to R2 after %d attempts: %w", maxUploadAttempts, lastErr)
	}

	publicURL := r.PublicURL(remotePath)
	log.Printf("[R2] File uploaded successfully, public URL: %s", publicURL)
	return publicURL, nil
}

// ObjectExists reports whether key is already stored in the bucket.
func (r *R2Storage) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := r.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.config.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("failed to check object %s: %w", key, err)
}

// ContentType maps an output file extension to its MIME type.
func ContentType(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".mp4":
		return "video/mp4"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// PublicURL returns the public URL of key.
func (r *R2Storage) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(r.GetBaseURL(), "/"), key)
}

// GetBaseURL returns the base URL for the R2 bucket
func (r *R2Storage) GetBaseURL() string {
	if r.config.BaseURL != "" {
		return r.config.BaseURL
	}
	// Fall back to endpoint/bucket when no public URL is configured
	return fmt.Sprintf("%s/%s", r.config.Endpoint, r.config.Bucket)
}
