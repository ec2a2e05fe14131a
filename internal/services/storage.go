package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/dinewithlocals/backend/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxImageSize is the largest accepted upload.
const MaxImageSize = 5 << 20

var (
	ErrNotImage      = errors.New("file is not an image")
	ErrImageTooLarge = errors.New("image exceeds 5 MiB")
)

// StorageConfig selects S3 when bucket and credentials are all set.
type StorageConfig struct {
	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string
	S3Bucket     string
	UploadDir    string
	BaseURL      string
}

// Storage uploads images to S3 or, without AWS configuration, to local disk
// served under /uploads.
type Storage struct {
	uploader  *s3manager.Uploader
	bucket    string
	region    string
	uploadDir string
	baseURL   string
}

// NewStorage initializes either S3 or local storage based on configuration
func NewStorage(cfg StorageConfig) (*Storage, error) {
	st := &Storage{
		uploadDir: cfg.UploadDir,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
	}

	if cfg.AWSRegion != "" && cfg.AWSAccessKey != "" && cfg.AWSSecretKey != "" && cfg.S3Bucket != "" {
		sess, err := session.NewSession(&aws.Config{
			Region:      aws.String(cfg.AWSRegion),
			Credentials: credentials.NewStaticCredentials(cfg.AWSAccessKey, cfg.AWSSecretKey, ""),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		st.uploader = s3manager.NewUploader(sess)
		st.bucket = cfg.S3Bucket
		st.region = cfg.AWSRegion
		logger.Log.Info("AWS S3 storage initialized", zap.String("bucket", cfg.S3Bucket))
		return st, nil
	}

	if st.uploadDir == "" {
		st.uploadDir = "./uploads"
	}
	if err := os.MkdirAll(st.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	logger.Log.Warn("AWS S3 not configured, using local file storage", zap.String("dir", st.uploadDir))
	return st, nil
}

// UsingS3 reports whether uploads go to S3.
func (s *Storage) UsingS3() bool {
	return s.uploader != nil
}

// LocalDir is the directory served at /uploads when S3 is off.
func (s *Storage) LocalDir() string {
	return s.uploadDir
}

// UploadImage validates and stores an image under folder, returning its public URL.
func (s *Storage) UploadImage(ctx context.Context, file *multipart.FileHeader, folder string) (string, error) {
	if file.Size > MaxImageSize {
		return "", ErrImageTooLarge
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	buf := bytes.NewBuffer(nil)
	n, err := io.Copy(buf, io.LimitReader(src, MaxImageSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if n > MaxImageSize {
		return "", ErrImageTooLarge
	}

	contentType := http.DetectContentType(buf.Bytes())
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrNotImage
	}

	key := path.Join(folder, uuid.New().String()+extensionFor(contentType, file.Filename))

	if s.UsingS3() {
		return s.uploadToS3(ctx, key, buf.Bytes(), contentType)
	}
	return s.uploadLocally(key, buf.Bytes())
}

func (s *Storage) uploadToS3(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}

func (s *Storage) uploadLocally(key string, data []byte) (string, error) {
	dest := filepath.Join(s.uploadDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create folder directory: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return s.baseURL + "/uploads/" + key, nil
}

func extensionFor(contentType, filename string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return strings.ToLower(filepath.Ext(filename))
}
