package imports

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	importDefaultBucket  = "scholar-import-archive"
	importDefaultRegion  = "ap-southeast-1"
	importDefaultBaseURL = "https://scholar-import-archive.s3.ap-southeast-1.amazonaws.com/"
)

func importArchiveBucket() string {
	if b := strings.TrimSpace(os.Getenv("IMPORT_ARCHIVE_S3_BUCKET")); b != "" {
		return b
	}
	return importDefaultBucket
}

func importArchiveRegion() string {
	if r := strings.TrimSpace(os.Getenv("IMPORT_ARCHIVE_S3_REGION")); r != "" {
		return r
	}
	return importDefaultRegion
}

func importArchiveBaseURL() string {
	if u := strings.TrimSpace(os.Getenv("IMPORT_ARCHIVE_S3_BASE_URL")); u != "" {
		u = strings.TrimSuffix(u, "/")
		return u + "/"
	}
	return importDefaultBaseURL
}

// archiveEnabled gates the S3 archive; without a bucket configured the
// upload flow skips archiving entirely.
func archiveEnabled() bool {
	return strings.TrimSpace(os.Getenv("IMPORT_ARCHIVE_S3_BUCKET")) != ""
}

var pathSegmentRe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizePathSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return pathSegmentRe.ReplaceAllString(s, "_")
}

func detectContentType(data []byte) string {
	if len(data) == 0 {
		return "application/octet-stream"
	}
	if len(data) > 512 {
		return http.DetectContentType(data[:512])
	}
	return http.DetectContentType(data)
}

func uploadImportFileToS3(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	bucket := importArchiveBucket()
	region := importArchiveRegion()
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return "", fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3 (bucket %s, key %s): %w", bucket, key, err)
	}
	return importArchiveBaseURL() + key, nil
}

// archiveOriginal stores the untouched upload under
// imports/<hash-prefix>/<timestamp>_<name>. Fire and forget: a failed
// archive never fails the import.
func archiveOriginal(fileName, fileHash string, data []byte) {
	if !archiveEnabled() {
		return
	}
	key := fmt.Sprintf("imports/%s/%s_%s",
		fileHash[:12],
		time.Now().UTC().Format("20060102T150405"),
		sanitizePathSegment(fileName))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := uploadImportFileToS3(ctx, key, data, detectContentType(data)); err != nil {
			log.Printf("[ERROR] archive of %s failed: %v", fileName, err)
		}
	}()
}
