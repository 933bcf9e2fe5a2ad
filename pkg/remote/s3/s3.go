// Package s3 implements the remote store contract on top of Amazon S3 or
// any S3-compatible backend (MinIO, Localstack, ...).
//
// Identity model:
// S3 has no native folder objects, so the store maps the hierarchical
// contract onto key prefixes. A folder's ID is its key prefix ending in
// "/" (the root folder's ID is the configured key prefix, possibly empty);
// a file's ID is its full object key. Folders are materialized as
// zero-byte marker objects so empty folders survive listings.
package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/falachabt/zymupload/pkg/remote"
)

// trashPrefix is where non-permanent deletes are parked.
const trashPrefix = ".trash/"

// defaultChunkSize is the progress-reporting granularity when none is
// configured.
const defaultChunkSize = 1024 * 1024

// StoreConfig holds the parameters for an S3-backed remote store.
type StoreConfig struct {
	// Client is a configured S3 client (credentials, endpoint, retryer).
	Client *s3.Client

	// Bucket is the bucket all objects live in.
	Bucket string

	// KeyPrefix optionally roots the store under a sub-prefix of the
	// bucket. Must be empty or end with "/".
	KeyPrefix string

	// ChunkSize is the I/O buffer size used for progress reporting during
	// downloads and uploads. Defaults to 1MB.
	ChunkSize int
}

// Store implements remote.Store against an S3 bucket.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	chunkSize int
}

// NewStore creates an S3-backed remote store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("s3 store: client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 store: bucket is required")
	}
	prefix := cfg.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	return &Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: prefix,
		chunkSize: chunk,
	}, nil
}

// RootID returns the folder ID of the store's root.
func (s *Store) RootID() string {
	return s.keyPrefix
}

// isFolderID reports whether an ID refers to a folder (prefix) rather than
// a file (object key).
func (s *Store) isFolderID(id string) bool {
	return id == s.keyPrefix || strings.HasSuffix(id, "/")
}

// baseName extracts the display name from an object key or prefix.
func baseName(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// mapError converts an S3 SDK error into the remote error taxonomy.
func mapError(err error, op string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%s: %w", op, remote.ErrNotFound)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%s: %w", op, remote.ErrPermissionDenied)
		case "QuotaExceeded", "ServiceQuotaExceededException":
			return fmt.Errorf("%s: %w", op, remote.ErrQuotaExceeded)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %v: %w", op, err, remote.ErrRemoteUnavailable)
}
