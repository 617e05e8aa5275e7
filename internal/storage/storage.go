// Package storage holds the blobs that belong to incident reports: uploaded
// attachments, their thumbnails, and the flattened body-map image.
//
// Two providers implement Storage:
// - LocalStorage: files under a directory, served by the API in development
// - R2Storage: Cloudflare R2 through the S3 API
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage is a flat key/value blob store.
//
// All methods are context-aware for timeout and cancellation support.
type Storage interface {
	// Put stores data at key. It fails with ErrKeyExists when the key is
	// taken and opts.Overwrite is false.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get returns the object at key. The caller closes the reader.
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a URL for the object. A zero expires asks for the public URL
	// where the provider has one, otherwise a presigned URL is returned.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// Data Types
// =============================================================================

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType is detected from the key's extension when empty.
	ContentType string

	// MaxSize rejects data larger than this many bytes with ErrTooLarge.
	// Zero means no limit.
	MaxSize int64

	// Overwrite allows replacing an existing object at the same key.
	Overwrite bool

	// Public sets the public-read ACL on R2. Local storage ignores it.
	Public bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// =============================================================================
// Configuration Types
// =============================================================================

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory, e.g. "./storage".
	BasePath string

	// BaseURL is the public prefix the API serves files under,
	// e.g. "http://localhost:8080/files".
	BaseURL string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// PublicURL is the bucket's public domain. When empty every URL is
	// presigned.
	PublicURL string

	// Region defaults to "auto".
	Region string
}

const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

// =============================================================================
// Key Generation Helpers
// =============================================================================

// AttachmentKey returns a fresh key for a file attached to a report.
// Format: incidents/{reportID}/attachments/{uuid}{ext}
func AttachmentKey(reportID, filename string) string {
	return fmt.Sprintf("incidents/%s/attachments/%s%s", reportID, uuid.New(), cleanExt(filename))
}

// ThumbnailKey returns a fresh key for an attachment thumbnail.
// Format: incidents/{reportID}/thumbnails/{uuid}{ext}
func ThumbnailKey(reportID, filename string) string {
	return fmt.Sprintf("incidents/%s/thumbnails/%s%s", reportID, uuid.New(), cleanExt(filename))
}

// BodyMapKey returns a fresh key for a flattened body-map PNG.
// Format: incidents/{reportID}/bodymap/{uuid}.png
func BodyMapKey(reportID string) string {
	return fmt.Sprintf("incidents/%s/bodymap/%s.png", reportID, uuid.New())
}

func cleanExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\ `) {
		return ""
	}
	return ext
}

// KeyFromURL returns the key of rawURL when it lies under base, the
// provider's public URL prefix.
func KeyFromURL(base, rawURL string) (string, bool) {
	base = strings.TrimSuffix(base, "/")
	if base == "" || !strings.HasPrefix(rawURL, base+"/") {
		return "", false
	}
	key := strings.TrimPrefix(rawURL, base+"/")
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	if key == "" {
		return "", false
	}
	return key, true
}
