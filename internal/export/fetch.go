package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/storage"
)

// maxImageBytes bounds a single fetched image.
const maxImageBytes = 20 << 20

// ImageFetcher resolves an image reference to its encoded bytes.
type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Fetcher resolves data URLs in place, blob keys and public blob URLs
// through storage, and anything else over HTTP.
type Fetcher struct {
	blobs      storage.Storage
	publicBase string
	client     *http.Client
}

// NewFetcher creates a Fetcher. blobs may be nil when only data and HTTP
// URLs are expected.
func NewFetcher(blobs storage.Storage, publicBase string) *Fetcher {
	return &Fetcher{
		blobs:      blobs,
		publicBase: publicBase,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient replaces the HTTP client.
func (f *Fetcher) WithHTTPClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil, fmt.Errorf("empty image reference")
	case strings.HasPrefix(ref, "data:"):
		data, _, err := domain.DecodeDataURL(ref)
		return data, err
	}

	if f.blobs != nil {
		if key, ok := storage.KeyFromURL(f.publicBase, ref); ok {
			return f.fromStorage(ctx, key)
		}
		if !strings.Contains(ref, "://") {
			return f.fromStorage(ctx, ref)
		}
	}
	return f.download(ctx, ref)
}

func (f *Fetcher) fromStorage(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := f.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxImageBytes))
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(resp.Body, maxImageBytes)); err != nil {
		return nil, fmt.Errorf("read image data: %w", err)
	}
	return buf.Bytes(), nil
}

// normalize decodes any supported image, flattens transparency onto white
// and re-encodes it as JPEG, the one format the PDF writer registers.
func normalize(data []byte) ([]byte, image.Point, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, image.Point{}, fmt.Errorf("decode image: empty bounds")
	}
	flat := imaging.Overlay(imaging.New(b.Dx(), b.Dy(), color.White), img, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, image.Point{}, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), image.Pt(b.Dx(), b.Dy()), nil
}
