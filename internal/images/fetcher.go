package images

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/ragtest/internal/models"
)

// maxDownload bounds a single fetched image
const maxDownload = 20 << 20

// Fetcher downloads images that question sheets reference by URL
type Fetcher struct {
	HTTPClient *http.Client
	CacheDir   string
}

// NewFetcher creates a fetcher that keeps downloads under cacheDir
func NewFetcher(cacheDir string) *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		CacheDir: cacheDir,
	}
}

// IsURL reports whether ref is an http(s) image reference
func IsURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Fetch downloads rawURL into the cache and returns the local path. A URL
// fetched before is served from the cache.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid image URL %q: %w", rawURL, err)
	}

	sum := sha1.Sum([]byte(rawURL))
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		base = "image"
	}
	name := hex.EncodeToString(sum[:6]) + "_" + base
	switch strings.ToLower(path.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp":
	default:
		name += ".img"
	}
	outputPath := filepath.Join(f.CacheDir, name)

	if _, err := os.Stat(outputPath); err == nil {
		slog.Debug("Using cached image", "url", rawURL, "path", outputPath)
		return outputPath, nil
	}

	if err := os.MkdirAll(f.CacheDir, 0755); err != nil {
		return "", &models.IOError{Path: f.CacheDir, Op: "create image cache", Err: err}
	}

	slog.Info("Downloading image", "url", rawURL)
	if err := f.downloadImage(ctx, rawURL, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

func (f *Fetcher) downloadImage(ctx context.Context, rawURL, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image URL returned status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return fmt.Errorf("failed to read image data: %w", err)
	}
	if len(imageData) > maxDownload {
		return fmt.Errorf("image larger than %d bytes", maxDownload)
	}
	if !strings.HasPrefix(http.DetectContentType(imageData), "image/") {
		return fmt.Errorf("URL did not return an image")
	}

	if err := os.WriteFile(outputPath, imageData, 0644); err != nil {
		return &models.IOError{Path: outputPath, Op: "write", Err: err}
	}

	return nil
}
