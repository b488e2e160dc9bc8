package dataset

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
)

// DownloadConfig configures sheet downloading
type DownloadConfig struct {
	CacheDir      string
	ForceDownload bool
	Token         string // bearer token for private datasets
	HTTPClient    *http.Client
}

// Downloader fetches question sheets published at a URL, e.g. a file in a
// HuggingFace dataset repository, and keeps them in a local cache
type Downloader struct {
	config DownloadConfig
}

// NewDownloader creates a new sheet downloader
func NewDownloader(config DownloadConfig) *Downloader {
	// Expand ~ to home directory
	if strings.HasPrefix(config.CacheDir, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			config.CacheDir = filepath.Join(homeDir, config.CacheDir[1:])
		}
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	return &Downloader{
		config: config,
	}
}

// IsRemote reports whether ref is an http(s) URL
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// CachePath returns where the sheet at rawURL is cached
func (d *Downloader) CachePath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid sheet URL %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if !IsSheet(name) {
		return "", fmt.Errorf("%s is not a supported sheet (%v)", rawURL, SupportedExtensions)
	}
	sum := sha1.Sum([]byte(rawURL))
	return filepath.Join(d.config.CacheDir, hex.EncodeToString(sum[:6])+"_"+name), nil
}

// Download returns the cached copy of the sheet at rawURL, downloading it
// first if needed
func (d *Downloader) Download(ctx context.Context, rawURL string) (string, error) {
	cachedPath, err := d.CachePath(rawURL)
	if err != nil {
		return "", err
	}

	if !d.config.ForceDownload {
		if _, err := os.Stat(cachedPath); err == nil {
			slog.Info("Using cached question sheet", "path", cachedPath)
			return cachedPath, nil
		}
	}

	if err := os.MkdirAll(d.config.CacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	slog.Info("Downloading question sheet", "url", rawURL)
	if err := d.downloadFile(ctx, rawURL, cachedPath); err != nil {
		return "", fmt.Errorf("failed to download question sheet: %w", err)
	}

	slog.Info("Question sheet downloaded", "path", cachedPath)
	return cachedPath, nil
}

func (d *Downloader) downloadFile(ctx context.Context, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if d.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.config.Token)
	}

	resp, err := d.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	// Renamed into place once complete
	tempPath := destPath + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	written, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("download failed: %w", err)
	}
	slog.Debug("Download complete", "bytes", written)

	if err := os.Rename(tempPath, destPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to move file: %w", err)
	}
	return nil
}

// ClearCache removes all cached sheets
func (d *Downloader) ClearCache() error {
	slog.Info("Clearing cache", "path", d.config.CacheDir)
	return os.RemoveAll(d.config.CacheDir)
}

// LoadOrDownload returns a loader for ref, downloading it first when ref
// is a URL
func LoadOrDownload(ctx context.Context, ref string, config DownloadConfig) (*Loader, error) {
	if !IsRemote(ref) {
		return NewLoader(ref), nil
	}

	datasetPath, err := NewDownloader(config).Download(ctx, ref)
	if err != nil {
		return nil, err
	}
	return NewLoader(datasetPath), nil
}
