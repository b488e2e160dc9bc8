// Package scanner discovers test images grouped by category folder.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lehigh-university-libraries/ragtest/internal/models"
)

// SupportedExtensions lists the image types the harness can send to a vision model
var SupportedExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp"}

// Category is a folder of images sharing a label
type Category struct {
	Name   string
	Images []string
}

// IsSupported reports whether the path has a supported image extension
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Scan walks root and groups supported images by their parent folder name.
// Images directly under root take root's base name. Categories and paths
// are sorted so repeated scans produce the same order.
func Scan(root string) ([]Category, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &models.ConfigurationError{Key: "RAG_TEST_IMAGE_DIR", Reason: fmt.Sprintf("image directory %s does not exist", root)}
		}
		return nil, &models.IOError{Path: root, Op: "stat", Err: err}
	}
	if !info.IsDir() {
		return nil, &models.ConfigurationError{Key: "RAG_TEST_IMAGE_DIR", Reason: fmt.Sprintf("%s is not a directory", root)}
	}

	rootName := filepath.Base(filepath.Clean(root))
	byName := make(map[string][]string)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("Skipping unreadable path", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !IsSupported(path) {
			return nil
		}

		category := filepath.Base(filepath.Dir(path))
		if filepath.Clean(filepath.Dir(path)) == filepath.Clean(root) {
			category = rootName
		}
		byName[category] = append(byName[category], path)
		return nil
	})
	if err != nil {
		return nil, &models.IOError{Path: root, Op: "walk", Err: err}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make([]Category, 0, len(names))
	for _, name := range names {
		images := byName[name]
		sort.Strings(images)
		categories = append(categories, Category{Name: name, Images: images})
	}

	slog.Debug("Scanned image directory", "root", root, "categories", len(categories))
	return categories, nil
}

// Select narrows a scan to the named categories (all when names is empty)
// and keeps at most maxPerCategory images from each (all when <= 0).
func Select(categories []Category, names []string, maxPerCategory int) []Category {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}

	var out []Category
	for _, c := range categories {
		if len(want) > 0 && !want[c.Name] {
			continue
		}
		images := c.Images
		if maxPerCategory > 0 && len(images) > maxPerCategory {
			images = images[:maxPerCategory]
		}
		out = append(out, Category{Name: c.Name, Images: append([]string(nil), images...)})
	}
	return out
}

// Count returns the total number of images across categories
func Count(categories []Category) int {
	n := 0
	for _, c := range categories {
		n += len(c.Images)
	}
	return n
}
