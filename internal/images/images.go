// Package images loads test images for upload to vision models and renders
// report thumbnails.
package images

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/lehigh-university-libraries/ragtest/internal/models"
)

// Image is an encoded image ready to attach to an LLM request
type Image struct {
	Path      string
	MediaType string
	Data      []byte
}

// Base64 returns the image bytes base64-encoded
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// Format is the short format name (png, jpeg, gif) some SDKs expect
func (i Image) Format() string {
	return strings.TrimPrefix(i.MediaType, "image/")
}

// DataURL returns the image as a data: URL
func (i Image) DataURL() string {
	return "data:" + i.MediaType + ";base64," + i.Base64()
}

// Load reads an image from disk. BMP files are re-encoded as PNG since
// vision APIs do not accept them.
func Load(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, &models.IOError{Path: path, Op: "read image", Err: err}
	}

	mediaType := MediaType(path, data)
	if mediaType == "image/bmp" {
		img, err := bmp.Decode(bytes.NewReader(data))
		if err != nil {
			return Image{}, &models.IOError{Path: path, Op: "decode bmp", Err: err}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return Image{}, fmt.Errorf("failed to convert bmp to png: %w", err)
		}
		return Image{Path: path, MediaType: "image/png", Data: buf.Bytes()}, nil
	}

	return Image{Path: path, MediaType: mediaType, Data: data}, nil
}

// MediaType sniffs the content, falling back to the file extension
func MediaType(path string, data []byte) string {
	detected := http.DetectContentType(data)
	if strings.HasPrefix(detected, "image/") {
		return detected
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	}
	return "application/octet-stream"
}

// Thumbnail decodes the image at path, scales it to fit within maxW x maxH
// (never upscaling) and returns it as a JPEG data URL.
func Thumbnail(path string, maxW, maxH int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &models.IOError{Path: path, Op: "open image", Err: err}
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", path, err)
	}

	b := src.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), maxW, maxH)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Fit scales w x h to fit inside maxW x maxH keeping the aspect ratio
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 1, 1
	}
	if (maxW <= 0 || w <= maxW) && (maxH <= 0 || h <= maxH) {
		return w, h
	}

	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}

	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
