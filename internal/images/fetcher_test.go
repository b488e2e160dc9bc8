package images

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestFetch(t *testing.T) {
	var pngData bytes.Buffer
	if err := png.Encode(&pngData, image.NewRGBA(image.Rect(0, 0, 3, 3))); err != nil {
		t.Fatal(err)
	}

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch r.URL.Path {
		case "/diagrams/crimp.png":
			_, _ = w.Write(pngData.Bytes())
		case "/page.html":
			_, _ = w.Write([]byte("<html><body>not an image</body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	f := NewFetcher(t.TempDir())

	local, err := f.Fetch(context.Background(), server.URL+"/diagrams/crimp.png")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !strings.HasSuffix(local, "_crimp.png") || filepath.Dir(local) != f.CacheDir {
		t.Errorf("Unexpected local path %s", local)
	}
	if _, err := Load(local); err != nil {
		t.Errorf("Expected fetched image to load: %v", err)
	}

	again, err := f.Fetch(context.Background(), server.URL+"/diagrams/crimp.png")
	if err != nil || again != local {
		t.Errorf("Expected cached path %s, got %s (%v)", local, again, err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("Expected 1 download, got %d", got)
	}

	if _, err := f.Fetch(context.Background(), server.URL+"/page.html"); err == nil {
		t.Error("Expected error for non-image response")
	}
	if _, err := f.Fetch(context.Background(), server.URL+"/missing.png"); err == nil {
		t.Error("Expected error for 404")
	}
}

func TestIsURL(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"https://example.com/a.png", true},
		{"http://example.com/a.png", true},
		{"images/a.png", false},
		{"/abs/a.png", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsURL(tt.ref); got != tt.want {
			t.Errorf("IsURL(%q): expected %v, got %v", tt.ref, tt.want, got)
		}
	}
}
