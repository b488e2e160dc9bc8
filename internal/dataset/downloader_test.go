package dataset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func sheetServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path != "/resolve/main/questions.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("question\nWhat is a ZIF socket?\n"))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDownload(t *testing.T) {
	var hits int32
	server := sheetServer(t, &hits)
	d := NewDownloader(DownloadConfig{CacheDir: t.TempDir()})

	path, err := d.Download(context.Background(), server.URL+"/resolve/main/questions.csv")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if !strings.HasSuffix(path, "_questions.csv") {
		t.Errorf("Unexpected cache path %s", path)
	}

	again, err := d.Download(context.Background(), server.URL+"/resolve/main/questions.csv")
	if err != nil || again != path {
		t.Errorf("Expected cached path, got %s (%v)", again, err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("Expected 1 download, got %d", hits)
	}

	rows, err := NewLoader(path).Load()
	if err != nil || len(rows) != 1 {
		t.Errorf("Expected 1 row from downloaded sheet, got %d (%v)", len(rows), err)
	}
}

func TestDownloadErrors(t *testing.T) {
	var hits int32
	server := sheetServer(t, &hits)
	dir := t.TempDir()
	d := NewDownloader(DownloadConfig{CacheDir: dir})

	if _, err := d.Download(context.Background(), server.URL+"/resolve/main/missing.csv"); err == nil {
		t.Error("Expected error for 404")
	}
	if _, err := d.Download(context.Background(), server.URL+"/notes.txt"); err == nil {
		t.Error("Expected error for unsupported extension")
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "*"))
	if len(leftovers) != 0 {
		t.Errorf("Expected no partial files, got %v", leftovers)
	}
}

func TestLoadOrDownloadLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.csv")
	if err := os.WriteFile(path, []byte("question\nA?\n"), 0644); err != nil {
		t.Fatal(err)
	}
	loader, err := LoadOrDownload(context.Background(), path, DownloadConfig{})
	if err != nil {
		t.Fatalf("LoadOrDownload failed: %v", err)
	}
	if loader.datasetPath != path {
		t.Errorf("Expected local path to be used as is, got %s", loader.datasetPath)
	}
}
