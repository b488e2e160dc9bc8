package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/ragtest/internal/models"
	"github.com/lehigh-university-libraries/ragtest/internal/results"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 10, 19, 14, 30, 5, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b"} {
		run := &models.Run{
			ID:        id,
			Mode:      models.ModeFolder,
			StartedAt: started.Add(time.Duration(i) * time.Minute),
			Cases:     []models.TestCase{{Index: 1, Category: "wiring", Status: models.StatusPassed}},
		}
		if _, err := results.SaveToYAML(dir, run); err != nil {
			t.Fatal(err)
		}
	}
	broken := filepath.Join(dir, "rag_test_results_20261019_000000.yaml")
	if err := os.WriteFile(broken, []byte("{not yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	store := New()
	n, err := store.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 runs loaded, got %d", n)
	}

	entry, ok := store.Get("run-b")
	if !ok {
		t.Fatal("Expected run-b in store")
	}
	if filepath.Base(entry.ReportPath) != "rag_test_report_20261019_143105_run-b.html" {
		t.Errorf("Unexpected report path %s", entry.ReportPath)
	}

	store.Delete("run-a")
	if len(store.GetAll()) != 1 {
		t.Errorf("Expected 1 run after delete, got %d", len(store.GetAll()))
	}
}

func TestLoadEmptyDir(t *testing.T) {
	store := New()
	n, err := store.Load(filepath.Join(t.TempDir(), "missing"))
	if err != nil || n != 0 {
		t.Errorf("Expected 0 runs and no error, got %d, %v", n, err)
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	store := New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan int, 4)
	if err := store.Watch(ctx, dir, 20*time.Millisecond, func(n int) { reloaded <- n }); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	run := &models.Run{
		ID:        "watched",
		StartedAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		Cases:     []models.TestCase{{Index: 1, Status: models.StatusPassed}},
	}
	if _, err := results.SaveToYAML(dir, run); err != nil {
		t.Fatal(err)
	}

	select {
	case n := <-reloaded:
		if n != 1 {
			t.Errorf("Expected 1 run after reload, got %d", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
	if _, ok := store.Get("watched"); !ok {
		t.Error("Expected watched run in store")
	}
}
