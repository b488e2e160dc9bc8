package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lehigh-university-libraries/ragtest/internal/images"
	"github.com/lehigh-university-libraries/ragtest/internal/providers"
	"github.com/lehigh-university-libraries/ragtest/internal/retry"
)

func TestComplete(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected /api/generate, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"model":"llava","response":"1. What is shown?","prompt_eval_count":42,"eval_count":7}`))
	}))
	defer server.Close()

	o := New(server.URL, server.Client())
	resp, err := o.Complete(context.Background(), providers.Request{
		Model:  "llava",
		Prompt: "Ask about this image",
		Images: []images.Image{{MediaType: "image/png", Data: []byte("png")}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Text != "1. What is shown?" {
		t.Errorf("Expected response text, got %q", resp.Text)
	}
	if !resp.Reported || resp.Usage.InputTokens != 42 || resp.Usage.OutputTokens != 7 {
		t.Errorf("Unexpected usage: %+v", resp.Usage)
	}
	imgs, ok := got["images"].([]interface{})
	if !ok || len(imgs) != 1 || imgs[0] != "cG5n" {
		t.Errorf("Expected one base64 image in request, got %v", got["images"])
	}
	if got["stream"] != false {
		t.Errorf("Expected stream=false, got %v", got["stream"])
	}
}

func TestCompleteStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model is loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := New(server.URL, server.Client()).Complete(context.Background(), providers.Request{Model: "llava"})

	var httpErr *retry.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", httpErr.StatusCode)
	}
	if !retry.IsRetryable(err) {
		t.Error("Expected 503 to be retryable")
	}
}
