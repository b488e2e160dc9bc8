package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/ragtest/internal/images"
	"github.com/lehigh-university-libraries/ragtest/internal/providers"
	"github.com/lehigh-university-libraries/ragtest/internal/retry"
)

func TestComplete(t *testing.T) {
	var body struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type     string `json:"type"`
				Text     string `json:"text"`
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-2024-08-06",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"technical_accuracy\": 80}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1200, "completion_tokens": 30, "total_tokens": 1230}
		}`))
	}))
	defer server.Close()

	o := New("sk-test", server.URL+"/v1")
	resp, err := o.Complete(context.Background(), providers.Request{
		Model:  "gpt-4o",
		Prompt: "Score this answer",
		Images: []images.Image{{MediaType: "image/jpeg", Data: []byte("jpg")}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Text != `{"technical_accuracy": 80}` {
		t.Errorf("Unexpected text %q", resp.Text)
	}
	if resp.Usage.InputTokens != 1200 || resp.Usage.OutputTokens != 30 {
		t.Errorf("Unexpected usage %+v", resp.Usage)
	}
	if resp.Model != "gpt-4o-2024-08-06" {
		t.Errorf("Expected served model name, got %s", resp.Model)
	}

	if len(body.Messages) != 1 || len(body.Messages[0].Content) != 2 {
		t.Fatalf("Expected one message with text and image parts, got %+v", body.Messages)
	}
	if body.Messages[0].Content[1].ImageURL.URL != "data:image/jpeg;base64,anBn" {
		t.Errorf("Unexpected image URL %s", body.Messages[0].Content[1].ImageURL.URL)
	}
}

func TestCompleteRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	_, err := New("sk-test", server.URL+"/v1").Complete(context.Background(), providers.Request{Model: "gpt-4o", Prompt: "hi"})

	var httpErr *retry.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 HTTPError, got %v", err)
	}
	if !retry.IsRetryable(err) {
		t.Error("Expected 429 to be retryable")
	}
}
