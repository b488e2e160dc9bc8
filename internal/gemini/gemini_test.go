package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"github.com/lehigh-university-libraries/ragtest/internal/images"
	"github.com/lehigh-university-libraries/ragtest/internal/providers"
	"github.com/lehigh-university-libraries/ragtest/internal/retry"
)

func TestBuildParts(t *testing.T) {
	parts := buildParts(providers.Request{
		Prompt: "Describe the wiring",
		Images: []images.Image{{MediaType: "image/png", Data: []byte{1, 2, 3}}},
	})

	if len(parts) != 2 {
		t.Fatalf("Expected 2 parts, got %d", len(parts))
	}
	blob, ok := parts[0].(genai.Blob)
	if !ok {
		t.Fatalf("Expected first part to be a blob, got %T", parts[0])
	}
	if blob.MIMEType != "image/png" {
		t.Errorf("Expected image/png, got %s", blob.MIMEType)
	}
	if txt, ok := parts[1].(genai.Text); !ok || string(txt) != "Describe the wiring" {
		t.Errorf("Expected trailing prompt text, got %v", parts[1])
	}
}

func TestWrapError(t *testing.T) {
	err := wrapError(fmt.Errorf("rpc: %w", &googleapi.Error{Code: 503, Message: "unavailable"}))

	var httpErr *retry.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 503 {
		t.Fatalf("Expected 503 HTTPError, got %v", err)
	}

	plain := wrapError(errors.New("blocked by safety settings"))
	if errors.As(plain, &httpErr) {
		t.Error("Expected a non-HTTP error to stay unwrapped")
	}
}

func TestCompleteRequiresKey(t *testing.T) {
	_, err := New("").Complete(context.Background(), providers.Request{Model: "gemini-2.0-flash"})
	if err == nil {
		t.Error("Expected error without an API key")
	}
}
