package providers

import (
	"context"

	"github.com/lehigh-university-libraries/ragtest/internal/images"
)

// Request is a single prompt, optionally with images attached
type Request struct {
	Model       string
	Prompt      string
	Images      []images.Image
	MaxTokens   int
	Temperature float64
}

// Usage is the token count a provider billed for a call
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the model's text reply
type Response struct {
	Text  string
	Model string
	Usage Usage
	// Reported is false when the provider returned no usage numbers
	Reported bool
}

// Provider defines the interface for an LLM provider
type Provider interface {
	// Name identifies the provider in cost records and logs
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}
