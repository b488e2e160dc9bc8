package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/lehigh-university-libraries/ragtest/internal/providers"
	"github.com/lehigh-university-libraries/ragtest/internal/retry"
)

// OpenAI is a provider for the OpenAI chat completions API
type OpenAI struct {
	client *goopenai.Client
}

// New returns a new OpenAI provider. baseURL may be empty for the public API.
func New(apiKey, baseURL string) *OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: goopenai.NewClientWithConfig(cfg)}
}

func (o *OpenAI) Name() string { return "openai" }

// Complete sends the prompt with images attached as data URLs
func (o *OpenAI) Complete(ctx context.Context, config providers.Request) (*providers.Response, error) {
	parts := []goopenai.ChatMessagePart{
		{Type: goopenai.ChatMessagePartTypeText, Text: config.Prompt},
	}
	for _, img := range config.Images {
		parts = append(parts, goopenai.ChatMessagePart{
			Type: goopenai.ChatMessagePartTypeImageURL,
			ImageURL: &goopenai.ChatMessageImageURL{
				URL:    img.DataURL(),
				Detail: goopenai.ImageURLDetailAuto,
			},
		})
	}

	req := goopenai.ChatCompletionRequest{
		Model: config.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, MultiContent: parts},
		},
		Temperature: float32(config.Temperature),
		MaxTokens:   config.MaxTokens,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from OpenAI")
	}

	return &providers.Response{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: providers.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		Reported: true,
	}, nil
}

func wrapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &retry.HTTPError{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &retry.HTTPError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return fmt.Errorf("failed to create chat completion: %w", err)
}
