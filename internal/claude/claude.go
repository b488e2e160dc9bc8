package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lehigh-university-libraries/ragtest/internal/providers"
	"github.com/lehigh-university-libraries/ragtest/internal/retry"
)

const defaultMaxTokens = 4000

// Claude is a provider for the Anthropic Messages API
type Claude struct {
	client anthropic.Client
}

// New returns a new Claude provider. The SDK's own retries are disabled so
// the harness retry policy is the only one in effect.
func New(apiKey string, opts ...option.RequestOption) *Claude {
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	return &Claude{client: anthropic.NewClient(append(options, opts...)...)}
}

func (c *Claude) Name() string { return "anthropic" }

// Complete sends a single user turn with images ahead of the prompt text
func (c *Claude) Complete(ctx context.Context, config providers.Request) (*providers.Response, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(config.Images)+1)
	for _, img := range config.Images {
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MediaType, img.Base64()))
	}
	blocks = append(blocks, anthropic.NewTextBlock(config.Prompt))

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(config.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(config.Temperature),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &retry.HTTPError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no text content returned from Claude")
	}

	return &providers.Response{
		Text:  text.String(),
		Model: string(msg.Model),
		Usage: providers.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
		Reported: true,
	}, nil
}
