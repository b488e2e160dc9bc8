package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/lehigh-university-libraries/ragtest/internal/images"
	"github.com/lehigh-university-libraries/ragtest/internal/providers"
	"github.com/lehigh-university-libraries/ragtest/internal/retry"
)

// Converser is the subset of the Bedrock runtime client the provider uses
type Converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock is a provider for models hosted on AWS Bedrock, called through the Converse API
type Bedrock struct {
	client Converser
}

// Config holds AWS credentials. Empty keys fall back to the default credential chain.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// New loads AWS configuration and returns a Bedrock provider
func New(ctx context.Context, cfg Config) (*Bedrock, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		// the harness retry policy owns retries
		config.WithRetryMaxAttempts(1),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Bedrock{client: bedrockruntime.NewFromConfig(awsCfg)}, nil
}

// NewWithClient wraps an existing runtime client
func NewWithClient(client Converser) *Bedrock {
	return &Bedrock{client: client}
}

func (b *Bedrock) Name() string { return "bedrock" }

// Complete sends a single user turn through Converse
func (b *Bedrock) Complete(ctx context.Context, req providers.Request) (*providers.Response, error) {
	content := make([]types.ContentBlock, 0, len(req.Images)+1)
	for _, img := range req.Images {
		block, err := imageBlock(img)
		if err != nil {
			return nil, err
		}
		content = append(content, block)
	}
	content = append(content, &types.ContentBlockMemberText{Value: req.Prompt})

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
		Messages: []types.Message{
			{Role: types.ConversationRoleUser, Content: content},
		},
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if req.MaxTokens > 0 {
		input.InferenceConfig.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}

	out, err := b.client.Converse(ctx, input)
	if err != nil {
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) {
			return nil, &retry.HTTPError{StatusCode: respErr.HTTPStatusCode(), Err: err}
		}
		return nil, fmt.Errorf("bedrock converse failed: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected output type from Bedrock: %T", out.Output)
	}

	var text strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			text.WriteString(t.Value)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no text content returned from Bedrock")
	}

	resp := &providers.Response{Text: text.String(), Model: req.Model}
	if out.Usage != nil {
		resp.Usage = providers.Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
		resp.Reported = true
	}
	return resp, nil
}

func imageBlock(img images.Image) (types.ContentBlock, error) {
	var format types.ImageFormat
	switch img.MediaType {
	case "image/png":
		format = types.ImageFormatPng
	case "image/jpeg":
		format = types.ImageFormatJpeg
	case "image/gif":
		format = types.ImageFormatGif
	case "image/webp":
		format = types.ImageFormatWebp
	default:
		return nil, fmt.Errorf("unsupported image format for Bedrock: %s", img.MediaType)
	}
	return &types.ContentBlockMemberImage{
		Value: types.ImageBlock{
			Format: format,
			Source: &types.ImageSourceMemberBytes{Value: img.Data},
		},
	}, nil
}
