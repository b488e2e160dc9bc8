package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/lehigh-university-libraries/ragtest/internal/images"
	"github.com/lehigh-university-libraries/ragtest/internal/providers"
)

type fakeConverser struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverser) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.out, f.err
}

func TestComplete(t *testing.T) {
	fake := &fakeConverser{
		out: &bedrockruntime.ConverseOutput{
			Output: &types.ConverseOutputMemberMessage{
				Value: types.Message{
					Role: types.ConversationRoleAssistant,
					Content: []types.ContentBlock{
						&types.ContentBlockMemberText{Value: `{"technical_accuracy": 90, `},
						&types.ContentBlockMemberText{Value: `"completeness": 80}`},
					},
				},
			},
			Usage: &types.TokenUsage{
				InputTokens:  aws.Int32(2100),
				OutputTokens: aws.Int32(64),
				TotalTokens:  aws.Int32(2164),
			},
		},
	}

	b := NewWithClient(fake)
	resp, err := b.Complete(context.Background(), providers.Request{
		Model:       "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		Prompt:      "Evaluate",
		Images:      []images.Image{{MediaType: "image/jpeg", Data: []byte{0xff, 0xd8}}},
		MaxTokens:   4000,
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Text != `{"technical_accuracy": 90, "completeness": 80}` {
		t.Errorf("Unexpected text %q", resp.Text)
	}
	if !resp.Reported || resp.Usage.InputTokens != 2100 || resp.Usage.OutputTokens != 64 {
		t.Errorf("Unexpected usage %+v", resp.Usage)
	}

	if aws.ToString(fake.input.ModelId) != "us.anthropic.claude-3-7-sonnet-20250219-v1:0" {
		t.Errorf("Unexpected model id %s", aws.ToString(fake.input.ModelId))
	}
	if aws.ToInt32(fake.input.InferenceConfig.MaxTokens) != 4000 {
		t.Errorf("Expected max tokens 4000")
	}
	content := fake.input.Messages[0].Content
	if len(content) != 2 {
		t.Fatalf("Expected image and text blocks, got %d", len(content))
	}
	img, ok := content[0].(*types.ContentBlockMemberImage)
	if !ok || img.Value.Format != types.ImageFormatJpeg {
		t.Errorf("Expected jpeg image block first, got %T", content[0])
	}
}

func TestCompleteError(t *testing.T) {
	fake := &fakeConverser{err: errors.New("operation error Bedrock Runtime: Converse, ThrottlingException")}
	_, err := NewWithClient(fake).Complete(context.Background(), providers.Request{Model: "m", Prompt: "p"})
	if err == nil {
		t.Fatal("Expected error")
	}
}

func TestImageBlockRejectsBMP(t *testing.T) {
	if _, err := imageBlock(images.Image{MediaType: "image/bmp"}); err == nil {
		t.Error("Expected bmp to be rejected")
	}
}
