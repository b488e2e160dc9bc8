package providers

import (
	"context"
	"log/slog"

	"github.com/lehigh-university-libraries/ragtest/internal/cost"
	"github.com/lehigh-university-libraries/ragtest/internal/models"
	"github.com/lehigh-university-libraries/ragtest/internal/retry"
)

// Complete runs req against p under the retry policy. When the policy is
// exhausted the last error is returned as a *models.QueryError for step.
func Complete(ctx context.Context, p Provider, policy retry.Policy, step string, req Request) (*Response, error) {
	resp, res := retry.DoValue(ctx, policy, func(ctx context.Context) (*Response, error) {
		return p.Complete(ctx, req)
	})
	if res.Err != nil {
		return nil, &models.QueryError{Step: step, Attempts: res.Attempts, Err: res.Err}
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	slog.Debug("LLM call complete",
		"step", step,
		"provider", p.Name(),
		"model", resp.Model,
		"attempts", res.Attempts,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)
	return resp, nil
}

// Record prices resp on the tracker. Providers that report no usage are
// charged an estimate derived from the prompt and reply text.
func Record(t *cost.Tracker, step string, p Provider, req Request, resp *Response) models.CostRecord {
	if !resp.Reported {
		return t.AddEstimated(step, p.Name(), resp.Model, req.Prompt, resp.Text)
	}
	return t.Add(step, p.Name(), resp.Model, cost.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	})
}
