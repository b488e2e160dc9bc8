// Package rag queries the retrieval-augmented generation service under test.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/ragtest/internal/models"
	"github.com/lehigh-university-libraries/ragtest/internal/retry"
)

// ErrNoAnswer means the response held none of the configured answer fields
var ErrNoAnswer = errors.New("response has no answer field")

// Options configures the response contract and transport
type Options struct {
	URL               string
	Timeout           time.Duration
	AnswerFields      []string
	SourcesFields     []string
	PersistentSession bool
	Retry             retry.Policy
	HTTPClient        *http.Client
}

// Client posts questions to the RAG endpoint
type Client struct {
	opts Options
	http *http.Client
}

// Answer is a decoded RAG reply
type Answer struct {
	Text     string
	Passages []models.Passage
	Duration time.Duration
	Attempts int
}

type queryRequest struct {
	UserQuery            string `json:"user_query"`
	SessionID            string `json:"sessionId"`
	Streaming            bool   `json:"streaming"`
	UsePersistentSession bool   `json:"use_persistent_session"`
}

// NewClient creates a RAG client. Empty field lists fall back to the
// response/reply/answer and sources conventions.
func NewClient(opts Options) *Client {
	if len(opts.AnswerFields) == 0 {
		opts.AnswerFields = []string{"response", "reply", "answer"}
	}
	if len(opts.SourcesFields) == 0 {
		opts.SourcesFields = []string{"sources", "cited_passages", "source_documents"}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{opts: opts, http: hc}
}

// Query sends the question under the retry policy. Exhausting the policy
// yields a *models.QueryError.
func (c *Client) Query(ctx context.Context, question, sessionID string) (*Answer, error) {
	start := time.Now()
	answer, res := retry.DoValue(ctx, c.opts.Retry, func(ctx context.Context) (*Answer, error) {
		return c.queryOnce(ctx, question, sessionID)
	})
	if res.Err != nil {
		return nil, &models.QueryError{Step: models.StepRAG, Attempts: res.Attempts, Err: res.Err}
	}
	answer.Duration = time.Since(start)
	answer.Attempts = res.Attempts
	return answer, nil
}

func (c *Client) queryOnce(ctx context.Context, question, sessionID string) (*Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	requestBody, err := json.Marshal(queryRequest{
		UserQuery:            question,
		SessionID:            sessionID,
		Streaming:            false,
		UsePersistentSession: c.opts.PersistentSession,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.opts.URL, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	slog.Debug("Querying RAG service", "url", c.opts.URL, "session_id", sessionID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(body), 500)}
	}

	return c.Decode(body)
}

// Decode extracts the answer and cited passages from a response body.
// Field names may be dotted paths into nested objects.
func (c *Client) Decode(body []byte) (*Answer, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	answer := &Answer{}
	found := false
	for _, field := range c.opts.AnswerFields {
		if v, ok := lookup(payload, field); ok {
			if s, ok := v.(string); ok {
				answer.Text = s
				found = true
				break
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("%w (tried %s)", ErrNoAnswer, strings.Join(c.opts.AnswerFields, ", "))
	}

	for _, field := range c.opts.SourcesFields {
		if v, ok := lookup(payload, field); ok {
			if list, ok := v.([]interface{}); ok {
				answer.Passages = parsePassages(list)
				break
			}
		}
	}

	return answer, nil
}

func lookup(payload map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = payload
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func parsePassages(list []interface{}) []models.Passage {
	passages := make([]models.Passage, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			passages = append(passages, models.Passage{Content: v})
		case map[string]interface{}:
			p := models.Passage{
				Content: firstString(v, "content", "text", "page_content", "chunk"),
				Source:  firstString(v, "source", "topic", "document", "title", "file_name"),
				Page:    firstString(v, "page", "page_num", "page_number"),
			}
			if meta, ok := v["metadata"].(map[string]interface{}); ok {
				if p.Source == "" {
					p.Source = firstString(meta, "source", "topic", "document", "title", "file_name")
				}
				if p.Page == "" {
					p.Page = firstString(meta, "page", "page_num", "page_number")
				}
			}
			for _, key := range []string{"score", "similarity_score", "relevance_score"} {
				if f, ok := v[key].(float64); ok {
					p.Score = f
					break
				}
			}
			passages = append(passages, p)
		}
	}
	return passages
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// HasImageReference reports whether an answer points the reader at a figure,
// link or image file.
func HasImageReference(answer string) bool {
	lower := strings.ToLower(answer)
	for _, marker := range []string{"圖片", "📷", "http", ".png", ".jpg", ".jpeg", "![", "<img"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
