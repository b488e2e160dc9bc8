package rag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/lehigh-university-libraries/ragtest/internal/models"
	"github.com/lehigh-university-libraries/ragtest/internal/retry"
)

func instantPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func TestQuerySendsContractPayload(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"response": "Connect the red lead to terminal A.",
			"sources": [
				{"content": "Terminal A accepts the red lead.", "source": "manual.pdf", "page": 12, "score": 0.91},
				"Always disconnect power first."
			]
		}`))
	}))
	defer server.Close()

	c := NewClient(Options{URL: server.URL, PersistentSession: true, Retry: instantPolicy(3), HTTPClient: server.Client()})
	answer, err := c.Query(context.Background(), "Where does the red lead go?", "session-1")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if got["user_query"] != "Where does the red lead go?" {
		t.Errorf("Unexpected user_query %v", got["user_query"])
	}
	if got["sessionId"] != "session-1" {
		t.Errorf("Unexpected sessionId %v", got["sessionId"])
	}
	if got["streaming"] != false || got["use_persistent_session"] != true {
		t.Errorf("Unexpected flags: %v", got)
	}

	if answer.Text != "Connect the red lead to terminal A." {
		t.Errorf("Unexpected answer %q", answer.Text)
	}
	if len(answer.Passages) != 2 {
		t.Fatalf("Expected 2 passages, got %d", len(answer.Passages))
	}
	p := answer.Passages[0]
	if p.Source != "manual.pdf" || p.Page != "12" || p.Score != 0.91 {
		t.Errorf("Unexpected passage %+v", p)
	}
	if answer.Passages[1].Content != "Always disconnect power first." {
		t.Errorf("Unexpected string passage %+v", answer.Passages[1])
	}
}

func TestDecodeFieldFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		body    string
		want    string
		wantErr bool
	}{
		{"response", Options{}, `{"response": "a"}`, "a", false},
		{"reply", Options{}, `{"reply": "b"}`, "b", false},
		{"answer", Options{}, `{"answer": "c"}`, "c", false},
		{"priority order", Options{}, `{"answer": "c", "response": "a"}`, "a", false},
		{"nested path", Options{AnswerFields: []string{"data.output"}}, `{"data": {"output": "d"}}`, "d", false},
		{"missing", Options{}, `{"message": "ok"}`, "", true},
		{"not json", Options{}, `<html>`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, err := NewClient(tt.opts).Decode([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got answer %+v", answer)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if answer.Text != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, answer.Text)
			}
		})
	}
}

func TestQueryRetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"response": "ok"}`))
	}))
	defer server.Close()

	c := NewClient(Options{URL: server.URL, Retry: instantPolicy(3), HTTPClient: server.Client()})
	answer, err := c.Query(context.Background(), "q", "s")
	if err != nil {
		t.Fatalf("Expected success on the third attempt, got %v", err)
	}
	if answer.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", answer.Attempts)
	}
}

func TestQueryExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "busy", http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(Options{URL: server.URL, Retry: instantPolicy(3), HTTPClient: server.Client()})
	_, err := c.Query(context.Background(), "q", "s")

	var qErr *models.QueryError
	if !errors.As(err, &qErr) {
		t.Fatalf("Expected QueryError, got %v", err)
	}
	if qErr.Attempts != 3 || atomic.LoadInt32(&calls) != 3 {
		t.Errorf("Expected 3 attempts, got %d (server saw %d)", qErr.Attempts, calls)
	}
	var httpErr *retry.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected wrapped 502, got %v", err)
	}
}

func TestQueryTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	c := NewClient(Options{URL: server.URL, Timeout: 20 * time.Millisecond, Retry: instantPolicy(2), HTTPClient: server.Client()})
	_, err := c.Query(context.Background(), "q", "s")

	var qErr *models.QueryError
	if !errors.As(err, &qErr) || qErr.Attempts != 2 {
		t.Fatalf("Expected timeout to be retried then fail, got %v", err)
	}
}

func TestHasImageReference(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"See the diagram at https://example.edu/fig1", true},
		{"參考圖片三", true},
		{"wiring.PNG shows it", true},
		{"Connect the red wire to terminal A.", false},
	}
	for _, tt := range tests {
		if got := HasImageReference(tt.answer); got != tt.want {
			t.Errorf("HasImageReference(%q) = %v, want %v", tt.answer, got, tt.want)
		}
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	body := strings.Repeat("連接器錯誤", 200)

	got := truncate(body, 500)
	if !utf8.ValidString(got) {
		t.Fatalf("Expected valid UTF-8, got %q", got[len(got)-10:])
	}
	if n := utf8.RuneCountInString(got); n != 500 {
		t.Errorf("Expected 500 runes, got %d", n)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Expected ellipsis suffix, got %q", got[len(got)-6:])
	}
	if got := truncate("short", 500); got != "short" {
		t.Errorf("Expected short input unchanged, got %q", got)
	}
}

func TestQueryErrorBodyIsValidUTF8(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(strings.Repeat("錯", 400)))
	}))
	defer server.Close()

	c := NewClient(Options{URL: server.URL, Retry: instantPolicy(1), HTTPClient: server.Client()})
	_, err := c.Query(context.Background(), "q", "s")

	var httpErr *retry.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected HTTPError, got %v", err)
	}
	if !utf8.ValidString(httpErr.Body) {
		t.Error("Expected error body to stay valid UTF-8")
	}
}
