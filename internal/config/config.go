package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/ragtest/internal/cost"
	"github.com/lehigh-university-libraries/ragtest/internal/models"
)

// Supported LLM providers
const (
	ProviderClaude  = "claude"
	ProviderBedrock = "bedrock"
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
	ProviderOllama  = "ollama"
)

// Session scopes for RAG conversation memory
const (
	SessionScopeRun      = "run"
	SessionScopeCategory = "category"
)

// Settings is the process-wide configuration, read once at startup and
// treated as read-only afterwards.
type Settings struct {
	RAG    RAGSettings
	LLM    LLMSettings
	Retry  RetrySettings
	HTML   HTMLSettings
	Sheets SheetSettings

	ImageDir             string
	ResultsDir           string
	DelayBetweenTests    time.Duration
	MaxImagesPerCategory int
	QuestionsPerImage    int
	PassThreshold        float64

	Rates []cost.Rate

	getenv func(string) string
}

// RAGSettings describes the system under test
type RAGSettings struct {
	URL               string
	Timeout           time.Duration
	AnswerFields      []string
	SourcesFields     []string
	SessionScope      string
	PersistentSession bool
	TrackCost         bool
	CostModel         string
}

// LLMSettings selects and parameterizes the question/judge model
type LLMSettings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64

	// Bedrock only
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// RetrySettings drives internal/retry policies
type RetrySettings struct {
	Count    int
	Delay    time.Duration
	Backoff  float64
	MaxDelay time.Duration
}

// HTMLSettings controls report layout and theme
type HTMLSettings struct {
	MaxImageWidth   string
	MaxImageHeight  string
	AnswerMaxHeight string
	PrimaryColor    string
	SuccessColor    string
	WarningColor    string
	ErrorColor      string
}

// SheetSettings controls downloading question sheets given by URL
type SheetSettings struct {
	CacheDir string
	// Token is sent as a bearer token, e.g. for private HuggingFace datasets
	Token string
}

// Load reads settings from the process environment
func Load() (*Settings, error) {
	return FromEnv(os.Getenv)
}

// FromEnv builds Settings from a lookup function. Malformed numeric values
// are reported as *models.ConfigurationError.
func FromEnv(getenv func(string) string) (*Settings, error) {
	e := env{get: getenv}

	s := &Settings{
		RAG: RAGSettings{
			URL:               e.str("RAG_TEST_API_URL", "http://localhost:8006/api/v1/query"),
			Timeout:           e.seconds("RAG_TEST_TIMEOUT", 30),
			AnswerFields:      e.list("RAG_TEST_ANSWER_FIELDS", "response,reply,answer"),
			SourcesFields:     e.list("RAG_TEST_SOURCES_FIELDS", "sources,cited_passages,source_documents"),
			SessionScope:      strings.ToLower(e.str("RAG_TEST_SESSION_SCOPE", SessionScopeRun)),
			PersistentSession: e.boolean("RAG_TEST_PERSISTENT_SESSION", true),
			TrackCost:         e.boolean("RAG_TEST_TRACK_RAG_COST", true),
			CostModel:         e.str("RAG_TEST_RAG_MODEL", "gpt-4o"),
		},
		LLM: LLMSettings{
			Provider:    strings.ToLower(e.str("RAG_TEST_LLM_PROVIDER", ProviderClaude)),
			MaxTokens:   e.integer("CLAUDE_MAX_TOKENS", 4000),
			Temperature: e.float("CLAUDE_TEMPERATURE", 0.7),
			Region:      e.str("AWS_REGION", "us-east-1"),
		},
		Retry: RetrySettings{
			Count:    e.integer("RAG_TEST_RETRY_COUNT", 3),
			Delay:    e.seconds("RAG_TEST_RETRY_DELAY", 2),
			Backoff:  e.float("RAG_TEST_RETRY_BACKOFF", 1.0),
			MaxDelay: e.seconds("RAG_TEST_RETRY_MAX_DELAY", 60),
		},
		HTML: HTMLSettings{
			MaxImageWidth:   e.str("HTML_MAX_IMAGE_WIDTH", "350px"),
			MaxImageHeight:  e.str("HTML_MAX_IMAGE_HEIGHT", "300px"),
			AnswerMaxHeight: e.str("HTML_ANSWER_MAX_HEIGHT", "200px"),
			PrimaryColor:    e.str("HTML_PRIMARY_COLOR", "#3498db"),
			SuccessColor:    e.str("HTML_SUCCESS_COLOR", "#27ae60"),
			WarningColor:    e.str("HTML_WARNING_COLOR", "#f39c12"),
			ErrorColor:      e.str("HTML_ERROR_COLOR", "#e74c3c"),
		},
		Sheets: SheetSettings{
			CacheDir: e.str("RAG_TEST_SHEET_CACHE_DIR", "~/.cache/ragtest/sheets"),
			Token:    e.str("HF_TOKEN", ""),
		},
		ImageDir:             e.str("RAG_TEST_IMAGE_DIR", ""),
		ResultsDir:           e.str("RAG_TEST_RESULTS_DIR", "./results"),
		DelayBetweenTests:    e.seconds("RAG_TEST_DELAY_BETWEEN_TESTS", 2),
		MaxImagesPerCategory: e.integer("RAG_TEST_MAX_IMAGES_PER_CATEGORY", 5),
		QuestionsPerImage:    e.integer("RAG_TEST_QUESTIONS_PER_IMAGE", 1),
		PassThreshold:        e.float("RAG_TEST_PASS_THRESHOLD", 70),
	}

	s.getenv = getenv
	s.Rates = []cost.Rate{
		{
			Provider: "anthropic",
			Match:    "claude-3-7-sonnet",
			Input:    e.float("CLAUDE_3_7_SONNET_INPUT_COST_PER_TOKEN", 0.000012),
			Output:   e.float("CLAUDE_3_7_SONNET_OUTPUT_COST_PER_TOKEN", 0.00006),
		},
		{
			Provider: "anthropic",
			Match:    "claude-3-5-haiku",
			Input:    e.float("CLAUDE_3_5_HAIKU_INPUT_COST_PER_TOKEN", 0.0000008),
			Output:   e.float("CLAUDE_3_5_HAIKU_OUTPUT_COST_PER_TOKEN", 0.000004),
		},
		{
			Provider: "openai",
			Match:    "gpt-4o",
			Input:    e.float("OPENAI_INPUT_COST_PER_TOKEN", 0.0000025),
			Output:   e.float("OPENAI_OUTPUT_COST_PER_TOKEN", 0.00001),
		},
		{
			Provider: "google",
			Match:    "gemini",
			Input:    e.float("GEMINI_INPUT_COST_PER_TOKEN", 0.0000003),
			Output:   e.float("GEMINI_OUTPUT_COST_PER_TOKEN", 0.0000025),
		},
	}

	s.resolveProvider(&e)

	if len(e.errs) > 0 {
		return nil, e.errs[0]
	}
	return s, nil
}

func (s *Settings) resolveProvider(e *env) {
	switch s.LLM.Provider {
	case ProviderClaude:
		s.LLM.APIKey = e.str("CLAUDE_API_KEY", e.str("ANTHROPIC_API_KEY", ""))
		s.LLM.Model = e.str("CLAUDE_MODEL", "claude-3-7-sonnet-20250219")
	case ProviderBedrock:
		s.LLM.AccessKeyID = e.str("AWS_ACCESS_KEY_ID", "")
		s.LLM.SecretAccessKey = e.str("AWS_SECRET_ACCESS_KEY", "")
		s.LLM.Model = e.str("BEDROCK_MODEL", "us.anthropic.claude-3-7-sonnet-20250219-v1:0")
	case ProviderOpenAI:
		s.LLM.APIKey = e.str("OPENAI_API_KEY", "")
		s.LLM.Model = e.str("OPENAI_MODEL", "gpt-4o")
	case ProviderGemini:
		s.LLM.APIKey = e.str("GEMINI_API_KEY", "")
		s.LLM.Model = e.str("GEMINI_MODEL", "gemini-2.0-flash")
	case ProviderOllama:
		s.LLM.BaseURL = e.str("OLLAMA_URL", e.str("OLLAMA_HOST", "http://localhost:11434"))
		s.LLM.Model = e.str("OLLAMA_MODEL", "mistral-small3.2:24b")
	}
}

// UseProvider switches the LLM provider and re-reads its credentials and
// default model from the lookup the settings were built with.
func (s *Settings) UseProvider(name string) {
	s.LLM.Provider = strings.ToLower(strings.TrimSpace(name))
	getenv := s.getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	e := env{get: getenv}
	s.resolveProvider(&e)
}

// Validate checks every setting a run cannot start without. It must be
// called before any outbound request is made.
func (s *Settings) Validate() error {
	if err := s.ValidateServices(); err != nil {
		return err
	}
	if s.ImageDir == "" {
		return &models.ConfigurationError{Key: "RAG_TEST_IMAGE_DIR", Reason: "is required"}
	}
	return nil
}

// ValidateServices checks the RAG endpoint, the LLM credentials and the run
// parameters. Commands call it before resolving their target, which may
// itself download a sheet.
func (s *Settings) ValidateServices() error {
	if s.RAG.URL == "" {
		return &models.ConfigurationError{Key: "RAG_TEST_API_URL", Reason: "is required"}
	}
	if !strings.HasPrefix(s.RAG.URL, "http://") && !strings.HasPrefix(s.RAG.URL, "https://") {
		return &models.ConfigurationError{Key: "RAG_TEST_API_URL", Reason: "must be an http(s) URL"}
	}

	switch s.LLM.Provider {
	case ProviderClaude:
		if s.LLM.APIKey == "" {
			return &models.ConfigurationError{Key: "CLAUDE_API_KEY", Reason: "is required for the claude provider"}
		}
	case ProviderOpenAI:
		if s.LLM.APIKey == "" {
			return &models.ConfigurationError{Key: "OPENAI_API_KEY", Reason: "is required for the openai provider"}
		}
	case ProviderGemini:
		if s.LLM.APIKey == "" {
			return &models.ConfigurationError{Key: "GEMINI_API_KEY", Reason: "is required for the gemini provider"}
		}
	case ProviderBedrock:
		// no static keys means the default AWS credential chain
		if (s.LLM.AccessKeyID == "") != (s.LLM.SecretAccessKey == "") {
			return &models.ConfigurationError{Key: "AWS_ACCESS_KEY_ID", Reason: "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together"}
		}
	case ProviderOllama:
	default:
		return &models.ConfigurationError{Key: "RAG_TEST_LLM_PROVIDER", Reason: fmt.Sprintf("unsupported provider %q", s.LLM.Provider)}
	}

	if s.Retry.Count < 1 {
		return &models.ConfigurationError{Key: "RAG_TEST_RETRY_COUNT", Reason: "must be at least 1"}
	}
	if s.PassThreshold < 0 || s.PassThreshold > 100 {
		return &models.ConfigurationError{Key: "RAG_TEST_PASS_THRESHOLD", Reason: "must be between 0 and 100"}
	}
	if s.RAG.SessionScope != SessionScopeRun && s.RAG.SessionScope != SessionScopeCategory {
		return &models.ConfigurationError{Key: "RAG_TEST_SESSION_SCOPE", Reason: "must be run or category"}
	}

	return nil
}

// Entries lists the effective settings for display. Secrets are masked.
func (s *Settings) Entries() [][2]string {
	return [][2]string{
		{"RAG_TEST_API_URL", s.RAG.URL},
		{"RAG_TEST_TIMEOUT", s.RAG.Timeout.String()},
		{"RAG_TEST_SESSION_SCOPE", s.RAG.SessionScope},
		{"RAG_TEST_LLM_PROVIDER", s.LLM.Provider},
		{"Model", s.LLM.Model},
		{"API key", Mask(s.LLM.APIKey)},
		{"AWS_ACCESS_KEY_ID", Mask(s.LLM.AccessKeyID)},
		{"AWS_REGION", s.LLM.Region},
		{"CLAUDE_MAX_TOKENS", strconv.Itoa(s.LLM.MaxTokens)},
		{"CLAUDE_TEMPERATURE", strconv.FormatFloat(s.LLM.Temperature, 'f', -1, 64)},
		{"RAG_TEST_RETRY_COUNT", strconv.Itoa(s.Retry.Count)},
		{"RAG_TEST_RETRY_DELAY", s.Retry.Delay.String()},
		{"RAG_TEST_DELAY_BETWEEN_TESTS", s.DelayBetweenTests.String()},
		{"RAG_TEST_IMAGE_DIR", s.ImageDir},
		{"RAG_TEST_RESULTS_DIR", s.ResultsDir},
		{"RAG_TEST_MAX_IMAGES_PER_CATEGORY", strconv.Itoa(s.MaxImagesPerCategory)},
		{"RAG_TEST_PASS_THRESHOLD", strconv.FormatFloat(s.PassThreshold, 'f', -1, 64)},
		{"RAG_TEST_SHEET_CACHE_DIR", s.Sheets.CacheDir},
		{"HF_TOKEN", Mask(s.Sheets.Token)},
	}
}

// Mask hides all but the last four characters of a secret
func Mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 8) + secret[len(secret)-4:]
}

type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) list(key, def string) []string {
	var out []string
	for _, part := range strings.Split(e.str(key, def), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *env) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, &models.ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid integer %q", v)})
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, &models.ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid number %q", v)})
		return def
	}
	return f
}

func (e *env) seconds(key string, def float64) time.Duration {
	return time.Duration(e.float(key, def) * float64(time.Second))
}

func (e *env) boolean(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, &models.ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid boolean %q", v)})
		return def
	}
	return b
}
