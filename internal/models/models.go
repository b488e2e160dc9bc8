package models

import "time"

// Status values recorded on a TestCase
const (
	StatusPassed           = "passed"
	StatusBelowThreshold   = "below_threshold"
	StatusQueryFailed      = "query_failed"
	StatusEvaluationFailed = "evaluation_failed"
	StatusIOFailed         = "io_failed"
)

// Pipeline steps that incur cost
const (
	StepQuestion   = "question"
	StepEvaluation = "evaluation"
	StepRAG        = "rag"
)

// Run modes
const (
	ModeFolder = "folder"
	ModeSheet  = "sheet"
)

// TestCase is one image (or spreadsheet row) pushed through the pipeline
type TestCase struct {
	Index              int              `json:"index" yaml:"index"`
	ImagePath          string           `json:"image_path" yaml:"image_path"`
	Category           string           `json:"category" yaml:"category"`
	Question           string           `json:"question" yaml:"question"`
	CandidateQuestions []string         `json:"candidate_questions,omitempty" yaml:"candidate_questions,omitempty"`
	Answer             string           `json:"answer" yaml:"answer"`
	Passages           []Passage        `json:"passages,omitempty" yaml:"passages,omitempty"`
	Evaluation         *EvaluationScore `json:"evaluation" yaml:"evaluation"`
	Rationale          string           `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Costs              []CostRecord     `json:"costs" yaml:"costs"`
	Status             string           `json:"status" yaml:"status"`
	Error              string           `json:"error,omitempty" yaml:"error,omitempty"`
	ResponseTime       time.Duration    `json:"response_time" yaml:"response_time"`
	SessionID          string           `json:"session_id" yaml:"session_id"`
	HasImageReference  bool             `json:"has_image_reference" yaml:"has_image_reference"`
}

// Cost returns the sum of the case's cost records
func (tc *TestCase) Cost() float64 {
	var total float64
	for _, c := range tc.Costs {
		total += c.USD
	}
	return total
}

// Failed reports whether the case did not produce a usable evaluation
func (tc *TestCase) Failed() bool {
	switch tc.Status {
	case StatusQueryFailed, StatusEvaluationFailed, StatusIOFailed:
		return true
	}
	return false
}

// EvaluationScore holds the four rubric sub-scores (0-100) and their weighted total.
// Construct it with evaluation.NewScore so WeightedTotal stays consistent.
type EvaluationScore struct {
	Accuracy       float64 `json:"accuracy" yaml:"accuracy"`
	Completeness   float64 `json:"completeness" yaml:"completeness"`
	Clarity        float64 `json:"clarity" yaml:"clarity"`
	ImageReference float64 `json:"image_reference" yaml:"image_reference"`
	WeightedTotal  float64 `json:"weighted_total" yaml:"weighted_total"`
}

// CostRecord is the cost of a single billable call
type CostRecord struct {
	Step         string  `json:"step" yaml:"step"`
	Provider     string  `json:"provider" yaml:"provider"`
	Model        string  `json:"model" yaml:"model"`
	InputTokens  int     `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int     `json:"output_tokens" yaml:"output_tokens"`
	USD          float64 `json:"usd_cost" yaml:"usd_cost"`
	Estimated    bool    `json:"estimated,omitempty" yaml:"estimated,omitempty"`
}

// Passage is a source excerpt the RAG service cited for an answer
type Passage struct {
	Content string  `json:"content" yaml:"content"`
	Source  string  `json:"source,omitempty" yaml:"source,omitempty"`
	Page    string  `json:"page,omitempty" yaml:"page,omitempty"`
	Score   float64 `json:"score,omitempty" yaml:"score,omitempty"`
}

// Run is a complete harness session
type Run struct {
	ID         string       `json:"id" yaml:"id"`
	Mode       string       `json:"mode" yaml:"mode"`
	Source     string       `json:"source" yaml:"source"`
	Provider   string       `json:"provider" yaml:"provider"`
	Model      string       `json:"model" yaml:"model"`
	RAGURL     string       `json:"rag_url" yaml:"rag_url"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time    `json:"finished_at" yaml:"finished_at"`
	Threshold  float64      `json:"pass_threshold" yaml:"pass_threshold"`
	Cases      []TestCase   `json:"cases" yaml:"cases"`
	Costs      []CostRecord `json:"costs" yaml:"costs"`
}

// TotalCost sums every cost record attributed to the run
func (r *Run) TotalCost() float64 {
	var total float64
	for _, c := range r.Costs {
		total += c.USD
	}
	return total
}
