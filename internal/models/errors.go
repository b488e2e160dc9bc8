package models

import "fmt"

// ConfigurationError is a missing or invalid setting. It is fatal and raised
// before any outbound call is made.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// QueryError is a remote call that still failed after the retry budget was spent.
type QueryError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s call failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// EvaluationParseError means the judge model's reply held no usable scores.
type EvaluationParseError struct {
	Reason string
	Raw    string
}

func (e *EvaluationParseError) Error() string {
	return "failed to parse evaluation: " + e.Reason
}

// IOError wraps local filesystem failures (unreadable image, unwritable results dir).
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
