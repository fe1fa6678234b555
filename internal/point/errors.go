package point

import "fmt"

// ConfigError indicates invalid pipeline configuration (bad chunking
// parameters, missing credentials). Fatal: aborts the run immediately.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// EmptyDocumentError indicates a document with no extractable text.
// Fatal for that document only.
type EmptyDocumentError struct {
	Path string
}

func (e *EmptyDocumentError) Error() string {
	if e.Path == "" {
		return "empty document"
	}
	return fmt.Sprintf("empty document: %s", e.Path)
}

// ServiceError is a transient model-service failure (network, timeout,
// quota). Retryable with backoff.
type ServiceError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model service error: %v", e.Err)
	}
	return fmt.Sprintf("model service error (status %d): %s", e.StatusCode, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ParseError indicates a model response that does not match the point
// schema. Not retried with the same prompt; the chunk is marked failed.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	if e.Raw == "" {
		return fmt.Sprintf("parse error: %s", e.Reason)
	}
	return fmt.Sprintf("parse error: %s (raw: %s)", e.Reason, e.Raw)
}

// SinkError indicates the downstream sink could not accept delivery after
// the configured attempts. Surfaced as a run-level warning; already
// delivered points are not rolled back.
type SinkError struct {
	Attempts int
	Err      error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink delivery failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
