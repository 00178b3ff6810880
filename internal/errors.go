package internal

import (
	"errors"
	"fmt"
)

// Sentinels for the summarization failure kinds. The typed errors below
// match them through errors.Is.
var (
	ErrTransport         = errors.New("transport failure")
	ErrMalformedResponse = errors.New("malformed response")
	ErrExtractionFailed  = errors.New("extraction failed")
)

// StorageError represents errors accessing the message store or state files
type StorageError struct {
	Path string
	Op   string // "open", "migrate", "insert", "query", "save"
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ParseError represents errors parsing imported chat data
type ParseError struct {
	Source string // "telegram", "jsonl"
	Key    string // file path or record position
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s] %s: %v", e.Source, e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ConfigError reports an invalid configuration value
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error [%s]: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ExportError represents errors writing a report
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// TransportError covers connection failures, timeouts and non-success
// statuses from the summarization endpoint.
type TransportError struct {
	Op         string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("transport error [%s]: timeout: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport error [%s]: status %d: %v", e.Op, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("transport error [%s]: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// MalformedResponseError means the call succeeded but carried no usable content.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %s", e.Reason)
}

func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// ExtractionError means content was present but no JSON object could be recovered.
type ExtractionError struct {
	Preview string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("no JSON object found in model output: %q", e.Preview)
}

func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}
