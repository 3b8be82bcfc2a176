package domain

import (
	"errors"
	"fmt"
)

// ValidationError rejects a request before any backend is invoked: a bad or
// short sequence, an unknown program, or a program/sequence-type mismatch.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for a named request field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// DatabaseNotFoundError means the referenced database is not in the registry
// or its artifact files are gone.
type DatabaseNotFoundError struct {
	Ref string
}

func (e *DatabaseNotFoundError) Error() string {
	return fmt.Sprintf("database %q not found", e.Ref)
}

// DatabaseCorruptError means the database exists but its artifact set is
// incomplete or the search binary rejected it.
type DatabaseCorruptError struct {
	Ref    string
	Detail string
}

func (e *DatabaseCorruptError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("database %q is corrupt", e.Ref)
	}
	return fmt.Sprintf("database %q is corrupt: %s", e.Ref, e.Detail)
}

// UnsupportedFormatError rejects a source file that is not FASTA before the
// builder is ever invoked.
type UnsupportedFormatError struct {
	Path   string
	Detail string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format for %s: %s", e.Path, e.Detail)
}

// ExecFailureKind classifies a non-zero subprocess exit by its diagnostics.
type ExecFailureKind string

const (
	ExecMissingExecutable ExecFailureKind = "missing-executable"
	ExecCorruptDatabase   ExecFailureKind = "corrupt-database"
	ExecMalformedInput    ExecFailureKind = "malformed-input"
	ExecGenericFailure    ExecFailureKind = "generic"
)

// ProcessExecutionError is a failed local subprocess run. Stderr carries the
// captured diagnostic stream for the fallback result and the logs.
type ProcessExecutionError struct {
	Command string
	Kind    ExecFailureKind
	Stderr  string
	Err     error
}

func (e *ProcessExecutionError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Command, e.Kind, e.Err)
}

func (e *ProcessExecutionError) Unwrap() error {
	return e.Err
}

// RemoteSubmissionError means the submit step produced no request token.
// Body holds the full response for diagnosis.
type RemoteSubmissionError struct {
	Body string
	Err  error
}

func (e *RemoteSubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote submission failed: %v", e.Err)
	}
	return "remote submission failed: no request token in response"
}

func (e *RemoteSubmissionError) Unwrap() error {
	return e.Err
}

// RemoteJobFailedError is a terminal FAILED or UNKNOWN poll status. Neither
// is transient, so the poll loop stops immediately.
type RemoteJobFailedError struct {
	RequestID string
	Status    RemoteJobStatus
}

func (e *RemoteJobFailedError) Error() string {
	return fmt.Sprintf("remote job %s ended with status %s", e.RequestID, e.Status)
}

// RemoteTimeoutError means the poll loop exhausted its attempt budget while
// the job stayed in WAITING.
type RemoteTimeoutError struct {
	RequestID string
	Attempts  int
}

func (e *RemoteTimeoutError) Error() string {
	return fmt.Sprintf("remote job %s still waiting after %d polls", e.RequestID, e.Attempts)
}

// ParseError means the raw output could not be interpreted at all. Single
// malformed records are skipped, not reported through this type.
type ParseError struct {
	Format OutputFormat
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s output: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsRequestError reports whether the error belongs to the pre-execution
// class that is surfaced to the caller directly instead of being absorbed
// into a fallback result.
func IsRequestError(err error) bool {
	var (
		ve *ValidationError
		nf *DatabaseNotFoundError
		cf *DatabaseCorruptError
		uf *UnsupportedFormatError
	)
	return errors.As(err, &ve) || errors.As(err, &nf) ||
		errors.As(err, &cf) || errors.As(err, &uf) ||
		errors.Is(err, ErrSearchInProgress)
}
