package types

import (
	"errors"
	"net/http"
)

// ErrorCode identifies an entry of the error taxonomy. Codes are stored
// verbatim in cache entries and surfaced in the X-Error-Code header.
type ErrorCode string

const (
	// Input
	CodeParameterMissing   ErrorCode = "ParameterMissing"
	CodeInvalidParameter   ErrorCode = "InvalidParameter"
	CodeDatasetInBlockList ErrorCode = "DatasetInBlockList"

	// Auth
	CodeExternalUnauthenticated ErrorCode = "ExternalUnauthenticatedError"
	CodeExternalAuthenticated   ErrorCode = "ExternalAuthenticatedError"

	// Availability
	CodeDatasetNotFound  ErrorCode = "DatasetNotFoundError"
	CodeConfigNotFound   ErrorCode = "ConfigNotFoundError"
	CodeSplitNotFound    ErrorCode = "SplitNotFoundError"
	CodeResponseNotFound ErrorCode = "ResponseNotFound"
	CodeResponseNotReady ErrorCode = "ResponseNotReady"

	// Transient (retryable set)
	CodeClientConnectionError ErrorCode = "ClientConnectionError"
	CodeNoGitRevision         ErrorCode = "NoGitRevisionError"

	// Capacity
	CodeTooBigContent          ErrorCode = "TooBigContentError"
	CodeDatasetTooBigFromHub   ErrorCode = "DatasetTooBigFromHubError"
	CodeDatasetTooBigFromDS    ErrorCode = "DatasetTooBigFromDatasetsError"

	// Internal
	CodePreviousStepFormat        ErrorCode = "PreviousStepFormatError"
	CodeStatsComputation          ErrorCode = "StatsComputationError"
	CodeJobRunnerCrashed          ErrorCode = "JobRunnerCrashedError"
	CodeJobRunnerExceededDuration ErrorCode = "JobRunnerExceededMaximumDurationError"
	CodeResponseAlreadyComputed   ErrorCode = "ResponseAlreadyComputedError"
	CodeCachedArtifact            ErrorCode = "CachedArtifactError"
	CodeUnexpected                ErrorCode = "UnexpectedError"
)

// DefaultRetryableCodes is the default set of error codes whose cache
// entries re-become candidates for refresh. Kept as configuration per
// deployment; this is only the sane default.
var DefaultRetryableCodes = []ErrorCode{
	CodeClientConnectionError,
	CodeNoGitRevision,
}

// CodedError is a domain error carrying a taxonomy code and the HTTP
// status it maps to. Cause is preserved for the error envelope.
type CodedError struct {
	Code    ErrorCode
	Status  int
	Message string
	Cause   error
}

// NewCodedError creates a coded error
func NewCodedError(code ErrorCode, status int, message string, cause error) *CodedError {
	return &CodedError{Code: code, Status: status, Message: message, Cause: cause}
}

func (e *CodedError) Error() string {
	return e.Message
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// AsCoded maps any error into the taxonomy: coded errors pass through,
// everything else becomes UnexpectedError with the cause preserved.
func AsCoded(err error) *CodedError {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded
	}
	return &CodedError{
		Code:    CodeUnexpected,
		Status:  http.StatusInternalServerError,
		Message: err.Error(),
		Cause:   err,
	}
}

// ErrNotFound is returned by stores when a record does not exist
var ErrNotFound = errors.New("not found")

// ErrEmptyQueue is returned by StartOne when no job is eligible
var ErrEmptyQueue = errors.New("no job available")

// Convenience constructors for the codes the core raises itself.

func NewParameterMissingError(msg string) *CodedError {
	return NewCodedError(CodeParameterMissing, http.StatusUnprocessableEntity, msg, nil)
}

func NewInvalidParameterError(msg string, cause error) *CodedError {
	return NewCodedError(CodeInvalidParameter, http.StatusUnprocessableEntity, msg, cause)
}

func NewDatasetInBlockListError(msg string) *CodedError {
	return NewCodedError(CodeDatasetInBlockList, http.StatusNotImplemented, msg, nil)
}

func NewDatasetNotFoundError(msg string, cause error) *CodedError {
	return NewCodedError(CodeDatasetNotFound, http.StatusNotFound, msg, cause)
}

func NewResponseNotFoundError(msg string) *CodedError {
	return NewCodedError(CodeResponseNotFound, http.StatusNotFound, msg, nil)
}

// NewResponseNotReadyError signals that a job is pending for the
// requested artifact. HTTP 500 by convention.
func NewResponseNotReadyError(msg string) *CodedError {
	return NewCodedError(CodeResponseNotReady, http.StatusInternalServerError, msg, nil)
}

func NewClientConnectionError(msg string, cause error) *CodedError {
	return NewCodedError(CodeClientConnectionError, http.StatusInternalServerError, msg, cause)
}

func NewNoGitRevisionError(msg string) *CodedError {
	return NewCodedError(CodeNoGitRevision, http.StatusInternalServerError, msg, nil)
}

func NewTooBigContentError(msg string) *CodedError {
	return NewCodedError(CodeTooBigContent, http.StatusInternalServerError, msg, nil)
}

func NewPreviousStepFormatError(msg string, cause error) *CodedError {
	return NewCodedError(CodePreviousStepFormat, http.StatusInternalServerError, msg, cause)
}

func NewJobRunnerCrashedError(msg string) *CodedError {
	return NewCodedError(CodeJobRunnerCrashed, http.StatusInternalServerError, msg, nil)
}

func NewJobRunnerExceededMaximumDurationError(msg string) *CodedError {
	return NewCodedError(CodeJobRunnerExceededDuration, http.StatusInternalServerError, msg, nil)
}

func NewResponseAlreadyComputedError(msg string) *CodedError {
	return NewCodedError(CodeResponseAlreadyComputed, http.StatusInternalServerError, msg, nil)
}

// NewCachedArtifactError is raised by a step compute when a required
// predecessor's cache entry is not a success. The predecessor's status
// and code are propagated so the cached error stays user-meaningful.
func NewCachedArtifactError(msg string, status int, code ErrorCode) *CodedError {
	if code == "" {
		code = CodeCachedArtifact
	}
	return NewCodedError(code, status, msg, nil)
}
