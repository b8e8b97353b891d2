package governor

import (
	"fmt"
	"strings"
)

// Error codes for failures that end a task without an Exhausted outcome.
const (
	CodeTaskCancelled       = "TASK_CANCELLED"
	CodeOracleConfiguration = "ORACLE_CONFIGURATION_ERROR"
	CodeInvalidTask         = "INVALID_TASK"
	CodePromptConfiguration = "PROMPT_CONFIGURATION_ERROR"
)

// ExhaustionError reports that every attempt failed validation. It carries
// the Exhausted outcome.
type ExhaustionError struct {
	ErrorCode      string
	Message        string
	FailureReasons []string
	History        [][]string
	Retries        int
	HTTPStatus     int
	Outcome        *Outcome
}

func (e *ExhaustionError) Error() string {
	if len(e.FailureReasons) == 0 {
		return fmt.Sprintf("%s: %s", e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.ErrorCode, e.Message, strings.Join(e.FailureReasons, "; "))
}

// FatalConfigurationError ends a task before it could finish: the oracle
// cannot be used, the task is malformed, or the caller gave up.
type FatalConfigurationError struct {
	Code       string
	HTTPStatus int
	Err        error
}

func (e *FatalConfigurationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *FatalConfigurationError) Unwrap() error { return e.Err }

func fatal(code string, status int, err error) *FatalConfigurationError {
	return &FatalConfigurationError{Code: code, HTTPStatus: status, Err: err}
}

func newExhaustionError(errorCode string, httpStatus int, out *Outcome) *ExhaustionError {
	subject := "SQL"
	if errorCode == "STTM_VALIDATION_FAILED" {
		subject = "STTM"
	}
	return &ExhaustionError{
		ErrorCode:      errorCode,
		Message:        fmt.Sprintf("%s validation failed after %d attempts", subject, out.AttemptCount),
		FailureReasons: messagesOf(out.StrictIssues),
		History:        out.History(),
		Retries:        out.AttemptCount,
		HTTPStatus:     httpStatus,
		Outcome:        out,
	}
}
