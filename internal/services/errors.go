package services

import (
	"fmt"

	"github.com/pkg/errors"
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// ForbiddenError is returned for role and ownership failures.
type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// AttendanceError is a business rule violation surfaced to the caller with a
// stable code.
type AttendanceError struct {
	Code    string
	Message string
}

func (e *AttendanceError) Error() string { return e.Message }

const (
	CodeSessionNotFound        = "SESSION_NOT_FOUND"
	CodeSessionExpired         = "SESSION_EXPIRED"
	CodeNotEnrolled            = "NOT_ENROLLED"
	CodeAlreadyApproved        = "ALREADY_APPROVED"
	CodeVerificationInProgress = "VERIFICATION_IN_PROGRESS"
	CodeRetryLimitExceeded     = "RETRY_LIMIT_EXCEEDED"
)

var (
	ErrSessionNotFound = &AttendanceError{
		Code:    CodeSessionNotFound,
		Message: "Attendance session not found or no longer active",
	}
	ErrSessionExpired = &AttendanceError{
		Code:    CodeSessionExpired,
		Message: "Attendance session has expired",
	}
	ErrNotEnrolled = &AttendanceError{
		Code:    CodeNotEnrolled,
		Message: "You are not enrolled in this course",
	}
	ErrAlreadyApproved = &AttendanceError{
		Code:    CodeAlreadyApproved,
		Message: "Attendance already approved for this session",
	}
	ErrVerificationInProgress = &AttendanceError{
		Code:    CodeVerificationInProgress,
		Message: "Your previous answer is still being verified",
	}
	ErrRetryLimitExceeded = &AttendanceError{
		Code:    CodeRetryLimitExceeded,
		Message: "Maximum attempts reached for this session",
	}
)

// ErrQuotaExceeded is returned by the cost guard when either the global window
// or the session budget is exhausted. It is recorded on the submission and
// never returned to a student.
var ErrQuotaExceeded = errors.New("semantic verification quota exceeded")

// ExternalServiceError wraps a failed or unparseable semantic verifier call.
type ExternalServiceError struct {
	Provider string
	Err      error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s verifier: %v", e.Provider, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
