package models

import (
	"time"

	"github.com/google/uuid"
)

type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "Pending"
	SubmissionApproved SubmissionStatus = "Approved"
	SubmissionRejected SubmissionStatus = "Rejected"
	SubmissionFailed   SubmissionStatus = "Failed"
)

// Retryable is true for outcomes a student may answer again after.
func (s SubmissionStatus) Retryable() bool {
	return s == SubmissionRejected || s == SubmissionFailed
}

type VerificationMethod string

const (
	MethodUnset          VerificationMethod = ""
	MethodHardFilter     VerificationMethod = "HardFilter"
	MethodKeywordMissing VerificationMethod = "KeywordMissing"
	MethodKeywordOnly    VerificationMethod = "KeywordOnly"
	MethodFilterOnly     VerificationMethod = "FilterOnly"
	MethodSemantic       VerificationMethod = "Semantic"
	MethodManual         VerificationMethod = "Manual"
)

// Reason categories shown to students. They never carry internal error text.
const (
	ReasonTooShort        = "too_short"
	ReasonLowEffort       = "low_effort"
	ReasonRepetition      = "repetition"
	ReasonKeywordMissing  = "keyword_missing"
	ReasonNotVerified     = "not_verified"
	ReasonQuotaExceeded   = "quota_exceeded"
	ReasonVerifyFailed    = "verification_failed"
	ReasonVerifyUnavail   = "verification_unavailable"
	ReasonInstructorCheck = "instructor_review"
	ReasonNotRecorded     = "attendance_not_recorded"
)

// Submission is one student's (possibly retried) answer to a session.
type Submission struct {
	ID          uuid.UUID          `json:"id"`
	SessionID   uuid.UUID          `json:"sessionId"`
	StudentID   uuid.UUID          `json:"studentId"`
	Answer      string             `json:"answer"`
	Status      SubmissionStatus   `json:"status"`
	Method      VerificationMethod `json:"verificationMethod,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Confidence  float64            `json:"confidenceScore"`
	Attempts    int                `json:"attempts"`
	ProcessedAt *time.Time         `json:"processedAt,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// Verdict is the resolved outcome written onto a submission.
type Verdict struct {
	Status     SubmissionStatus
	Method     VerificationMethod
	Reason     string
	Confidence float64
}

// SubmitAnswerRequest is the body of POST /session/submit. The student is
// always the authenticated caller.
type SubmitAnswerRequest struct {
	SessionID string `json:"sessionId" validate:"required,uuid"`
	Answer    string `json:"answer" validate:"required"`
}

// ReviewSubmissionRequest is the body of the instructor review endpoint.
type ReviewSubmissionRequest struct {
	Approve *bool `json:"approve" validate:"required"`
}

// SubmitResult is what the student sees right after the synchronous stage.
type SubmitResult struct {
	SubmissionID uuid.UUID          `json:"submissionId"`
	Status       SubmissionStatus   `json:"status"`
	Method       VerificationMethod `json:"method,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	Attempts     int                `json:"attempts"`
	MaxAttempts  int                `json:"maxAttempts"`
}
