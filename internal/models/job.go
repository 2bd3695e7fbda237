package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationJob is one queued semantic verification of a submission attempt.
type VerificationJob struct {
	SubmissionID uuid.UUID `json:"submissionId"`
	SessionID    uuid.UUID `json:"sessionId"`
	StudentID    uuid.UUID `json:"studentId"`
	InstructorID uuid.UUID `json:"instructorId"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	Attempt      int       `json:"attempt"`
	EnqueuedAt   time.Time `json:"enqueuedAt"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const (
	WSSubmissionUpdate = "submission_update"
	WSSessionActivity  = "session_activity"
)

// SubmissionUpdate is pushed to a student when a verdict resolves.
type SubmissionUpdate struct {
	SubmissionID uuid.UUID          `json:"submissionId"`
	SessionID    uuid.UUID          `json:"sessionId"`
	Status       SubmissionStatus   `json:"status"`
	Method       VerificationMethod `json:"method,omitempty"`
	Reason       string             `json:"reason,omitempty"`
}

// SessionActivity nudges the instructor to refresh stats.
type SessionActivity struct {
	SessionID    uuid.UUID        `json:"sessionId"`
	SubmissionID uuid.UUID        `json:"submissionId"`
	Status       SubmissionStatus `json:"status"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"requestId"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
