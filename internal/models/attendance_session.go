package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceSession is one time-boxed attendance question for one course.
type AttendanceSession struct {
	ID                uuid.UUID  `json:"id"`
	CourseID          uuid.UUID  `json:"courseId"`
	InstructorID      uuid.UUID  `json:"instructorId"`
	Question          string     `json:"question"`
	Keywords          []string   `json:"keywords,omitempty"`
	IsActive          bool       `json:"isActive"`
	SemanticEnabled   bool       `json:"semanticEnabled"`
	MaxSemanticCalls  int        `json:"maxSemanticCalls"`
	SemanticCallsUsed int        `json:"semanticCallsUsed"`
	TotalSubmissions  int        `json:"totalSubmissions"`
	CreatedAt         time.Time  `json:"createdAt"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	ClosedAt          *time.Time `json:"closedAt,omitempty"`
}

// Expired reports whether the session window has passed at the given instant.
func (s *AttendanceSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// OpenForSubmissions is true while the session is active and unexpired.
func (s *AttendanceSession) OpenForSubmissions(now time.Time) bool {
	return s.IsActive && !s.Expired(now)
}

// HasKeywords reports whether the instructor configured an accepted keyword set.
func (s *AttendanceSession) HasKeywords() bool {
	return len(s.Keywords) > 0
}

// StartSessionRequest is the body of POST /session/start.
type StartSessionRequest struct {
	CourseID         string   `json:"courseId" validate:"required,uuid"`
	Question         string   `json:"question" validate:"required,max=1000"`
	Keywords         []string `json:"keywords" validate:"max=50,dive,max=100"`
	DurationMinutes  int      `json:"durationMinutes" validate:"omitempty,min=1,max=180"`
	SemanticEnabled  *bool    `json:"semanticEnabled"`
	MaxSemanticCalls *int     `json:"maxSemanticCalls" validate:"omitempty,min=0,max=10000"`
}

// StopSessionRequest is the body of POST /session/stop.
type StopSessionRequest struct {
	SessionID string `json:"sessionId" validate:"required,uuid"`
}

// CloseSummary is returned when an instructor stops a session.
type CloseSummary struct {
	SessionID        uuid.UUID `json:"sessionId"`
	EnrolledCount    int       `json:"enrolledCount"`
	PresentCount     int       `json:"presentCount"`
	NewlyAbsentCount int       `json:"newlyAbsentCount"`
}

// SessionStats is the instructor monitoring view of a session.
type SessionStats struct {
	Session SessionStatsHeader `json:"session"`
	Stats   SubmissionCounts   `json:"stats"`
}

type SessionStatsHeader struct {
	ID                uuid.UUID `json:"id"`
	Question          string    `json:"question"`
	IsActive          bool      `json:"isActive"`
	ExpiresAt         time.Time `json:"expiresAt"`
	CreatedAt         time.Time `json:"createdAt"`
	SemanticCallsUsed int       `json:"semanticCallsUsed"`
	MaxSemanticCalls  int       `json:"maxSemanticCalls"`
}

type SubmissionCounts struct {
	TotalEnrolled  int `json:"totalEnrolled"`
	TotalSubmitted int `json:"totalSubmitted"`
	Approved       int `json:"approved"`
	Rejected       int `json:"rejected"`
	Pending        int `json:"pending"`
	Failed         int `json:"failed"`
}
