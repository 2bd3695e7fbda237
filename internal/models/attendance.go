package models

import (
	"time"

	"github.com/google/uuid"
)

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "Present"
	AttendanceAbsent  AttendanceStatus = "Absent"
	AttendanceLeave   AttendanceStatus = "Leave"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLeave:
		return true
	default:
		return false
	}
}

// AttendanceRecord is the authoritative presence fact for one student, course
// and calendar date.
type AttendanceRecord struct {
	ID         uuid.UUID        `json:"id"`
	StudentID  uuid.UUID        `json:"studentId"`
	CourseID   uuid.UUID        `json:"courseId"`
	SemesterID *uuid.UUID       `json:"semesterId,omitempty"`
	Date       time.Time        `json:"date"`
	Status     AttendanceStatus `json:"status"`
	MarkedBy   uuid.UUID        `json:"markedBy"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// AttendanceDate truncates t to midnight in loc and returns that calendar day
// as a UTC midnight value, which is how DATE columns are compared.
func AttendanceDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Attendance standing thresholds, in percent.
const (
	AttendanceTargetPercent   = 75
	AttendanceCriticalPercent = 60
)

type CourseAttendance struct {
	CourseID   uuid.UUID `json:"courseId"`
	CourseName string    `json:"courseName"`
	CourseCode string    `json:"courseCode"`
	Total      int       `json:"total"`
	Present    int       `json:"present"`
	Percentage int       `json:"percentage"`
	Status     string    `json:"status"` // "SAFE" | "WARNING" | "CRITICAL"
}

// AttendanceSummary is a student's attendance standing across enrolled courses.
type AttendanceSummary struct {
	EnrolledCourses   int                `json:"enrolledCourses"`
	AttendancePercent int                `json:"attendancePercent"`
	TargetPercent     int                `json:"institutionalTarget"`
	Status            string             `json:"status"` // "NO_ENROLLMENT" | "SAFE" | "WARNING" | "CRITICAL"
	Details           []CourseAttendance `json:"details"`
}
