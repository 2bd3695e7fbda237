package models

import "github.com/google/uuid"

// Course is the read-only view of a course owned by the academic service.
type Course struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	Code       string      `json:"code"`
	TeacherID  uuid.UUID   `json:"teacherId"`
	SemesterID *uuid.UUID  `json:"semesterId,omitempty"`
	StudentIDs []uuid.UUID `json:"studentIds"`
}

func (c *Course) IsEnrolled(studentID uuid.UUID) bool {
	for _, id := range c.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}
