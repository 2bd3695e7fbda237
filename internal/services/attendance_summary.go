package services

import (
	"context"
	"math"

	"github.com/google/uuid"

	"attendify-backend/internal/models"
)

const (
	statusNoEnrollment = "NO_ENROLLMENT"
	statusSafe         = "SAFE"
	statusWarning      = "WARNING"
	statusCritical     = "CRITICAL"
)

// AttendanceSummaryService reports a student's standing from the attendance
// records.
type AttendanceSummaryService struct {
	courses    CourseDirectory
	attendance AttendanceStore
}

func NewAttendanceSummaryService(courses CourseDirectory, attendance AttendanceStore) *AttendanceSummaryService {
	return &AttendanceSummaryService{courses: courses, attendance: attendance}
}

func (s *AttendanceSummaryService) ForStudent(ctx context.Context, studentID uuid.UUID) (*models.AttendanceSummary, error) {
	courses, err := s.courses.ListCoursesForStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return &models.AttendanceSummary{
			TargetPercent: models.AttendanceTargetPercent,
			Status:        statusNoEnrollment,
			Details:       []models.CourseAttendance{},
		}, nil
	}

	records, err := s.attendance.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	type tally struct{ total, present int }
	byCourse := make(map[uuid.UUID]*tally)
	for _, rec := range records {
		t, ok := byCourse[rec.CourseID]
		if !ok {
			t = &tally{}
			byCourse[rec.CourseID] = t
		}
		t.total++
		if rec.Status == models.AttendancePresent {
			t.present++
		}
	}

	summary := &models.AttendanceSummary{
		EnrolledCourses: len(courses),
		TargetPercent:   models.AttendanceTargetPercent,
		Details:         make([]models.CourseAttendance, 0, len(courses)),
	}

	var total, present int
	allSafe := true
	for _, c := range courses {
		detail := models.CourseAttendance{CourseID: c.ID, CourseName: c.Name, CourseCode: c.Code}
		if t, ok := byCourse[c.ID]; ok {
			detail.Total = t.total
			detail.Present = t.present
		}
		detail.Percentage = percent(detail.Present, detail.Total)
		detail.Status = standing(detail.Percentage)
		if detail.Status != statusSafe {
			allSafe = false
		}

		total += detail.Total
		present += detail.Present
		summary.Details = append(summary.Details, detail)
	}

	summary.AttendancePercent = percent(present, total)
	switch {
	case summary.AttendancePercent < models.AttendanceCriticalPercent:
		summary.Status = statusCritical
	case summary.AttendancePercent < models.AttendanceTargetPercent || !allSafe:
		summary.Status = statusWarning
	default:
		summary.Status = statusSafe
	}
	return summary, nil
}

// percent rounds to the nearest integer. No records counts as 0%.
func percent(present, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(present) * 100 / float64(total)))
}

func standing(pct int) string {
	switch {
	case pct < models.AttendanceCriticalPercent:
		return statusCritical
	case pct < models.AttendanceTargetPercent:
		return statusWarning
	default:
		return statusSafe
	}
}
