package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendify-backend/internal/models"
	"attendify-backend/internal/repository/memrepo"
)

func seedDays(att *memrepo.Attendance, student, course uuid.UUID, statuses ...models.AttendanceStatus) {
	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range statuses {
		att.Put(models.AttendanceRecord{
			StudentID: student,
			CourseID:  course,
			Date:      day.AddDate(0, 0, i),
			Status:    st,
		})
	}
}

func TestAttendanceSummaryNoEnrollment(t *testing.T) {
	svc := NewAttendanceSummaryService(memrepo.NewCourses(), memrepo.NewAttendance())

	summary, err := svc.ForStudent(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "NO_ENROLLMENT", summary.Status)
	assert.Equal(t, 0, summary.EnrolledCourses)
	assert.Equal(t, 75, summary.TargetPercent)
	assert.NotNil(t, summary.Details)
}

func TestAttendanceSummaryStanding(t *testing.T) {
	const (
		P = models.AttendancePresent
		A = models.AttendanceAbsent
		L = models.AttendanceLeave
	)
	student := uuid.New()

	tests := []struct {
		name    string
		a, b    []models.AttendanceStatus
		percent int
		status  string
	}{
		{"all safe", []models.AttendanceStatus{P, P, P, A}, []models.AttendanceStatus{P, P, P, P}, 88, "SAFE"},
		{"safe overall with a weak course", []models.AttendanceStatus{P, P, P, P, P, P, P, P}, []models.AttendanceStatus{P, P, A, A}, 83, "WARNING"},
		{"below target", []models.AttendanceStatus{P, P, P, A}, []models.AttendanceStatus{P, A}, 67, "WARNING"},
		{"critical", []models.AttendanceStatus{P, A, A}, []models.AttendanceStatus{P, A, L}, 33, "CRITICAL"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			courses := memrepo.NewCourses()
			att := memrepo.NewAttendance()
			a := models.Course{ID: uuid.New(), Name: "Algorithms", Code: "CS201", StudentIDs: []uuid.UUID{student}}
			b := models.Course{ID: uuid.New(), Name: "Networks", Code: "CS305", StudentIDs: []uuid.UUID{student}}
			courses.Add(a)
			courses.Add(b)
			seedDays(att, student, a.ID, tc.a...)
			seedDays(att, student, b.ID, tc.b...)

			summary, err := NewAttendanceSummaryService(courses, att).ForStudent(context.Background(), student)
			require.NoError(t, err)
			assert.Equal(t, 2, summary.EnrolledCourses)
			assert.Equal(t, tc.percent, summary.AttendancePercent)
			assert.Equal(t, tc.status, summary.Status)
			require.Len(t, summary.Details, 2)
			assert.Equal(t, "CS201", summary.Details[0].CourseCode)
		})
	}
}

func TestAttendanceSummaryCourseWithoutRecords(t *testing.T) {
	student := uuid.New()
	courses := memrepo.NewCourses()
	courses.Add(models.Course{ID: uuid.New(), Name: "Compilers", Code: "CS410", StudentIDs: []uuid.UUID{student}})

	summary, err := NewAttendanceSummaryService(courses, memrepo.NewAttendance()).ForStudent(context.Background(), student)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.AttendancePercent)
	assert.Equal(t, "CRITICAL", summary.Status)
	assert.Equal(t, 0, summary.Details[0].Total)
	assert.Equal(t, "CRITICAL", summary.Details[0].Status)
}
