package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"attendify-backend/internal/models"
)

// Finalizer turns verdicts into authoritative attendance records.
type Finalizer struct {
	sessions   SessionStore
	courses    CourseDirectory
	attendance AttendanceStore
	loc        *time.Location
}

func NewFinalizer(sessions SessionStore, courses CourseDirectory, attendance AttendanceStore, loc *time.Location) *Finalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Finalizer{sessions: sessions, courses: courses, attendance: attendance, loc: loc}
}

// SessionDate is the attendance calendar day a session counts toward.
func (f *Finalizer) SessionDate(s *models.AttendanceSession) time.Time {
	return models.AttendanceDate(s.CreatedAt, f.loc)
}

// MarkPresent upserts a Present record for an approved submission, keyed by
// student, course and session date. Calling it again for the same submission
// rewrites the same row.
func (f *Finalizer) MarkPresent(ctx context.Context, sub *models.Submission) error {
	if sub.Status != models.SubmissionApproved {
		log.Warn().Str("submission_id", sub.ID.String()).Str("status", string(sub.Status)).
			Msg("skipping attendance write for non-approved submission")
		return nil
	}

	session, err := f.sessions.GetByID(ctx, sub.SessionID)
	if err != nil {
		return errors.Wrap(err, "load session for attendance")
	}
	course, err := f.courses.GetCourse(ctx, session.CourseID)
	if err != nil {
		return errors.Wrap(err, "load course for attendance")
	}
	if course.SemesterID == nil {
		return errors.Errorf("course %s has no linked semester", course.ID)
	}

	rec := &models.AttendanceRecord{
		StudentID:  sub.StudentID,
		CourseID:   course.ID,
		SemesterID: course.SemesterID,
		Date:       f.SessionDate(session),
		MarkedBy:   session.InstructorID,
	}
	if err := f.attendance.UpsertPresent(ctx, rec); err != nil {
		return err
	}

	log.Info().Str("submission_id", sub.ID.String()).Str("student_id", sub.StudentID.String()).
		Str("course_id", course.ID.String()).Time("date", rec.Date).Msg("attendance marked present")
	return nil
}

// Settle writes the Present record for an approving verdict before the verdict
// is stored. When the write fails the verdict becomes Failed, so a submission
// never reads Approved without its attendance row.
func (f *Finalizer) Settle(ctx context.Context, sub *models.Submission, v models.Verdict) models.Verdict {
	if v.Status != models.SubmissionApproved {
		return v
	}
	approved := *sub
	approved.Status = models.SubmissionApproved
	if err := f.MarkPresent(ctx, &approved); err != nil {
		log.Error().Err(err).Str("submission_id", sub.ID.String()).Msg("attendance not recorded, approval withheld")
		return models.Verdict{
			Status:     models.SubmissionFailed,
			Method:     v.Method,
			Reason:     models.ReasonNotRecorded,
			Confidence: v.Confidence,
		}
	}
	return v
}

// ReconcileAbsentees writes Absent for every enrolled student with no record
// for the session date. Present and Leave rows are never touched.
func (f *Finalizer) ReconcileAbsentees(ctx context.Context, session *models.AttendanceSession) (*models.CloseSummary, error) {
	course, err := f.courses.GetCourse(ctx, session.CourseID)
	if err != nil {
		return nil, errors.Wrap(err, "load course for reconciliation")
	}

	date := f.SessionDate(session)
	existing, err := f.attendance.StudentsWithRecord(ctx, course.ID, date)
	if err != nil {
		return nil, err
	}

	summary := &models.CloseSummary{
		SessionID:     session.ID,
		EnrolledCount: len(course.StudentIDs),
	}

	var absentees []uuid.UUID
	for _, sid := range course.StudentIDs {
		status, ok := existing[sid]
		if ok && status == models.AttendancePresent {
			summary.PresentCount++
			continue
		}
		if !ok {
			absentees = append(absentees, sid)
		}
	}

	inserted, err := f.attendance.InsertAbsentees(ctx, course.ID, course.SemesterID, date, session.InstructorID, absentees)
	if err != nil {
		return nil, err
	}
	summary.NewlyAbsentCount = inserted

	log.Info().Str("session_id", session.ID.String()).Int("enrolled", summary.EnrolledCount).
		Int("present", summary.PresentCount).Int("newly_absent", inserted).Msg("absentees reconciled")
	return summary, nil
}
