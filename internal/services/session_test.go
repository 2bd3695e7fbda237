package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendify-backend/internal/models"
)

func TestOpenSessionDefaults(t *testing.T) {
	f := newFixture(t)

	s := f.open(OpenSessionInput{Keywords: []string{" registers ", "REGISTERS", ""}})

	assert.True(t, s.IsActive)
	assert.True(t, s.SemanticEnabled)
	assert.Equal(t, 80, s.MaxSemanticCalls)
	assert.Equal(t, []string{"registers"}, s.Keywords)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), s.ExpiresAt)
}

func TestOpenSessionReplacesActiveSession(t *testing.T) {
	f := newFixture(t)

	first := f.open(OpenSessionInput{})
	second := f.open(OpenSessionInput{SemanticEnabled: boolPtr(false), MaxSemanticCalls: intPtr(0)})

	assert.Equal(t, 1, f.sessions.ActiveCount(f.course.ID))

	old, err := f.sessions.GetByID(f.ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)

	active, err := f.sessionSvc.GetActive(f.ctx, f.course.ID, f.teacher)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)
	assert.False(t, active.SemanticEnabled)
	assert.Equal(t, 0, active.MaxSemanticCalls)
}

func TestOpenSessionRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		in    OpenSessionInput
		field string
	}{
		{"blank question", OpenSessionInput{Question: "   "}, "question"},
		{"duration too long", OpenSessionInput{Question: "Q?", DurationMinutes: 181}, "durationMinutes"},
		{"negative duration", OpenSessionInput{Question: "Q?", DurationMinutes: -1}, "durationMinutes"},
		{"negative budget", OpenSessionInput{Question: "Q?", MaxSemanticCalls: intPtr(-1)}, "maxSemanticCalls"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.CourseID = f.course.ID
			tc.in.InstructorID = f.teacher
			_, err := f.sessionSvc.Open(f.ctx, tc.in)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.field)
		})
	}
}

func TestOpenSessionChecksCourseOwnership(t *testing.T) {
	f := newFixture(t)

	_, err := f.sessionSvc.Open(f.ctx, OpenSessionInput{CourseID: f.course.ID, InstructorID: uuid.New(), Question: "Q?"})
	var forbidden *ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	_, err = f.sessionSvc.Open(f.ctx, OpenSessionInput{CourseID: uuid.New(), InstructorID: f.teacher, Question: "Q?"})
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, 0, f.sessions.ActiveCount(f.course.ID))
}

func TestGetActiveHidesKeywordsFromStudents(t *testing.T) {
	f := newFixture(t)
	f.open(OpenSessionInput{Keywords: []string{"registers"}})

	forStudent, err := f.sessionSvc.GetActive(f.ctx, f.course.ID, f.students[0])
	require.NoError(t, err)
	require.NotNil(t, forStudent)
	assert.Empty(t, forStudent.Keywords)

	forTeacher, err := f.sessionSvc.GetActive(f.ctx, f.course.ID, f.teacher)
	require.NoError(t, err)
	assert.Equal(t, []string{"registers"}, forTeacher.Keywords)
}

func TestGetActiveExpiresLazily(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{DurationMinutes: 5})

	f.clock.Advance(5*time.Minute + time.Second)

	active, err := f.sessionSvc.GetActive(f.ctx, f.course.ID, f.students[0])
	require.NoError(t, err)
	assert.Nil(t, active)

	stored, err := f.sessions.GetByID(f.ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Empty(t, f.attendance.All(), "expiry alone does not reconcile")
}

func TestGetActiveWithoutSession(t *testing.T) {
	f := newFixture(t)

	active, err := f.sessionSvc.GetActive(f.ctx, f.course.ID, f.teacher)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestCloseReconcilesAbsentees(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{Keywords: []string{"registers"}, SemanticEnabled: boolPtr(false)})

	res := f.submit(s.ID, f.students[0], "The registers and program counter are saved")
	require.Equal(t, models.SubmissionApproved, res.Status)

	f.attendance.Put(models.AttendanceRecord{
		StudentID: f.students[2],
		CourseID:  f.course.ID,
		Date:      f.finalizer.SessionDate(s),
		Status:    models.AttendanceLeave,
		MarkedBy:  f.teacher,
	})

	summary, err := f.sessionSvc.Close(f.ctx, s.ID, f.teacher)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.EnrolledCount)
	assert.Equal(t, 1, summary.PresentCount)
	assert.Equal(t, 1, summary.NewlyAbsentCount)

	rec, ok := f.record(f.students[1])
	require.True(t, ok)
	assert.Equal(t, models.AttendanceAbsent, rec.Status)

	leave, ok := f.record(f.students[2])
	require.True(t, ok)
	assert.Equal(t, models.AttendanceLeave, leave.Status)

	present, ok := f.record(f.students[0])
	require.True(t, ok)
	assert.Equal(t, models.AttendancePresent, present.Status)

	// Closing again only fills gaps, and there are none.
	again, err := f.sessionSvc.Close(f.ctx, s.ID, f.teacher)
	require.NoError(t, err)
	assert.Equal(t, 0, again.NewlyAbsentCount)
	assert.Equal(t, 1, again.PresentCount)
	assert.Len(t, f.attendance.All(), 3)
}

func TestCloseExpiredSessionStillReconciles(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{DurationMinutes: 1})
	f.clock.Advance(2 * time.Minute)

	summary, err := f.sessionSvc.Close(f.ctx, s.ID, f.teacher)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.NewlyAbsentCount)
}

func TestCloseRequiresInstructor(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{})

	_, err := f.sessionSvc.Close(f.ctx, s.ID, f.students[0])
	var forbidden *ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	_, err = f.sessionSvc.Close(f.ctx, uuid.New(), f.teacher)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStats(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{Keywords: []string{"registers"}})

	f.submit(s.ID, f.students[0], "registers and program counter")
	f.submit(s.ID, f.students[1], "the heap is garbage collected")
	f.submit(s.ID, f.students[2], "yes")

	stats, err := f.sessionSvc.Stats(f.ctx, s.ID, f.teacher)
	require.NoError(t, err)
	assert.Equal(t, s.ID, stats.Session.ID)
	assert.Equal(t, models.SubmissionCounts{
		TotalEnrolled:  3,
		TotalSubmitted: 3,
		Pending:        1,
		Rejected:       2,
	}, stats.Stats)

	_, err = f.sessionSvc.Stats(f.ctx, s.ID, f.students[0])
	var forbidden *ForbiddenError
	assert.ErrorAs(t, err, &forbidden)
}

func TestListSubmissionsInOrder(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{})

	empty, err := f.sessionSvc.ListSubmissions(f.ctx, s.ID, f.teacher)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	f.submit(s.ID, f.students[1], "first answer about registers")
	f.submit(s.ID, f.students[0], "second answer about registers")

	subs, err := f.sessionSvc.ListSubmissions(f.ctx, s.ID, f.teacher)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, f.students[1], subs[0].StudentID)
	assert.Equal(t, f.students[0], subs[1].StudentID)
}

func TestReviewApprovesRejectedSubmission(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{Keywords: []string{"registers"}})

	res := f.submit(s.ID, f.students[0], "the scheduler picks a process")
	require.Equal(t, models.SubmissionRejected, res.Status)

	sub, err := f.sessionSvc.Review(f.ctx, res.SubmissionID, f.teacher, true)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionApproved, sub.Status)
	assert.Equal(t, models.MethodManual, sub.Method)
	assert.Equal(t, 1.0, sub.Confidence)

	rec, ok := f.record(f.students[0])
	require.True(t, ok)
	assert.Equal(t, models.AttendancePresent, rec.Status)
	assert.Equal(t, f.teacher, rec.MarkedBy)

	require.NotEmpty(t, f.notifier.To(f.students[0]))

	_, err = f.sessionSvc.Review(f.ctx, res.SubmissionID, f.teacher, false)
	assert.ErrorIs(t, err, ErrAlreadyApproved)
}

func TestReviewRejectKeepsSubmissionRetryable(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{Keywords: []string{"registers"}})
	res := f.submit(s.ID, f.students[0], "the scheduler picks a process")

	sub, err := f.sessionSvc.Review(f.ctx, res.SubmissionID, f.teacher, false)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionRejected, sub.Status)
	assert.Equal(t, models.ReasonInstructorCheck, sub.Reason)

	_, ok := f.record(f.students[0])
	assert.False(t, ok)
}

func TestReviewRefusesPendingSubmission(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{})
	res := f.submit(s.ID, f.students[0], "registers and program counter")
	require.Equal(t, models.SubmissionPending, res.Status)

	_, err := f.sessionSvc.Review(f.ctx, res.SubmissionID, f.teacher, true)
	assert.ErrorIs(t, err, ErrVerificationInProgress)

	_, err = f.sessionSvc.Review(f.ctx, uuid.New(), f.teacher, true)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestLateApprovalOverwritesAbsent(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{Keywords: []string{"registers"}})
	res := f.submit(s.ID, f.students[0], "the scheduler picks a process")

	_, err := f.sessionSvc.Close(f.ctx, s.ID, f.teacher)
	require.NoError(t, err)
	rec, _ := f.record(f.students[0])
	require.Equal(t, models.AttendanceAbsent, rec.Status)

	_, err = f.sessionSvc.Review(f.ctx, res.SubmissionID, f.teacher, true)
	require.NoError(t, err)

	rec, _ = f.record(f.students[0])
	assert.Equal(t, models.AttendancePresent, rec.Status)
	assert.Len(t, f.attendance.All(), 3)
}

func TestReviewSettlesStalePendingSubmission(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{})
	res := f.submit(s.ID, f.students[0], goodAnswer)
	jobs := f.queue.Jobs()
	require.Len(t, jobs, 1)

	_, err := f.sessionSvc.Review(f.ctx, res.SubmissionID, f.teacher, true)
	require.ErrorIs(t, err, ErrVerificationInProgress)

	f.clock.Advance(f.settings.StalePendingAfter + time.Second)
	sub, err := f.sessionSvc.Review(f.ctx, res.SubmissionID, f.teacher, true)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionApproved, sub.Status)
	assert.Equal(t, models.MethodManual, sub.Method)
	rec, ok := f.record(f.students[0])
	require.True(t, ok)
	assert.Equal(t, models.AttendancePresent, rec.Status)

	// The lost job turning up later changes nothing and spends no budget.
	require.NoError(t, f.verification.Process(f.ctx, jobs[0]))
	stored, err := f.submissions.GetByID(f.ctx, res.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, models.MethodManual, stored.Method)
	assert.Zero(t, f.verifier.calls.Load())
}
