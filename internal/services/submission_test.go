package services

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendify-backend/internal/models"
)

const goodAnswer = "It saves the registers and the program counter"

func TestSubmitRejectsLowEffortWithoutVerifier(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{Keywords: []string{"yes"}})

	res := f.submit(s.ID, f.students[0], "yes")

	assert.Equal(t, models.SubmissionRejected, res.Status)
	assert.Equal(t, models.MethodHardFilter, res.Method)
	assert.Equal(t, models.ReasonTooShort, res.Reason)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 3, res.MaxAttempts)
	assert.Empty(t, f.queue.Jobs())
}

func TestSubmitKeywordMissingSkipsSemantic(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{Keywords: []string{"stack pointer"}})

	res := f.submit(s.ID, f.students[0], goodAnswer)

	assert.Equal(t, models.SubmissionRejected, res.Status)
	assert.Equal(t, models.MethodKeywordMissing, res.Method)
	assert.Empty(t, f.queue.Jobs())

	activity := f.notifier.To(f.teacher)
	require.Len(t, activity, 1)
	assert.Equal(t, models.WSSessionActivity, activity[0].Type)
}

func TestSubmitQueuesSemanticVerification(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{Keywords: []string{"registers"}})

	res := f.submit(s.ID, f.students[0], "  "+goodAnswer+"  ")
	assert.Equal(t, models.SubmissionPending, res.Status)
	assert.Empty(t, res.Method)

	jobs := f.queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, res.SubmissionID, jobs[0].SubmissionID)
	assert.Equal(t, s.Question, jobs[0].Question)
	assert.Equal(t, goodAnswer, jobs[0].Answer)
	assert.Equal(t, f.teacher, jobs[0].InstructorID)

	_, err := f.submitSvc.Submit(f.ctx, s.ID, f.students[0], goodAnswer)
	assert.ErrorIs(t, err, ErrVerificationInProgress)
	assert.Len(t, f.queue.Jobs(), 1)

	stored, err := f.sessions.GetByID(f.ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TotalSubmissions)
}

func TestSubmitWithoutKeywordsOrSemanticApproves(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{SemanticEnabled: boolPtr(false)})

	res := f.submit(s.ID, f.students[0], "The mitochondria is the powerhouse of the cell and drives ATP synthesis")
	assert.Equal(t, models.SubmissionApproved, res.Status)
	assert.Equal(t, models.MethodFilterOnly, res.Method)
	assert.Empty(t, f.queue.Jobs())

	stored, err := f.submitSvc.Get(f.ctx, s.ID, f.students[0])
	require.NoError(t, err)
	assert.Equal(t, 0.0, stored.Confidence)
	_, ok := f.record(f.students[0])
	assert.True(t, ok)
}

func TestSubmitKeywordOnlyMarksPresent(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{Keywords: []string{"registers"}, SemanticEnabled: boolPtr(false)})

	res := f.submit(s.ID, f.students[0], goodAnswer)
	assert.Equal(t, models.SubmissionApproved, res.Status)
	assert.Equal(t, models.MethodKeywordOnly, res.Method)

	rec, ok := f.record(f.students[0])
	require.True(t, ok)
	assert.Equal(t, models.AttendancePresent, rec.Status)

	_, err := f.submitSvc.Submit(f.ctx, s.ID, f.students[0], goodAnswer)
	assert.ErrorIs(t, err, ErrAlreadyApproved)
}

func TestSubmitRetryLimit(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{Keywords: []string{"registers"}})

	for attempt := 1; attempt <= 3; attempt++ {
		res := f.submit(s.ID, f.students[0], "the scheduler picks a process")
		assert.Equal(t, models.SubmissionRejected, res.Status)
		assert.Equal(t, attempt, res.Attempts)
	}

	_, err := f.submitSvc.Submit(f.ctx, s.ID, f.students[0], goodAnswer)
	assert.ErrorIs(t, err, ErrRetryLimitExceeded)
	assert.Equal(t, 1, f.submissions.Count())

	stored, err := f.submitSvc.Get(f.ctx, s.ID, f.students[0])
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Attempts)
	assert.Equal(t, "the scheduler picks a process", stored.Answer)
}

func TestSubmitRetryReplacesAnswer(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{Keywords: []string{"registers"}})

	first := f.submit(s.ID, f.students[0], "the scheduler picks a process")
	require.Equal(t, models.SubmissionRejected, first.Status)

	second := f.submit(s.ID, f.students[0], goodAnswer)
	assert.Equal(t, first.SubmissionID, second.SubmissionID)
	assert.Equal(t, models.SubmissionPending, second.Status)
	assert.Equal(t, 2, second.Attempts)

	stored, err := f.submitSvc.Get(f.ctx, s.ID, f.students[0])
	require.NoError(t, err)
	assert.Equal(t, goodAnswer, stored.Answer)
	assert.Empty(t, stored.Reason)
	assert.Nil(t, stored.ProcessedAt)
}

func TestSubmitEnqueueFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.queue.err = errors.New("queue unavailable")
	s := f.open(OpenSessionInput{})

	res := f.submit(s.ID, f.students[0], goodAnswer)
	assert.Equal(t, models.SubmissionFailed, res.Status)
	assert.Equal(t, models.ReasonVerifyUnavail, res.Reason)

	f.queue.err = nil
	retry := f.submit(s.ID, f.students[0], goodAnswer)
	assert.Equal(t, models.SubmissionPending, retry.Status)
	assert.Equal(t, 2, retry.Attempts)
}

func TestSubmitSessionChecks(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{DurationMinutes: 1})

	_, err := f.submitSvc.Submit(f.ctx, uuid.New(), f.students[0], goodAnswer)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.submitSvc.Submit(f.ctx, s.ID, uuid.New(), goodAnswer)
	assert.ErrorIs(t, err, ErrNotEnrolled)

	f.clock.Advance(61 * time.Second)
	_, err = f.submitSvc.Submit(f.ctx, s.ID, f.students[0], goodAnswer)
	assert.ErrorIs(t, err, ErrSessionExpired)

	// Once expired the session is inactive.
	_, err = f.submitSvc.Submit(f.ctx, s.ID, f.students[0], goodAnswer)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, f.submissions.Count())
}

func TestSubmitClosedSession(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{})
	_, err := f.sessionSvc.Close(f.ctx, s.ID, f.teacher)
	require.NoError(t, err)

	_, err = f.submitSvc.Submit(f.ctx, s.ID, f.students[0], goodAnswer)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmitValidatesAnswer(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{})

	for _, answer := range []string{"", "   \n\t", strings.Repeat("a", MaxAnswerLength+1)} {
		_, err := f.submitSvc.Submit(f.ctx, s.ID, f.students[0], answer)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "answer")
	}

	res := f.submit(s.ID, f.students[0], strings.Repeat("é", MaxAnswerLength))
	assert.Equal(t, models.SubmissionPending, res.Status)
}

func TestSubmitConcurrentFirstAttempts(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{})

	const callers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		busy     int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.submitSvc.Submit(f.ctx, s.ID, f.students[0], goodAnswer)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrVerificationInProgress):
				busy++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, callers-1, busy)
	assert.Equal(t, 1, f.submissions.Count())
	assert.Len(t, f.queue.Jobs(), 1)
}

func TestGetSubmissionNotFound(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{})

	_, err := f.submitSvc.Get(f.ctx, s.ID, f.students[0])
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRequeuePendingRecoversLostJobs(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{})
	first := f.submit(s.ID, f.students[0], goodAnswer)
	f.submit(s.ID, f.students[1], goodAnswer)
	f.queue.Drop()

	_, err := f.submitSvc.Submit(f.ctx, s.ID, f.students[0], goodAnswer)
	require.ErrorIs(t, err, ErrVerificationInProgress)

	n, err := f.submitSvc.RequeuePending(f.ctx, f.clock.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	jobs := f.queue.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, s.Question, jobs[0].Question)
	assert.Equal(t, f.teacher, jobs[0].InstructorID)

	for _, job := range jobs {
		require.NoError(t, f.verification.Process(f.ctx, job))
	}
	stored, err := f.submissions.GetByID(f.ctx, first.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionApproved, stored.Status)
}

func TestRequeuePendingSkipsRecentSubmissions(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{})
	f.submit(s.ID, f.students[0], goodAnswer)
	f.queue.Drop()

	n, err := f.submitSvc.RequeuePending(f.ctx, f.clock.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.queue.Jobs())
}

func TestRequeuePendingFailsClosedSessions(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{})
	res := f.submit(s.ID, f.students[0], goodAnswer)
	f.queue.Drop()
	_, err := f.sessionSvc.Close(f.ctx, s.ID, f.teacher)
	require.NoError(t, err)

	n, err := f.submitSvc.RequeuePending(f.ctx, f.clock.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.queue.Jobs())

	stored, err := f.submissions.GetByID(f.ctx, res.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionFailed, stored.Status)
	assert.Equal(t, models.ReasonVerifyUnavail, stored.Reason)

	reviewed, err := f.sessionSvc.Review(f.ctx, res.SubmissionID, f.teacher, true)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionApproved, reviewed.Status)
}

func TestSubmitApprovalWithoutAttendanceWriteFails(t *testing.T) {
	f := newFixture(t)
	noSemester := f.course
	noSemester.SemesterID = nil
	f.courses.Add(noSemester)
	s := f.open(OpenSessionInput{Keywords: []string{"registers"}, SemanticEnabled: boolPtr(false)})

	res := f.submit(s.ID, f.students[0], goodAnswer)
	assert.Equal(t, models.SubmissionFailed, res.Status)
	assert.Equal(t, models.MethodKeywordOnly, res.Method)
	assert.Equal(t, models.ReasonNotRecorded, res.Reason)
	_, ok := f.record(f.students[0])
	assert.False(t, ok)

	// Failed stays retryable once the course is fixed.
	f.courses.Add(f.course)
	retry := f.submit(s.ID, f.students[0], goodAnswer)
	assert.Equal(t, models.SubmissionApproved, retry.Status)
	_, ok = f.record(f.students[0])
	assert.True(t, ok)
}
