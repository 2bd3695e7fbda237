package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"attendify-backend/internal/models"
	"attendify-backend/internal/ratelimit"
	"attendify-backend/internal/repository/memrepo"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []models.VerificationJob
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job models.VerificationJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Jobs() []models.VerificationJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.VerificationJob(nil), q.jobs...)
}

// Drop discards queued jobs, as a restart of an in-memory queue would.
func (q *recordingQueue) Drop() {
	q.mu.Lock()
	q.jobs = nil
	q.mu.Unlock()
}

type sentMessage struct {
	userID uuid.UUID
	msg    models.WSMessage
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *recordingNotifier) Publish(_ context.Context, userID uuid.UUID, msg models.WSMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{userID: userID, msg: msg})
}

func (n *recordingNotifier) To(userID uuid.UUID) []models.WSMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.WSMessage
	for _, s := range n.sent {
		if s.userID == userID {
			out = append(out, s.msg)
		}
	}
	return out
}

type stubVerifier struct {
	calls   atomic.Int32
	verdict SemanticVerdict
	err     error
}

func (v *stubVerifier) Verify(context.Context, string, string) (*SemanticVerdict, error) {
	v.calls.Add(1)
	if v.err != nil {
		return nil, v.err
	}
	out := v.verdict
	return &out, nil
}

var errVerifierDown = errors.New("verifier down")

type fixture struct {
	t        *testing.T
	ctx      context.Context
	clock    *testClock
	settings Settings

	sessions    *memrepo.Sessions
	submissions *memrepo.Submissions
	attendance  *memrepo.Attendance
	courses     *memrepo.Courses

	queue    *recordingQueue
	notifier *recordingNotifier
	verifier *stubVerifier

	finalizer    *Finalizer
	sessionSvc   *SessionService
	submitSvc    *SubmissionService
	verification *VerificationService

	course   models.Course
	teacher  uuid.UUID
	students []uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	semester := uuid.New()
	f := &fixture{
		t:           t,
		ctx:         context.Background(),
		clock:       &testClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		settings:    DefaultSettings(),
		sessions:    memrepo.NewSessions(),
		submissions: memrepo.NewSubmissions(),
		attendance:  memrepo.NewAttendance(),
		courses:     memrepo.NewCourses(),
		queue:       &recordingQueue{},
		notifier:    &recordingNotifier{},
		verifier:    &stubVerifier{verdict: SemanticVerdict{IsValid: true, Confidence: 0.92, Reason: "on topic"}},
		teacher:     uuid.New(),
		students:    []uuid.UUID{uuid.New(), uuid.New(), uuid.New()},
	}
	f.course = models.Course{
		ID:         uuid.New(),
		Name:       "Operating Systems",
		Code:       "CS301",
		TeacherID:  f.teacher,
		SemesterID: &semester,
		StudentIDs: f.students,
	}
	f.courses.Add(f.course)
	f.submissions.WithClock(f.clock.Now)

	f.finalizer = NewFinalizer(f.sessions, f.courses, f.attendance, time.UTC)
	f.rebuild(ratelimit.NewSlidingWindow(100, time.Minute))
	return f
}

// rebuild wires the services again, e.g. after changing settings or the global limiter.
func (f *fixture) rebuild(global ratelimit.Limiter) {
	f.sessionSvc = NewSessionService(f.sessions, f.submissions, f.courses, f.finalizer, f.notifier, f.settings).
		WithClock(f.clock.Now)
	f.submitSvc = NewSubmissionService(f.sessions, f.submissions, f.courses, NewPipeline(nil), f.queue,
		f.finalizer, f.notifier, f.settings).WithClock(f.clock.Now)
	guard := NewCostGuard(global, f.sessions)
	f.verification = NewVerificationService(guard, f.verifier, f.submissions, f.finalizer, f.notifier,
		f.settings.ConfidenceThreshold, time.Second).WithClock(f.clock.Now)
}

func (f *fixture) open(in OpenSessionInput) *models.AttendanceSession {
	f.t.Helper()
	if in.CourseID == uuid.Nil {
		in.CourseID = f.course.ID
	}
	if in.InstructorID == uuid.Nil {
		in.InstructorID = f.teacher
	}
	if in.Question == "" {
		in.Question = "What does a context switch save?"
	}
	s, err := f.sessionSvc.Open(f.ctx, in)
	require.NoError(f.t, err)
	return s
}

func boolPtr(b bool) *bool { return &b }

func intPtr(n int) *int { return &n }

func (f *fixture) submit(sessionID, studentID uuid.UUID, answer string) *models.SubmitResult {
	f.t.Helper()
	res, err := f.submitSvc.Submit(f.ctx, sessionID, studentID, answer)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) record(studentID uuid.UUID) (models.AttendanceRecord, bool) {
	for _, rec := range f.attendance.All() {
		if rec.StudentID == studentID && rec.CourseID == f.course.ID {
			return rec, true
		}
	}
	return models.AttendanceRecord{}, false
}
