// Package memrepo holds in-memory, concurrency-safe versions of the
// repositories. They back the service, handler and router tests.
package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"attendify-backend/internal/models"
	"attendify-backend/internal/repository"
)

type Sessions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.AttendanceSession
}

func NewSessions() *Sessions {
	return &Sessions{rows: make(map[uuid.UUID]*models.AttendanceSession)}
}

func copySession(s *models.AttendanceSession) *models.AttendanceSession {
	c := *s
	c.Keywords = append([]string(nil), s.Keywords...)
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

func (r *Sessions) Open(_ context.Context, s *models.AttendanceSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Keywords == nil {
		s.Keywords = []string{}
	}
	for _, existing := range r.rows {
		if existing.CourseID == s.CourseID && existing.IsActive {
			existing.IsActive = false
			closed := s.CreatedAt
			existing.ClosedAt = &closed
		}
	}
	s.IsActive = true
	r.rows[s.ID] = copySession(s)
	return nil
}

func (r *Sessions) GetByID(_ context.Context, id uuid.UUID) (*models.AttendanceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copySession(s), nil
}

func (r *Sessions) GetActiveByCourse(_ context.Context, courseID uuid.UUID) (*models.AttendanceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.rows {
		if s.CourseID == courseID && s.IsActive {
			return copySession(s), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Sessions) Deactivate(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	s.ClosedAt = &at
	return true, nil
}

func (r *Sessions) ConsumeSemanticCall(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || s.SemanticCallsUsed >= s.MaxSemanticCalls {
		return false, nil
	}
	s.SemanticCallsUsed++
	return true, nil
}

func (r *Sessions) IncrementSubmissions(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rows[id]; ok {
		s.TotalSubmissions++
	}
	return nil
}

// ActiveCount returns how many sessions of the course are flagged active.
func (r *Sessions) ActiveCount(courseID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.rows {
		if s.CourseID == courseID && s.IsActive {
			n++
		}
	}
	return n
}

type Submissions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Submission
	seq  int64
	now  func() time.Time
}

func NewSubmissions() *Submissions {
	return &Submissions{rows: make(map[uuid.UUID]*models.Submission), now: time.Now}
}

// WithClock sets the clock used for created and updated timestamps.
func (r *Submissions) WithClock(now func() time.Time) *Submissions {
	r.now = now
	return r
}

func copySubmission(s *models.Submission) *models.Submission {
	c := *s
	if s.ProcessedAt != nil {
		t := *s.ProcessedAt
		c.ProcessedAt = &t
	}
	return &c
}

func (r *Submissions) Create(_ context.Context, s *models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if existing.SessionID == s.SessionID && existing.StudentID == s.StudentID {
			return repository.ErrConflict
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	// Keep creation order stable even when the clock does not move.
	r.seq++
	now := r.now().Add(time.Duration(r.seq))
	s.CreatedAt = now
	s.UpdatedAt = now
	r.rows[s.ID] = copySubmission(s)
	return nil
}

func (r *Submissions) GetByID(_ context.Context, id uuid.UUID) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copySubmission(s), nil
}

func (r *Submissions) GetBySessionAndStudent(_ context.Context, sessionID, studentID uuid.UUID) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.rows {
		if s.SessionID == sessionID && s.StudentID == studentID {
			return copySubmission(s), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Submissions) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Submission
	for _, s := range r.rows {
		if s.SessionID == sessionID {
			out = append(out, copySubmission(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Submissions) ListPending(_ context.Context, updatedBefore time.Time) ([]*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Submission
	for _, s := range r.rows {
		if s.Status == models.SubmissionPending && !s.UpdatedAt.After(updatedBefore) {
			out = append(out, copySubmission(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (r *Submissions) ResetForRetry(_ context.Context, id uuid.UUID, answer string, retryLimit int) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || !s.Status.Retryable() || s.Attempts >= retryLimit {
		return nil, repository.ErrNotFound
	}
	s.Answer = answer
	s.Status = models.SubmissionPending
	s.Method = models.MethodUnset
	s.Reason = ""
	s.Confidence = 0
	s.ProcessedAt = nil
	s.Attempts++
	s.UpdatedAt = r.now()
	return copySubmission(s), nil
}

func (r *Submissions) Resolve(_ context.Context, id uuid.UUID, v models.Verdict, at time.Time) (bool, error) {
	return r.update(id, v, at, func(s *models.Submission) bool { return s.Status == models.SubmissionPending }), nil
}

func (r *Submissions) Override(_ context.Context, id uuid.UUID, v models.Verdict, at time.Time) (bool, error) {
	return r.update(id, v, at, func(s *models.Submission) bool { return s.Status.Retryable() }), nil
}

func (r *Submissions) update(id uuid.UUID, v models.Verdict, at time.Time, allowed func(*models.Submission) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || !allowed(s) {
		return false
	}
	s.Status = v.Status
	s.Method = v.Method
	s.Reason = v.Reason
	s.Confidence = v.Confidence
	s.ProcessedAt = &at
	s.UpdatedAt = at
	return true
}

func (r *Submissions) CountByStatus(_ context.Context, sessionID uuid.UUID) (models.SubmissionCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c models.SubmissionCounts
	for _, s := range r.rows {
		if s.SessionID != sessionID {
			continue
		}
		c.TotalSubmitted++
		switch s.Status {
		case models.SubmissionApproved:
			c.Approved++
		case models.SubmissionRejected:
			c.Rejected++
		case models.SubmissionPending:
			c.Pending++
		case models.SubmissionFailed:
			c.Failed++
		}
	}
	return c, nil
}

// Count returns the number of stored submissions.
func (r *Submissions) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type recordKey struct {
	student uuid.UUID
	course  uuid.UUID
	date    string
}

func keyFor(student, course uuid.UUID, date time.Time) recordKey {
	return recordKey{student: student, course: course, date: date.Format("2006-01-02")}
}

type Attendance struct {
	mu   sync.Mutex
	rows map[recordKey]*models.AttendanceRecord
}

func NewAttendance() *Attendance {
	return &Attendance{rows: make(map[recordKey]*models.AttendanceRecord)}
}

func (r *Attendance) UpsertPresent(_ context.Context, rec *models.AttendanceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	k := keyFor(rec.StudentID, rec.CourseID, rec.Date)
	if existing, ok := r.rows[k]; ok {
		existing.Status = models.AttendancePresent
		existing.MarkedBy = rec.MarkedBy
		existing.UpdatedAt = now
		*rec = *existing
		return nil
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Status = models.AttendancePresent
	rec.CreatedAt = now
	rec.UpdatedAt = now
	c := *rec
	r.rows[k] = &c
	return nil
}

func (r *Attendance) InsertAbsentees(_ context.Context, courseID uuid.UUID, semesterID *uuid.UUID, date time.Time,
	markedBy uuid.UUID, studentIDs []uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	inserted := 0
	for _, sid := range studentIDs {
		k := keyFor(sid, courseID, date)
		if _, ok := r.rows[k]; ok {
			continue
		}
		r.rows[k] = &models.AttendanceRecord{
			ID:         uuid.New(),
			StudentID:  sid,
			CourseID:   courseID,
			SemesterID: semesterID,
			Date:       date,
			Status:     models.AttendanceAbsent,
			MarkedBy:   markedBy,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		inserted++
	}
	return inserted, nil
}

func (r *Attendance) StudentsWithRecord(_ context.Context, courseID uuid.UUID, date time.Time) (map[uuid.UUID]models.AttendanceStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day := date.Format("2006-01-02")
	out := make(map[uuid.UUID]models.AttendanceStatus)
	for k, rec := range r.rows {
		if k.course == courseID && k.date == day {
			out[k.student] = rec.Status
		}
	}
	return out, nil
}

func (r *Attendance) ListByStudent(_ context.Context, studentID uuid.UUID) ([]*models.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AttendanceRecord
	for _, rec := range r.rows {
		if rec.StudentID == studentID {
			c := *rec
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// Put stores a record as-is, replacing any row with the same key. Used to seed
// Leave or manual marks.
func (r *Attendance) Put(rec models.AttendanceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	r.rows[keyFor(rec.StudentID, rec.CourseID, rec.Date)] = &rec
}

// All returns every stored record.
func (r *Attendance) All() []models.AttendanceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AttendanceRecord, 0, len(r.rows))
	for _, rec := range r.rows {
		out = append(out, *rec)
	}
	return out
}

type Courses struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*models.Course
}

func NewCourses() *Courses {
	return &Courses{rows: make(map[uuid.UUID]*models.Course)}
}

// Add registers a course with its enrolled students.
func (r *Courses) Add(c models.Course) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.StudentIDs = append([]uuid.UUID(nil), c.StudentIDs...)
	r.rows[c.ID] = &c
}

func (r *Courses) GetCourse(_ context.Context, id uuid.UUID) (*models.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *c
	out.StudentIDs = append([]uuid.UUID{}, c.StudentIDs...)
	return &out, nil
}

func (r *Courses) ListCoursesForStudent(_ context.Context, studentID uuid.UUID) ([]*models.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Course
	for _, c := range r.rows {
		if c.IsEnrolled(studentID) {
			cp := *c
			cp.StudentIDs = nil
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
