package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"attendify-backend/internal/models"
)

// SessionStore persists attendance sessions. Implemented by
// repository.SessionRepo and memrepo.Sessions.
type SessionStore interface {
	Open(ctx context.Context, s *models.AttendanceSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AttendanceSession, error)
	GetActiveByCourse(ctx context.Context, courseID uuid.UUID) (*models.AttendanceSession, error)
	Deactivate(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ConsumeSemanticCall(ctx context.Context, id uuid.UUID) (bool, error)
	IncrementSubmissions(ctx context.Context, id uuid.UUID) error
}

type SubmissionStore interface {
	Create(ctx context.Context, s *models.Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	GetBySessionAndStudent(ctx context.Context, sessionID, studentID uuid.UUID) (*models.Submission, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Submission, error)
	// ListPending returns Pending submissions last touched at or before updatedBefore.
	ListPending(ctx context.Context, updatedBefore time.Time) ([]*models.Submission, error)
	ResetForRetry(ctx context.Context, id uuid.UUID, answer string, retryLimit int) (*models.Submission, error)
	Resolve(ctx context.Context, id uuid.UUID, v models.Verdict, at time.Time) (bool, error)
	Override(ctx context.Context, id uuid.UUID, v models.Verdict, at time.Time) (bool, error)
	CountByStatus(ctx context.Context, sessionID uuid.UUID) (models.SubmissionCounts, error)
}

type AttendanceStore interface {
	UpsertPresent(ctx context.Context, rec *models.AttendanceRecord) error
	InsertAbsentees(ctx context.Context, courseID uuid.UUID, semesterID *uuid.UUID, date time.Time,
		markedBy uuid.UUID, studentIDs []uuid.UUID) (int, error)
	StudentsWithRecord(ctx context.Context, courseID uuid.UUID, date time.Time) (map[uuid.UUID]models.AttendanceStatus, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*models.AttendanceRecord, error)
}

// CourseDirectory is the read-only view of the academic service's courses.
type CourseDirectory interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error)
	ListCoursesForStudent(ctx context.Context, studentID uuid.UUID) ([]*models.Course, error)
}

// Enqueuer hands a submission to the semantic verification queue. It must not
// wait for the verdict.
type Enqueuer interface {
	Enqueue(ctx context.Context, job models.VerificationJob) error
}

// Notifier pushes live updates to a connected user.
type Notifier interface {
	Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
}

type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, uuid.UUID, models.WSMessage) {}

// Clock is swapped in tests.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
