package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"attendify-backend/internal/models"
	"attendify-backend/internal/repository"
)

const (
	maxQuestionLength  = 1000
	maxDurationMinutes = 180
)

type OpenSessionInput struct {
	CourseID         uuid.UUID
	InstructorID     uuid.UUID
	Question         string
	Keywords         []string
	DurationMinutes  int
	SemanticEnabled  *bool
	MaxSemanticCalls *int
}

// SessionService owns the attendance question window of a course.
type SessionService struct {
	sessions    SessionStore
	submissions SubmissionStore
	courses     CourseDirectory
	finalizer   *Finalizer
	notifier    Notifier
	settings    Settings
	now         Clock
}

func NewSessionService(
	sessions SessionStore,
	submissions SubmissionStore,
	courses CourseDirectory,
	finalizer *Finalizer,
	notifier Notifier,
	settings Settings,
) *SessionService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SessionService{
		sessions:    sessions,
		submissions: submissions,
		courses:     courses,
		finalizer:   finalizer,
		notifier:    notifier,
		settings:    settings,
		now:         systemClock,
	}
}

func (s *SessionService) WithClock(now Clock) *SessionService {
	s.now = now
	return s
}

// Open replaces any active session of the course with a new one.
func (s *SessionService) Open(ctx context.Context, in OpenSessionInput) (*models.AttendanceSession, error) {
	question := strings.TrimSpace(in.Question)
	fields := map[string]string{}
	if question == "" {
		fields["question"] = "Question is required"
	} else if utf8.RuneCountInString(question) > maxQuestionLength {
		fields["question"] = "Question must be at most 1000 characters"
	}

	duration := in.DurationMinutes
	if duration == 0 {
		duration = s.settings.DefaultDurationMinutes
	}
	if duration < 1 || duration > maxDurationMinutes {
		fields["durationMinutes"] = "Duration must be between 1 and 180 minutes"
	}

	maxCalls := s.settings.MaxSemanticCalls
	if in.MaxSemanticCalls != nil {
		if *in.MaxSemanticCalls < 0 {
			fields["maxSemanticCalls"] = "Must not be negative"
		}
		maxCalls = *in.MaxSemanticCalls
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	course, err := s.courses.GetCourse(ctx, in.CourseID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "Course not found"}
	}
	if err != nil {
		return nil, err
	}
	if course.TeacherID != in.InstructorID {
		return nil, &ForbiddenError{Message: "Only the course instructor can start attendance"}
	}

	semantic := true
	if in.SemanticEnabled != nil {
		semantic = *in.SemanticEnabled
	}

	now := s.now()
	session := &models.AttendanceSession{
		CourseID:         course.ID,
		InstructorID:     in.InstructorID,
		Question:         question,
		Keywords:         NormalizeKeywords(in.Keywords),
		IsActive:         true,
		SemanticEnabled:  semantic,
		MaxSemanticCalls: maxCalls,
		CreatedAt:        now,
		ExpiresAt:        now.Add(time.Duration(duration) * time.Minute),
	}
	if err := s.sessions.Open(ctx, session); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Str("session_id", session.ID.String()).Str("course_id", course.ID.String()).
		Int("duration_minutes", duration).Bool("semantic_enabled", semantic).Msg("attendance session opened")
	return session, nil
}

// GetActive returns the open session of the course, or nil. Keywords are only
// visible to the session's instructor.
func (s *SessionService) GetActive(ctx context.Context, courseID, callerID uuid.UUID) (*models.AttendanceSession, error) {
	session, err := s.sessions.GetActiveByCourse(ctx, courseID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	open, err := expireIfDue(ctx, s.sessions, session, s.now())
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, nil
	}

	if session.InstructorID != callerID {
		session.Keywords = nil
	}
	return session, nil
}

// Close deactivates the session and reconciles absentees. Closing an already
// inactive session runs reconciliation again, which only fills in missing rows.
func (s *SessionService) Close(ctx context.Context, sessionID, callerID uuid.UUID) (*models.CloseSummary, error) {
	session, err := s.ownedSession(ctx, sessionID, callerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if _, err := s.sessions.Deactivate(ctx, session.ID, now); err != nil {
		return nil, err
	}
	session.IsActive = false

	summary, err := s.finalizer.ReconcileAbsentees(ctx, session)
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Str("session_id", session.ID.String()).Msg("attendance session closed")
	return summary, nil
}

func (s *SessionService) Stats(ctx context.Context, sessionID, callerID uuid.UUID) (*models.SessionStats, error) {
	session, err := s.ownedSession(ctx, sessionID, callerID)
	if err != nil {
		return nil, err
	}
	if _, err := expireIfDue(ctx, s.sessions, session, s.now()); err != nil {
		return nil, err
	}

	course, err := s.courses.GetCourse(ctx, session.CourseID)
	if err != nil {
		return nil, err
	}
	counts, err := s.submissions.CountByStatus(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	counts.TotalEnrolled = len(course.StudentIDs)

	return &models.SessionStats{
		Session: models.SessionStatsHeader{
			ID:                session.ID,
			Question:          session.Question,
			IsActive:          session.IsActive,
			ExpiresAt:         session.ExpiresAt,
			CreatedAt:         session.CreatedAt,
			SemanticCallsUsed: session.SemanticCallsUsed,
			MaxSemanticCalls:  session.MaxSemanticCalls,
		},
		Stats: counts,
	}, nil
}

func (s *SessionService) ListSubmissions(ctx context.Context, sessionID, callerID uuid.UUID) ([]*models.Submission, error) {
	if _, err := s.ownedSession(ctx, sessionID, callerID); err != nil {
		return nil, err
	}
	subs, err := s.submissions.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []*models.Submission{}
	}
	return subs, nil
}

// Review lets the instructor settle a Rejected, Failed or stale Pending
// submission by hand.
func (s *SessionService) Review(ctx context.Context, submissionID, callerID uuid.UUID, approve bool) (*models.Submission, error) {
	sub, err := s.submissions.GetByID(ctx, submissionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "Submission not found"}
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedSession(ctx, sub.SessionID, callerID); err != nil {
		return nil, err
	}

	now := s.now()
	stale := false
	switch sub.Status {
	case models.SubmissionApproved:
		return nil, ErrAlreadyApproved
	case models.SubmissionPending:
		// A Pending submission whose job was lost can be settled once it is stale.
		if now.Sub(sub.UpdatedAt) < s.settings.StalePendingAfter {
			return nil, ErrVerificationInProgress
		}
		stale = true
	}

	verdict := models.Verdict{
		Status: models.SubmissionRejected,
		Method: models.MethodManual,
		Reason: models.ReasonInstructorCheck,
	}
	if approve {
		verdict = models.Verdict{
			Status:     models.SubmissionApproved,
			Method:     models.MethodManual,
			Confidence: 1,
		}
		// Write attendance first so a failed write leaves the submission as it was.
		approved := *sub
		applyVerdict(&approved, verdict, now)
		if err := s.finalizer.MarkPresent(ctx, &approved); err != nil {
			return nil, err
		}
	}

	settle := s.submissions.Override
	if stale {
		settle = s.submissions.Resolve
	}
	ok, err := settle(ctx, sub.ID, verdict, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVerificationInProgress
	}
	applyVerdict(sub, verdict, now)

	publishVerdict(ctx, s.notifier, sub, callerID)
	log.Ctx(ctx).Info().Str("submission_id", sub.ID.String()).Bool("approved", approve).Msg("submission reviewed")
	return sub, nil
}

// ownedSession loads a session and checks the caller is its instructor.
func (s *SessionService) ownedSession(ctx context.Context, sessionID, callerID uuid.UUID) (*models.AttendanceSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if session.InstructorID != callerID {
		return nil, &ForbiddenError{Message: "Only the session instructor can manage this session"}
	}
	return session, nil
}

// expireIfDue flips an expired active session to inactive. It reports whether
// the session is still open for submissions.
func expireIfDue(ctx context.Context, store SessionStore, session *models.AttendanceSession, now time.Time) (bool, error) {
	if !session.IsActive {
		return false, nil
	}
	if !session.Expired(now) {
		return true, nil
	}

	if _, err := store.Deactivate(ctx, session.ID, now); err != nil {
		return false, err
	}
	session.IsActive = false
	session.ClosedAt = &now
	log.Ctx(ctx).Info().Str("session_id", session.ID.String()).Msg("attendance session expired")
	return false, nil
}

func applyVerdict(sub *models.Submission, v models.Verdict, at time.Time) {
	sub.Status = v.Status
	sub.Method = v.Method
	sub.Reason = v.Reason
	sub.Confidence = v.Confidence
	sub.ProcessedAt = &at
	sub.UpdatedAt = at
}

// publishVerdict notifies the student and nudges the instructor's stats view.
func publishVerdict(ctx context.Context, n Notifier, sub *models.Submission, instructorID uuid.UUID) {
	n.Publish(ctx, sub.StudentID, models.WSMessage{
		Type: models.WSSubmissionUpdate,
		Payload: models.SubmissionUpdate{
			SubmissionID: sub.ID,
			SessionID:    sub.SessionID,
			Status:       sub.Status,
			Method:       sub.Method,
			Reason:       sub.Reason,
		},
	})
	if instructorID != uuid.Nil {
		n.Publish(ctx, instructorID, models.WSMessage{
			Type: models.WSSessionActivity,
			Payload: models.SessionActivity{
				SessionID:    sub.SessionID,
				SubmissionID: sub.ID,
				Status:       sub.Status,
			},
		})
	}
}
