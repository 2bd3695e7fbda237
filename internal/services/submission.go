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

// SubmissionService owns a student's answer lifecycle for a session.
type SubmissionService struct {
	sessions    SessionStore
	submissions SubmissionStore
	courses     CourseDirectory
	pipeline    *Pipeline
	queue       Enqueuer
	finalizer   *Finalizer
	notifier    Notifier
	settings    Settings
	now         Clock
}

func NewSubmissionService(
	sessions SessionStore,
	submissions SubmissionStore,
	courses CourseDirectory,
	pipeline *Pipeline,
	queue Enqueuer,
	finalizer *Finalizer,
	notifier Notifier,
	settings Settings,
) *SubmissionService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SubmissionService{
		sessions:    sessions,
		submissions: submissions,
		courses:     courses,
		pipeline:    pipeline,
		queue:       queue,
		finalizer:   finalizer,
		notifier:    notifier,
		settings:    settings,
		now:         systemClock,
	}
}

func (s *SubmissionService) WithClock(now Clock) *SubmissionService {
	s.now = now
	return s
}

// Submit records an answer attempt and runs the synchronous part of the
// pipeline. The result is either a terminal verdict or Pending.
func (s *SubmissionService) Submit(ctx context.Context, sessionID, studentID uuid.UUID, answer string) (*models.SubmitResult, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, &ValidationError{Fields: map[string]string{"answer": "Answer is required"}}
	}
	if utf8.RuneCountInString(answer) > MaxAnswerLength {
		return nil, &ValidationError{Fields: map[string]string{"answer": "Answer must be at most 500 characters"}}
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, ErrSessionNotFound
	}
	open, err := expireIfDue(ctx, s.sessions, session, s.now())
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, ErrSessionExpired
	}

	course, err := s.courses.GetCourse(ctx, session.CourseID)
	if err != nil {
		return nil, errors.Wrap(err, "load course")
	}
	if !course.IsEnrolled(studentID) {
		return nil, ErrNotEnrolled
	}

	sub, err := s.claimAttempt(ctx, session, studentID, answer)
	if err != nil {
		return nil, err
	}

	decision := s.pipeline.Evaluate(session, answer)
	if decision.Enqueue {
		err = s.enqueue(ctx, session, sub)
	} else {
		err = s.resolve(ctx, session, sub, decision.Verdict)
	}
	if err != nil {
		return nil, err
	}

	return &models.SubmitResult{
		SubmissionID: sub.ID,
		Status:       sub.Status,
		Method:       sub.Method,
		Reason:       sub.Reason,
		Attempts:     sub.Attempts,
		MaxAttempts:  s.settings.RetryLimit,
	}, nil
}

// claimAttempt creates the first attempt or moves a retryable submission back
// to Pending with the new answer.
func (s *SubmissionService) claimAttempt(ctx context.Context, session *models.AttendanceSession, studentID uuid.UUID, answer string) (*models.Submission, error) {
	existing, err := s.submissions.GetBySessionAndStudent(ctx, session.ID, studentID)
	if errors.Is(err, repository.ErrNotFound) {
		sub := &models.Submission{
			SessionID: session.ID,
			StudentID: studentID,
			Answer:    answer,
			Status:    models.SubmissionPending,
			Attempts:  1,
		}
		err := s.submissions.Create(ctx, sub)
		if errors.Is(err, repository.ErrConflict) {
			// A concurrent first attempt won the insert.
			return nil, ErrVerificationInProgress
		}
		if err != nil {
			return nil, err
		}
		if err := s.sessions.IncrementSubmissions(ctx, session.ID); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to bump submission counter")
		}
		return sub, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.checkRetryable(existing); err != nil {
		return nil, err
	}

	sub, err := s.submissions.ResetForRetry(ctx, existing.ID, answer, s.settings.RetryLimit)
	if errors.Is(err, repository.ErrNotFound) {
		// Lost a race with another attempt or a verdict; report the current state.
		current, getErr := s.submissions.GetByID(ctx, existing.ID)
		if getErr != nil {
			return nil, getErr
		}
		if err := s.checkRetryable(current); err != nil {
			return nil, err
		}
		return nil, ErrVerificationInProgress
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubmissionService) checkRetryable(sub *models.Submission) error {
	switch {
	case sub.Status == models.SubmissionApproved:
		return ErrAlreadyApproved
	case sub.Status == models.SubmissionPending:
		return ErrVerificationInProgress
	case sub.Attempts >= s.settings.RetryLimit:
		return ErrRetryLimitExceeded
	}
	return nil
}

func (s *SubmissionService) enqueue(ctx context.Context, session *models.AttendanceSession, sub *models.Submission) error {
	job := models.VerificationJob{
		SubmissionID: sub.ID,
		SessionID:    session.ID,
		StudentID:    sub.StudentID,
		InstructorID: session.InstructorID,
		Question:     session.Question,
		Answer:       sub.Answer,
		Attempt:      sub.Attempts,
		EnqueuedAt:   s.now(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("submission_id", sub.ID.String()).Msg("failed to enqueue verification")
		return s.resolve(ctx, session, sub, models.Verdict{
			Status: models.SubmissionFailed,
			Reason: models.ReasonVerifyUnavail,
		})
	}
	log.Ctx(ctx).Debug().Str("submission_id", sub.ID.String()).Int("attempt", sub.Attempts).Msg("submission queued for semantic verification")
	return nil
}

// resolve writes a terminal verdict decided on the request path.
func (s *SubmissionService) resolve(ctx context.Context, session *models.AttendanceSession, sub *models.Submission, v models.Verdict) error {
	now := s.now()
	v = s.finalizer.Settle(ctx, sub, v)
	if _, err := s.submissions.Resolve(ctx, sub.ID, v, now); err != nil {
		return errors.Wrap(err, "record verdict")
	}
	applyVerdict(sub, v, now)

	s.notifier.Publish(ctx, session.InstructorID, models.WSMessage{
		Type: models.WSSessionActivity,
		Payload: models.SessionActivity{
			SessionID:    session.ID,
			SubmissionID: sub.ID,
			Status:       sub.Status,
		},
	})
	return nil
}

// RequeuePending hands Pending submissions last touched at or before
// updatedBefore back to the verification queue. Submissions whose session is
// no longer open are marked Failed so the student or instructor can act on
// them. It returns how many jobs were queued.
func (s *SubmissionService) RequeuePending(ctx context.Context, updatedBefore time.Time) (int, error) {
	pending, err := s.submissions.ListPending(ctx, updatedBefore)
	if err != nil {
		return 0, errors.Wrap(err, "list pending submissions")
	}

	sessions := make(map[uuid.UUID]*models.AttendanceSession)
	queued := 0
	for _, sub := range pending {
		session, ok := sessions[sub.SessionID]
		if !ok {
			session, err = s.sessions.GetByID(ctx, sub.SessionID)
			if err != nil {
				return queued, errors.Wrap(err, "load session")
			}
			sessions[sub.SessionID] = session
		}

		if !session.OpenForSubmissions(s.now()) {
			if err := s.resolve(ctx, session, sub, models.Verdict{
				Status: models.SubmissionFailed,
				Reason: models.ReasonVerifyUnavail,
			}); err != nil {
				return queued, err
			}
			continue
		}

		if err := s.enqueue(ctx, session, sub); err != nil {
			return queued, err
		}
		if sub.Status == models.SubmissionPending {
			queued++
		}
	}

	if len(pending) > 0 {
		log.Ctx(ctx).Info().Int("pending", len(pending)).Int("queued", queued).Msg("pending submissions recovered")
	}
	return queued, nil
}

// Get returns the student's own submission for a session.
func (s *SubmissionService) Get(ctx context.Context, sessionID, studentID uuid.UUID) (*models.Submission, error) {
	sub, err := s.submissions.GetBySessionAndStudent(ctx, sessionID, studentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "No submission for this session"}
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}
