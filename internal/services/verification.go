package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"attendify-backend/internal/models"
	"attendify-backend/internal/repository"
)

// VerificationService runs the semantic stage for one queued job.
type VerificationService struct {
	guard       *CostGuard
	verifier    SemanticVerifier
	submissions SubmissionStore
	finalizer   *Finalizer
	notifier    Notifier
	threshold   float64
	timeout     time.Duration
	now         Clock
}

func NewVerificationService(
	guard *CostGuard,
	verifier SemanticVerifier,
	submissions SubmissionStore,
	finalizer *Finalizer,
	notifier Notifier,
	threshold float64,
	timeout time.Duration,
) *VerificationService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &VerificationService{
		guard:       guard,
		verifier:    verifier,
		submissions: submissions,
		finalizer:   finalizer,
		notifier:    notifier,
		threshold:   threshold,
		timeout:     timeout,
		now:         systemClock,
	}
}

func (v *VerificationService) WithClock(now Clock) *VerificationService {
	v.now = now
	return v
}

// Process admits the job against the cost guard, calls the verifier and
// records the verdict. Verifier failures are recorded as Failed and returned
// so the caller can log them; the job is never retried.
func (v *VerificationService) Process(ctx context.Context, job models.VerificationJob) error {
	logger := log.With().Str("submission_id", job.SubmissionID.String()).
		Str("session_id", job.SessionID.String()).Logger()

	// Recovered jobs can duplicate one still in the queue; only the job for the
	// submission's current attempt spends verifier budget.
	current, err := v.submissions.GetByID(ctx, job.SubmissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn().Msg("submission not found, job dropped")
			return nil
		}
		return errors.Wrap(err, "load submission")
	}
	if current.Status != models.SubmissionPending || current.Attempts != job.Attempt {
		logger.Debug().Str("status", string(current.Status)).Msg("job is stale, dropped")
		return nil
	}

	if err := v.guard.Admit(ctx, job.SessionID); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			logger.Info().Msg("semantic quota exceeded, flagged for manual review")
			return v.record(ctx, job, models.Verdict{
				Status: models.SubmissionRejected,
				Method: models.MethodManual,
				Reason: models.ReasonQuotaExceeded,
			})
		}
		v.Fail(ctx, job, err)
		return err
	}

	callCtx := ctx
	if v.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	verdict, err := v.verifier.Verify(callCtx, job.Question, job.Answer)
	if err != nil {
		v.Fail(ctx, job, err)
		return err
	}

	result := models.Verdict{
		Status:     models.SubmissionRejected,
		Method:     models.MethodSemantic,
		Reason:     models.ReasonNotVerified,
		Confidence: verdict.Confidence,
	}
	if verdict.Accepted(v.threshold) {
		result.Status = models.SubmissionApproved
		result.Reason = ""
	}
	logger.Info().Bool("is_valid", verdict.IsValid).Float64("confidence", verdict.Confidence).
		Str("status", string(result.Status)).Msg("semantic verdict")

	return v.record(ctx, job, result)
}

// Fail marks the job's submission Failed. Used for verifier errors and for
// panics recovered by the worker.
func (v *VerificationService) Fail(ctx context.Context, job models.VerificationJob, cause error) {
	log.Error().Err(cause).Str("submission_id", job.SubmissionID.String()).Msg("semantic verification failed")
	if err := v.record(ctx, job, models.Verdict{
		Status: models.SubmissionFailed,
		Reason: models.ReasonVerifyFailed,
	}); err != nil {
		log.Error().Err(err).Str("submission_id", job.SubmissionID.String()).Msg("failed to mark submission failed")
	}
}

func (v *VerificationService) record(ctx context.Context, job models.VerificationJob, verdict models.Verdict) error {
	sub := &models.Submission{
		ID:        job.SubmissionID,
		SessionID: job.SessionID,
		StudentID: job.StudentID,
		Answer:    job.Answer,
		Attempts:  job.Attempt,
	}

	now := v.now()
	verdict = v.finalizer.Settle(ctx, sub, verdict)
	ok, err := v.submissions.Resolve(ctx, job.SubmissionID, verdict, now)
	if err != nil {
		return errors.Wrap(err, "record semantic verdict")
	}
	if !ok {
		log.Warn().Str("submission_id", job.SubmissionID.String()).Msg("submission no longer pending, verdict dropped")
		return nil
	}
	applyVerdict(sub, verdict, now)

	publishVerdict(ctx, v.notifier, sub, job.InstructorID)
	return nil
}
