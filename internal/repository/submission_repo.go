package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"attendify-backend/internal/models"
)

type SubmissionRepo struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepo(pool *pgxpool.Pool) *SubmissionRepo {
	return &SubmissionRepo{pool: pool}
}

const submissionColumns = `id, session_id, student_id, answer_text, status, verification_method,
	reason, confidence_score, attempt_count, processed_at, created_at, updated_at`

func scanSubmission(row pgx.Row) (*models.Submission, error) {
	s := &models.Submission{}
	err := row.Scan(
		&s.ID, &s.SessionID, &s.StudentID, &s.Answer, &s.Status, &s.Method,
		&s.Reason, &s.Confidence, &s.Attempts, &s.ProcessedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a first attempt. A second row for the same (session, student)
// yields ErrConflict.
func (r *SubmissionRepo) Create(ctx context.Context, s *models.Submission) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	query := `INSERT INTO attendance_submissions (id, session_id, student_id, answer_text, status, attempt_count)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		s.ID, s.SessionID, s.StudentID, s.Answer, s.Status, s.Attempts,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return translate(err, "create submission")
}

func (r *SubmissionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	s, err := scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM attendance_submissions WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get submission")
	}
	return s, nil
}

func (r *SubmissionRepo) GetBySessionAndStudent(ctx context.Context, sessionID, studentID uuid.UUID) (*models.Submission, error) {
	s, err := scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM attendance_submissions WHERE session_id = $1 AND student_id = $2`,
		sessionID, studentID))
	if err != nil {
		return nil, translate(err, "get submission by student")
	}
	return s, nil
}

func (r *SubmissionRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM attendance_submissions WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "list submissions")
	}
	defer rows.Close()

	var subs []*models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan submission")
		}
		subs = append(subs, s)
	}
	return subs, errors.Wrap(rows.Err(), "iterate submissions")
}

func (r *SubmissionRepo) ListPending(ctx context.Context, updatedBefore time.Time) ([]*models.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM attendance_submissions
		 WHERE status = 'Pending' AND updated_at <= $1 ORDER BY updated_at`, updatedBefore)
	if err != nil {
		return nil, errors.Wrap(err, "list pending submissions")
	}
	defer rows.Close()

	var subs []*models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan submission")
		}
		subs = append(subs, s)
	}
	return subs, errors.Wrap(rows.Err(), "iterate pending submissions")
}

// ResetForRetry moves a Rejected or Failed submission back to Pending with the
// new answer, as long as it is still under the attempt limit. It returns the
// updated row, or ErrNotFound when the transition no longer applies.
func (r *SubmissionRepo) ResetForRetry(ctx context.Context, id uuid.UUID, answer string, retryLimit int) (*models.Submission, error) {
	s, err := scanSubmission(r.pool.QueryRow(ctx, `
		UPDATE attendance_submissions
		SET answer_text = $2,
			status = 'Pending',
			verification_method = '',
			reason = '',
			confidence_score = 0,
			processed_at = NULL,
			attempt_count = attempt_count + 1,
			updated_at = NOW()
		WHERE id = $1
		  AND status IN ('Rejected', 'Failed')
		  AND attempt_count < $3
		RETURNING `+submissionColumns,
		id, answer, retryLimit))
	if err != nil {
		return nil, translate(err, "reset submission")
	}
	return s, nil
}

// Resolve writes a verdict onto a Pending submission. It reports false when the
// submission was no longer Pending.
func (r *SubmissionRepo) Resolve(ctx context.Context, id uuid.UUID, v models.Verdict, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE attendance_submissions
		SET status = $2, verification_method = $3, reason = $4, confidence_score = $5,
			processed_at = $6, updated_at = NOW()
		WHERE id = $1 AND status = 'Pending'
	`, id, v.Status, v.Method, v.Reason, v.Confidence, at)
	if err != nil {
		return false, errors.Wrap(err, "resolve submission")
	}
	return tag.RowsAffected() == 1, nil
}

// Override replaces the verdict of a non-approved submission. Used for
// instructor review.
func (r *SubmissionRepo) Override(ctx context.Context, id uuid.UUID, v models.Verdict, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE attendance_submissions
		SET status = $2, verification_method = $3, reason = $4, confidence_score = $5,
			processed_at = $6, updated_at = NOW()
		WHERE id = $1 AND status IN ('Rejected', 'Failed')
	`, id, v.Status, v.Method, v.Reason, v.Confidence, at)
	if err != nil {
		return false, errors.Wrap(err, "override submission")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SubmissionRepo) CountByStatus(ctx context.Context, sessionID uuid.UUID) (models.SubmissionCounts, error) {
	var c models.SubmissionCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'Approved'),
			COUNT(*) FILTER (WHERE status = 'Rejected'),
			COUNT(*) FILTER (WHERE status = 'Pending'),
			COUNT(*) FILTER (WHERE status = 'Failed')
		FROM attendance_submissions
		WHERE session_id = $1
	`, sessionID).Scan(&c.TotalSubmitted, &c.Approved, &c.Rejected, &c.Pending, &c.Failed)
	if err != nil {
		return c, errors.Wrap(err, "count submissions")
	}
	return c, nil
}
