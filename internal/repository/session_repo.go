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

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `id, course_id, instructor_id, question, accepted_keywords, is_active,
	semantic_enabled, max_semantic_calls, semantic_calls_used, total_submissions,
	created_at, expires_at, closed_at`

func scanSession(row pgx.Row) (*models.AttendanceSession, error) {
	s := &models.AttendanceSession{}
	err := row.Scan(
		&s.ID, &s.CourseID, &s.InstructorID, &s.Question, &s.Keywords, &s.IsActive,
		&s.SemanticEnabled, &s.MaxSemanticCalls, &s.SemanticCallsUsed, &s.TotalSubmissions,
		&s.CreatedAt, &s.ExpiresAt, &s.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Open deactivates any active session for the course and inserts s as the new
// active one. Both steps share a transaction serialized per course by an
// advisory lock; the partial unique index on (course_id) WHERE is_active backs
// it up.
func (r *SessionRepo) Open(ctx context.Context, s *models.AttendanceSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Keywords == nil {
		s.Keywords = []string{}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin open session")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.CourseID.String()); err != nil {
		return errors.Wrap(err, "lock course sessions")
	}

	_, err = tx.Exec(ctx, `
		UPDATE attendance_sessions
		SET is_active = FALSE, closed_at = NOW()
		WHERE course_id = $1 AND is_active
	`, s.CourseID)
	if err != nil {
		return errors.Wrap(err, "deactivate previous sessions")
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO attendance_sessions
			(id, course_id, instructor_id, question, accepted_keywords, is_active,
			 semantic_enabled, max_semantic_calls, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $8, $9)
		RETURNING `+sessionColumns,
		s.ID, s.CourseID, s.InstructorID, s.Question, s.Keywords,
		s.SemanticEnabled, s.MaxSemanticCalls, s.CreatedAt, s.ExpiresAt,
	).Scan(
		&s.ID, &s.CourseID, &s.InstructorID, &s.Question, &s.Keywords, &s.IsActive,
		&s.SemanticEnabled, &s.MaxSemanticCalls, &s.SemanticCallsUsed, &s.TotalSubmissions,
		&s.CreatedAt, &s.ExpiresAt, &s.ClosedAt,
	)
	if err != nil {
		return translate(err, "insert session")
	}

	return errors.Wrap(tx.Commit(ctx), "commit open session")
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.AttendanceSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get session")
	}
	return s, nil
}

// GetActiveByCourse returns the session flagged active for the course, expired
// or not. Expiry is the caller's decision.
func (r *SessionRepo) GetActiveByCourse(ctx context.Context, courseID uuid.UUID) (*models.AttendanceSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM attendance_sessions WHERE course_id = $1 AND is_active`, courseID))
	if err != nil {
		return nil, translate(err, "get active session")
	}
	return s, nil
}

// Deactivate flips is_active to false. It reports whether this call did the flip.
func (r *SessionRepo) Deactivate(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE attendance_sessions
		SET is_active = FALSE, closed_at = $2
		WHERE id = $1 AND is_active
	`, id, at)
	if err != nil {
		return false, errors.Wrap(err, "deactivate session")
	}
	return tag.RowsAffected() == 1, nil
}

// ConsumeSemanticCall atomically takes one call from the session budget. It
// returns false when the budget is spent or the session does not exist.
func (r *SessionRepo) ConsumeSemanticCall(ctx context.Context, id uuid.UUID) (bool, error) {
	var used int
	err := r.pool.QueryRow(ctx, `
		UPDATE attendance_sessions
		SET semantic_calls_used = semantic_calls_used + 1
		WHERE id = $1 AND semantic_calls_used < max_semantic_calls
		RETURNING semantic_calls_used
	`, id).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "consume semantic call")
	}
	return true, nil
}

func (r *SessionRepo) IncrementSubmissions(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attendance_sessions SET total_submissions = total_submissions + 1 WHERE id = $1`, id)
	return errors.Wrap(err, "increment submissions")
}
