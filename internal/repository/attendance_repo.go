package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"attendify-backend/internal/models"
)

type AttendanceRepo struct {
	pool *pgxpool.Pool
}

func NewAttendanceRepo(pool *pgxpool.Pool) *AttendanceRepo {
	return &AttendanceRepo{pool: pool}
}

// UpsertPresent records the student as Present for the date. An existing row
// for the same day (including an Absent written by an earlier close) is
// overwritten.
func (r *AttendanceRepo) UpsertPresent(ctx context.Context, rec *models.AttendanceRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO attendance_records (id, student_id, course_id, semester_id, date, status, marked_by)
		VALUES ($1, $2, $3, $4, $5, 'Present', $6)
		ON CONFLICT (student_id, course_id, date) DO UPDATE
		SET status = 'Present', marked_by = EXCLUDED.marked_by, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, rec.ID, rec.StudentID, rec.CourseID, rec.SemesterID, rec.Date, rec.MarkedBy,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "upsert present")
	}
	rec.Status = models.AttendancePresent
	return nil
}

// InsertAbsentees writes an Absent row for every student that has no row for
// the date yet. Existing rows are left untouched. It returns the number of
// rows actually inserted.
func (r *AttendanceRepo) InsertAbsentees(ctx context.Context, courseID uuid.UUID, semesterID *uuid.UUID,
	date time.Time, markedBy uuid.UUID, studentIDs []uuid.UUID) (int, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	ids := make([]string, len(studentIDs))
	for i, id := range studentIDs {
		ids[i] = id.String()
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO attendance_records (id, student_id, course_id, semester_id, date, status, marked_by)
		SELECT gen_random_uuid(), sid::uuid, $2, $3, $4, 'Absent', $5
		FROM unnest($1::text[]) AS sid
		ON CONFLICT (student_id, course_id, date) DO NOTHING
	`, ids, courseID, semesterID, date, markedBy)
	if err != nil {
		return 0, errors.Wrap(err, "insert absentees")
	}
	return int(tag.RowsAffected()), nil
}

// StudentsWithRecord returns students that already have any record for the
// course and date.
func (r *AttendanceRepo) StudentsWithRecord(ctx context.Context, courseID uuid.UUID, date time.Time) (map[uuid.UUID]models.AttendanceStatus, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, status FROM attendance_records WHERE course_id = $1 AND date = $2`, courseID, date)
	if err != nil {
		return nil, errors.Wrap(err, "list day records")
	}
	defer rows.Close()

	out := make(map[uuid.UUID]models.AttendanceStatus)
	for rows.Next() {
		var id uuid.UUID
		var status models.AttendanceStatus
		if err := rows.Scan(&id, &status); err != nil {
			return nil, errors.Wrap(err, "scan day record")
		}
		out[id] = status
	}
	return out, errors.Wrap(rows.Err(), "iterate day records")
}

func (r *AttendanceRepo) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*models.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, student_id, course_id, semester_id, date, status, COALESCE(marked_by, '00000000-0000-0000-0000-000000000000'),
			created_at, updated_at
		FROM attendance_records
		WHERE student_id = $1
		ORDER BY date DESC
	`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "list student attendance")
	}
	defer rows.Close()

	var records []*models.AttendanceRecord
	for rows.Next() {
		rec := &models.AttendanceRecord{}
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.CourseID, &rec.SemesterID, &rec.Date,
			&rec.Status, &rec.MarkedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan attendance record")
		}
		records = append(records, rec)
	}
	return records, errors.Wrap(rows.Err(), "iterate attendance records")
}
