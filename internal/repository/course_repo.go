package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"attendify-backend/internal/models"
)

// CourseRepo reads course and enrollment rows owned by the academic service.
type CourseRepo struct {
	pool *pgxpool.Pool
}

func NewCourseRepo(pool *pgxpool.Pool) *CourseRepo {
	return &CourseRepo{pool: pool}
}

func (r *CourseRepo) GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	c := &models.Course{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, code, teacher_id, semester_id FROM courses WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Code, &c.TeacherID, &c.SemesterID)
	if err != nil {
		return nil, translate(err, "get course")
	}

	rows, err := r.pool.Query(ctx,
		`SELECT student_id FROM course_enrollments WHERE course_id = $1 ORDER BY student_id`, id)
	if err != nil {
		return nil, errors.Wrap(err, "list enrollments")
	}
	defer rows.Close()

	c.StudentIDs = []uuid.UUID{}
	for rows.Next() {
		var sid uuid.UUID
		if err := rows.Scan(&sid); err != nil {
			return nil, errors.Wrap(err, "scan enrollment")
		}
		c.StudentIDs = append(c.StudentIDs, sid)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate enrollments")
	}
	return c, nil
}

// ListCoursesForStudent returns the courses the student is enrolled in. Student
// lists are not populated.
func (r *CourseRepo) ListCoursesForStudent(ctx context.Context, studentID uuid.UUID) ([]*models.Course, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.name, c.code, c.teacher_id, c.semester_id
		FROM courses c
		JOIN course_enrollments e ON e.course_id = c.id
		WHERE e.student_id = $1
		ORDER BY c.code, c.name
	`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "list student courses")
	}
	defer rows.Close()

	var courses []*models.Course
	for rows.Next() {
		c := &models.Course{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.TeacherID, &c.SemesterID); err != nil {
			return nil, errors.Wrap(err, "scan course")
		}
		courses = append(courses, c)
	}
	return courses, errors.Wrap(rows.Err(), "iterate courses")
}
