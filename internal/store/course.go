package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/banksoal/apiserver/types"
)

// CourseRepository reads the course catalog used to name subjects.
type CourseRepository struct {
	db *sql.DB
}

func NewCourseRepository(db *sql.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) List(ctx context.Context) ([]types.Course, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, code, name FROM courses ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	courses := make([]types.Course, 0)
	for rows.Next() {
		var c types.Course
		if err := rows.Scan(&c.ID, &c.Code, &c.Name); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

func (r *CourseRepository) Get(ctx context.Context, id int64) (types.Course, error) {
	var c types.Course
	err := r.db.QueryRowContext(ctx, `SELECT id, code, name FROM courses WHERE id = $1`, id).Scan(&c.ID, &c.Code, &c.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Course{}, ErrNotFound
		}
		return types.Course{}, err
	}
	return c, nil
}
