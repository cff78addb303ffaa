package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banksoal/apiserver/types"
)

// QuestionSetRepository handles persistence for question sets.
type QuestionSetRepository struct {
	db *sql.DB
}

func NewQuestionSetRepository(db *sql.DB) *QuestionSetRepository {
	return &QuestionSetRepository{db: db}
}

const questionSetColumns = `id, title, description, subject_id, subject_name, difficulty, lecturer, year, topics,
	downloads, is_deleted, deleted_at, deleted_by, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestionSet(row rowScanner) (types.QuestionSet, error) {
	var (
		qs          types.QuestionSet
		subjectID   sql.NullInt64
		subjectName string
		topics      string
		deletedAt   sql.NullTime
		deletedBy   sql.NullInt64
	)
	err := row.Scan(
		&qs.ID,
		&qs.Title,
		&qs.Description,
		&subjectID,
		&subjectName,
		&qs.Difficulty,
		&qs.Lecturer,
		&qs.Year,
		&topics,
		&qs.Downloads,
		&qs.IsDeleted,
		&deletedAt,
		&deletedBy,
		&qs.CreatedBy,
		&qs.CreatedAt,
		&qs.UpdatedAt,
	)
	if err != nil {
		return types.QuestionSet{}, err
	}

	if subjectID.Valid && subjectID.Int64 > 0 {
		qs.Subject = types.SubjectID(subjectID.Int64)
	} else {
		qs.Subject = types.SubjectName(subjectName)
	}
	qs.Topics = types.SplitTopics(topics)
	if deletedAt.Valid {
		t := deletedAt.Time
		qs.DeletedAt = &t
	}
	if deletedBy.Valid {
		id := deletedBy.Int64
		qs.DeletedBy = &id
	}
	return qs, nil
}

func subjectColumns(ref types.SubjectRef) (sql.NullInt64, string) {
	if id, ok := ref.ID(); ok {
		return sql.NullInt64{Int64: id, Valid: true}, ""
	}
	name, _ := ref.Name()
	return sql.NullInt64{}, name
}

func (r *QuestionSetRepository) List(ctx context.Context, filter types.QuestionSetFilter, offset, limit int) ([]types.QuestionSet, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	where, args := filterClause(filter)

	countQuery := `SELECT COUNT(1) FROM question_sets WHERE ` + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := fmt.Sprintf(`
		SELECT %s
		FROM question_sets
		WHERE %s
		ORDER BY updated_at DESC, id DESC
		OFFSET $%d LIMIT $%d`, questionSetColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, listQuery, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sets := make([]types.QuestionSet, 0, limit)
	for rows.Next() {
		qs, err := scanQuestionSet(rows)
		if err != nil {
			return nil, 0, err
		}
		sets = append(sets, qs)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return sets, total, nil
}

func filterClause(filter types.QuestionSetFilter) (string, []any) {
	conds := []string{"is_deleted = FALSE"}
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d OR lecturer ILIKE $%d)", n, n, n))
	}
	if filter.SubjectID > 0 {
		add("subject_id = $%d", filter.SubjectID)
	}
	if filter.Difficulty != "" {
		add("difficulty = $%d", string(filter.Difficulty))
	}
	if filter.Year > 0 {
		add("year = $%d", filter.Year)
	}
	if topic := strings.TrimSpace(filter.Topic); topic != "" {
		add("topics ILIKE $%d", "%"+topic+"%")
	}
	return strings.Join(conds, " AND "), args
}

// Get returns a question set in any state, without files.
func (r *QuestionSetRepository) Get(ctx context.Context, id int64) (types.QuestionSet, error) {
	query := `SELECT ` + questionSetColumns + ` FROM question_sets WHERE id = $1`
	qs, err := scanQuestionSet(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.QuestionSet{}, ErrNotFound
		}
		return types.QuestionSet{}, err
	}
	return qs, nil
}

func (r *QuestionSetRepository) Create(ctx context.Context, qs types.QuestionSet) (types.QuestionSet, error) {
	now := time.Now()
	qs.CreatedAt = now
	qs.UpdatedAt = now

	subjectID, subjectName := subjectColumns(qs.Subject)
	const query = `
		INSERT INTO question_sets (title, description, subject_id, subject_name, difficulty, lecturer, year, topics, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		qs.Title,
		qs.Description,
		subjectID,
		subjectName,
		qs.Difficulty,
		qs.Lecturer,
		qs.Year,
		types.JoinTopics(qs.Topics),
		qs.CreatedBy,
		qs.CreatedAt,
		qs.UpdatedAt,
	).Scan(&qs.ID); err != nil {
		return types.QuestionSet{}, err
	}

	return qs, nil
}

// Update writes the editable metadata and the soft-delete columns.
func (r *QuestionSetRepository) Update(ctx context.Context, qs types.QuestionSet) (types.QuestionSet, error) {
	qs.UpdatedAt = time.Now()

	subjectID, subjectName := subjectColumns(qs.Subject)
	const query = `
		UPDATE question_sets
		SET title = $1,
			description = $2,
			subject_id = $3,
			subject_name = $4,
			difficulty = $5,
			lecturer = $6,
			year = $7,
			topics = $8,
			is_deleted = $9,
			deleted_at = $10,
			deleted_by = $11,
			updated_at = $12
		WHERE id = $13`
	result, err := r.db.ExecContext(
		ctx,
		query,
		qs.Title,
		qs.Description,
		subjectID,
		subjectName,
		qs.Difficulty,
		qs.Lecturer,
		qs.Year,
		types.JoinTopics(qs.Topics),
		qs.IsDeleted,
		qs.DeletedAt,
		qs.DeletedBy,
		qs.UpdatedAt,
		qs.ID,
	)
	if err != nil {
		return types.QuestionSet{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.QuestionSet{}, err
	}
	if affected == 0 {
		return types.QuestionSet{}, ErrNotFound
	}

	return qs, nil
}

func (r *QuestionSetRepository) IncrementDownloads(ctx context.Context, id int64) error {
	const query = `UPDATE question_sets SET downloads = downloads + 1 WHERE id = $1 AND is_deleted = FALSE`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// Delete removes the row; files go with it through the foreign key.
func (r *QuestionSetRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM question_sets WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func (r *QuestionSetRepository) ListDeleted(ctx context.Context) ([]types.QuestionSet, error) {
	query := `SELECT ` + questionSetColumns + ` FROM question_sets WHERE is_deleted = TRUE ORDER BY deleted_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sets := make([]types.QuestionSet, 0)
	for rows.Next() {
		qs, err := scanQuestionSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, qs)
	}
	return sets, rows.Err()
}

func expectAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
