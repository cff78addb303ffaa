package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/banksoal/apiserver/types"
)

// FileRepository handles persistence for question set files.
type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, question_set_id, category, original_name, stored_name, file_type, size, replaces_id,
	is_deleted, deleted_at, deleted_by, uploaded_at, uploaded_by`

func scanFile(row rowScanner) (types.File, error) {
	var (
		f          types.File
		replacesID sql.NullInt64
		deletedAt  sql.NullTime
		deletedBy  sql.NullInt64
	)
	err := row.Scan(
		&f.ID,
		&f.QuestionSetID,
		&f.Category,
		&f.OriginalName,
		&f.StoredName,
		&f.FileType,
		&f.Size,
		&replacesID,
		&f.IsDeleted,
		&deletedAt,
		&deletedBy,
		&f.UploadedAt,
		&f.UploadedBy,
	)
	if err != nil {
		return types.File{}, err
	}
	if replacesID.Valid {
		id := replacesID.Int64
		f.ReplacesID = &id
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		f.DeletedAt = &t
	}
	if deletedBy.Valid {
		id := deletedBy.Int64
		f.DeletedBy = &id
	}
	return f, nil
}

func (r *FileRepository) queryFiles(ctx context.Context, query string, args ...any) ([]types.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make([]types.File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// ListByQuestionSet returns the files of a set ordered by id.
func (r *FileRepository) ListByQuestionSet(ctx context.Context, questionSetID int64, includeDeleted bool) ([]types.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE question_set_id = $1`
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	query += ` ORDER BY id`
	return r.queryFiles(ctx, query, questionSetID)
}

// History returns every file of a set, newest first, optionally for one category.
func (r *FileRepository) History(ctx context.Context, questionSetID int64, category types.Category) ([]types.File, error) {
	if category == "" {
		return r.queryFiles(ctx, `SELECT `+fileColumns+` FROM files WHERE question_set_id = $1 ORDER BY uploaded_at DESC, id DESC`, questionSetID)
	}
	return r.queryFiles(ctx, `SELECT `+fileColumns+` FROM files WHERE question_set_id = $1 AND category = $2 ORDER BY uploaded_at DESC, id DESC`, questionSetID, string(category))
}

func (r *FileRepository) ListDeleted(ctx context.Context) ([]types.File, error) {
	return r.queryFiles(ctx, `SELECT `+fileColumns+` FROM files WHERE is_deleted = TRUE ORDER BY deleted_at DESC, id DESC`)
}

func (r *FileRepository) Get(ctx context.Context, id int64) (types.File, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.File{}, ErrNotFound
		}
		return types.File{}, err
	}
	return f, nil
}

func (r *FileRepository) Create(ctx context.Context, f types.File) (types.File, error) {
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now()
	}

	const query = `
		INSERT INTO files (question_set_id, category, original_name, stored_name, file_type, size, replaces_id, uploaded_at, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		f.QuestionSetID,
		f.Category,
		f.OriginalName,
		f.StoredName,
		f.FileType,
		f.Size,
		f.ReplacesID,
		f.UploadedAt,
		f.UploadedBy,
	).Scan(&f.ID); err != nil {
		return types.File{}, err
	}
	return f, nil
}

// SetDeleted writes the soft-delete columns of one file.
func (r *FileRepository) SetDeleted(ctx context.Context, id int64, deleted bool, at *time.Time, by *int64) error {
	const query = `UPDATE files SET is_deleted = $1, deleted_at = $2, deleted_by = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, deleted, at, by, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func (r *FileRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}
