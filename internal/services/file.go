package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/banksoal/apiserver/internal/filemeta"
	"github.com/banksoal/apiserver/internal/lifecycle"
	"github.com/banksoal/apiserver/internal/logger"
	"github.com/banksoal/apiserver/internal/storage"
	"github.com/banksoal/apiserver/internal/store"
	"github.com/banksoal/apiserver/types"
)

const genericContentType = "application/octet-stream"

// Upload is one file submitted for a question set.
type Upload struct {
	QuestionSetID int64
	Category      string
	Filename      string
	ContentType   string
	Content       io.Reader
	Replace       bool
}

// Content is a file together with its bytes.
type Content struct {
	File        types.File
	Data        []byte
	ContentType string
}

// FileService encapsulates file use-cases.
type FileService struct {
	sets    QuestionSetRepository
	files   FileRepository
	storage *storage.Storage
	purger  *Purger
	now     func() time.Time
}

func NewFileService(sets QuestionSetRepository, files FileRepository, objects *storage.Storage, purger *Purger) *FileService {
	return &FileService{
		sets:    sets,
		files:   files,
		storage: objects,
		purger:  purger,
		now:     time.Now,
	}
}

// Upload stores the bytes and records the file. With Replace set, the active
// files of the same category are soft-deleted once the new row exists, and
// the newest of them is linked through ReplacesID.
func (s *FileService) Upload(ctx context.Context, actor types.Actor, in Upload) (types.File, error) {
	category, ok := filemeta.ClassifyCategory(in.Category)
	if !ok {
		return types.File{}, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, in.Category)
	}
	filename := strings.TrimSpace(in.Filename)
	if filename == "" || in.Content == nil {
		return types.File{}, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}

	qs, err := activeSet(ctx, s.sets, in.QuestionSetID)
	if err != nil {
		return types.File{}, err
	}

	data, err := io.ReadAll(in.Content)
	if err != nil {
		return types.File{}, fmt.Errorf("read upload: %w", err)
	}
	contentType := sniffContentType(in.ContentType, data)

	res := filemeta.ResolveExtension(filemeta.FileMeta{OriginalName: filename, ContentType: contentType})
	key := storage.ObjectKey(qs.ID, uuid.NewString()+res.Ext)
	if err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return types.File{}, fmt.Errorf("store object: %w", err)
	}

	record := types.File{
		QuestionSetID: qs.ID,
		Category:      category,
		OriginalName:  filename,
		StoredName:    key,
		FileType:      contentType,
		Size:          int64(len(data)),
		UploadedAt:    s.now(),
		UploadedBy:    actor.ID,
	}

	var predecessors []types.File
	if in.Replace {
		predecessors, record.ReplacesID, err = s.activeInCategory(ctx, qs.ID, category)
		if err != nil {
			_ = s.storage.Delete(ctx, key)
			return types.File{}, err
		}
	}

	created, err := s.files.Create(ctx, record)
	if err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			logger.Warn().Err(delErr).Str("key", key).Msg("cleanup of orphaned upload failed")
		}
		return types.File{}, err
	}

	// The new row exists before anything is retired, so a failure here never
	// leaves the category without an active file.
	if err := s.retire(ctx, actor, predecessors); err != nil {
		if delErr := s.files.Delete(ctx, created.ID); delErr != nil {
			logger.Warn().Err(delErr).Int64("file_id", created.ID).Msg("rollback of replacement row failed")
		}
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			logger.Warn().Err(delErr).Str("key", key).Msg("cleanup of orphaned upload failed")
		}
		return types.File{}, err
	}

	logger.Info().Int64("question_set_id", qs.ID).Int64("file_id", created.ID).Str("category", string(category)).Bool("replace", in.Replace).Msg("file uploaded")
	return created, nil
}

// activeInCategory lists the active files of one category and returns the id
// of the newest of them.
func (s *FileService) activeInCategory(ctx context.Context, questionSetID int64, category types.Category) ([]types.File, *int64, error) {
	active, err := s.files.ListByQuestionSet(ctx, questionSetID, false)
	if err != nil {
		return nil, nil, err
	}

	var (
		matched []types.File
		newest  *types.File
	)
	for i := range active {
		f := active[i]
		if f.Category != category {
			continue
		}
		matched = append(matched, f)
		if newest == nil || f.UploadedAt.After(newest.UploadedAt) || (f.UploadedAt.Equal(newest.UploadedAt) && f.ID > newest.ID) {
			newest = &active[i]
		}
	}
	if newest == nil {
		return nil, nil, nil
	}
	id := newest.ID
	return matched, &id, nil
}

// retire soft-deletes files. On failure the files retired so far are
// restored.
func (s *FileService) retire(ctx context.Context, actor types.Actor, files []types.File) error {
	now := s.now()
	by := actor.ID
	for i, f := range files {
		if err := s.files.SetDeleted(ctx, f.ID, true, &now, &by); err != nil {
			for _, done := range files[:i] {
				if undoErr := s.files.SetDeleted(ctx, done.ID, false, nil, nil); undoErr != nil {
					logger.Warn().Err(undoErr).Int64("file_id", done.ID).Msg("restore of retired file failed")
				}
			}
			return fmt.Errorf("retire file %d: %w", f.ID, err)
		}
	}
	return nil
}

func sniffContentType(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && !strings.HasPrefix(strings.ToLower(declared), genericContentType) {
		return declared
	}
	return mimetype.Detect(data).String()
}

// Download returns the bytes of an active file.
func (s *FileService) Download(ctx context.Context, id int64) (Content, error) {
	f, err := s.files.Get(ctx, id)
	if err != nil {
		return Content{}, err
	}
	if f.IsDeleted {
		return Content{}, store.ErrNotFound
	}
	return s.read(ctx, f)
}

func (s *FileService) read(ctx context.Context, f types.File) (Content, error) {
	data, err := s.storage.ReadAll(ctx, f.StoredName)
	if err != nil {
		return Content{}, fmt.Errorf("read object %s: %w", f.StoredName, err)
	}
	return Content{File: f, Data: data, ContentType: sniffContentType(f.FileType, data)}, nil
}

func (s *FileService) SoftDelete(ctx context.Context, actor types.Actor, id int64) (types.File, error) {
	return s.transition(ctx, actor, id, lifecycle.ActionDelete)
}

// Restore brings a file back. Its question set must be active.
func (s *FileService) Restore(ctx context.Context, actor types.Actor, id int64) (types.File, error) {
	return s.transition(ctx, actor, id, lifecycle.ActionRestore)
}

func (s *FileService) transition(ctx context.Context, actor types.Actor, id int64, action lifecycle.Action) (types.File, error) {
	f, err := s.files.Get(ctx, id)
	if err != nil {
		return types.File{}, err
	}
	next, err := lifecycle.Next(lifecycle.StateOf(f.IsDeleted), action)
	if err != nil {
		return types.File{}, fmt.Errorf("%w: %w", ErrConflict, err)
	}
	deleted := next == lifecycle.StateSoftDeleted
	if deleted == f.IsDeleted {
		return f, nil
	}
	if !deleted {
		if _, err := activeSet(ctx, s.sets, f.QuestionSetID); err != nil {
			return types.File{}, err
		}
	}

	var (
		at *time.Time
		by *int64
	)
	if deleted {
		now := s.now()
		actorID := actor.ID
		at, by = &now, &actorID
	}
	if err := s.files.SetDeleted(ctx, id, deleted, at, by); err != nil {
		return types.File{}, err
	}
	f.IsDeleted, f.DeletedAt, f.DeletedBy = deleted, at, by
	logger.Info().Int64("file_id", id).Int64("actor", actor.ID).Str("action", action.String()).Msg("file lifecycle change")
	return f, nil
}

// Purge permanently deletes a file in the recycle bin.
func (s *FileService) Purge(ctx context.Context, actor types.Actor, id int64) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: permanent deletion requires the admin role", ErrForbidden)
	}
	f, err := s.files.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := lifecycle.Next(lifecycle.StateOf(f.IsDeleted), lifecycle.ActionPurge); err != nil {
		return fmt.Errorf("%w: file must be in the recycle bin before it is deleted permanently", ErrConflict)
	}
	if err := s.files.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info().Int64("file_id", id).Int64("actor", actor.ID).Msg("file purged")

	if s.purger == nil || f.StoredName == "" {
		return nil
	}
	event := types.PurgeEvent{
		Kind:       string(lifecycle.KindFile),
		ID:         id,
		ObjectKeys: []string{f.StoredName},
		PurgedBy:   actor.ID,
		PurgedAt:   s.now(),
	}
	if err := s.purger.Schedule(ctx, event); err != nil {
		logger.Error().Err(err).Int64("file_id", id).Msg("purge object failed")
	}
	return nil
}

func (s *FileService) RecycleBin(ctx context.Context) ([]types.File, error) {
	return s.files.ListDeleted(ctx)
}

// History lists every upload of a set, newest first. An empty category means all.
func (s *FileService) History(ctx context.Context, questionSetID int64, category string) ([]types.File, error) {
	if _, err := s.sets.Get(ctx, questionSetID); err != nil {
		return nil, err
	}
	var c types.Category
	if strings.TrimSpace(category) != "" {
		var ok bool
		if c, ok = filemeta.ClassifyCategory(category); !ok {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, category)
		}
	}
	return s.files.History(ctx, questionSetID, c)
}

// CombinePreview returns the newest active questions or answers file of a set.
func (s *FileService) CombinePreview(ctx context.Context, questionSetID int64, kind string) (Content, error) {
	category, ok := filemeta.ClassifyCategory(kind)
	if !ok || category == types.CategoryTestCases {
		return Content{}, fmt.Errorf("%w: preview type must be questions or answers", ErrInvalidInput)
	}
	if _, err := activeSet(ctx, s.sets, questionSetID); err != nil {
		return Content{}, err
	}

	files, err := s.files.ListByQuestionSet(ctx, questionSetID, false)
	if err != nil {
		return Content{}, err
	}
	var newest *types.File
	for i := range files {
		f := &files[i]
		if f.Category != category {
			continue
		}
		if newest == nil || f.UploadedAt.After(newest.UploadedAt) || (f.UploadedAt.Equal(newest.UploadedAt) && f.ID > newest.ID) {
			newest = f
		}
	}
	if newest == nil {
		return Content{}, fmt.Errorf("no %s file for question set %d: %w", category, questionSetID, store.ErrNotFound)
	}
	return s.read(ctx, *newest)
}
