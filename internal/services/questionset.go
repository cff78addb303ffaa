package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banksoal/apiserver/internal/lifecycle"
	"github.com/banksoal/apiserver/internal/logger"
	"github.com/banksoal/apiserver/internal/store"
	"github.com/banksoal/apiserver/types"
)

// QuestionSetRepository defines persistence operations for question sets.
type QuestionSetRepository interface {
	List(ctx context.Context, filter types.QuestionSetFilter, offset, limit int) ([]types.QuestionSet, int, error)
	Get(ctx context.Context, id int64) (types.QuestionSet, error)
	Create(ctx context.Context, qs types.QuestionSet) (types.QuestionSet, error)
	Update(ctx context.Context, qs types.QuestionSet) (types.QuestionSet, error)
	IncrementDownloads(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	ListDeleted(ctx context.Context) ([]types.QuestionSet, error)
}

// FileRepository defines persistence operations for question set files.
type FileRepository interface {
	ListByQuestionSet(ctx context.Context, questionSetID int64, includeDeleted bool) ([]types.File, error)
	History(ctx context.Context, questionSetID int64, category types.Category) ([]types.File, error)
	ListDeleted(ctx context.Context) ([]types.File, error)
	Get(ctx context.Context, id int64) (types.File, error)
	Create(ctx context.Context, f types.File) (types.File, error)
	SetDeleted(ctx context.Context, id int64, deleted bool, at *time.Time, by *int64) error
	Delete(ctx context.Context, id int64) error
}

// CourseRepository reads the course catalog.
type CourseRepository interface {
	List(ctx context.Context) ([]types.Course, error)
	Get(ctx context.Context, id int64) (types.Course, error)
}

// QuestionSetService encapsulates question set use-cases.
type QuestionSetService struct {
	sets    QuestionSetRepository
	files   FileRepository
	courses CourseRepository
	purger  *Purger
	now     func() time.Time
}

func NewQuestionSetService(sets QuestionSetRepository, files FileRepository, courses CourseRepository, purger *Purger) *QuestionSetService {
	return &QuestionSetService{
		sets:    sets,
		files:   files,
		courses: courses,
		purger:  purger,
		now:     time.Now,
	}
}

func (s *QuestionSetService) List(ctx context.Context, filter types.QuestionSetFilter, offset, limit int) ([]types.QuestionSet, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.sets.List(ctx, filter, offset, limit)
}

// Get returns an active question set with its active files. A download
// request also bumps the counter.
func (s *QuestionSetService) Get(ctx context.Context, id int64, download bool) (types.QuestionSet, error) {
	qs, err := s.sets.Get(ctx, id)
	if err != nil {
		return types.QuestionSet{}, err
	}
	if qs.IsDeleted {
		return types.QuestionSet{}, store.ErrNotFound
	}

	files, err := s.files.ListByQuestionSet(ctx, id, false)
	if err != nil {
		return types.QuestionSet{}, err
	}
	qs.Files = files

	if download {
		if err := s.RecordDownload(ctx, id); err != nil {
			return types.QuestionSet{}, err
		}
		qs.Downloads++
	}
	return qs, nil
}

// RecordDownload bumps the download counter of an active question set.
func (s *QuestionSetService) RecordDownload(ctx context.Context, id int64) error {
	return s.sets.IncrementDownloads(ctx, id)
}

func (s *QuestionSetService) Create(ctx context.Context, actor types.Actor, qs types.QuestionSet) (types.QuestionSet, error) {
	qs.Title = strings.TrimSpace(qs.Title)
	if qs.Title == "" {
		return types.QuestionSet{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if qs.Difficulty == "" {
		qs.Difficulty = types.DifficultyMedium
	}
	if err := validateQuestionSet(qs); err != nil {
		return types.QuestionSet{}, err
	}

	qs.ID = 0
	qs.Downloads = 0
	qs.IsDeleted = false
	qs.DeletedAt = nil
	qs.DeletedBy = nil
	qs.CreatedBy = actor.ID
	return s.sets.Create(ctx, qs)
}

func validateQuestionSet(qs types.QuestionSet) error {
	if !qs.Difficulty.Valid() {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidInput, qs.Difficulty)
	}
	if qs.Year < 0 {
		return fmt.Errorf("%w: year must not be negative", ErrInvalidInput)
	}
	return nil
}

// Update applies a partial edit. Toggling isDeleted soft-deletes or restores,
// so the edit is allowed on sets in the recycle bin.
func (s *QuestionSetService) Update(ctx context.Context, actor types.Actor, id int64, patch types.QuestionSetPatch) (types.QuestionSet, error) {
	qs, err := s.sets.Get(ctx, id)
	if err != nil {
		return types.QuestionSet{}, err
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return types.QuestionSet{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
		}
		qs.Title = title
	}
	if patch.Description != nil {
		qs.Description = *patch.Description
	}
	if patch.Subject != nil {
		qs.Subject = *patch.Subject
	}
	if patch.Difficulty != nil {
		qs.Difficulty = *patch.Difficulty
	}
	if patch.Lecturer != nil {
		qs.Lecturer = *patch.Lecturer
	}
	if patch.Year != nil {
		qs.Year = *patch.Year
	}
	if patch.Topics != nil {
		qs.Topics = *patch.Topics
	}
	if err := validateQuestionSet(qs); err != nil {
		return types.QuestionSet{}, err
	}
	if patch.IsDeleted != nil && *patch.IsDeleted != qs.IsDeleted {
		s.markDeleted(&qs, actor, *patch.IsDeleted)
	}

	return s.sets.Update(ctx, qs)
}

func (s *QuestionSetService) markDeleted(qs *types.QuestionSet, actor types.Actor, deleted bool) {
	qs.IsDeleted = deleted
	if !deleted {
		qs.DeletedAt = nil
		qs.DeletedBy = nil
		return
	}
	now := s.now()
	by := actor.ID
	qs.DeletedAt = &now
	qs.DeletedBy = &by
}

// SoftDelete moves a set to the recycle bin. Deleting a set that is
// already there is a no-op.
func (s *QuestionSetService) SoftDelete(ctx context.Context, actor types.Actor, id int64) (types.QuestionSet, error) {
	return s.transition(ctx, actor, id, lifecycle.ActionDelete)
}

// Restore brings a set back from the recycle bin. Restoring an active set is a no-op.
func (s *QuestionSetService) Restore(ctx context.Context, actor types.Actor, id int64) (types.QuestionSet, error) {
	return s.transition(ctx, actor, id, lifecycle.ActionRestore)
}

func (s *QuestionSetService) transition(ctx context.Context, actor types.Actor, id int64, action lifecycle.Action) (types.QuestionSet, error) {
	qs, err := s.sets.Get(ctx, id)
	if err != nil {
		return types.QuestionSet{}, err
	}
	next, err := lifecycle.Next(lifecycle.StateOf(qs.IsDeleted), action)
	if err != nil {
		return types.QuestionSet{}, fmt.Errorf("%w: %w", ErrConflict, err)
	}
	deleted := next == lifecycle.StateSoftDeleted
	if deleted == qs.IsDeleted {
		return qs, nil
	}

	s.markDeleted(&qs, actor, deleted)
	updated, err := s.sets.Update(ctx, qs)
	if err != nil {
		return types.QuestionSet{}, err
	}
	logger.Info().Int64("question_set_id", id).Int64("actor", actor.ID).Str("action", action.String()).Msg("question set lifecycle change")
	return updated, nil
}

// Purge permanently deletes a set in the recycle bin together with its files.
func (s *QuestionSetService) Purge(ctx context.Context, actor types.Actor, id int64) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: permanent deletion requires the admin role", ErrForbidden)
	}
	qs, err := s.sets.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := lifecycle.Next(lifecycle.StateOf(qs.IsDeleted), lifecycle.ActionPurge); err != nil {
		return fmt.Errorf("%w: question set must be in the recycle bin before it is deleted permanently", ErrConflict)
	}

	files, err := s.files.ListByQuestionSet(ctx, id, true)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(files))
	for _, f := range files {
		if f.StoredName != "" {
			keys = append(keys, f.StoredName)
		}
	}

	if err := s.sets.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info().Int64("question_set_id", id).Int64("actor", actor.ID).Int("files", len(files)).Msg("question set purged")

	if s.purger == nil {
		return nil
	}
	event := types.PurgeEvent{
		Kind:       string(lifecycle.KindQuestionSet),
		ID:         id,
		ObjectKeys: keys,
		PurgedBy:   actor.ID,
		PurgedAt:   s.now(),
	}
	if err := s.purger.Schedule(ctx, event); err != nil {
		// Rows are gone already; orphaned objects are only logged.
		logger.Error().Err(err).Int64("question_set_id", id).Msg("purge objects failed")
	}
	return nil
}

func (s *QuestionSetService) RecycleBin(ctx context.Context) ([]types.QuestionSet, error) {
	return s.sets.ListDeleted(ctx)
}

// CourseIndex loads the catalog for subject name resolution. A catalog
// failure degrades to an empty index.
func (s *QuestionSetService) CourseIndex(ctx context.Context) types.CourseIndex {
	if s.courses == nil {
		return types.CourseIndex{}
	}
	courses, err := s.courses.List(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("load course catalog failed")
		return types.CourseIndex{}
	}
	return types.NewCourseIndex(courses)
}

// activeSet returns the set only when it is not in the recycle bin.
func activeSet(ctx context.Context, sets QuestionSetRepository, id int64) (types.QuestionSet, error) {
	qs, err := sets.Get(ctx, id)
	if err != nil {
		return types.QuestionSet{}, err
	}
	if qs.IsDeleted {
		return types.QuestionSet{}, fmt.Errorf("%w: question set %d is in the recycle bin", ErrConflict, id)
	}
	return qs, nil
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
